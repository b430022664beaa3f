package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/okian/dropwatch/internal/simulate"
	"github.com/okian/dropwatch/pkg/logger"
)

func newSimulateCmd() *cobra.Command {
	cfg := &simulate.Config{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive predict, log and outcome traffic against a server and verify its metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := simulate.Run(cmd.Context(), cfg, logger.Named("simulate"))
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "students: %d  predicted: %d  logged: %d  outcomes: %d  failed: %d  (%s)\n",
				stats.Students, stats.Predicted, stats.Logged, stats.Updated, stats.Failed, stats.Duration.Round(1e6))
			for _, level := range []string{"Low", "Medium", "High"} {
				fmt.Fprintf(w, "  %-6s %d\n", level, stats.ByRisk[level])
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:8000", "Base URL of the service")
	f.IntVar(&cfg.Students, "students", simulate.DefaultStudents, "Number of synthetic students")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU(), "Number of concurrent workers")
	f.DurationVar(&cfg.Timeout, "timeout", simulate.DefaultTimeout, "HTTP request timeout")
	f.Float64Var(&cfg.CompletionRate, "completion-rate", simulate.DefaultCompletionRate, "Share of interventions that get an outcome")
	f.Int64Var(&cfg.Seed, "seed", simulate.DefaultSeed, "Random seed")
	return cmd
}
