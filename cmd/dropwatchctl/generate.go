package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/okian/dropwatch/internal/domain/scoring"
	"github.com/okian/dropwatch/pkg/logger"
)

func newGenerateCmd() *cobra.Command {
	var (
		out  string
		n    int
		seed int64
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic student dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if n <= 0 {
				return fmt.Errorf("rows must be positive, got %d", n)
			}
			ds := scoring.Generate(n, seed)

			w := cmd.OutOrStdout()
			if out != "-" {
				if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
					return fmt.Errorf("create data dir: %w", err)
				}
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			if err := scoring.WriteDataset(w, ds); err != nil {
				return err
			}

			dropouts := 0
			for _, y := range ds.Y {
				dropouts += y
			}
			logger.Named("generate").Info(cmd.Context(), "dataset written",
				logger.String("path", out), logger.Int("rows", n), logger.Int("dropouts", dropouts))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&out, "out", "data/students.csv", "Output CSV path, or - for stdout")
	f.IntVar(&n, "rows", 1000, "Number of students")
	f.Int64Var(&seed, "seed", scoring.DefaultSeed, "Random seed")
	return cmd
}
