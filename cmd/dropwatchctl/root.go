package main

import (
	"github.com/spf13/cobra"

	"github.com/okian/dropwatch/pkg/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dropwatchctl",
		Short:         "Operate the dropout risk service",
		Long:          "dropwatchctl trains the dropout model artifact, generates synthetic student data and simulates traffic against a running server.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("log-format")
			level, _ := cmd.Flags().GetString("log-level")
			if err := logger.Init(logger.WithFormat(format), logger.WithOutput(cmd.ErrOrStderr())); err != nil {
				return err
			}
			return logger.SetLevelString(level)
		},
	}
	root.PersistentFlags().String("log-format", "text", "Log format: text or json")
	root.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")

	root.AddCommand(newTrainCmd())
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newSimulateCmd())
	return root
}
