package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/septivank/sensor-telemetry/internal/config"
	"github.com/septivank/sensor-telemetry/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string

	logger *zap.Logger
}

// NewRootCommand creates the root command for the operations CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "telemetryctl",
		Short:         "Operations tool for the sensor telemetry service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadDotEnv()

			logger, err := logging.NewLogger("telemetryctl", opts.LogLevel)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewPublishCommand(opts))

	return cmd
}
