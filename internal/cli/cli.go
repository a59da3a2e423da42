// Package cli wires configuration, logging, metrics and the run
// controller into the two cobra entrypoints; it is imported by both
// cmd/anonymize-local and cmd/anonymize-replicate.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ardoooo/anonymizepg/internal/config"
	"github.com/ardoooo/anonymizepg/internal/logging"
	"github.com/ardoooo/anonymizepg/internal/metrics"
	"github.com/ardoooo/anonymizepg/internal/runctl"
)

// NewRootCommand builds the shared root command for one binary. name and
// short distinguish the local and replicated entrypoints; mode fixes
// which run controller path this binary drives.
func NewRootCommand(name, short string, mode runctl.Mode) *cobra.Command {
	var envPath string

	cmd := &cobra.Command{
		Use:   name + " <settings-path>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], envPath, mode)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&envPath, "env", "", "path to a .env file (defaults to ./.env if present)")

	return cmd
}

func run(ctx context.Context, settingsPath, envPath string, mode runctl.Mode) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	conns, err := config.LoadConnections(envPath, mode == runctl.Replicated)
	if err != nil {
		return fmt.Errorf("loading connections: %w", err)
	}

	logger, err := logging.New(settings.LogsDir)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	sink, err := metrics.NewInDir(settings.MetricsDir)
	if err != nil {
		return fmt.Errorf("setting up metrics: %w", err)
	}
	defer sink.Close()

	return runctl.Run(ctx, mode, settings, conns, sink, logger)
}
