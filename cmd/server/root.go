package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"hradmin/internal/app/server"
	"hradmin/internal/platform/config"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hradmin",
		Short:         "Org hierarchy and approval workflow service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newImportCmd(),
		newExportCmd(),
		newTreeCmd(),
	)
	return cmd
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads and validates the environment.
func loadConfig() (config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openApp builds the application for one-shot commands. Their logs go to
// stderr so stdout stays free for command output.
func openApp(ctx context.Context) (*server.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return server.New(ctx, cfg, newLogger(os.Stderr, cfg.LogLevel))
}
