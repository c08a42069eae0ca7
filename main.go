package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"studyrag/backend/internal/app"
	"studyrag/backend/internal/config"
	"studyrag/backend/internal/logger"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "studyrag",
		Short:        "Document indexing and retrieval backend for study materials",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newIndexCmd(), newQueryCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the index worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, log)
		},
	}
}

// run bootstraps dependencies and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer deps.Close()

	a, err := app.New(ctx, cfg, deps.DB, deps.Index, deps.Embedder, deps.Blobs, deps.NSQProducer, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)
	return cfg, log, nil
}
