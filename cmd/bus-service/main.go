package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"synapse/internal/config"
	"synapse/internal/logger"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "bus-service",
		Short: "Resilient message bus bridge",
		Long:  "bus-service validates, publishes, persists and redelivers envelopes between services and the transport",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bus service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return fmt.Errorf("--config is required")
			}

			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log, err := logger.New(cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}

			return app.Run(ctx)
		},
	}
}
