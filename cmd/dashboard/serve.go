package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ieeeucsd/dashboard-finance/internal/container"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event subscribers and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			logger.Info("Starting dashboard finance service", zap.String("version", Version))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := container.NewContainer(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					logger.Error("Shutdown finished with errors", zap.Error(err))
				}
			}()

			if err := c.Start(ctx); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}

			srv, err := c.Server()
			if err != nil {
				return err
			}
			if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("server stopped: %w", err)
			}
			logger.Info("Server exited")
			return nil
		},
	}
}

