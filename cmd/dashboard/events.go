package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/event"
	"github.com/ieeeucsd/dashboard-finance/internal/infrastructure/pubsub"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect published change events",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Print change events from the Redis channel as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.Redis.URL == "" {
				return fmt.Errorf("redis.url is not configured")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := pubsub.Connect(ctx, cfg.Redis.URL)
			if err != nil {
				return err
			}
			defer client.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			err = pubsub.Subscribe(ctx, client, cfg.Redis.Channel, func(_ context.Context, evt *event.Event) error {
				return enc.Encode(evt)
			}, logger)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	})
	return cmd
}
