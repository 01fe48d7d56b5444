package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/deckcheck/server"
)

func serveCmd(configPath, logLevel *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis HTTP server",
		Long: `Serve exposes deck analysis over HTTP.

POST /analyze accepts a multipart form with a "deck" file plus optional
audience, duration_minutes, talk_type, and event fields. /healthz and
/metrics report liveness and Prometheus metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, logger, err := setup(*configPath, *logLevel)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			srv := server.New(cfg, client,
				server.WithLogger(logger),
				server.WithRenderer(newRenderer(cfg, logger)),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}
