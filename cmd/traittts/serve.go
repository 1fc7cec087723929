package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/go-trait-tts/internal/server"
	"github.com/example/go-trait-tts/internal/synth"
	"github.com/example/go-trait-tts/internal/traits"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP synthesis server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metrics := server.NewMetrics("traittts")
			st, err := buildStack(ctx, cfg, synth.WithObserver(metrics.Observe))
			if err != nil {
				return err
			}
			defer st.Close()

			srv := server.New(cfg.Server, st.orch, traits.Library{Dir: cfg.Paths.TraitsDir},
				server.WithMetrics(metrics),
				server.WithDefaults(cfg.Synth),
				server.WithLogger(slog.Default()),
			)
			return srv.Start(ctx)
		},
	}

	return cmd
}
