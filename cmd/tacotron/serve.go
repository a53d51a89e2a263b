package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/go-tacotron2/internal/server"
)

func newServeCmd() *cobra.Command {
	var maxChunkChars int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mel inference HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			m, err := loadModel(cfg)
			if err != nil {
				return err
			}

			srv := server.New(cfg.Server, server.NewModelSynthesizer(m, maxChunkChars), slog.Default())

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&maxChunkChars, "max-chunk-chars", 220, "Maximum characters per chunk for chunked requests")

	return cmd
}
