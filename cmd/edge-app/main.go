// Command edge-app is a stand-in for the edge_app backend used when running
// edge-router locally. It serves a small rooms API under /api/, a /health
// endpoint, and echoes websocket messages on any path.
//
// Usage:
//
//	go run ./cmd/edge-app --address :8081
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/edge-router/internal/httpserver"
	"github.com/angeloszaimis/edge-router/pkg/logger"
)

func main() {
	var (
		address  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:          "edge-app",
		Short:        "Local stand-in for the edge_app backend",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.New(logLevel, false, "dev")

			srv, err := httpserver.New(address, newApp(log).routes(), httpserver.WithWriteTimeout(0))
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			log.Info("starting edge app", slog.String("address", address))

			select {
			case <-ctx.Done():
				return srv.Shutdown(context.Background())
			case err := <-errCh:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&address, "address", ":8081", "address to listen on")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
