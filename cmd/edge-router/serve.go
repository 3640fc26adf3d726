package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angeloszaimis/edge-router/config"
	"github.com/angeloszaimis/edge-router/internal/assets"
	"github.com/angeloszaimis/edge-router/internal/backend"
	"github.com/angeloszaimis/edge-router/internal/correlator"
	"github.com/angeloszaimis/edge-router/internal/handler"
	"github.com/angeloszaimis/edge-router/internal/healthcheck"
	"github.com/angeloszaimis/edge-router/internal/httpserver"
	"github.com/angeloszaimis/edge-router/internal/metrics"
	"github.com/angeloszaimis/edge-router/pkg/logger"
)

const metricsBufferSize = 1000

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	table, err := loadTable(cfg.Assets)
	if err != nil {
		log.Error("Failed to load assets", slog.Any("err", err))
		return err
	}

	source, err := resolveSource(cfg.Logging, log)
	if err != nil {
		log.Error("Failed to resolve log source", slog.Any("err", err))
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collector := metrics.NewCollector(metricsBufferSize, log, metrics.NewPrometheus(reg))
	collector.Start(ctx)

	edgeApp, err := initializeBackend(ctx, cfg, log, collector)
	if err != nil {
		log.Error("Failed to initialize backend", slog.Any("err", err))
		return err
	}

	// Demo records go to stderr so they stay separate from operational logs.
	corr := correlator.New(logger.NewChannel(os.Stderr, config.LogLevelInfo), source)
	edgeHandler := handler.NewEdgeHandler(log, table, edgeApp, corr, collector)

	// The public listener has no mux: ServeMux would clean and redirect paths
	// that must instead fall through to the default document.
	srv, err := httpserver.New(cfg.Server.Address, edgeHandler,
		httpserver.WithWriteTimeout(0))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		return err
	}

	admin, err := httpserver.New(cfg.Server.AdminAddress, setupAdminRouter(edgeApp, collector, reg))
	if err != nil {
		log.Error("Failed to create admin server", slog.Any("err", err))
		return err
	}

	srvErrCh := make(chan error, 2)

	go func() {
		srvErrCh <- srv.Start()
	}()
	go func() {
		srvErrCh <- admin.Start()
	}()

	log.Info("Edge router started",
		slog.String("address", cfg.Server.Address),
		slog.String("admin_address", cfg.Server.AdminAddress),
		slog.String("backend", edgeApp.URL().String()),
		slog.Int("assets", table.Len()),
		slog.String("source", source))

	var runErr error

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-srvErrCh:
		if runErr != nil {
			log.Error("Error starting edge router", slog.Any("err", runErr))
		}
	}

	for _, s := range []*httpserver.Server{srv, admin} {
		if err := s.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown",
				slog.String("address", s.Addr()),
				slog.Any("err", err))
		}
	}

	return runErr
}

func loadTable(cfg config.AssetsConfig) (*assets.Table, error) {
	if cfg.Dir == "" {
		return assets.LoadEmbedded()
	}
	return assets.Load(os.DirFS(cfg.Dir), cfg.Manifest)
}

// resolveSource reads the host identifier for demo records. A missing
// variable is fatal unless the hostname fallback is enabled, which is meant
// for running outside the edge platform.
func resolveSource(cfg config.LoggingConfig, log *slog.Logger) (string, error) {
	source, err := config.SourceHost(cfg.SourceEnv)
	if err == nil || !cfg.HostnameFallback || !errors.Is(err, config.ErrMissingEnvironment) {
		return source, err
	}

	host, hostErr := os.Hostname()
	if hostErr != nil {
		return "", fmt.Errorf("%w (hostname: %v)", err, hostErr)
	}

	log.Warn("Log source not set, using hostname",
		slog.String("env", cfg.SourceEnv),
		slog.String("hostname", host))

	return host, nil
}

func initializeBackend(ctx context.Context, cfg *config.Config, log *slog.Logger, collector *metrics.Collector) (*backend.Backend, error) {
	u, err := cfg.BackendURL()
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}

	wsURL, err := cfg.BackendWebsocketURL()
	if err != nil {
		return nil, fmt.Errorf("parse backend websocket url: %w", err)
	}

	timeout := cfg.BackendTimeout()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	edgeApp := backend.New(cfg.Backend.Name, u,
		backend.WithWebsocketURL(wsURL),
		backend.WithTransport(transport),
		backend.WithTimeout(timeout),
		backend.WithLogger(log),
	)

	go healthcheck.HealthCheck(ctx, edgeApp, cfg.HealthCheckInterval(), cfg.HealthCheck.Path, log, collector)

	return edgeApp, nil
}
