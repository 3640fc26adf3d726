package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/angeloszaimis/edge-router/config"
	"github.com/angeloszaimis/edge-router/internal/assets"
	"github.com/angeloszaimis/edge-router/internal/compute"
	"github.com/angeloszaimis/edge-router/internal/correlator"
	"github.com/angeloszaimis/edge-router/internal/handler"
	"github.com/angeloszaimis/edge-router/pkg/logger"
)

// newEdgeHandler wires the built-in asset table and the Compute forwarder.
// Metrics are not collected on Compute; each request runs in a fresh
// instance.
func newEdgeHandler(cfg *config.Config, log *slog.Logger, demoLog io.Writer) (*handler.EdgeHandler, error) {
	source, err := config.SourceHost(cfg.Logging.SourceEnv)
	if err != nil {
		return nil, err
	}

	table, err := assets.LoadEmbedded()
	if err != nil {
		return nil, fmt.Errorf("load assets: %w", err)
	}

	corr := correlator.New(logger.NewChannel(demoLog, config.LogLevelInfo), source)
	fwd := compute.New(cfg.Backend.Name, log)

	return handler.NewEdgeHandler(log, table, fwd, corr, nil), nil
}
