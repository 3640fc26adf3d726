// Command edge-compute runs the edge router as a Fastly Compute service.
// Build it for wasip1; the edge_app backend and the demo_logs endpoint are
// configured on the service.
package main

import (
	"log/slog"
	"os"

	"github.com/fastly/compute-sdk-go/fsthttp"
	"github.com/fastly/compute-sdk-go/rtlog"

	"github.com/angeloszaimis/edge-router/config"
	"github.com/angeloszaimis/edge-router/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, false, cfg.Server.Environment)

	edgeHandler, err := newEdgeHandler(cfg, log, rtlog.Open(cfg.Logging.DemoChannel))
	if err != nil {
		log.Error("Failed to start edge handler", slog.Any("err", err))
		os.Exit(1)
	}

	fsthttp.Serve(fsthttp.Adapt(edgeHandler))
}
