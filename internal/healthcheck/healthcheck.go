package healthcheck

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/angeloszaimis/edge-router/internal/backend"
	"github.com/angeloszaimis/edge-router/internal/metrics"
)

// DefaultPath is probed when no health path is configured.
const DefaultPath = "/health"

// HealthCheck periodically checks if a backend is healthy by sending
// HTTP GET requests to path on the backend. The backend's health status
// is updated based on the response and changes are reported to collector,
// which may be nil.
func HealthCheck(
	ctx context.Context,
	backend *backend.Backend,
	interval time.Duration,
	path string,
	logger *slog.Logger,
	collector *metrics.Collector,
) {
	if path == "" {
		path = DefaultPath
	}

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Health check stopped",
				slog.String("backend", backend.Name()))
			return

		case <-ticker.C:
			healthy := probe(ctx, client, backend.URL().ResolveReference(&url.URL{Path: path}))
			if !backend.SetHealthy(healthy) {
				continue
			}

			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventHealthChanged,
				Backend: backend.Name(),
				Healthy: healthy,
			})

			if healthy {
				logger.Info("Backend is back up",
					slog.String("backend", backend.Name()),
					slog.String("url", backend.URL().String()))
			} else {
				logger.Warn("Backend is down",
					slog.String("backend", backend.Name()),
					slog.String("url", backend.URL().String()))
			}
		}
	}
}

func probe(ctx context.Context, client *http.Client, healthURL *url.URL) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL.String(), nil)
	if err != nil {
		return false
	}

	res, err := client.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK
}
