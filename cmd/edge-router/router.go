package main

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angeloszaimis/edge-router/internal/backend"
	"github.com/angeloszaimis/edge-router/internal/metrics"
)

func setupAdminRouter(edgeApp *backend.Backend, collector *metrics.Collector, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler(edgeApp))
	mux.HandleFunc("GET /stats", collector.Handler())
	mux.Handle("GET /metrics", metrics.PrometheusHandler(gatherer))

	return mux
}

// healthHandler reports the backend status as JSON, with 503 while the
// health check considers it down.
func healthHandler(edgeApp *backend.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := edgeApp.Status()

		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	}
}
