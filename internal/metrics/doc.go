// Package metrics provides real-time metrics collection for the edge router.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Request counts per dispatch class
//   - Response times with percentile calculations (P50, P95, P99)
//   - HTTP status code distribution per class
//   - Backend failures and health status
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the request path. Emit drops events when the buffer is full.
//
// Example usage:
//
//	reg := prometheus.NewRegistry()
//	collector := metrics.NewCollector(1000, logger, metrics.NewPrometheus(reg))
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Class:      "asset_serve",
//		Duration:   2 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	snapshot := collector.Snapshot()
//
// Every event is also mirrored into Prometheus series when a Prometheus set
// is supplied; they are served by PrometheusHandler.
package metrics
