package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "edge_router"

// Prometheus mirrors collector events into Prometheus series.
type Prometheus struct {
	RequestsTotal   *prometheus.CounterVec
	ResponsesTotal  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	BackendFailures *prometheus.CounterVec
	BackendHealthy  *prometheus.GaugeVec
}

// NewPrometheus creates and registers all series with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	return &Prometheus{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests by dispatch class",
			},
			[]string{"class"},
		),
		ResponsesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_total",
				Help:      "Total number of completed responses by dispatch class and status code",
			},
			[]string{"class", "code"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds by dispatch class",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"class"},
		),
		BackendFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_failures_total",
				Help:      "Requests that failed because the backend could not be reached",
			},
			[]string{"backend"},
		),
		BackendHealthy: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backend_healthy",
				Help:      "1 when the last health probe of the backend succeeded",
			},
			[]string{"backend"},
		),
	}
}

func (p *Prometheus) observe(event MetricEvent) {
	switch event.Type {
	case EventRequestClassified:
		p.RequestsTotal.WithLabelValues(event.Class).Inc()

	case EventResponseCompleted:
		p.ResponsesTotal.WithLabelValues(event.Class, strconv.Itoa(event.StatusCode)).Inc()
		p.RequestDuration.WithLabelValues(event.Class).Observe(event.Duration.Seconds())

	case EventBackendFailed:
		p.BackendFailures.WithLabelValues(event.Backend).Inc()

	case EventHealthChanged:
		v := 0.0
		if event.Healthy {
			v = 1
		}
		p.BackendHealthy.WithLabelValues(event.Backend).Set(v)
	}
}
