package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestClassified EventType = "request_classified"
	EventResponseCompleted EventType = "response_completed"
	EventBackendFailed     EventType = "backend_failed"
	EventHealthChanged     EventType = "health_changed"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Class      string
	Backend    string
	Duration   time.Duration
	StatusCode int
	Healthy    bool
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	prom    *Prometheus
	logger  *slog.Logger
}

// NewCollector returns a collector with the given event buffer. prom may be
// nil, in which case only the in-memory snapshot is kept.
func NewCollector(bufferSize int, logger *slog.Logger, prom *Prometheus) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		prom:    prom,
		logger:  logger,
	}
}

// Emit queues event without blocking. Events are dropped when the buffer is
// full. A nil collector ignores all events.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	if c.prom != nil {
		c.prom.observe(event)
	}

	switch event.Type {
	case EventRequestClassified:
		c.metrics.IncrementRequests(event.Class)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Class, event.Duration, event.StatusCode)

	case EventBackendFailed:
		c.metrics.RecordBackendFailure(event.Backend)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Backend, event.Healthy)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
