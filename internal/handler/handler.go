package handler

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angeloszaimis/edge-router/internal/assets"
	"github.com/angeloszaimis/edge-router/internal/correlator"
	"github.com/angeloszaimis/edge-router/internal/forward"
	"github.com/angeloszaimis/edge-router/internal/metrics"
	"github.com/angeloszaimis/edge-router/internal/route"
)

const (
	// AllowedMethods is sent with every 405 response.
	AllowedMethods = "GET, HEAD"

	MethodNotAllowedBody = "This method is not allowed\n"

	msgUpgrading    = "Upgrading websocket connection"
	msgSendingIndex = "Sending index.html"
)

// EdgeHandler is the public request handler. It classifies each request and
// either answers it locally or hands it to the backend forwarder.
type EdgeHandler struct {
	logger     *slog.Logger
	table      *assets.Table
	forwarder  forward.Forwarder
	correlator *correlator.Correlator
	collector  *metrics.Collector
}

// NewEdgeHandler returns a handler serving assets from table. A nil collector
// disables metrics.
func NewEdgeHandler(
	logger *slog.Logger,
	table *assets.Table,
	forwarder forward.Forwarder,
	corr *correlator.Correlator,
	collector *metrics.Collector,
) *EdgeHandler {
	return &EdgeHandler{
		logger:     logger,
		table:      table,
		forwarder:  forwarder,
		correlator: corr,
		collector:  collector,
	}
}

func (h *EdgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)

	h.logger.Info("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("host", r.Host),
		slog.String("user_agent", r.UserAgent()))

	req := route.FromHTTP(r)
	class := route.Classify(req)

	h.collector.Emit(metrics.MetricEvent{
		Type:  metrics.EventRequestClassified,
		Class: class.Kind.String(),
	})

	start := time.Now()
	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

	if err := h.dispatch(wrapped, r, req, class); err != nil {
		h.logger.Error("Backend unreachable",
			slog.String("client", clientIP),
			slog.String("class", class.Kind.String()),
			slog.String("path", r.URL.Path),
			slog.Any("err", err))

		h.collector.Emit(metrics.MetricEvent{
			Type:    metrics.EventBackendFailed,
			Class:   class.Kind.String(),
			Backend: forward.DefaultBackend,
		})

		// Abort without writing a substitute response.
		panic(http.ErrAbortHandler)
	}

	h.collector.Emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Class:      class.Kind.String(),
		Duration:   time.Since(start),
		StatusCode: wrapped.statusCode,
	})
}

// Dispatch classifies r and produces its response. A non-nil error wraps
// forward.ErrBackendUnreachable and means nothing was written to w.
func (h *EdgeHandler) Dispatch(w http.ResponseWriter, r *http.Request) error {
	req := route.FromHTTP(r)
	return h.dispatch(w, r, req, route.Classify(req))
}

func (h *EdgeHandler) dispatch(w http.ResponseWriter, r *http.Request, req route.Request, class route.Class) error {
	switch class.Kind {
	case route.KindWebsocketUpgrade:
		h.correlator.Emit(req.Session(), msgUpgrading)
		return h.forwarder.Upgrade(w, r)

	case route.KindAPIProxy:
		return h.forwarder.Forward(w, r, forward.ModePass)

	case route.KindMethodRejected:
		writeMethodNotAllowed(w)
		return nil

	default:
		h.serveAsset(w, req, h.table.Resolve(class.AssetKey))
		return nil
	}
}

func (h *EdgeHandler) serveAsset(w http.ResponseWriter, req route.Request, entry assets.Entry) {
	if entry.Default {
		h.correlator.Emit(req.Session(), msgSendingIndex)
	}

	w.Header().Set("Content-Type", entry.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Payload)))
	w.WriteHeader(http.StatusOK)

	if req.Method == http.MethodHead {
		return
	}

	if _, err := w.Write(entry.Payload); err != nil {
		h.logger.Debug("Asset write failed",
			slog.String("path", req.Path),
			slog.Any("err", err))
	}
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Allow", AllowedMethods)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(MethodNotAllowedBody)))
	w.WriteHeader(http.StatusMethodNotAllowed)
	_, _ = w.Write([]byte(MethodNotAllowedBody))
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
