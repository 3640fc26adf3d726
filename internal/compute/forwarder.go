package compute

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/fastly/compute-sdk-go/fsthttp"

	"github.com/angeloszaimis/edge-router/internal/forward"
)

var (
	// ErrNoEdgeRequest means the request did not arrive through fsthttp.Adapt.
	ErrNoEdgeRequest = errors.New("no fsthttp request in context")

	// ErrHandoffUnsupported is returned by Upgrade outside a Compute guest.
	ErrHandoffUnsupported = errors.New("websocket handoff requires the Compute runtime")
)

// Forwarder implements forward.Forwarder on top of the Compute hostcalls.
type Forwarder struct {
	backend string
	logger  *slog.Logger
	handoff func(backend string) error
}

// New returns a Forwarder for the named backend. An empty name selects
// forward.DefaultBackend.
func New(backend string, logger *slog.Logger) *Forwarder {
	if backend == "" {
		backend = forward.DefaultBackend
	}

	return &Forwarder{
		backend: backend,
		logger:  logger,
		handoff: handoffWebsocket,
	}
}

// Backend returns the name of the Fastly backend requests are sent to.
func (f *Forwarder) Backend() string {
	return f.backend
}

// Forward sends the downstream request to the backend and relays the
// response. In pass mode the platform cache is bypassed.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, mode forward.Mode) error {
	freq := fsthttp.RequestFromContext(r.Context())
	if freq == nil {
		return f.unreachable(ErrNoEdgeRequest)
	}

	if mode == forward.ModePass {
		freq.CacheOptions.Pass = true
	}

	resp, err := freq.Send(r.Context(), f.backend)
	if err != nil {
		return f.unreachable(err)
	}
	defer resp.Body.Close()

	header := w.Header()
	for key, values := range resp.Header {
		header[key] = append([]string(nil), values...)
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		// Headers are already out; the client sees a truncated body.
		f.logger.Warn("Backend response copy failed",
			slog.String("backend", f.backend),
			slog.String("path", r.URL.Path),
			slog.Any("err", err))
	}

	return nil
}

// Upgrade hands the client connection to the backend's websocket proxy.
// After a successful handoff no response may be written.
func (f *Forwarder) Upgrade(_ http.ResponseWriter, _ *http.Request) error {
	if err := f.handoff(f.backend); err != nil {
		return f.unreachable(err)
	}
	return nil
}

func (f *Forwarder) unreachable(err error) error {
	return fmt.Errorf("%w: %s: %v", forward.ErrBackendUnreachable, f.backend, err)
}
