package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/angeloszaimis/edge-router/internal/forward"
)

// Backend represents the edge application origin with health status,
// connection tracking, and response time monitoring.
type Backend struct {
	name              string
	url               *url.URL
	wsURL             *url.URL
	proxy             *httputil.ReverseProxy
	dialer            *websocket.Dialer
	upgrader          websocket.Upgrader
	logger            *slog.Logger
	mutex             sync.Mutex
	isHealthy         bool
	activeConnections int
	ewmaResponseTime  time.Duration
	hasEWMA           bool
}

const ewmaAlpha = 0.2

var _ forward.Forwarder = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithWebsocketURL sets the base URL dialled for websocket upgrades. By
// default it is derived from the HTTP URL (http -> ws, https -> wss).
func WithWebsocketURL(u *url.URL) Option {
	return func(b *Backend) {
		if u != nil {
			b.wsURL = u
		}
	}
}

// WithTransport replaces the transport used for proxied requests.
func WithTransport(rt http.RoundTripper) Option {
	return func(b *Backend) {
		b.proxy.Transport = rt
	}
}

// WithTimeout bounds the websocket handshake with the backend.
func WithTimeout(d time.Duration) Option {
	return func(b *Backend) {
		b.dialer.HandshakeTimeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates a Backend named name that forwards to target.
// The backend starts in a healthy state.
func New(name string, target *url.URL, opts ...Option) *Backend {
	b := &Backend{
		name:      name,
		url:       target,
		wsURL:     websocketURL(target),
		logger:    slog.Default(),
		isHealthy: true,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			// The backend applies its own origin policy to the forwarded
			// Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	b.proxy = &httputil.ReverseProxy{
		Rewrite:      b.rewrite,
		ErrorHandler: b.proxyError,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

type forwardStateKey struct{}

type forwardState struct {
	mode        forward.Mode
	keepUpgrade bool
	err         error
}

// Forward proxies r to the backend and relays the response to w. With
// forward.ModePass the outbound request asks every cache on the way to
// revalidate with the origin.
func (b *Backend) Forward(w http.ResponseWriter, r *http.Request, mode forward.Mode) error {
	return b.forward(w, r, mode, false)
}

func (b *Backend) forward(w http.ResponseWriter, r *http.Request, mode forward.Mode, keepUpgrade bool) error {
	b.incrementConn()
	defer b.decrementConn()

	state := &forwardState{mode: mode, keepUpgrade: keepUpgrade}
	ctx := context.WithValue(r.Context(), forwardStateKey{}, state)

	start := time.Now()
	b.proxy.ServeHTTP(w, r.WithContext(ctx))

	if state.err != nil {
		return fmt.Errorf("%w: %s: %v", forward.ErrBackendUnreachable, b.name, state.err)
	}

	b.recordResponse(time.Since(start))
	return nil
}

func (b *Backend) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(b.url)
	pr.Out.Host = pr.In.Host
	pr.SetXForwarded()

	state, ok := pr.In.Context().Value(forwardStateKey{}).(*forwardState)
	if !ok {
		return
	}

	if state.mode == forward.ModePass {
		pr.Out.Header.Set("Cache-Control", "no-cache")
		pr.Out.Header.Set("Pragma", "no-cache")
	}

	// The proxy drops Upgrade as a hop-by-hop header unless Connection
	// names it. The backend still decides what to do with the request.
	if state.keepUpgrade && pr.Out.Header.Get("Upgrade") == "" {
		if up := pr.In.Header.Get("Upgrade"); up != "" {
			pr.Out.Header.Set("Upgrade", up)
		}
	}
}

func (b *Backend) proxyError(_ http.ResponseWriter, r *http.Request, err error) {
	if state, ok := r.Context().Value(forwardStateKey{}).(*forwardState); ok {
		state.err = err
		return
	}
	panic(http.ErrAbortHandler)
}

func (b *Backend) incrementConn() {
	b.mutex.Lock()
	b.activeConnections++
	b.mutex.Unlock()
}

func (b *Backend) decrementConn() {
	b.mutex.Lock()
	if b.activeConnections > 0 {
		b.activeConnections--
	}
	b.mutex.Unlock()
}

// Status is a point-in-time view of the backend, served on the admin
// listener.
type Status struct {
	Name              string `json:"backend"`
	URL               string `json:"url"`
	Healthy           bool   `json:"healthy"`
	ActiveConnections int    `json:"active_connections"`
	// ResponseTimeMS is the moving average of completed forwards, zero
	// until the first one finishes.
	ResponseTimeMS float64 `json:"ewma_response_ms"`
}

// Status returns a snapshot taken under the backend lock.
func (b *Backend) Status() Status {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	return Status{
		Name:              b.name,
		URL:               b.url.Redacted(),
		Healthy:           b.isHealthy,
		ActiveConnections: b.activeConnections,
		ResponseTimeMS:    float64(b.ewmaResponseTime) / float64(time.Millisecond),
	}
}

// Name returns the logical backend name.
func (b *Backend) Name() string {
	return b.name
}

// URL returns the backend server URL.
func (b *Backend) URL() *url.URL {
	return b.url
}

// WebsocketURL returns the base URL dialled for websocket upgrades.
func (b *Backend) WebsocketURL() *url.URL {
	return b.wsURL
}

// IsHealthy returns true if the backend is currently healthy.
func (b *Backend) IsHealthy() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.isHealthy
}

// SetHealthy updates the backend's health status.
// Returns true if the status changed, false if it was already in that state.
func (b *Backend) SetHealthy(healthy bool) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.isHealthy == healthy {
		return false
	}

	b.isHealthy = healthy
	return true
}

// recordResponse folds duration into the exponentially weighted moving
// average response time.
func (b *Backend) recordResponse(duration time.Duration) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.hasEWMA {
		b.ewmaResponseTime = duration
		b.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	b.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(b.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

func websocketURL(u *url.URL) *url.URL {
	ws := *u
	switch u.Scheme {
	case "https":
		ws.Scheme = "wss"
	default:
		ws.Scheme = "ws"
	}
	return &ws
}
