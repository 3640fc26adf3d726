package backend

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/angeloszaimis/edge-router/internal/forward"
)

const closeGracePeriod = time.Second

// Headers generated by the websocket handshake itself; the dialer sets its
// own and rejects duplicates.
var handshakeHeaders = map[string]bool{
	"Upgrade":                  true,
	"Connection":               true,
	"Sec-Websocket-Key":        true,
	"Sec-Websocket-Version":    true,
	"Sec-Websocket-Extensions": true,
	"Sec-Websocket-Accept":     true,
	"Keep-Alive":               true,
	"Te":                       true,
	"Trailer":                  true,
	"Transfer-Encoding":        true,
	"Proxy-Connection":         true,
}

// Upgrade connects to the backend as a websocket client first and only then
// upgrades the client connection, so that an unreachable backend leaves the
// client request untouched. Once both sides are connected, messages are
// relayed until either side closes.
//
// A request that asks for websocket but is not a handshake the relay can
// complete is forwarded as a plain HTTP request instead. The backend sees the original method and
// headers and its answer, including a 101, reaches the client unchanged.
func (b *Backend) Upgrade(w http.ResponseWriter, r *http.Request) error {
	if !canRelay(r) {
		b.logger.Debug("forwarding upgrade request as http",
			slog.String("backend", b.name),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))
		return b.forward(w, r, forward.ModeNormal, true)
	}

	target := b.upgradeTarget(r)

	upstream, resp, err := b.dialer.DialContext(r.Context(), target.String(), upstreamHeader(r))
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("%w: %s: dial %s: %v", forward.ErrBackendUnreachable, b.name, target.Redacted(), err)
	}

	var respHeader http.Header
	if p := upstream.Subprotocol(); p != "" {
		respHeader = http.Header{"Sec-Websocket-Protocol": {p}}
	}

	// The upgrader answers the client itself when it fails, so the backend
	// is not to blame here.
	client, err := b.upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		upstream.Close()
		b.logger.Warn("client websocket upgrade failed",
			slog.String("backend", b.name),
			slog.Any("err", err))
		return nil
	}

	b.incrementConn()
	defer b.decrementConn()

	b.logger.Debug("websocket relay started",
		slog.String("backend", b.name),
		slog.String("target", target.Redacted()))

	relay(client, upstream)

	b.logger.Debug("websocket relay closed", slog.String("backend", b.name))
	return nil
}

// canRelay reports whether r is a handshake the upgrader will accept.
func canRelay(r *http.Request) bool {
	if r.Method != http.MethodGet || !websocket.IsWebSocketUpgrade(r) {
		return false
	}
	if r.Header.Get("Sec-Websocket-Version") != "13" {
		return false
	}
	key, err := base64.StdEncoding.DecodeString(r.Header.Get("Sec-Websocket-Key"))
	return err == nil && len(key) == 16
}

func (b *Backend) upgradeTarget(r *http.Request) *url.URL {
	u := *b.wsURL
	u.Path = joinPath(b.wsURL.Path, r.URL.Path)
	u.RawPath = ""
	u.RawQuery = r.URL.RawQuery
	return &u
}

func upstreamHeader(r *http.Request) http.Header {
	h := make(http.Header, len(r.Header))
	for k, vv := range r.Header {
		if handshakeHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		h[k] = append([]string(nil), vv...)
	}

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := h.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		h.Set("X-Forwarded-For", ip)
	}
	h.Set("X-Forwarded-Host", r.Host)

	return h
}

// relay copies messages in both directions and returns once both
// directions have stopped.
func relay(client, upstream *websocket.Conn) {
	errc := make(chan error, 2)

	go copyMessages(upstream, client, errc)
	go copyMessages(client, upstream, errc)

	<-errc
	client.Close()
	upstream.Close()
	<-errc
}

func copyMessages(dst, src *websocket.Conn, errc chan<- error) {
	for {
		messageType, r, err := src.NextReader()
		if err != nil {
			_ = dst.WriteControl(websocket.CloseMessage, closeMessageFor(err), time.Now().Add(closeGracePeriod))
			errc <- err
			return
		}

		w, err := dst.NextWriter(messageType)
		if err != nil {
			errc <- err
			return
		}

		if _, err := io.Copy(w, r); err != nil {
			w.Close()
			errc <- err
			return
		}

		if err := w.Close(); err != nil {
			errc <- err
			return
		}
	}
}

func closeMessageFor(err error) []byte {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code != websocket.CloseNoStatusReceived && ce.Code != websocket.CloseAbnormalClosure {
		return websocket.FormatCloseMessage(ce.Code, ce.Text)
	}
	return websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
}

func joinPath(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}

	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
