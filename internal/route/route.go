package route

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	// UpgradeWebsocket is the only Upgrade header value that is handed to
	// the backend. The comparison is exact and case-sensitive.
	UpgradeWebsocket = "websocket"

	// APIPrefix marks requests that always go to the backend uncached.
	APIPrefix = "/api/"
)

// Kind identifies one of the four dispatch classes.
type Kind int

const (
	KindAssetServe Kind = iota
	KindWebsocketUpgrade
	KindAPIProxy
	KindMethodRejected
)

func (k Kind) String() string {
	switch k {
	case KindWebsocketUpgrade:
		return "websocket_upgrade"
	case KindAPIProxy:
		return "api_proxy"
	case KindMethodRejected:
		return "method_rejected"
	case KindAssetServe:
		return "asset_serve"
	default:
		return "unknown"
	}
}

// Class is the outcome of classification. AssetKey is only meaningful for
// KindAssetServe.
type Class struct {
	Kind     Kind
	AssetKey string
}

// Request is the subset of an inbound request the classifier looks at.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Query  url.Values
}

// FromHTTP builds a Request from an incoming net/http request.
func FromHTTP(r *http.Request) Request {
	return Request{
		Method: r.Method,
		Path:   r.URL.EscapedPath(),
		Header: r.Header,
		Query:  r.URL.Query(),
	}
}

// Session returns the "session" query parameter, or nil when it is absent.
func (r Request) Session() *string {
	if _, ok := r.Query["session"]; !ok {
		return nil
	}
	s := r.Query.Get("session")
	return &s
}

// Classify assigns req to exactly one dispatch class. The checks run in a
// fixed order and the first match wins: upgrade, API prefix, method gate,
// asset.
func Classify(req Request) Class {
	if req.Header.Get("Upgrade") == UpgradeWebsocket {
		return Class{Kind: KindWebsocketUpgrade}
	}

	if strings.HasPrefix(req.Path, APIPrefix) {
		return Class{Kind: KindAPIProxy}
	}

	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return Class{Kind: KindMethodRejected}
	}

	return Class{Kind: KindAssetServe, AssetKey: req.Path}
}
