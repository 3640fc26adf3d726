// Package forward defines the capability the edge router uses to reach its
// backend. Implementations decide how the backend is reached; callers only
// name the mode.
package forward

import (
	"errors"
	"net/http"
)

// DefaultBackend is the logical name of the edge application backend.
const DefaultBackend = "edge_app"

// ErrBackendUnreachable is wrapped by every forwarding failure. Such a
// failure is terminal for the request: no substitute response is written.
var ErrBackendUnreachable = errors.New("backend unreachable")

// Mode selects how a forwarded request interacts with caches between the
// router and the backend.
type Mode int

const (
	ModeNormal Mode = iota
	// ModePass bypasses any intermediate cache so the backend's current
	// state is returned.
	ModePass
)

func (m Mode) String() string {
	if m == ModePass {
		return "pass"
	}
	return "normal"
}

// Forwarder sends requests to the backend.
//
// Forward relays the backend response to w verbatim. Upgrade hands the
// client connection to the backend as a websocket. On error neither method
// has written a response, and the error wraps ErrBackendUnreachable.
type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request, mode Mode) error
	Upgrade(w http.ResponseWriter, r *http.Request) error
}
