//go:build ((tinygo.wasm && wasi) || wasip1) && !nofastlyhostcalls

package compute

import "github.com/fastly/compute-sdk-go/x/exp/handoff"

func handoffWebsocket(backend string) error {
	return handoff.Websocket(backend)
}
