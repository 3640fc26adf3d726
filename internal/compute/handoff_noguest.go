//go:build (!tinygo.wasm && !wasi && !wasip1) || nofastlyhostcalls

package compute

func handoffWebsocket(string) error {
	return ErrHandoffUnsupported
}
