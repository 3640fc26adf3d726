package compute

// SetHandoff replaces the websocket handoff hostcall.
func (f *Forwarder) SetHandoff(fn func(backend string) error) {
	f.handoff = fn
}
