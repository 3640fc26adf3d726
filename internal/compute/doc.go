// Package compute reaches the edge_app backend from inside a Fastly Compute
// service. Requests are sent with fsthttp to a named backend and websocket
// upgrades are handed off to the platform.
//
// It expects to run behind fsthttp.Adapt, which places the original
// fsthttp.Request in the request context.
package compute
