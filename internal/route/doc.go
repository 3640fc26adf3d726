// Package route classifies inbound requests into the dispatch classes the
// edge router acts on: websocket upgrade, API proxy, method rejection and
// asset serving. Classification is a pure function of the request.
package route
