// Package handler implements the edge router's HTTP entry point. Each
// request is classified, then answered from the asset table, rejected, or
// handed to the backend through a forward.Forwarder.
package handler
