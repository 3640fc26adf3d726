// Package httpserver wraps net/http servers for the public and admin
// listeners with address validation and graceful shutdown.
package httpserver
