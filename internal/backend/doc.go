// Package backend implements forwarding to the edge application backend
// over plain HTTP. Requests are relayed with an httputil.ReverseProxy and
// websocket upgrades are relayed message by message with gorilla/websocket.
// The backend also tracks active connections, response times and the health
// state reported by the health checker.
package backend
