// Package healthcheck implements periodic health checking of the edge
// application backend. Results only update the backend's reported health
// and the metrics; request routing never consults them.
package healthcheck
