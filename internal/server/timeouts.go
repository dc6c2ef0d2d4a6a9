// internal/server/timeouts.go
//
// HTTP server helper with hardened timeouts: slow-loris header reads
// are aborted, total response time is capped, and idle keep-alives are
// closed.  Centralised here so cmd/web doesn't repeat boilerplate.
package server

import (
	"net/http"
	"time"
)

// New constructs an *http.Server with sensible defaults.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
