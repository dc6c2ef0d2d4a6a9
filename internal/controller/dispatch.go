// internal/controller/dispatch.go
//
// The single point where failures become responses.
//
// Handlers across the app have the signature func(w, r) error.  Handle
// adapts them to net/http: a returned failure is normalized exactly
// once, counted, logged, and written as the failure envelope.  Nothing
// else in the codebase writes an error response.
package controller

import (
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/yanizio/recordapi/internal/apperr"
	"github.com/yanizio/recordapi/internal/envelope"
	"github.com/yanizio/recordapi/internal/metrics"
)

// HandlerFunc is the app-wide handler shape: failures travel up the
// call stack instead of being written in place.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// Dispatcher adapts HandlerFuncs onto net/http and owns the error
// normalization pass.
type Dispatcher struct {
	Norm *apperr.Normalizer
}

// Handle wraps h with the catch-and-forward contract.  A panicking
// handler is recovered into an internal error so the client still
// receives a normalized envelope instead of a dropped connection.
func (d *Dispatcher) Handle(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := d.serve(h, w, r)
		if err == nil {
			return
		}
		ev, diag := d.Norm.Normalize(err, apperr.RequestContext{
			Path:   r.URL.Path,
			Method: r.Method,
		})
		metrics.ErrorsTotal.WithLabelValues(statusClass(ev.Status)).Inc()
		if ev.Status >= http.StatusInternalServerError {
			zap.S().Errorw("request failed",
				"path", r.URL.Path, "method", r.Method,
				"status", ev.Status, "err", err)
		} else {
			zap.S().Debugw("request rejected",
				"path", r.URL.Path, "method", r.Method, "status", ev.Status)
		}
		envelope.WriteError(w, ev, diag)
	}
}

// serve runs h, converting a panic into an error return.
func (d *Dispatcher) serve(h HandlerFunc, w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.S().Errorw("handler panic",
				"path", r.URL.Path, "method", r.Method, "panic", rec)
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return h(w, r)
}

// NotFound is mounted as the router's fallback so unmatched routes flow
// through the same normalization as every other failure.
func (d *Dispatcher) NotFound() http.HandlerFunc {
	return d.Handle(func(_ http.ResponseWriter, r *http.Request) error {
		return &apperr.RouteNotFound{Path: r.URL.Path, Method: r.Method}
	})
}

// statusClass buckets a status for the error counter ("4xx", "5xx").
func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
