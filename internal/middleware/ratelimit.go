// internal/middleware/ratelimit.go
//
// Per-client request throttling.
//
// Context
// -------
// Each client IP gets its own token bucket (golang.org/x/time/rate).
// A rejected request is not answered here: the middleware raises the
// rate-limit signal through the central dispatcher, so the 429 envelope
// comes out of the same normalization path as every other failure.
//
// Buckets idle for ten minutes are dropped by a background sweep to
// bound memory on long-running processes.
package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yanizio/recordapi/internal/apperr"
	"github.com/yanizio/recordapi/internal/controller"
	"github.com/yanizio/recordapi/internal/metrics"
)

const bucketIdleTTL = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter throttles requests per client IP.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter builds a Limiter allowing rps sustained requests with the
// given burst, and starts the idle-bucket sweep.
func NewLimiter(rps float64, burst int) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		stop:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Stop terminates the sweep goroutine.  Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Middleware enforces the limit, routing rejections through d.
func (l *Limiter) Middleware(d *controller.Dispatcher) func(http.Handler) http.Handler {
	reject := d.Handle(func(_ http.ResponseWriter, _ *http.Request) error {
		return &apperr.RateLimitSignal{Limit: l.burst, Current: l.burst, Remaining: 0}
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.allow(clientAddr(r)) {
				metrics.RateLimitedTotal.Inc()
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *Limiter) allow(addr string) bool {
	l.mu.Lock()
	b, ok := l.buckets[addr]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[addr] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()
	return b.limiter.Allow()
}

// sweep drops buckets idle past the TTL, once a minute, until Stop.
func (l *Limiter) sweep() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			l.sweepOnce(time.Now().Add(-bucketIdleTTL))
		}
	}
}

func (l *Limiter) sweepOnce(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for addr, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, addr)
		}
	}
}

// clientAddr extracts the left-most X-Forwarded-For entry, falling back
// to the socket address.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i != -1 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// InFlight tracks concurrently served requests on the metrics gauge.
func InFlight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.InFlight.Inc()
		defer metrics.InFlight.Dec()
		next.ServeHTTP(w, r)
	})
}
