// internal/middleware/ratelimit_test.go

package middleware

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter_AllowWithinBurst(t *testing.T) {
	l := NewLimiter(1, 3)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.allow("10.0.0.1") {
			t.Fatalf("request %d rejected inside the burst", i+1)
		}
	}
	if l.allow("10.0.0.1") {
		t.Fatalf("request beyond the burst was allowed")
	}

	// Buckets are per client; a different address has its own budget.
	if !l.allow("10.0.0.2") {
		t.Fatalf("fresh client rejected")
	}
}

func TestLimiter_SweepDropsIdleBuckets(t *testing.T) {
	l := NewLimiter(1, 1)
	defer l.Stop()

	l.allow("10.0.0.1")
	l.allow("10.0.0.2")

	l.mu.Lock()
	l.buckets["10.0.0.1"].lastSeen = time.Now().Add(-2 * bucketIdleTTL)
	l.mu.Unlock()

	l.sweepOnce(time.Now().Add(-bucketIdleTTL))

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buckets["10.0.0.1"]; ok {
		t.Fatalf("idle bucket survived the sweep")
	}
	if _, ok := l.buckets["10.0.0.2"]; !ok {
		t.Fatalf("active bucket swept")
	}
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	l := NewLimiter(1, 1)
	l.Stop()
	l.Stop()
}

func TestClientAddr(t *testing.T) {
	cases := []struct {
		xff, remote, want string
	}{
		{"", "192.0.2.1:1234", "192.0.2.1"},
		{"203.0.113.9", "192.0.2.1:1234", "203.0.113.9"},
		{"203.0.113.9, 198.51.100.2", "192.0.2.1:1234", "203.0.113.9"},
	}
	for _, c := range cases {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = c.remote
		if c.xff != "" {
			r.Header.Set("X-Forwarded-For", c.xff)
		}
		if got := clientAddr(r); got != c.want {
			t.Errorf("clientAddr(xff=%q remote=%q) = %q, want %q", c.xff, c.remote, got, c.want)
		}
	}
}
