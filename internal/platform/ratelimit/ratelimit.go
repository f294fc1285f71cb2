// Package ratelimit provides per-client token bucket limiting for HTTP routes.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/example/learning-platform/internal/platform/api"
	"github.com/example/learning-platform/internal/platform/httpserver"
)

var rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "learning",
	Name:      "ratelimit_rejected_total",
	Help:      "Requests rejected by the per-client rate limiter",
}, []string{"scope"})

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keys a token bucket per client IP.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	rate    rate.Limit
	burst   int
	scope   string
	idleTTL time.Duration
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter with the given rate (req/s) and burst
// size. scope labels the rejection metric.
func NewRateLimiter(rps float64, burst int, scope string) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		clients: make(map[string]*client),
		rate:    rate.Limit(rps),
		burst:   burst,
		scope:   scope,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Sweep drops limiters idle for longer than the idle TTL.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.idleTTL)
	n := 0
	for k, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, k)
			n++
		}
	}
	return n
}

// Middleware returns an HTTP middleware that rate-limits requests by client IP.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientKey(r)) {
			rejectedTotal.WithLabelValues(rl.scope).Inc()
			rid := httpserver.RequestIDFromContext(r.Context())
			api.RateLimited(w, "RATE_LIMITED", "Too many requests", rid, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey prefers the first X-Forwarded-For hop, then the remote host.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
