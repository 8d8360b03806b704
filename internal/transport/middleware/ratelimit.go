package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/transport"
	"golang.org/x/time/rate"
)

const bucketTTL = 5 * time.Minute

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter is a token bucket per client IP.
type RateLimiter struct {
	mu        sync.Mutex
	enabled   bool
	buckets   map[string]*bucket
	perSecond rate.Limit
	burst     int
	base      *transport.BaseHandler
	now       func() time.Time
}

func NewRateLimiter(cfg internal.RateLimitConfig, base *transport.BaseHandler) *RateLimiter {
	return &RateLimiter{
		enabled:   cfg.Enabled,
		buckets:   make(map[string]*bucket),
		perSecond: rate.Limit(cfg.PerSecond),
		burst:     cfg.Burst,
		base:      base,
		now:       time.Now,
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for k, b := range rl.buckets {
		if now.Sub(b.seen) > bucketTTL {
			delete(rl.buckets, k)
		}
	}

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.perSecond, rl.burst)}
		rl.buckets[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// Middleware rejects requests over the per-IP budget with 429. A disabled
// limiter passes everything through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if !rl.enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}
		if !rl.allow(ip) {
			w.Header().Set("Retry-After", "1")
			rl.base.WriteError(w, r, internal.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP reads the connection address only. Forwarding headers are honoured
// solely through chi's RealIP, mounted ahead of this when the proxy is trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
