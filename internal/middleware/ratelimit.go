package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for the rate limiter middleware.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate limit (tokens added per second).
	RequestsPerSecond float64
	// Burst is the maximum number of requests allowed in a burst.
	Burst int
}

// Stale client entries are swept opportunistically on the request path, so
// the middleware owns no background goroutine.
const (
	sweepInterval = 5 * time.Minute
	staleAfter    = 10 * time.Minute
)

// clientLimiter tracks a per-client rate limiter and when it was last seen.
// lastSeen is unix nanos, written on the request path and read by the sweep.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// RateLimiter returns an HTTP middleware that enforces a per-client token-bucket
// rate limit. When the limit is exceeded, it responds with 429 Too Many Requests
// and sets standard rate-limit headers.
func RateLimiter(cfg RateLimitConfig) func(http.Handler) http.Handler {
	var clients sync.Map // map[string]*clientLimiter
	var lastSweep atomic.Int64
	lastSweep.Store(time.Now().UnixNano())

	getLimiter := func(ip string) *rate.Limiter {
		now := time.Now().UnixNano()

		v, ok := clients.Load(ip)
		if !ok {
			// LoadOrStore keeps concurrent first requests from one client on
			// a single shared limiter.
			v, _ = clients.LoadOrStore(ip, &clientLimiter{
				limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
			})
		}
		cl := v.(*clientLimiter)
		cl.lastSeen.Store(now)

		if prev := lastSweep.Load(); now-prev > int64(sweepInterval) && lastSweep.CompareAndSwap(prev, now) {
			clients.Range(func(key, value any) bool {
				if now-value.(*clientLimiter).lastSeen.Load() > int64(staleAfter) {
					clients.Delete(key)
				}
				return true
			})
		}
		return cl.limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			limiter := getLimiter(ip)

			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"code":    429,
					"message": "rate limit exceeded",
				})
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP address from the request, stripping the port.
// Only RemoteAddr is used; X-Forwarded-For is untrusted and ignored to
// prevent rate-limit bypass via header spoofing.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
