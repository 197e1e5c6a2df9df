package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter throttles clients with a token bucket per IP. Webhook
// endpoints sit behind it so a misbehaving upstream cannot flood the
// reconciler.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	perSecond float64
	burst     float64
}

type visitor struct {
	tokens  float64
	lastSee time.Time
}

// NewRateLimiter allows perSecond sustained requests with the given burst
// per client IP.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors:  make(map[string]*visitor),
		perSecond: perSecond,
		burst:     float64(burst),
	}
	go rl.evictIdle(5*time.Minute, 10*time.Minute)
	return rl
}

// Allow reports whether a request from ip fits in its bucket.
func (rl *RateLimiter) Allow(ip string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{tokens: rl.burst, lastSee: now}
		rl.visitors[ip] = v
	} else {
		v.tokens += now.Sub(v.lastSee).Seconds() * rl.perSecond
		if v.tokens > rl.burst {
			v.tokens = rl.burst
		}
		v.lastSee = now
	}

	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

// evictIdle drops buckets not seen within maxIdle, checked every interval.
func (rl *RateLimiter) evictIdle(interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-maxIdle)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if v.lastSee.Before(cutoff) {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimit rejects requests over the limit with 429 and a Retry-After hint.
func RateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(perSecond, burst)
	retryAfter := strconv.Itoa(int(1/perSecond) + 1)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// chi's RealIP middleware rewrites RemoteAddr, but the header
			// is kept as a fallback for bare handlers.
			ip := r.RemoteAddr
			if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
				ip = realIP
			}
			if !limiter.Allow(ip) {
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
