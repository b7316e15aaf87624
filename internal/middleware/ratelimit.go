package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterCache keeps one rate limiter per key with periodic eviction of
// idle entries.
type limiterCache[K comparable] struct {
	mu       sync.Mutex
	limiters map[K]*limiterEntry
	limit    rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterCache[K comparable](limit rate.Limit, burst int) *limiterCache[K] {
	c := &limiterCache[K]{
		limiters: make(map[K]*limiterEntry),
		limit:    limit,
		burst:    burst,
	}

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			c.evict(30 * time.Minute)
		}
	}()

	return c
}

func (c *limiterCache[K]) get(key K) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (c *limiterCache[K]) evict(idle time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	for key, entry := range c.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(c.limiters, key)
		}
	}
}

// clientIP returns the remote address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LoginRateLimit throttles credential attempts per client IP. The burst
// absorbs normal retries while blocking sustained guessing.
func LoginRateLimit() func(http.Handler) http.Handler {
	cache := newLimiterCache[string](rate.Every(6*time.Second), 10)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cache.get(clientIP(r)).Allow() {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// APIRateLimit throttles API requests per client IP.
func APIRateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	cache := newLimiterCache[string](rate.Limit(perSecond), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cache.get(clientIP(r)).Allow() {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
