package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dimitrije/teamfocus-api/internal/metrics"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"golang.org/x/time/rate"
)

type keyLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter hands out one token bucket per key and forgets keys idle for ttl.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	r        rate.Limit
	burst    int
	ttl      time.Duration
	stop     chan struct{}
	once     sync.Once
}

func NewRateLimiter(r rate.Limit, burst int, ttl time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*keyLimiter),
		r:        r,
		burst:    burst,
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go rl.gc()
	return rl
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	kl, ok := rl.limiters[key]
	if !ok {
		kl = &keyLimiter{lim: rate.NewLimiter(rl.r, rl.burst)}
		rl.limiters[key] = kl
	}
	kl.seen = time.Now()
	rl.mu.Unlock()
	return kl.lim.Allow()
}

func (rl *RateLimiter) gc() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep(time.Now())
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, v := range rl.limiters {
		if now.Sub(v.seen) > rl.ttl {
			delete(rl.limiters, k)
		}
	}
}

func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// Middleware keys on the authenticated identity, falling back to the client
// address for anonymous routes.
func (rl *RateLimiter) Middleware() drift.HandlerFunc {
	return func(c *drift.Context) {
		key := clientIP(c.Request.RemoteAddr)
		if id := GetUserID(c); id != uuid.Nil {
			key = id.String()
		}
		if !rl.Allow(key) {
			metrics.RateLimited.Inc()
			_ = c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
