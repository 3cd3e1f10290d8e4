package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizdesk/internal/response"
)

// RateLimiter implements a simple per-IP token bucket rate limiter.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // Tokens per interval
	interval time.Duration // Refill interval
	now      func() time.Time
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter (e.g., 5 submissions per 10 seconds).
// Stale visitors are swept until ctx is done.
func NewRateLimiter(ctx context.Context, rate int, interval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		interval: interval,
		now:      time.Now,
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()

	return rl
}

// Middleware returns a Gin middleware that rate-limits requests by IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{tokens: rl.rate, lastSeen: now}
		rl.visitors[ip] = v
	}

	// Refill tokens based on elapsed time.
	refill := int(now.Sub(v.lastSeen)/rl.interval) * rl.rate
	if refill > 0 {
		v.tokens += refill
		if v.tokens > rl.rate {
			v.tokens = rl.rate
		}
		v.lastSeen = now
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if rl.now().Sub(v.lastSeen) > 3*time.Minute {
			delete(rl.visitors, ip)
		}
	}
}
