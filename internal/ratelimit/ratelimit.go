// Package ratelimit implements the per-IP sliding minute/hour window
// limiter (§4.7), a direct re-expression of
// original_source/src/api/rate_limit.rs's RateLimiterState as a gin
// middleware factory in the style of api/middleware/apikey.go, swapping
// actix's Arc<RwLock<HashMap>> for a plain sync.Mutex-guarded map (this
// module has no concurrent-map library in its dependency set, and a
// mutex is the idiomatic Go equivalent for this access pattern).
package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailstack/config"
)

type counter struct {
	minuteCount int
	minuteReset time.Time
	hourCount   int
	hourReset   time.Time
}

// Limiter holds per-IP sliding minute/hour counters.
type Limiter struct {
	cfg       config.RateLimitConfig
	whitelist map[string]bool

	mu       sync.Mutex
	counters map[string]*counter
}

func New(cfg config.RateLimitConfig) *Limiter {
	whitelist := make(map[string]bool)
	for _, ip := range strings.Split(cfg.WhitelistIPs, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			whitelist[ip] = true
		}
	}
	return &Limiter{cfg: cfg, whitelist: whitelist, counters: make(map[string]*counter)}
}

// result of checkAndIncrement.
type result struct {
	allowed   bool
	limit     int
	remaining int
	resetAt   time.Time
	retryAfter time.Duration
}

func (l *Limiter) checkAndIncrement(ip string) result {
	if l.whitelist[ip] {
		return result{allowed: true, limit: l.cfg.PerIPPerMinute, remaining: l.cfg.PerIPPerMinute}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.counters[ip]
	if !ok {
		c = &counter{minuteReset: now.Add(time.Minute), hourReset: now.Add(time.Hour)}
		l.counters[ip] = c
	}

	if now.After(c.minuteReset) {
		c.minuteCount = 0
		c.minuteReset = now.Add(time.Minute)
	}
	if now.After(c.hourReset) {
		c.hourCount = 0
		c.hourReset = now.Add(time.Hour)
	}

	if c.minuteCount >= l.cfg.PerIPPerMinute {
		retryAfter := c.minuteReset.Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return result{allowed: false, limit: l.cfg.PerIPPerMinute, resetAt: c.minuteReset, retryAfter: retryAfter}
	}
	if c.hourCount >= l.cfg.PerIPPerHour {
		retryAfter := c.hourReset.Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return result{allowed: false, limit: l.cfg.PerIPPerHour, resetAt: c.hourReset, retryAfter: retryAfter}
	}

	c.minuteCount++
	c.hourCount++

	remaining := l.cfg.PerIPPerMinute - c.minuteCount
	if remaining < 0 {
		remaining = 0
	}
	return result{allowed: true, limit: l.cfg.PerIPPerMinute, remaining: remaining, resetAt: c.minuteReset}
}

// Middleware is the gin middleware factory, grounded on api/middleware's
// factory idiom: build with config, return a gin.HandlerFunc closed over it.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := extractClientIP(c.Request)
		res := l.checkAndIncrement(ip)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", res.limit))

		if !res.allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", res.resetAt.Unix()))
			c.Header("Retry-After", fmt.Sprintf("%d", int(res.retryAfter.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     fmt.Sprintf("rate limit exceeded: %d requests allowed", res.limit),
				"retry_after": int(res.retryAfter.Seconds()),
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", res.remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", res.resetAt.Unix()))
		c.Next()
	}
}

// extractClientIP follows the original's header precedence:
// X-Forwarded-For (first entry) -> X-Real-IP -> peer address -> "unknown".
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
