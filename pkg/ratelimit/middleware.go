package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"synapse/pkg/metrics"
)

// clientLimiter is one token bucket per client IP. lastSeen drives the
// idle-eviction sweep.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

type Config struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() Config {
	return Config{
		RPS:             100.0,
		Burst:           200,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// Middleware limits publish ingress per client IP. Envelopes refused
// here never reach the validator or the outbox, so callers must treat
// 429 as "not accepted" and retry.
func Middleware(cfg Config) gin.HandlerFunc {
	if cfg.RPS <= 0 {
		cfg = DefaultConfig()
	}

	limiters := make(map[string]*clientLimiter)
	var mu sync.RWMutex

	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			now := time.Now()
			for ip, cl := range limiters {
				cl.mu.Lock()
				lastSeen := cl.lastSeen
				cl.mu.Unlock()
				if now.Sub(lastSeen) > cfg.MaxAge {
					delete(limiters, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = c.RemoteIP()
		}

		mu.RLock()
		cl, exists := limiters[clientIP]
		mu.RUnlock()

		if !exists {
			mu.Lock()
			cl, exists = limiters[clientIP]
			if !exists {
				cl = &clientLimiter{
					limiter:  rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
					lastSeen: time.Now(),
				}
				limiters[clientIP] = cl
			}
			mu.Unlock()
		}

		cl.mu.Lock()
		cl.lastSeen = time.Now()
		cl.mu.Unlock()

		if !cl.limiter.Allow() {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Limit", strconv.Itoa(int(cfg.RPS)))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"error_code": "RATE_LIMIT_EXCEEDED",
			})
			c.Abort()
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		c.Next()
	}
}
