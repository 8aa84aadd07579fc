package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/enzococca/mekan-admin/src/logging"
	"github.com/enzococca/mekan-admin/src/metrics"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = time.Hour

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter hands out a token bucket per client IP. Buckets idle for an
// hour are dropped on the next sweep.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows attempts requests per window and refills evenly.
func NewRateLimiter(attempts int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Every(window / time.Duration(attempts)),
		burst:    attempts,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		rl.sweep(now)
	}

	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastAccess = now
	return entry.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) sweep(now time.Time) {
	threshold := now.Add(-limiterIdleTTL)
	for ip, entry := range rl.limiters {
		if entry.lastAccess.Before(threshold) {
			delete(rl.limiters, ip)
		}
	}
	rl.lastSweep = now
}

// Limit rejects requests over the per-IP budget with 429.
// A nil limiter lets everything through.
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if rl == nil || rl.Allow(ctx.ClientIP()) {
			ctx.Next()
			return
		}
		metrics.LoginAttemptsTotal.WithLabelValues("rate_limited").Inc()
		logging.Warn().
			Str("request_id", GetRequestID(ctx)).
			Str("ip", ctx.ClientIP()).
			Str("path", ctx.Request.URL.Path).
			Msg("rate limit exceeded")
		ctx.Header("Retry-After", "60")
		ctx.String(http.StatusTooManyRequests, "Too many attempts, try again later")
		ctx.Abort()
	}
}
