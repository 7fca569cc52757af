package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/arencloud/bucketgw/internal/logging"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// TenantHeader carries the calling tenant's id.
const TenantHeader = "Project-Id"

const (
	sweepEvery = time.Minute
	idleAfter  = 10 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	logger   *rate.Sometimes
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per tenant, falling back to the client
// IP for requests without a tenant header. Idle buckets are dropped.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	log   logging.Logger
	now   func() time.Time

	mu        sync.Mutex
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

func NewRateLimiter(rps float64, burst int, log logging.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
		now:     time.Now,
		entries: map[string]*limiterEntry{},
	}
}

func (rl *RateLimiter) entry(key string) *limiterEntry {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	if now.Sub(rl.lastSweep) > sweepEvery {
		for k, e := range rl.entries {
			if now.Sub(e.lastSeen) > idleAfter {
				delete(rl.entries, k)
			}
		}
		rl.lastSweep = now
	}
	e, ok := rl.entries[key]
	if !ok {
		e = &limiterEntry{
			limiter: rate.NewLimiter(rl.rps, rl.burst),
			logger:  &rate.Sometimes{First: 3, Interval: time.Minute},
		}
		rl.entries[key] = e
	}
	e.lastSeen = now
	return e
}

// Middleware rejects requests over the limit with 429 and a Retry-After hint.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(TenantHeader)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		e := rl.entry(key)
		if e.limiter.AllowN(rl.now(), 1) {
			c.Next()
			return
		}
		e.logger.Do(func() { rl.log.Warn("rate limit exceeded", "key", key, "path", c.Request.URL.Path) })
		retry := 1
		if rl.rps > 0 {
			retry = max(1, int(1/float64(rl.rps)+0.5))
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "RateLimited", "message": "Too many requests"})
	}
}
