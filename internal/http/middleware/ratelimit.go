// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a process-local token-bucket rate limiter. On
// invitation routes a bucket belongs to one client IP and one slug, so a
// guest refreshing their own link does not lock out other couples behind
// the same NAT. Buckets idle for longer than the idle TTL are swept at most
// once per TTL. Replays flagged by IdempotencyValidator are never limited.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// noRefillRetryAfter is sent when the bucket never refills (rps == 0).
const noRefillRetryAfter = 60

var rateLimited = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	},
	[]string{"path"},
)

func init() {
	prometheus.MustRegister(rateLimited)
}

// KeyFunc selects the bucket a request draws from.
type KeyFunc func(*gin.Context) string

// KeyByClientAndSlug keys buckets by client IP plus the lower-cased :slug
// route parameter when there is one.
func KeyByClientAndSlug() KeyFunc {
	return func(c *gin.Context) string {
		var b strings.Builder
		b.WriteString("ip:")
		b.WriteString(c.ClientIP())
		if slug := c.Param("slug"); slug != "" {
			b.WriteString("|slug:")
			b.WriteString(strings.ToLower(slug))
		}
		return b.String()
	}
}

type bucket struct {
	lim  *rate.Limiter
	used time.Time
}

// RateLimiter hands out one token bucket per key. Safe for concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int
	key   KeyFunc
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	idleTTL   time.Duration
	lastSweep time.Time
}

// NewRateLimiter builds a limiter allowing rps requests per second with the
// given burst. burst <= 0 becomes 1 and a nil key defaults to
// KeyByClientAndSlug.
func NewRateLimiter(rps float64, burst int, key KeyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if key == nil {
		key = KeyByClientAndSlug()
	}
	return &RateLimiter{
		limit:     rate.Limit(rps),
		burst:     burst,
		key:       key,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		idleTTL:   10 * time.Minute,
		lastSweep: time.Now(),
	}
}

// limiter returns the bucket for key, sweeping idle buckets first when the
// last sweep is older than idleTTL.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.idleTTL {
		for k, b := range rl.buckets {
			if now.Sub(b.used) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.used = now
	return b.lim
}

// IsRateBypass reports whether IdempotencyValidator flagged the request as a
// replay.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}

// Handler enforces the limits. Rejected requests get 429 with the standard
// envelope and a Retry-After equal to the bucket refill time in seconds.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		res := rl.limiter(rl.key(c)).ReserveN(now, 1)
		if res.OK() && res.DelayFrom(now) == 0 {
			c.Next()
			return
		}

		retry := noRefillRetryAfter
		if res.OK() {
			if d := res.DelayFrom(now); rl.limit > 0 && d != rate.InfDuration {
				retry = int(math.Ceil(d.Seconds()))
			}
			res.CancelAt(now)
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		rateLimited.WithLabelValues(path).Inc()

		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
