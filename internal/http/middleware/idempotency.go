// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key handling for RSVP submissions. The
// header is validated and stashed in the Gin context; when a lookup is
// configured and reports that the key already produced an RSVP for the
// route's :slug, the request is marked as a replay so the rate limiter lets
// it through and the handler can return the originally queued record.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// idemReplays counts requests recognised as replays of an earlier key.
var idemReplays = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "http_idempotent_replays_total",
	Help: "Requests whose Idempotency-Key matched an earlier submission.",
})

func init() {
	prometheus.MustRegister(idemReplays)
}

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the key already produced a result for this slug.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 default to 128.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Methods limits validation to these HTTP methods. Defaults to POST and PUT.
	Methods []string
}

// IdempotencyLookup reports whether key is already bound to an RSVP for slug
// and still within its TTL at now. Lookup errors never block the request.
type IdempotencyLookup func(ctx context.Context, slug, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header on unsafe
// methods. Absent headers pass through untouched; malformed ones get a 400
// with the standard error envelope.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 128
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	methods := map[string]bool{http.MethodPost: true, http.MethodPut: true}
	if len(opts.Methods) > 0 {
		methods = map[string]bool{}
		for _, m := range opts.Methods {
			methods[strings.ToUpper(m)] = true
		}
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" || !methods[c.Request.Method] {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		slug := strings.ToLower(c.Param("slug"))
		if lookup != nil && slug != "" {
			exists, err := lookup(c.Request.Context(), slug, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Str("slug", slug).Msg("idempotency lookup failed")
			}
			if exists {
				idemReplays.Inc()
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
