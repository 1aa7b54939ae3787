// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger used in production.
// It behaves like Logger() but scrubs obvious PII from the query string and
// request headers before anything is written. Bodies are never logged.
//
// Usage:
//
//	r := gin.New()
//	r.Use(middleware.RequestID())
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-Api-Key"},
//	    MaskQuery:   []string{"q"},
//	}))
//
// This reduces but does not eliminate the risk of guest data reaching logs.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders lists extra header names whose values are replaced with
// "[REDACTED]". Matching is case-insensitive and merged with Authorization,
// Cookie and Set-Cookie.
//
// MaskQuery lists query parameter names whose values are replaced with
// "[REDACTED]" regardless of content, e.g. free-text guest search terms.
type RedactOptions struct {
	MaskHeaders []string
	MaskQuery   []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so hex runs inside UUIDs never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redactPII replaces ids, emails and phone numbers in s. UUIDs go first so
// the looser phone pattern cannot eat their digit groups.
func redactPII(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func lowerSet(names []string, base ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names)+len(base))
	for _, n := range append(base, names...) {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// redactQuery masks whole values for keys in mask and pattern-redacts the
// rest. The raw form is kept so the log shows what the client sent.
func redactQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return raw
	}
	parts := strings.Split(raw, "&")
	for i, p := range parts {
		k, _, hasValue := strings.Cut(p, "=")
		if _, ok := mask[strings.ToLower(k)]; ok && hasValue {
			parts[i] = k + "=[REDACTED]"
			continue
		}
		parts[i] = redactPII(p)
	}
	return strings.Join(parts, "&")
}

// RedactingLogger returns a Gin middleware that attaches the request-scoped
// logger (see Logger) and writes one scrubbed access line per request. The
// level follows the same rules as Logger.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet(opts.MaskHeaders, "authorization", "cookie", "set-cookie")
	maskQuery := lowerSet(opts.MaskQuery)

	return func(c *gin.Context) {
		start := time.Now()

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redactPII(strings.Join(vv, ", "))
		}
		l := attachRequestLogger(c, redactQuery(c.Request.URL.RawQuery, maskQuery))

		c.Next()

		ev := l.With().
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Str("admin", c.GetString(gin.AuthUserKey)).
			Interface("headers", safeHeaders).
			Logger()
		emitAccess(c, &ev, "http_request")
	}
}
