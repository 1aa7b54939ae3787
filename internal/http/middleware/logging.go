// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the request ID injector, the structured access logger
// and panic recovery.
//
//   - RequestID() reuses a sane incoming X-Request-ID or generates a UUID.
//   - Logger() builds a request-scoped zerolog.Logger, stores it in the Gin
//     context under "logger" and in the request context, so services reached
//     from a handler can log with log.Ctx(ctx) and keep the request fields.
//   - Recovery() turns panics into the standard JSON 500 envelope.
//
// Install in the order RequestID, Logger, Recovery so panics carry the ID.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey      = "requestID"
	requestIDHeader   = "X-Request-ID"
	maxQueryLogLength = 2048
)

// requestIDRE bounds what we accept from clients before echoing it back.
var requestIDRE = regexp.MustCompile(`^[A-Za-z0-9._\-:]{1,128}$`)

// RequestID attaches (or propagates) a correlation identifier per request.
// Incoming IDs that are too long or contain unexpected characters are
// replaced by a fresh UUID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !requestIDRE.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger writes one structured access log line per request. The level is
// error for 5xx or when handlers attached Gin errors, warn for 4xx, info
// otherwise.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		l := attachRequestLogger(c, c.Request.URL.RawQuery)

		c.Next()

		ev := l.With().
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Str("admin", c.GetString(gin.AuthUserKey)).
			Logger()
		emitAccess(c, &ev, "request")
	}
}

// attachRequestLogger builds the request-scoped logger and stores it in the
// Gin context and in the request context. query is logged as given, capped.
func attachRequestLogger(c *gin.Context, query string) *zerolog.Logger {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	l := log.With().
		Str("request_id", asString(c.Value(requestIDKey))).
		Str("method", c.Request.Method).
		Str("path", path).
		Str("slug", c.Param("slug")).
		Str("remote_ip", c.ClientIP()).
		Str("user_agent", c.Request.UserAgent()).
		Str("query", truncate(query, maxQueryLogLength)).
		Int64("bytes_in", c.Request.ContentLength).
		Logger()

	c.Set("logger", &l)
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
	return &l
}

// emitAccess writes the access line at a level chosen by outcome.
func emitAccess(c *gin.Context, l *zerolog.Logger, msg string) {
	status := c.Writer.Status()
	switch {
	case len(c.Errors) > 0:
		l.Error().Str("errors", c.Errors.String()).Msg(msg)
	case status >= 500:
		l.Error().Msg(msg)
	case status >= 400:
		l.Warn().Msg(msg)
	default:
		l.Info().Msg(msg)
	}
}

// Recovery intercepts panics, logs the stack, and answers with the standard
// 500 envelope when nothing has been written yet.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := asString(c.Value(requestIDKey))
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// Logger() is not installed.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get("logger"); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate caps s at max bytes and appends an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
