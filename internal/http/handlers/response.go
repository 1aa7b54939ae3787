// Package handlers provides HTTP handler implementations for the public and
// admin API.
//
// Every error leaves through fail() as an ErrorResponse:
//
//	HTTP/1.1 503 Service Unavailable
//	Retry-After: 5
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "remote_unavailable",
//	  "message": "remote store unreachable"
//	}
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/wedding-invite-backend/internal/http/middleware"
)

// unavailableRetryAfter is the Retry-After hint, in seconds, sent with 503s.
// It matches the order of magnitude of a background flush.
var unavailableRetryAfter = 5

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"remote_unavailable"`
	// Human-readable message, safe to show to guests
	Message string `json:"message" example:"remote store unreachable"`
}

// fail aborts the request with the error envelope. 5xx responses are logged
// with the request-scoped logger; 503s also carry Retry-After.
func fail(c *gin.Context, status int, code, msg string) {
	failErr(c, status, code, msg, nil)
}

// failErr is fail with a cause that is logged but never sent to the client.
func failErr(c *gin.Context, status int, code, msg string, cause error) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Err(cause).
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(unavailableRetryAfter))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is fail for the router's fallback and infra handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
