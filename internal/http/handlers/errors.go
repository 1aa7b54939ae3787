// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and form a stable, machine-readable taxonomy
// that clients can branch on. Generic codes mirror HTTP status semantics;
// the domain codes below them name failures the status alone cannot convey.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "invalid_rsvp",
//	  "message": "decline reason is too long"
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/wedding-invite-backend/internal/repo"
	"github.com/tbourn/wedding-invite-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeInvalidSlug        = "invalid_slug"
	ErrCodeInvalidRSVP        = "invalid_rsvp"
	ErrCodeInvalidRecord      = "invalid_record"
	ErrCodeInvalidDate        = "invalid_date"
	ErrCodeRemoteUnavailable  = "remote_unavailable"
	ErrCodeStorageUnavailable = "storage_unavailable"
	ErrCodeRSVPFailed         = "rsvp_failed"
	ErrCodeSyncFailed         = "sync_failed"
	ErrCodeListFailed         = "list_failed"
	ErrCodeUpsertFailed       = "upsert_failed"
)

// internalMessage is the only message clients see for unclassified errors.
const internalMessage = "internal error"

// serviceError maps a service or store error onto the envelope. Anything
// unrecognized becomes a 500 with fallback as its code; its text is logged,
// not returned.
func serviceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrInvalidSlug):
		fail(c, http.StatusBadRequest, ErrCodeInvalidSlug, "slug must match ^[a-z0-9][a-z0-9_-]{0,127}$")
	case errors.Is(err, services.ErrInvalidRSVP):
		fail(c, http.StatusBadRequest, ErrCodeInvalidRSVP, "decline reason is too long")
	case errors.Is(err, services.ErrInvalidRecord):
		fail(c, http.StatusBadRequest, ErrCodeInvalidRecord, err.Error())
	case errors.Is(err, services.ErrInvalidDate):
		fail(c, http.StatusBadRequest, ErrCodeInvalidDate, services.ErrInvalidDate.Error())
	case errors.Is(err, services.ErrInvitationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "invitation not found")
	case errors.Is(err, services.ErrRemoteUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusServiceUnavailable, ErrCodeRemoteUnavailable, "remote store unavailable, try again later")
	case errors.Is(err, repo.ErrStorageUnavailable),
		errors.Is(err, repo.ErrNotInitialized):
		fail(c, http.StatusServiceUnavailable, ErrCodeStorageUnavailable, "local storage unavailable")
	default:
		failErr(c, http.StatusInternalServerError, fallback, internalMessage, err)
	}
}
