// Package services defines the business logic for invitations, RSVPs and
// client records. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrInvitationNotFound indicates that no invitation exists for the slug,
	// neither remotely nor in the local cache.
	ErrInvitationNotFound = errors.New("invitation not found")

	// ErrInvalidSlug is returned when a slug is empty or does not match the
	// allowed pattern.
	ErrInvalidSlug = errors.New("invalid slug")

	// ErrInvalidRSVP is returned when an RSVP submission is malformed, for
	// example a decline reason that exceeds the length limit.
	ErrInvalidRSVP = errors.New("invalid rsvp")

	// ErrInvalidRecord is returned when a client record fails validation.
	ErrInvalidRecord = errors.New("invalid client record")

	// ErrInvalidDate is returned when a wedding date is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("wedding date must be YYYY-MM-DD")

	// ErrRemoteUnavailable is returned when an operation that requires the
	// remote document store cannot reach it.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
)
