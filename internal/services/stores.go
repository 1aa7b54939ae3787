// Package services – collaborator contracts
//
// The services depend on two stores: the local store (offline cache, RSVP
// outbox, settings) and the remote document store. Both are consumed through
// the narrow interfaces below so tests can substitute fakes.
package services

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
	"github.com/tbourn/wedding-invite-backend/internal/remote"
	"github.com/tbourn/wedding-invite-backend/internal/repo"
)

// LocalStore is the local persistence contract used by the services.
type LocalStore = repo.LocalInvitationStore

// RemoteStore is the remote document store contract used by the services.
type RemoteStore interface {
	// Get returns the document or remote.ErrNotFound.
	Get(ctx context.Context, collection, id string) (domain.Document, error)
	// Set creates or fully replaces a document.
	Set(ctx context.Context, collection, id string, data domain.Document) error
	// Update merges (dotted-path) fields into an existing document.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// List returns a page of documents and the collection size.
	List(ctx context.Context, collection string, offset, limit int) ([]remote.Snapshot, int64, error)
	// OnSnapshot watches a document until the returned func is called.
	OnSnapshot(ctx context.Context, collection, id string, fn func(remote.Snapshot, error)) func()
}

// Remote document field names.
const (
	fieldGuestName   = "guestName"
	fieldWeddingInfo = "weddingInfo"
	fieldWeddingDate = "weddingDate"
	fieldGuest       = "guest"
)

// slugRE is the accepted slug shape.
var slugRE = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,127}$`)

// ValidSlug reports whether slug is acceptable as an invitation id.
func ValidSlug(slug string) bool { return slugRE.MatchString(slug) }

// normalizeSlug trims and lower-cases slug and validates it.
func normalizeSlug(slug string) (string, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if !ValidSlug(slug) {
		return "", ErrInvalidSlug
	}
	return slug, nil
}

// validDate reports whether s is a YYYY-MM-DD calendar date.
func validDate(s string) bool {
	_, err := time.Parse(time.DateOnly, s)
	return err == nil
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// invitationFromDocument maps a remote invitation document to a cache record.
func invitationFromDocument(slug string, doc domain.Document) (domain.CachedInvitation, string, error) {
	guest, err := domain.GuestStateFromDocument(doc.Object(fieldGuest))
	if err != nil {
		return domain.CachedInvitation{}, "", err
	}
	info := doc.Object(fieldWeddingInfo)
	date := doc.String(fieldWeddingDate)
	if date == "" {
		date = info.String("date")
	}
	return domain.CachedInvitation{
		Slug:        slug,
		GuestName:   doc.String(fieldGuestName),
		WeddingInfo: info,
		Guest:       guest,
	}, date, nil
}
