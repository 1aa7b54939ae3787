// Package repo implements the local persistence layer: the
// LocalInvitationStore contract, its SQLite implementation backed by GORM,
// and small helpers layered on top of the settings collection.
//
// Error semantics:
//   - Reads never treat a missing record as an error; they return a nil
//     pointer, an empty slice, or found=false.
//   - Engine failures are returned as *TxError, which matches
//     ErrTransactionFailed and unwraps to the engine error.
//   - Every operation called before Init returns ErrNotInitialized.
//   - UpdateLocalGuestStatus is the only soft-failing write: a slug that
//     is not cached is a no-op.
//
// The store performs no retries and applies no timeouts of its own; callers
// bound operations through the context.
package repo

import (
	"context"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
)

// SchemaVersion is the current local schema version. Stores opened at an
// older version run the upgrade hook during Init.
const SchemaVersion = 1

// LocalInvitationStore is durable local persistence for cached invitations,
// queued RSVPs and namespaced settings. Implementations are safe for
// concurrent use.
type LocalInvitationStore interface {
	// Init opens (or creates) the versioned database. It is idempotent.
	Init(ctx context.Context) error
	// Close releases the engine handle.
	Close() error
	// Version returns the schema version recorded in the database.
	Version(ctx context.Context) (int, error)

	// CacheInvitation upserts inv by slug, fully replacing any prior record.
	CacheInvitation(ctx context.Context, inv domain.CachedInvitation) error
	// GetCachedInvitation returns the record for slug, or nil when absent.
	GetCachedInvitation(ctx context.Context, slug string) (*domain.CachedInvitation, error)

	// StoreWeddingDate saves date under weddingDate_<slug>.
	StoreWeddingDate(ctx context.Context, slug, date string) error
	// GetWeddingDate returns the cached date and whether one was found.
	GetWeddingDate(ctx context.Context, slug string) (string, bool, error)
	// PutSetting stores value (JSON-encoded) under key.
	PutSetting(ctx context.Context, key string, value any) error
	// GetSetting decodes the value under key into out and reports presence.
	GetSetting(ctx context.Context, key string, out any) (bool, error)

	// StorePendingRSVP inserts r as a new unsynced record and returns it with
	// its assigned id. Any id or synced flag on r is ignored.
	StorePendingRSVP(ctx context.Context, r domain.PendingRSVP) (domain.PendingRSVP, error)
	// GetPendingRSVPs returns unsynced records ordered by id ascending.
	GetPendingRSVPs(ctx context.Context) ([]domain.PendingRSVP, error)
	// ListPendingRSVPsBySlug returns all records for slug, synced or not,
	// ordered by id ascending.
	ListPendingRSVPsBySlug(ctx context.Context, slug string) ([]domain.PendingRSVP, error)
	// MarkRSVPSynced flips synced to true. A missing id is a no-op.
	MarkRSVPSynced(ctx context.Context, id uint64) error

	// UpdateLocalGuestStatus mutates the guest state of a cached invitation
	// and bumps lastUpdated. It does nothing when slug is not cached.
	UpdateLocalGuestStatus(ctx context.Context, slug string, status domain.GuestStatus, attending bool, declineReason *string) error

	// Stats counts the records currently held.
	Stats(ctx context.Context) (domain.StoreStats, error)
}

// ApplyGuestStatus performs the in-memory part of UpdateLocalGuestStatus so
// every backend mutates the record the same way.
func ApplyGuestStatus(inv *domain.CachedInvitation, status domain.GuestStatus, attending bool, declineReason *string, nowMillis int64) {
	inv.Guest.Status = status
	a := attending
	inv.Guest.Attending = &a
	if declineReason != nil {
		inv.Guest.DeclineReason = *declineReason
	}
	inv.LastUpdated = nowMillis
}
