// Package domain defines the core persistence models for the application.
// These types are shared by the local store backends, the remote document
// store adapter, the service layer, and the HTTP handlers.
//
// Timestamps on local records are epoch milliseconds so that records written
// by any backend compare and serialize the same way.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Collection names used by the local store and the remote document store.
const (
	CollectionInvitations = "invitations"
	CollectionRSVPs       = "rsvps"
	CollectionSettings    = "settings"
)

// CachedInvitation is the last-known snapshot of an invitation document kept
// locally so a guest page can be served while the remote store is unreachable.
//
// Fields:
//   - Slug: per-invitation identifier, primary key.
//   - GuestName: display name of the invited guest.
//   - WeddingInfo: opaque venue/date/names/media document, never interpreted here.
//   - Guest: RSVP state of the guest; the only part local code mutates.
//   - Timestamp: first cache time (epoch ms).
//   - LastUpdated: last local mutation (epoch ms).
type CachedInvitation struct {
	Slug        string     `json:"slug"        gorm:"type:varchar(128);primaryKey"`
	GuestName   string     `json:"guestName"   gorm:"type:varchar(255);not null;default:''"`
	WeddingInfo Document   `json:"weddingInfo" gorm:"type:text;serializer:json"`
	Guest       GuestState `json:"guest"       gorm:"type:text;serializer:json"`
	Timestamp   int64      `json:"timestamp"   gorm:"not null"`
	LastUpdated int64      `json:"lastUpdated" gorm:"not null"`
}

// TableName returns the database table name for CachedInvitation.
func (CachedInvitation) TableName() string { return CollectionInvitations }

// PendingRSVP is an attendance decision recorded locally. It is immutable
// except for Synced, which flips from false to true once the remote write is
// confirmed and never reverts.
//
// Several records may exist for the same slug; deduplication is a sync
// policy, not a storage one.
type PendingRSVP struct {
	ID            uint64  `json:"id"                      gorm:"primaryKey;autoIncrement"`
	Slug          string  `json:"slug"                    gorm:"type:varchar(128);not null;index:idx_rsvps_slug"`
	Attending     bool    `json:"attending"               gorm:"not null"`
	DeclineReason *string `json:"declineReason,omitempty" gorm:"type:text"`
	Timestamp     int64   `json:"timestamp"               gorm:"not null"`
	Synced        bool    `json:"synced"                  gorm:"not null;index:idx_rsvps_synced"`
}

// TableName returns the database table name for PendingRSVP.
func (PendingRSVP) TableName() string { return CollectionRSVPs }

// Setting is a namespaced key/value record for small auxiliary values.
type Setting struct {
	Key       string         `json:"key"       gorm:"type:varchar(255);primaryKey"`
	Value     datatypes.JSON `json:"value"     gorm:"type:text"`
	Timestamp int64          `json:"timestamp" gorm:"not null"`
}

// TableName returns the database table name for Setting.
func (Setting) TableName() string { return CollectionSettings }

// WeddingDateKey namespaces the cached wedding date of slug.
func WeddingDateKey(slug string) string { return "weddingDate_" + slug }

// Millis converts t to epoch milliseconds.
func Millis(t time.Time) int64 { return t.UnixMilli() }

// StoreStats summarizes the contents of a local store.
type StoreStats struct {
	Invitations  int64 `json:"invitations"`
	PendingRSVPs int64 `json:"pending_rsvps"`
	SyncedRSVPs  int64 `json:"synced_rsvps"`
}
