// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides SQLiteStore, the LocalInvitationStore
// backed by a single SQLite file.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
)

var sqliteTracer = otel.Tracer("repo/sqlite")

// SQLiteStore implements LocalInvitationStore on SQLite through GORM.
//
// The zero value is not usable; construct with NewSQLiteStore and call Init
// once at startup.
type SQLiteStore struct {
	path string
	now  func() int64

	mu sync.RWMutex
	db *gorm.DB
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithSQLiteClock overrides the epoch-millisecond clock used for
// lastUpdated and defaulted timestamps.
func WithSQLiteClock(now func() int64) SQLiteOption {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSQLiteStore returns a store for the database at path. Nothing is opened
// until Init.
func NewSQLiteStore(path string, opts ...SQLiteOption) *SQLiteStore {
	s := &SQLiteStore{path: path, now: nowMillis}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ LocalInvitationStore = (*SQLiteStore)(nil)

// Init opens the database and upgrades it to SchemaVersion.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	db, err := OpenSQLite(s.path)
	if err != nil {
		return Unavailable(err)
	}
	if err := Migrate(ctx, db, SchemaVersion); err != nil {
		if sqlDB, e := db.DB(); e == nil {
			_ = sqlDB.Close()
		}
		return TxFailed("init", err)
	}
	s.db = db
	return nil
}

// DB exposes the underlying handle, or nil before Init.
func (s *SQLiteStore) DB() *gorm.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Close releases the handle. Closing an unopened store is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) handle(ctx context.Context) (*gorm.DB, error) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return nil, ErrNotInitialized
	}
	return db.WithContext(ctx), nil
}

func (s *SQLiteStore) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return sqliteTracer.Start(ctx, "SQLiteStore."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotInitialized) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Version returns the stored PRAGMA user_version.
func (s *SQLiteStore) Version(ctx context.Context) (int, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return 0, err
	}
	v, err := userVersion(ctx, db)
	if err != nil {
		return 0, TxFailed("version", err)
	}
	return v, nil
}

// CacheInvitation upserts inv, replacing every column of an existing row.
func (s *SQLiteStore) CacheInvitation(ctx context.Context, inv domain.CachedInvitation) (err error) {
	ctx, span := s.span(ctx, "CacheInvitation", attribute.String("slug", inv.Slug))
	defer func() { endSpan(span, err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	err = db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&inv).Error
	return TxFailed("cache invitation", err)
}

// GetCachedInvitation returns the cached record for slug or nil.
func (s *SQLiteStore) GetCachedInvitation(ctx context.Context, slug string) (_ *domain.CachedInvitation, err error) {
	ctx, span := s.span(ctx, "GetCachedInvitation", attribute.String("slug", slug))
	defer func() { endSpan(span, err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	return getInvitation(db, slug)
}

func getInvitation(db *gorm.DB, slug string) (*domain.CachedInvitation, error) {
	var inv domain.CachedInvitation
	err := db.Where("slug = ?", slug).Take(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, TxFailed("get invitation", err)
	}
	return &inv, nil
}

// StoreWeddingDate caches date under the slug's wedding-date key.
func (s *SQLiteStore) StoreWeddingDate(ctx context.Context, slug, date string) error {
	return s.PutSetting(ctx, domain.WeddingDateKey(slug), date)
}

// GetWeddingDate returns the cached wedding date for slug.
func (s *SQLiteStore) GetWeddingDate(ctx context.Context, slug string) (string, bool, error) {
	var date string
	found, err := s.GetSetting(ctx, domain.WeddingDateKey(slug), &date)
	if err != nil || !found {
		return "", false, err
	}
	return date, true, nil
}

// PutSetting upserts the JSON encoding of value under key.
func (s *SQLiteStore) PutSetting(ctx context.Context, key string, value any) (err error) {
	ctx, span := s.span(ctx, "PutSetting", attribute.String("key", key))
	defer func() { endSpan(span, err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	rec := domain.Setting{Key: key, Value: datatypes.JSON(raw), Timestamp: s.now()}
	err = db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	return TxFailed("put setting", err)
}

// GetSetting decodes the value stored under key into out.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string, out any) (_ bool, err error) {
	ctx, span := s.span(ctx, "GetSetting", attribute.String("key", key))
	defer func() { endSpan(span, err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return false, err
	}
	var rec domain.Setting
	err = db.Where("key = ?", key).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, TxFailed("get setting", err)
	}
	if out != nil {
		if err := json.Unmarshal(rec.Value, out); err != nil {
			return false, err
		}
	}
	return true, nil
}

// StorePendingRSVP inserts a new unsynced record.
func (s *SQLiteStore) StorePendingRSVP(ctx context.Context, r domain.PendingRSVP) (_ domain.PendingRSVP, err error) {
	ctx, span := s.span(ctx, "StorePendingRSVP", attribute.String("slug", r.Slug))
	defer func() { endSpan(span, err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return domain.PendingRSVP{}, err
	}
	r.ID = 0
	r.Synced = false
	if r.Timestamp == 0 {
		r.Timestamp = s.now()
	}
	if err = db.Create(&r).Error; err != nil {
		return domain.PendingRSVP{}, TxFailed("store rsvp", err)
	}
	span.SetAttributes(attribute.Int64("rsvp.id", int64(r.ID)))
	return r, nil
}

// GetPendingRSVPs returns every unsynced record, oldest first.
func (s *SQLiteStore) GetPendingRSVPs(ctx context.Context) (_ []domain.PendingRSVP, err error) {
	ctx, span := s.span(ctx, "GetPendingRSVPs")
	defer func() { endSpan(span, err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	out := []domain.PendingRSVP{}
	if err = db.Where("synced = ?", false).Order("id ASC").Find(&out).Error; err != nil {
		return nil, TxFailed("get pending rsvps", err)
	}
	return out, nil
}

// ListPendingRSVPsBySlug returns every record for slug, oldest first.
func (s *SQLiteStore) ListPendingRSVPsBySlug(ctx context.Context, slug string) (_ []domain.PendingRSVP, err error) {
	ctx, span := s.span(ctx, "ListPendingRSVPsBySlug", attribute.String("slug", slug))
	defer func() { endSpan(span, err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	out := []domain.PendingRSVP{}
	if err = db.Where("slug = ?", slug).Order("id ASC").Find(&out).Error; err != nil {
		return nil, TxFailed("list rsvps by slug", err)
	}
	return out, nil
}

// MarkRSVPSynced flips synced on record id. Missing ids and records that are
// already synced are left untouched.
func (s *SQLiteStore) MarkRSVPSynced(ctx context.Context, id uint64) (err error) {
	ctx, span := s.span(ctx, "MarkRSVPSynced", attribute.Int64("rsvp.id", int64(id)))
	defer func() { endSpan(span, err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		var r domain.PendingRSVP
		err := tx.Where("id = ?", id).Take(&r).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil || r.Synced {
			return err
		}
		return tx.Model(&domain.PendingRSVP{}).Where("id = ?", id).Update("synced", true).Error
	})
	return TxFailed("mark rsvp synced", err)
}

// UpdateLocalGuestStatus rewrites the guest state of a cached invitation in a
// single transaction. A slug that is not cached is a no-op.
func (s *SQLiteStore) UpdateLocalGuestStatus(ctx context.Context, slug string, status domain.GuestStatus, attending bool, declineReason *string) (err error) {
	ctx, span := s.span(ctx, "UpdateLocalGuestStatus",
		attribute.String("slug", slug), attribute.String("status", string(status)))
	defer func() { endSpan(span, err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		var inv domain.CachedInvitation
		err := tx.Where("slug = ?", slug).Take(&inv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ApplyGuestStatus(&inv, status, attending, declineReason, s.now())
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&inv).Error
	})
	return TxFailed("update guest status", err)
}
