// Package kvdb provides a LocalInvitationStore on top of bbolt.
//
// Layout:
//
//	invitations    slug            -> CachedInvitation JSON
//	rsvps          id (uint64 BE)  -> PendingRSVP JSON
//	rsvps_by_slug  slug 0x00 id    -> empty (secondary index)
//	settings       key             -> Setting JSON
//	meta           "version"       -> schema version (uint64 BE)
//
// Big-endian ids make cursor order equal id order.
package kvdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
	"github.com/tbourn/wedding-invite-backend/internal/repo"
)

var tracer = otel.Tracer("repo/kvdb")

var (
	bucketInvitations = []byte(domain.CollectionInvitations)
	bucketRSVPs       = []byte(domain.CollectionRSVPs)
	bucketRSVPsBySlug = []byte("rsvps_by_slug")
	bucketSettings    = []byte(domain.CollectionSettings)
	bucketMeta        = []byte("meta")

	keyVersion = []byte("version")
)

// upgrades is indexed by target version minus one.
var upgrades = []func(tx *bolt.Tx) error{
	func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketInvitations, bucketRSVPs, bucketRSVPsBySlug, bucketSettings} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	},
}

// Store implements repo.LocalInvitationStore on a bbolt file.
type Store struct {
	path string
	now  func() int64

	mu sync.RWMutex
	db *bolt.DB
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the epoch-millisecond clock.
func WithClock(now func() int64) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a store for the bbolt file at path. Nothing is opened until
// Init.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path, now: func() int64 { return time.Now().UnixMilli() }}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ repo.LocalInvitationStore = (*Store)(nil)

// Init opens the file and upgrades it to repo.SchemaVersion.
func (s *Store) Init(ctx context.Context) error {
	_, span := tracer.Start(ctx, "Init")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		span.RecordError(err)
		return repo.Unavailable(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		current := 0
		if v := meta.Get(keyVersion); len(v) == 8 {
			current = int(binary.BigEndian.Uint64(v))
		}
		for v := current + 1; v <= repo.SchemaVersion; v++ {
			span.AddEvent("upgrade", trace.WithAttributes(attribute.Int("version", v)))
			if err := upgrades[v-1](tx); err != nil {
				return err
			}
			if err := meta.Put(keyVersion, itob(uint64(v))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		_ = db.Close()
		return repo.TxFailed("init", err)
	}
	s.db = db
	return nil
}

// Close releases the file lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) handle(ctx context.Context) (*bolt.DB, error) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return nil, repo.ErrNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return db, nil
}

// view and update run fn in a bbolt transaction and wrap engine errors.
func (s *Store) view(ctx context.Context, op string, fn func(tx *bolt.Tx) error) error {
	db, err := s.handle(ctx)
	if err != nil {
		return repo.TxFailed(op, err)
	}
	return repo.TxFailed(op, db.View(fn))
}

func (s *Store) update(ctx context.Context, op string, fn func(tx *bolt.Tx) error) error {
	db, err := s.handle(ctx)
	if err != nil {
		return repo.TxFailed(op, err)
	}
	return repo.TxFailed(op, db.Update(fn))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, repo.ErrNotInitialized) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Version returns the schema version stored in the meta bucket.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int
	err := s.view(ctx, "version", func(tx *bolt.Tx) error {
		if raw := tx.Bucket(bucketMeta).Get(keyVersion); len(raw) == 8 {
			v = int(binary.BigEndian.Uint64(raw))
		}
		return nil
	})
	return v, notInit(err)
}

// CacheInvitation replaces the record stored under inv.Slug.
func (s *Store) CacheInvitation(ctx context.Context, inv domain.CachedInvitation) (err error) {
	ctx, span := tracer.Start(ctx, "CacheInvitation", trace.WithAttributes(attribute.String("slug", inv.Slug)))
	defer func() { endSpan(span, err) }()

	j, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return notInit(s.update(ctx, "cache invitation", func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInvitations).Put([]byte(inv.Slug), j)
	}))
}

// GetCachedInvitation returns the record for slug or nil.
func (s *Store) GetCachedInvitation(ctx context.Context, slug string) (_ *domain.CachedInvitation, err error) {
	ctx, span := tracer.Start(ctx, "GetCachedInvitation", trace.WithAttributes(attribute.String("slug", slug)))
	defer func() { endSpan(span, err) }()

	var inv *domain.CachedInvitation
	err = s.view(ctx, "get invitation", func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketInvitations).Get([]byte(slug))
		if raw == nil {
			return nil
		}
		inv = &domain.CachedInvitation{}
		return json.Unmarshal(raw, inv)
	})
	if err != nil {
		return nil, notInit(err)
	}
	return inv, nil
}

// StoreWeddingDate caches date under the slug's wedding-date key.
func (s *Store) StoreWeddingDate(ctx context.Context, slug, date string) error {
	return s.PutSetting(ctx, domain.WeddingDateKey(slug), date)
}

// GetWeddingDate returns the cached wedding date for slug.
func (s *Store) GetWeddingDate(ctx context.Context, slug string) (string, bool, error) {
	var date string
	found, err := s.GetSetting(ctx, domain.WeddingDateKey(slug), &date)
	if err != nil || !found {
		return "", false, err
	}
	return date, true, nil
}

// PutSetting stores value under key.
func (s *Store) PutSetting(ctx context.Context, key string, value any) (err error) {
	ctx, span := tracer.Start(ctx, "PutSetting", trace.WithAttributes(attribute.String("key", key)))
	defer func() { endSpan(span, err) }()

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	j, err := json.Marshal(domain.Setting{Key: key, Value: datatypes.JSON(raw), Timestamp: s.now()})
	if err != nil {
		return err
	}
	return notInit(s.update(ctx, "put setting", func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(key), j)
	}))
}

// GetSetting decodes the value stored under key into out.
func (s *Store) GetSetting(ctx context.Context, key string, out any) (_ bool, err error) {
	ctx, span := tracer.Start(ctx, "GetSetting", trace.WithAttributes(attribute.String("key", key)))
	defer func() { endSpan(span, err) }()

	var rec *domain.Setting
	err = s.view(ctx, "get setting", func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSettings).Get([]byte(key))
		if raw == nil {
			return nil
		}
		rec = &domain.Setting{}
		return json.Unmarshal(raw, rec)
	})
	if err != nil {
		return false, notInit(err)
	}
	if rec == nil {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(rec.Value, out); err != nil {
			return false, err
		}
	}
	return true, nil
}

// StorePendingRSVP inserts a new unsynced record with the next sequence id.
func (s *Store) StorePendingRSVP(ctx context.Context, r domain.PendingRSVP) (_ domain.PendingRSVP, err error) {
	ctx, span := tracer.Start(ctx, "StorePendingRSVP", trace.WithAttributes(attribute.String("slug", r.Slug)))
	defer func() { endSpan(span, err) }()

	r.Synced = false
	if r.Timestamp == 0 {
		r.Timestamp = s.now()
	}
	err = s.update(ctx, "store rsvp", func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRSVPs)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		r.ID = id
		j, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := b.Put(itob(id), j); err != nil {
			return err
		}
		return tx.Bucket(bucketRSVPsBySlug).Put(slugIndexKey(r.Slug, id), []byte{})
	})
	if err != nil {
		return domain.PendingRSVP{}, notInit(err)
	}
	span.SetAttributes(attribute.Int64("rsvp.id", int64(r.ID)))
	return r, nil
}

// GetPendingRSVPs returns every unsynced record, oldest first.
func (s *Store) GetPendingRSVPs(ctx context.Context) (_ []domain.PendingRSVP, err error) {
	ctx, span := tracer.Start(ctx, "GetPendingRSVPs")
	defer func() { endSpan(span, err) }()

	out := []domain.PendingRSVP{}
	err = s.view(ctx, "get pending rsvps", func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRSVPs).ForEach(func(_, v []byte) error {
			var r domain.PendingRSVP
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if !r.Synced {
				out = append(out, r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, notInit(err)
	}
	return out, nil
}

// ListPendingRSVPsBySlug walks the slug index and returns every record for
// slug, oldest first.
func (s *Store) ListPendingRSVPsBySlug(ctx context.Context, slug string) (_ []domain.PendingRSVP, err error) {
	ctx, span := tracer.Start(ctx, "ListPendingRSVPsBySlug", trace.WithAttributes(attribute.String("slug", slug)))
	defer func() { endSpan(span, err) }()

	out := []domain.PendingRSVP{}
	prefix := slugIndexPrefix(slug)
	err = s.view(ctx, "list rsvps by slug", func(tx *bolt.Tx) error {
		rsvps := tx.Bucket(bucketRSVPs)
		c := tx.Bucket(bucketRSVPsBySlug).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			raw := rsvps.Get(k[len(prefix):])
			if raw == nil {
				continue
			}
			var r domain.PendingRSVP
			if err := json.Unmarshal(raw, &r); err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, notInit(err)
	}
	return out, nil
}

// MarkRSVPSynced flips synced on record id. Missing ids are a no-op.
func (s *Store) MarkRSVPSynced(ctx context.Context, id uint64) (err error) {
	ctx, span := tracer.Start(ctx, "MarkRSVPSynced", trace.WithAttributes(attribute.Int64("rsvp.id", int64(id))))
	defer func() { endSpan(span, err) }()

	return notInit(s.update(ctx, "mark rsvp synced", func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRSVPs)
		raw := b.Get(itob(id))
		if raw == nil {
			return nil
		}
		var r domain.PendingRSVP
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		if r.Synced {
			return nil
		}
		r.Synced = true
		j, err := json.Marshal(r)
		if err != nil {
			return err
		}
		return b.Put(itob(id), j)
	}))
}

// UpdateLocalGuestStatus rewrites the guest state of a cached invitation in
// one write transaction. A slug that is not cached is a no-op.
func (s *Store) UpdateLocalGuestStatus(ctx context.Context, slug string, status domain.GuestStatus, attending bool, declineReason *string) (err error) {
	ctx, span := tracer.Start(ctx, "UpdateLocalGuestStatus", trace.WithAttributes(
		attribute.String("slug", slug), attribute.String("status", string(status))))
	defer func() { endSpan(span, err) }()

	return notInit(s.update(ctx, "update guest status", func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInvitations)
		raw := b.Get([]byte(slug))
		if raw == nil {
			return nil
		}
		var inv domain.CachedInvitation
		if err := json.Unmarshal(raw, &inv); err != nil {
			return err
		}
		repo.ApplyGuestStatus(&inv, status, attending, declineReason, s.now())
		j, err := json.Marshal(inv)
		if err != nil {
			return err
		}
		return b.Put([]byte(slug), j)
	}))
}

// Stats counts invitations and RSVP records by sync state.
func (s *Store) Stats(ctx context.Context) (_ domain.StoreStats, err error) {
	ctx, span := tracer.Start(ctx, "Stats")
	defer func() { endSpan(span, err) }()

	var st domain.StoreStats
	err = s.view(ctx, "stats", func(tx *bolt.Tx) error {
		st.Invitations = int64(tx.Bucket(bucketInvitations).Stats().KeyN)
		return tx.Bucket(bucketRSVPs).ForEach(func(_, v []byte) error {
			var r struct {
				Synced bool `json:"synced"`
			}
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.Synced {
				st.SyncedRSVPs++
			} else {
				st.PendingRSVPs++
			}
			return nil
		})
	})
	if err != nil {
		return domain.StoreStats{}, notInit(err)
	}
	return st, nil
}

// notInit unwraps ErrNotInitialized so it is not reported as a failed
// transaction.
func notInit(err error) error {
	if errors.Is(err, repo.ErrNotInitialized) {
		return repo.ErrNotInitialized
	}
	return err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func slugIndexPrefix(slug string) []byte {
	p := make([]byte, 0, len(slug)+1)
	p = append(p, slug...)
	return append(p, 0)
}

func slugIndexKey(slug string, id uint64) []byte {
	return append(slugIndexPrefix(slug), itob(id)...)
}
