// Package remote is the document-store adapter the invitation pages and the
// RSVP sync read from and write to. Documents are JSON objects addressed by
// (collection, id) and kept in a single GORM table, on PostgreSQL in
// production or SQLite for development and tests.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
)

var tracer = otel.Tracer("remote")

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Record is one stored document.
type Record struct {
	Collection string         `gorm:"type:varchar(64);primaryKey"`
	ID         string         `gorm:"column:doc_id;type:varchar(128);primaryKey"`
	Data       datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Record) TableName() string { return "documents" }

// Snapshot is a document as observed at one point in time.
type Snapshot struct {
	ID        string          `json:"id"`
	Data      domain.Document `json:"data"`
	Exists    bool            `json:"exists"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Open connects to the document database. driver is "postgres" or "sqlite".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		dial = postgres.Open(dsn)
	case "sqlite", "":
		dial = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported remote driver %q", driver)
	}
	db, err := gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}
	return db, nil
}

// Store reads and writes documents.
type Store struct {
	DB *gorm.DB
	// PollInterval is the OnSnapshot polling period. Zero means one second.
	PollInterval time.Duration

	now func() time.Time
}

// NewStore wraps an opened database.
func NewStore(db *gorm.DB, pollInterval time.Duration) *Store {
	return &Store{DB: db, PollInterval: pollInterval, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Get returns the document or ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	ctx, span := tracer.Start(ctx, "Get", trace.WithAttributes(
		attribute.String("collection", collection), attribute.String("id", id)))
	defer span.End()

	rec, err := getRecord(s.DB.WithContext(ctx), collection, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
		}
		return nil, err
	}
	return decode(rec.Data)
}

func getRecord(db *gorm.DB, collection, id string) (*Record, error) {
	var rec Record
	err := db.Where("collection = ? AND doc_id = ?", collection, id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Set creates or fully replaces the document.
func (s *Store) Set(ctx context.Context, collection, id string, data domain.Document) error {
	ctx, span := tracer.Start(ctx, "Set", trace.WithAttributes(
		attribute.String("collection", collection), attribute.String("id", id)))
	defer span.End()

	raw, err := json.Marshal(nonNil(data))
	if err != nil {
		return err
	}
	now := s.clock()
	rec := Record{Collection: collection, ID: id, Data: datatypes.JSON(raw), CreatedAt: now, UpdatedAt: now}
	err = s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Update merges fields into an existing document. Keys may be dotted paths
// ("guest.status") addressing nested objects, which are created as needed.
// A missing document yields ErrNotFound.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	ctx, span := tracer.Start(ctx, "Update", trace.WithAttributes(
		attribute.String("collection", collection), attribute.String("id", id),
		attribute.Int("fields", len(fields))))
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec Record
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("collection = ? AND doc_id = ?", collection, id).
			Take(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		doc, err := decode(rec.Data)
		if err != nil {
			return err
		}
		for path, v := range fields {
			setPath(doc, path, v)
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return tx.Model(&Record{}).
			Where("collection = ? AND doc_id = ?", collection, id).
			Updates(map[string]any{"data": datatypes.JSON(raw), "updated_at": s.clock()}).Error
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
	}
	return err
}

// List returns a page of documents ordered by id, plus the collection size.
func (s *Store) List(ctx context.Context, collection string, offset, limit int) ([]Snapshot, int64, error) {
	ctx, span := tracer.Start(ctx, "List", trace.WithAttributes(
		attribute.String("collection", collection),
		attribute.Int("offset", offset), attribute.Int("limit", limit)))
	defer span.End()

	q := s.DB.WithContext(ctx).Model(&Record{}).Where("collection = ?", collection)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var recs []Record
	if err := q.Order("doc_id ASC").Offset(offset).Limit(limit).Find(&recs).Error; err != nil {
		return nil, 0, err
	}
	out := make([]Snapshot, 0, len(recs))
	for _, r := range recs {
		doc, err := decode(r.Data)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, Snapshot{ID: r.ID, Data: doc, Exists: true, UpdatedAt: r.UpdatedAt})
	}
	return out, total, nil
}

// OnSnapshot polls the document and calls fn with its first observed state
// and after every change, including deletion. It returns a function that
// stops the watcher; cancelling ctx does the same. fn runs on the watcher
// goroutine and must not block for long.
func (s *Store) OnSnapshot(ctx context.Context, collection, id string, fn func(Snapshot, error)) (unsubscribe func()) {
	interval := s.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()

		var (
			first   = true
			lastRaw string
			existed bool
		)
		poll := func() {
			rec, err := getRecord(s.DB.WithContext(ctx), collection, id)
			if err != nil && !errors.Is(err, ErrNotFound) {
				if ctx.Err() == nil {
					fn(Snapshot{ID: id}, err)
				}
				return
			}
			exists := rec != nil
			raw := ""
			if exists {
				raw = string(rec.Data)
			}
			if !first && exists == existed && raw == lastRaw {
				return
			}
			first, existed, lastRaw = false, exists, raw

			snap := Snapshot{ID: id, Exists: exists}
			if exists {
				doc, err := decode(rec.Data)
				if err != nil {
					fn(snap, err)
					return
				}
				snap.Data, snap.UpdatedAt = doc, rec.UpdatedAt
			}
			fn(snap, nil)
		}

		poll()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				poll()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func decode(raw datatypes.JSON) (domain.Document, error) {
	doc := domain.Document{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func nonNil(d domain.Document) domain.Document {
	if d == nil {
		return domain.Document{}
	}
	return d
}

// setPath assigns v at a dotted path, replacing non-object intermediates.
func setPath(doc map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}
