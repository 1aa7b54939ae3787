package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
	"github.com/tbourn/wedding-invite-backend/internal/remote"
	"github.com/tbourn/wedding-invite-backend/internal/repo"
)

var errOffline = errors.New("remote offline")

// flakyRemote wraps a real remote store and can simulate outages.
type flakyRemote struct {
	*remote.Store

	mu          sync.Mutex
	down        bool
	failUpdates map[string]bool
	updates     []string
}

func (f *flakyRemote) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func (f *flakyRemote) failUpdatesFor(slug string, v bool) {
	f.mu.Lock()
	if f.failUpdates == nil {
		f.failUpdates = map[string]bool{}
	}
	f.failUpdates[slug] = v
	f.mu.Unlock()
}

func (f *flakyRemote) isDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

func (f *flakyRemote) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	if f.isDown() {
		return nil, errOffline
	}
	return f.Store.Get(ctx, collection, id)
}

func (f *flakyRemote) Set(ctx context.Context, collection, id string, data domain.Document) error {
	if f.isDown() {
		return errOffline
	}
	return f.Store.Set(ctx, collection, id, data)
}

func (f *flakyRemote) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	f.mu.Lock()
	fail := f.down || f.failUpdates[id]
	if !fail {
		f.updates = append(f.updates, id)
	}
	f.mu.Unlock()
	if fail {
		return errOffline
	}
	return f.Store.Update(ctx, collection, id, fields)
}

func (f *flakyRemote) List(ctx context.Context, collection string, offset, limit int) ([]remote.Snapshot, int64, error) {
	if f.isDown() {
		return nil, 0, errOffline
	}
	return f.Store.List(ctx, collection, offset, limit)
}

func (f *flakyRemote) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func newLocal(t *testing.T) *repo.SQLiteStore {
	t.Helper()
	st := repo.NewSQLiteStore(filepath.Join(t.TempDir(), "local.db"))
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newRemote(t *testing.T) *flakyRemote {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := remote.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("remote open: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return &flakyRemote{Store: remote.NewStore(db, 10*time.Millisecond)}
}

func seedInvitation(t *testing.T, rs *flakyRemote, slug, name string) {
	t.Helper()
	doc := domain.Document{
		"guestName": name,
		"weddingInfo": map[string]any{
			"venue": "Old Mill",
			"date":  "2026-06-20",
		},
		"guest": map[string]any{"status": "pending", "table": "7"},
	}
	if err := rs.Store.Set(context.Background(), domain.CollectionInvitations, slug, doc); err != nil {
		t.Fatalf("seed %s: %v", slug, err)
	}
}

func remoteGuest(t *testing.T, rs *flakyRemote, slug string) domain.Document {
	t.Helper()
	doc, err := rs.Store.Get(context.Background(), domain.CollectionInvitations, slug)
	if err != nil {
		t.Fatalf("remote get %s: %v", slug, err)
	}
	return doc.Object("guest")
}

// fixedClock returns a clock that advances by one second per call.
func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}
