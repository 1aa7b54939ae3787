// Package repotest holds the behavioral contract every
// repo.LocalInvitationStore implementation must satisfy. Backend packages run
// it from their own tests.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
	"github.com/tbourn/wedding-invite-backend/internal/repo"
)

// Factory returns a new, not yet initialized store persisted at path.
type Factory func(t *testing.T, path string) repo.LocalInvitationStore

// RunStoreSuite runs the store contract against stores built by newStore.
func RunStoreSuite(t *testing.T, newStore Factory) {
	t.Helper()

	open := func(t *testing.T) repo.LocalInvitationStore {
		t.Helper()
		st := newStore(t, filepath.Join(t.TempDir(), "local.db"))
		require.NoError(t, st.Init(context.Background()))
		t.Cleanup(func() { _ = st.Close() })
		return st
	}

	t.Run("NotInitialized", func(t *testing.T) {
		st := newStore(t, filepath.Join(t.TempDir(), "local.db"))
		ctx := context.Background()

		assert.ErrorIs(t, st.CacheInvitation(ctx, invitation("a", "A")), repo.ErrNotInitialized)
		_, err := st.GetCachedInvitation(ctx, "a")
		assert.ErrorIs(t, err, repo.ErrNotInitialized)
		_, err = st.StorePendingRSVP(ctx, domain.PendingRSVP{Slug: "a", Attending: true})
		assert.ErrorIs(t, err, repo.ErrNotInitialized)
		_, err = st.GetPendingRSVPs(ctx)
		assert.ErrorIs(t, err, repo.ErrNotInitialized)
		assert.ErrorIs(t, st.MarkRSVPSynced(ctx, 1), repo.ErrNotInitialized)
		assert.ErrorIs(t, st.UpdateLocalGuestStatus(ctx, "a", domain.GuestStatusConfirmed, true, nil), repo.ErrNotInitialized)
		assert.ErrorIs(t, st.StoreWeddingDate(ctx, "a", "2024-06-12"), repo.ErrNotInitialized)
		_, _, err = st.GetWeddingDate(ctx, "a")
		assert.ErrorIs(t, err, repo.ErrNotInitialized)
		_, err = st.Stats(ctx)
		assert.ErrorIs(t, err, repo.ErrNotInitialized)
		assert.False(t, errors.Is(err, repo.ErrTransactionFailed), "not-initialized must not look like an engine failure")
	})

	t.Run("InitIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)
		require.NoError(t, st.Init(ctx))
		require.NoError(t, st.Init(ctx))

		v, err := st.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, repo.SchemaVersion, v)
	})

	t.Run("ReopenKeepsData", func(t *testing.T) {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "local.db")

		st := newStore(t, path)
		require.NoError(t, st.Init(ctx))
		require.NoError(t, st.CacheInvitation(ctx, invitation("keep", "Keep")))
		r, err := st.StorePendingRSVP(ctx, domain.PendingRSVP{Slug: "keep", Attending: true, Timestamp: 5})
		require.NoError(t, err)
		require.NoError(t, st.Close())

		st = newStore(t, path)
		require.NoError(t, st.Init(ctx))
		t.Cleanup(func() { _ = st.Close() })

		v, err := st.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, repo.SchemaVersion, v)

		got, err := st.GetCachedInvitation(ctx, "keep")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Keep", got.GuestName)

		pending, err := st.GetPendingRSVPs(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, r.ID, pending[0].ID)

		next, err := st.StorePendingRSVP(ctx, domain.PendingRSVP{Slug: "keep", Attending: false, Timestamp: 6})
		require.NoError(t, err)
		assert.Greater(t, next.ID, r.ID, "ids must keep increasing across reopen")
	})

	t.Run("UpsertReplacesWholeRecord", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		r1 := invitation("s1", "First")
		r1.WeddingInfo = domain.Document{"venue": "Hall", "city": "Phnom Penh"}
		r1.Guest.Extra = map[string]any{"table": "4"}
		require.NoError(t, st.CacheInvitation(ctx, r1))

		r2 := invitation("s1", "Second")
		r2.WeddingInfo = domain.Document{"venue": "Garden"}
		r2.Timestamp, r2.LastUpdated = 2000, 2000
		require.NoError(t, st.CacheInvitation(ctx, r2))

		got, err := st.GetCachedInvitation(ctx, "s1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, r2, *got)

		stats, err := st.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, stats.Invitations)
	})

	t.Run("RSVPsAreInsertOnly", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		const n = 5
		seen := map[uint64]bool{}
		for i := 0; i < n; i++ {
			r, err := st.StorePendingRSVP(ctx, domain.PendingRSVP{
				ID:        999, // ignored
				Slug:      "dup",
				Attending: i%2 == 0,
				Timestamp: int64(1000 + i),
				Synced:    true, // forced false
			})
			require.NoError(t, err)
			assert.NotZero(t, r.ID)
			assert.False(t, r.Synced)
			assert.False(t, seen[r.ID], "duplicate id %d", r.ID)
			seen[r.ID] = true
		}

		pending, err := st.GetPendingRSVPs(ctx)
		require.NoError(t, err)
		require.Len(t, pending, n)
		for i := 1; i < len(pending); i++ {
			assert.Less(t, pending[i-1].ID, pending[i].ID, "pending rsvps must be ordered by id")
		}
		for _, p := range pending {
			assert.False(t, p.Synced)
			assert.Equal(t, "dup", p.Slug)
		}
	})

	t.Run("DefaultsMissingTimestamp", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		r, err := st.StorePendingRSVP(ctx, domain.PendingRSVP{Slug: "ts", Attending: true})
		require.NoError(t, err)
		assert.NotZero(t, r.Timestamp)
	})

	t.Run("SyncIsMonotonic", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		a, err := st.StorePendingRSVP(ctx, domain.PendingRSVP{Slug: "m", Attending: true, Timestamp: 1})
		require.NoError(t, err)
		b, err := st.StorePendingRSVP(ctx, domain.PendingRSVP{Slug: "m", Attending: false, Timestamp: 2})
		require.NoError(t, err)

		require.NoError(t, st.MarkRSVPSynced(ctx, a.ID))
		require.NoError(t, st.MarkRSVPSynced(ctx, a.ID), "second mark must be a no-op")
		require.NoError(t, st.MarkRSVPSynced(ctx, 424242), "unknown id must be a no-op")

		pending, err := st.GetPendingRSVPs(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, b.ID, pending[0].ID)

		all, err := st.ListPendingRSVPsBySlug(ctx, "m")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, a.ID, all[0].ID)
		assert.True(t, all[0].Synced)
		assert.False(t, all[1].Synced)
		assert.Equal(t, a.Timestamp, all[0].Timestamp, "marking must not alter other fields")
		assert.Equal(t, a.Attending, all[0].Attending)

		stats, err := st.Stats(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, stats.PendingRSVPs)
		assert.EqualValues(t, 1, stats.SyncedRSVPs)
	})

	t.Run("ListBySlugIsolatesSlugs", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		for _, slug := range []string{"ab", "a", "abc", "a", "b"} {
			_, err := st.StorePendingRSVP(ctx, domain.PendingRSVP{Slug: slug, Attending: true, Timestamp: 1})
			require.NoError(t, err)
		}
		got, err := st.ListPendingRSVPsBySlug(ctx, "a")
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, r := range got {
			assert.Equal(t, "a", r.Slug)
		}

		none, err := st.ListPendingRSVPsBySlug(ctx, "zzz")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("MissingKeysReadAsAbsent", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		inv, err := st.GetCachedInvitation(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, inv)

		date, found, err := st.GetWeddingDate(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, date)

		var v map[string]any
		found, err = st.GetSetting(ctx, "nope", &v)
		require.NoError(t, err)
		assert.False(t, found)

		pending, err := st.GetPendingRSVPs(ctx)
		require.NoError(t, err)
		assert.NotNil(t, pending)
		assert.Empty(t, pending)
	})

	t.Run("GuestUpdateSoftFails", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		require.NoError(t, st.UpdateLocalGuestStatus(ctx, "nonexistent", domain.GuestStatusConfirmed, true, nil))

		inv, err := st.GetCachedInvitation(ctx, "nonexistent")
		require.NoError(t, err)
		assert.Nil(t, inv)
		stats, err := st.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.Invitations)
	})

	t.Run("GuestUpdateMutatesOnlyGuest", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		base := invitation("g", "Guest")
		base.WeddingInfo = domain.Document{"venue": "Hall"}
		base.Guest.Extra = map[string]any{"plusOne": "Sam"}
		require.NoError(t, st.CacheInvitation(ctx, base))

		require.NoError(t, st.UpdateLocalGuestStatus(ctx, "g", domain.GuestStatusConfirmed, true, nil))

		got, err := st.GetCachedInvitation(ctx, "g")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, domain.GuestStatusConfirmed, got.Guest.Status)
		require.NotNil(t, got.Guest.Attending)
		assert.True(t, *got.Guest.Attending)
		assert.Empty(t, got.Guest.DeclineReason)
		assert.Equal(t, "Sam", got.Guest.Extra["plusOne"])
		assert.Equal(t, base.WeddingInfo, got.WeddingInfo)
		assert.Equal(t, base.GuestName, got.GuestName)
		assert.Equal(t, base.Timestamp, got.Timestamp)
		assert.Greater(t, got.LastUpdated, base.LastUpdated)
	})

	t.Run("WeddingDateRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		require.NoError(t, st.StoreWeddingDate(ctx, "s", "2024-06-12"))
		date, found, err := st.GetWeddingDate(ctx, "s")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "2024-06-12", date)

		require.NoError(t, st.StoreWeddingDate(ctx, "s", "2024-07-01"))
		date, _, err = st.GetWeddingDate(ctx, "s")
		require.NoError(t, err)
		assert.Equal(t, "2024-07-01", date)

		_, found, err = st.GetWeddingDate(ctx, "other")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("SettingsHoldStructuredValues", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		type prefs struct {
			Lang  string   `json:"lang"`
			Seats []string `json:"seats"`
		}
		in := prefs{Lang: "km", Seats: []string{"A1", "A2"}}
		require.NoError(t, st.PutSetting(ctx, "prefs_s", in))

		var out prefs
		found, err := st.GetSetting(ctx, "prefs_s", &out)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, in, out)

		found, err = st.GetSetting(ctx, "prefs_s", nil)
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("ConcurrentInsertsGetDistinctIDs", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)

		const workers = 16
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			ids  = map[uint64]bool{}
			errs []error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r, err := st.StorePendingRSVP(ctx, domain.PendingRSVP{
					Slug: fmt.Sprintf("c%d", i%3), Attending: true, Timestamp: int64(i + 1),
				})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				ids[r.ID] = true
			}(i)
		}
		wg.Wait()
		require.Empty(t, errs)
		assert.Len(t, ids, workers)

		pending, err := st.GetPendingRSVPs(ctx)
		require.NoError(t, err)
		assert.Len(t, pending, workers)
	})

	t.Run("EndToEndScenario", func(t *testing.T) {
		ctx := context.Background()
		st := open(t)
		const T = int64(1_700_000_000_000)
		reason := "travel conflict"

		rec, err := st.StorePendingRSVP(ctx, domain.PendingRSVP{
			Slug: "nuid19", Attending: false, DeclineReason: &reason, Timestamp: T,
		})
		require.NoError(t, err)
		require.NotZero(t, rec.ID)

		pending, err := st.GetPendingRSVPs(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, rec.ID, pending[0].ID)
		assert.Equal(t, "nuid19", pending[0].Slug)
		assert.False(t, pending[0].Attending)
		require.NotNil(t, pending[0].DeclineReason)
		assert.Equal(t, reason, *pending[0].DeclineReason)

		require.NoError(t, st.MarkRSVPSynced(ctx, rec.ID))
		pending, err = st.GetPendingRSVPs(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)

		inv := domain.CachedInvitation{
			Slug:        "nuid19",
			GuestName:   "Dara",
			WeddingInfo: domain.Document{"groom": "Sok", "bride": "Chan"},
			Guest:       domain.GuestState{Status: domain.GuestStatusPending},
			Timestamp:   T,
			LastUpdated: T,
		}
		require.NoError(t, st.CacheInvitation(ctx, inv))
		require.NoError(t, st.UpdateLocalGuestStatus(ctx, "nuid19", domain.GuestStatusDeclined, false, &reason))

		got, err := st.GetCachedInvitation(ctx, "nuid19")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, domain.GuestStatusDeclined, got.Guest.Status)
		assert.Equal(t, reason, got.Guest.DeclineReason)
		require.NotNil(t, got.Guest.Attending)
		assert.False(t, *got.Guest.Attending)
	})
}

func invitation(slug, name string) domain.CachedInvitation {
	return domain.CachedInvitation{
		Slug:        slug,
		GuestName:   name,
		Guest:       domain.GuestState{Status: domain.GuestStatusPending},
		Timestamp:   1000,
		LastUpdated: 1000,
	}
}
