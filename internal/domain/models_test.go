package domain

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestTableNames(t *testing.T) {
	if (CachedInvitation{}).TableName() != "invitations" {
		t.Fatalf("CachedInvitation.TableName() = %q; want %q", (CachedInvitation{}).TableName(), "invitations")
	}
	if (PendingRSVP{}).TableName() != "rsvps" {
		t.Fatalf("PendingRSVP.TableName() = %q; want %q", (PendingRSVP{}).TableName(), "rsvps")
	}
	if (Setting{}).TableName() != "settings" {
		t.Fatalf("Setting.TableName() = %q; want %q", (Setting{}).TableName(), "settings")
	}
}

func TestWeddingDateKey(t *testing.T) {
	if got := WeddingDateKey("bob-and-eve"); got != "weddingDate_bob-and-eve" {
		t.Fatalf("WeddingDateKey = %q", got)
	}
}

func TestMillis(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	if got, want := Millis(ts), ts.UnixNano()/int64(time.Millisecond); got != want {
		t.Fatalf("Millis = %d; want %d", got, want)
	}
}

func TestMigrations_Indexes_AndRoundTrip(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&CachedInvitation{}, &PendingRSVP{}, &Setting{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&CachedInvitation{}, &PendingRSVP{}, &Setting{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&PendingRSVP{}, "idx_rsvps_slug") {
		t.Fatalf("expected index idx_rsvps_slug on rsvps")
	}
	if !m.HasIndex(&PendingRSVP{}, "idx_rsvps_synced") {
		t.Fatalf("expected index idx_rsvps_synced on rsvps")
	}

	att := true
	inv := &CachedInvitation{
		Slug:        "alice",
		GuestName:   "Alice",
		WeddingInfo: Document{"venue": "Hall", "date": "2025-06-01"},
		Guest: GuestState{
			Status:    GuestStatusConfirmed,
			Attending: &att,
			Extra:     map[string]any{"table": "7"},
		},
		Timestamp:   100,
		LastUpdated: 200,
	}
	if err := db.Create(inv).Error; err != nil {
		t.Fatalf("insert invitation: %v", err)
	}
	var got CachedInvitation
	if err := db.First(&got, "slug = ?", "alice").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if !reflect.DeepEqual(got.WeddingInfo, inv.WeddingInfo) {
		t.Fatalf("weddingInfo = %#v; want %#v", got.WeddingInfo, inv.WeddingInfo)
	}
	if got.Guest.Status != GuestStatusConfirmed || got.Guest.Attending == nil || !*got.Guest.Attending {
		t.Fatalf("guest = %+v", got.Guest)
	}
	if got.Guest.Extra["table"] != "7" {
		t.Fatalf("extra not preserved: %+v", got.Guest.Extra)
	}

	// Auto-increment ids are assigned in insertion order.
	r1 := &PendingRSVP{Slug: "alice", Attending: true, Timestamp: 1}
	r2 := &PendingRSVP{Slug: "alice", Attending: false, Timestamp: 2}
	if err := db.Create(r1).Error; err != nil {
		t.Fatalf("insert r1: %v", err)
	}
	if err := db.Create(r2).Error; err != nil {
		t.Fatalf("insert r2: %v", err)
	}
	if r1.ID == 0 || r2.ID <= r1.ID {
		t.Fatalf("ids not increasing: %d, %d", r1.ID, r2.ID)
	}

	s := &Setting{Key: WeddingDateKey("alice"), Value: datatypes.JSON(`"2025-06-01"`), Timestamp: 1}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("insert setting: %v", err)
	}
	var gs Setting
	if err := db.First(&gs, "key = ?", WeddingDateKey("alice")).Error; err != nil {
		t.Fatalf("readback setting: %v", err)
	}
	var date string
	if err := json.Unmarshal(gs.Value, &date); err != nil || date != "2025-06-01" {
		t.Fatalf("setting value = %s (%v)", gs.Value, err)
	}
}
