package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
)

func newAdmin(t *testing.T) (*AdminService, *flakyRemote) {
	t.Helper()
	rs := newRemote(t)
	s := NewAdminService(newLocal(t), rs)
	s.now = fixedClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	return s, rs
}

func TestAdminUpsert_CreateThenUpdate(t *testing.T) {
	s, rs := newAdmin(t)
	ctx := context.Background()

	created, err := s.Upsert(ctx, "Nora", ClientRecord{
		GuestName:   "  Jose\u0301   Nora ",
		WeddingDate: "2026-09-12",
		WeddingInfo: domain.Document{"venue": "Harbour Hall"},
	})
	if err != nil || !created {
		t.Fatalf("create: created=%v err=%v", created, err)
	}

	doc, err := rs.Store.Get(ctx, domain.CollectionInvitations, "nora")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.String("guestName") != "Jos\u00e9 Nora" {
		t.Fatalf("guestName = %q", doc.String("guestName"))
	}
	if doc.Object("guest").String("status") != "pending" || doc.String("weddingDate") != "2026-09-12" {
		t.Fatalf("doc = %v", doc)
	}

	// Guest state survives an update.
	if err := rs.Store.Update(ctx, domain.CollectionInvitations, "nora", map[string]any{"guest.status": "confirmed"}); err != nil {
		t.Fatalf("rsvp: %v", err)
	}
	created, err = s.Upsert(ctx, "nora", ClientRecord{GuestName: "Nora B"})
	if err != nil || created {
		t.Fatalf("update: created=%v err=%v", created, err)
	}
	doc, _ = rs.Store.Get(ctx, domain.CollectionInvitations, "nora")
	if doc.String("guestName") != "Nora B" || doc.Object("guest").String("status") != "confirmed" {
		t.Fatalf("doc after update = %v", doc)
	}
	if doc.Object("weddingInfo").String("venue") != "Harbour Hall" {
		t.Fatalf("weddingInfo dropped: %v", doc)
	}
}

func TestAdminUpsert_Validation(t *testing.T) {
	s, _ := newAdmin(t)
	ctx := context.Background()

	cases := []struct {
		name string
		slug string
		rec  ClientRecord
		want error
	}{
		{"bad slug", "no spaces", ClientRecord{GuestName: "A"}, ErrInvalidSlug},
		{"blank name", "a1", ClientRecord{GuestName: " \t "}, ErrInvalidRecord},
		{"long name", "a2", ClientRecord{GuestName: strings.Repeat("x", 121)}, ErrInvalidRecord},
		{"bad date", "a3", ClientRecord{GuestName: "A", WeddingDate: "12/09/2026"}, ErrInvalidDate},
	}
	for _, tc := range cases {
		if _, err := s.Upsert(ctx, tc.slug, tc.rec); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestAdminUpsert_RemoteDown(t *testing.T) {
	s, rs := newAdmin(t)
	rs.setDown(true)
	if _, err := s.Upsert(context.Background(), "olga", ClientRecord{GuestName: "Olga"}); !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
}

func TestAdminList_Pagination(t *testing.T) {
	s, _ := newAdmin(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		if _, err := s.Upsert(ctx, fmt.Sprintf("guest-%d", i), ClientRecord{GuestName: fmt.Sprintf("Guest %d", i)}); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	page, total, err := s.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("total=%d len=%d", total, len(page))
	}
	if page[0].Slug != "guest-3" || page[1].Slug != "guest-4" {
		t.Fatalf("page = %+v", page)
	}
	if page[0].Status != domain.GuestStatusPending {
		t.Fatalf("status = %q", page[0].Status)
	}

	// Out-of-range inputs are clamped.
	page, _, err = s.List(ctx, 0, 0)
	if err != nil || len(page) != 5 {
		t.Fatalf("defaults: len=%d err=%v", len(page), err)
	}
}

func TestAdminSearch_RebuildsAfterUpsert(t *testing.T) {
	s, _ := newAdmin(t)
	ctx := context.Background()
	s.ScanPageSize = 2

	for slug, name := range map[string]string{
		"zoe":   "Zoë Papadopoulou",
		"peter": "Peter Parker",
		"petra": "Petra Novak",
	} {
		if _, err := s.Upsert(ctx, slug, ClientRecord{GuestName: name}); err != nil {
			t.Fatalf("upsert %s: %v", slug, err)
		}
	}

	res, err := s.Search(ctx, "zoe", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) == 0 || res[0].Slug != "zoe" {
		t.Fatalf("zoe: %+v", res)
	}

	if _, err := s.Upsert(ctx, "quinn", ClientRecord{GuestName: "Quinn Zoellner"}); err != nil {
		t.Fatalf("upsert quinn: %v", err)
	}
	res, err = s.Search(ctx, "quinn", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) == 0 || res[0].Slug != "quinn" {
		t.Fatalf("index not rebuilt: %+v", res)
	}

	res, err = s.Search(ctx, "nobody-matches-this", 5)
	if err != nil || res == nil || len(res) != 0 {
		t.Fatalf("empty search: %v %v", res, err)
	}
}

func TestAdminSummary(t *testing.T) {
	s, rs := newAdmin(t)
	ctx := context.Background()
	for _, slug := range []string{"r1", "r2", "r3", "r4"} {
		if _, err := s.Upsert(ctx, slug, ClientRecord{GuestName: strings.ToUpper(slug)}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	_ = rs.Store.Update(ctx, domain.CollectionInvitations, "r1", map[string]any{"guest.status": "confirmed"})
	_ = rs.Store.Update(ctx, domain.CollectionInvitations, "r2", map[string]any{"guest.status": "declined"})

	if _, err := s.Local.StorePendingRSVP(ctx, domain.PendingRSVP{Slug: "r3", Attending: true}); err != nil {
		t.Fatalf("store rsvp: %v", err)
	}

	sum, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Total != 4 || sum.Confirmed != 1 || sum.Declined != 1 || sum.Pending != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Local.PendingRSVPs != 1 {
		t.Fatalf("local stats = %+v", sum.Local)
	}
}

func TestAdminImport_CollectsFailures(t *testing.T) {
	s, rs := newAdmin(t)
	ctx := context.Background()
	if _, err := s.Upsert(ctx, "old", ClientRecord{GuestName: "Old"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := s.Import(ctx, []ImportRecord{
		{Slug: "old", ClientRecord: ClientRecord{GuestName: "Old Updated"}},
		{Slug: "new", ClientRecord: ClientRecord{GuestName: "New"}},
		{Slug: "BAD SLUG", ClientRecord: ClientRecord{GuestName: "X"}},
		{Slug: "noname"},
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Created != 1 || res.Updated != 1 || len(res.Failed) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Failed[0].Slug != "BAD SLUG" || res.Failed[1].Slug != "noname" {
		t.Fatalf("failed = %+v", res.Failed)
	}

	rs.setDown(true)
	if _, err := s.Import(ctx, []ImportRecord{{Slug: "late", ClientRecord: ClientRecord{GuestName: "Late"}}}); !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
}

func TestNormalizeName(t *testing.T) {
	if got := normalizeName("  Ana\n\tMaría  "); got != "Ana María" {
		t.Fatalf("normalizeName = %q", got)
	}
}
