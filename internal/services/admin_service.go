// Package services – AdminService
//
// This file implements management of client (invitation) records in the
// remote document store: create/update, paginated listing, guest search,
// status summary and bulk import. Guest names are normalized (Unicode NFC,
// collapsed whitespace) before they are stored.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
	"github.com/tbourn/wedding-invite-backend/internal/remote"
	"github.com/tbourn/wedding-invite-backend/internal/search"
)

// ClientRecord is the admin-editable part of an invitation document.
type ClientRecord struct {
	GuestName   string          `json:"guestName" yaml:"guestName"`
	WeddingDate string          `json:"weddingDate,omitempty" yaml:"weddingDate"`
	WeddingInfo domain.Document `json:"weddingInfo,omitempty" yaml:"weddingInfo"`
}

// ClientSummary is one row of the admin listing.
type ClientSummary struct {
	Slug        string             `json:"slug"`
	GuestName   string             `json:"guestName"`
	Status      domain.GuestStatus `json:"status"`
	WeddingDate string             `json:"weddingDate,omitempty"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// Summary aggregates guest statuses and local queue state.
type Summary struct {
	Total     int64             `json:"total"`
	Pending   int64             `json:"pending"`
	Confirmed int64             `json:"confirmed"`
	Declined  int64             `json:"declined"`
	Local     domain.StoreStats `json:"local"`
}

// ImportRecord is one entry of a bulk import.
type ImportRecord struct {
	Slug string `json:"slug" yaml:"slug"`
	ClientRecord `yaml:",inline"`
}

// ImportError reports a record that could not be imported.
type ImportError struct {
	Slug  string `json:"slug"`
	Error string `json:"error"`
}

// ImportResult summarizes a bulk import.
type ImportResult struct {
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Failed  []ImportError `json:"failed,omitempty"`
}

// AdminService manages client records.
type AdminService struct {
	Local  LocalStore
	Remote RemoteStore

	// NameMaxLen caps guest names by rune length.
	NameMaxLen int
	// IndexTTL is how long a built search index is reused.
	IndexTTL time.Duration
	// ScanPageSize is the page size used when walking the whole collection.
	ScanPageSize int

	mu    sync.Mutex
	idx   search.Index
	idxAt time.Time
	now   func() time.Time
}

// NewAdminService constructs an AdminService with defaults.
func NewAdminService(local LocalStore, rs RemoteStore) *AdminService {
	return &AdminService{
		Local:        local,
		Remote:       rs,
		NameMaxLen:   120,
		IndexTTL:     30 * time.Second,
		ScanPageSize: 200,
		now:          time.Now,
	}
}

func (s *AdminService) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Upsert creates or updates the client record for slug and reports whether
// it was created. A new record starts with guest status "pending"; updates
// never touch the guest state.
func (s *AdminService) Upsert(ctx context.Context, slug string, rec ClientRecord) (created bool, err error) {
	tr := otel.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, "AdminService.Upsert", trace.WithAttributes(attribute.String("slug", slug)))
	defer span.End()

	slug, err = normalizeSlug(slug)
	if err != nil {
		return false, err
	}
	rec.GuestName = normalizeName(rec.GuestName)
	if rec.GuestName == "" {
		return false, fmt.Errorf("%w: guest name is required", ErrInvalidRecord)
	}
	if s.NameMaxLen > 0 && utf8.RuneCountInString(rec.GuestName) > s.NameMaxLen {
		return false, fmt.Errorf("%w: guest name too long", ErrInvalidRecord)
	}
	rec.WeddingDate = strings.TrimSpace(rec.WeddingDate)
	if rec.WeddingDate != "" && !validDate(rec.WeddingDate) {
		return false, ErrInvalidDate
	}

	fields := map[string]any{fieldGuestName: rec.GuestName}
	if rec.WeddingInfo != nil {
		fields[fieldWeddingInfo] = map[string]any(rec.WeddingInfo)
	}
	if rec.WeddingDate != "" {
		fields[fieldWeddingDate] = rec.WeddingDate
	}

	err = s.Remote.Update(ctx, domain.CollectionInvitations, slug, fields)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		doc := domain.Document{
			fieldGuestName: rec.GuestName,
			fieldGuest:     map[string]any{"status": string(domain.GuestStatusPending)},
		}
		for k, v := range fields {
			doc[k] = v
		}
		if err := s.Remote.Set(ctx, domain.CollectionInvitations, slug, doc); err != nil {
			return false, remoteErr(err)
		}
		created = true
	case err != nil:
		return false, remoteErr(err)
	}
	span.SetAttributes(attribute.Bool("created", created))
	s.invalidate()
	return created, nil
}

// List returns a page of client records ordered by slug.
func (s *AdminService) List(ctx context.Context, page, pageSize int) ([]ClientSummary, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	snaps, total, err := s.Remote.List(ctx, domain.CollectionInvitations, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, remoteErr(err)
	}
	out := make([]ClientSummary, 0, len(snaps))
	for _, sn := range snaps {
		out = append(out, summarize(sn))
	}
	return out, total, nil
}

// Search returns up to k records whose guest name or slug matches q.
func (s *AdminService) Search(ctx context.Context, q string, k int) ([]search.Result, error) {
	idx, err := s.index(ctx)
	if err != nil {
		return nil, err
	}
	res := idx.TopK(q, k)
	if res == nil {
		res = []search.Result{}
	}
	return res, nil
}

// Summary counts records by guest status and adds local store counts.
func (s *AdminService) Summary(ctx context.Context) (*Summary, error) {
	var sum Summary
	err := s.scan(ctx, func(sn remote.Snapshot) {
		sum.Total++
		switch summarize(sn).Status {
		case domain.GuestStatusConfirmed:
			sum.Confirmed++
		case domain.GuestStatusDeclined:
			sum.Declined++
		default:
			sum.Pending++
		}
	})
	if err != nil {
		return nil, err
	}
	st, err := s.Local.Stats(ctx)
	if err != nil {
		return nil, err
	}
	sum.Local = st
	return &sum, nil
}

// Import upserts every record. Failures are collected, not fatal; only an
// unreachable remote store aborts the import.
func (s *AdminService) Import(ctx context.Context, recs []ImportRecord) (*ImportResult, error) {
	res := &ImportResult{}
	for _, r := range recs {
		created, err := s.Upsert(ctx, r.Slug, r.ClientRecord)
		switch {
		case errors.Is(err, ErrRemoteUnavailable):
			return res, err
		case err != nil:
			res.Failed = append(res.Failed, ImportError{Slug: r.Slug, Error: err.Error()})
		case created:
			res.Created++
		default:
			res.Updated++
		}
	}
	return res, nil
}

// index returns the cached search index, rebuilding it when stale.
func (s *AdminService) index(ctx context.Context) (search.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx != nil && s.clock().Sub(s.idxAt) < s.IndexTTL {
		return s.idx, nil
	}
	var entries []search.Entry
	err := s.scan(ctx, func(sn remote.Snapshot) {
		entries = append(entries, search.Entry{Slug: sn.ID, GuestName: sn.Data.String(fieldGuestName)})
	})
	if err != nil {
		return nil, err
	}
	s.idx, s.idxAt = search.NewIndex(entries), s.clock()
	return s.idx, nil
}

func (s *AdminService) invalidate() {
	s.mu.Lock()
	s.idx = nil
	s.mu.Unlock()
}

// scan walks the whole invitations collection page by page.
func (s *AdminService) scan(ctx context.Context, fn func(remote.Snapshot)) error {
	size := s.ScanPageSize
	if size <= 0 {
		size = 200
	}
	for offset := 0; ; offset += size {
		snaps, total, err := s.Remote.List(ctx, domain.CollectionInvitations, offset, size)
		if err != nil {
			return remoteErr(err)
		}
		for _, sn := range snaps {
			fn(sn)
		}
		if len(snaps) < size || int64(offset+len(snaps)) >= total {
			return nil
		}
	}
}

func summarize(sn remote.Snapshot) ClientSummary {
	status := domain.GuestStatus(sn.Data.Object(fieldGuest).String("status"))
	if status == "" {
		status = domain.GuestStatusPending
	}
	_, date, _ := invitationFromDocument(sn.ID, sn.Data)
	return ClientSummary{
		Slug:        sn.ID,
		GuestName:   sn.Data.String(fieldGuestName),
		Status:      status,
		WeddingDate: date,
		UpdatedAt:   sn.UpdatedAt,
	}
}

// remoteErr maps remote failures to ErrRemoteUnavailable, keeping the cause.
func remoteErr(err error) error {
	if err == nil || errors.Is(err, remote.ErrNotFound) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
}

// normalizeName applies NFC, trims, and collapses whitespace.
func normalizeName(s string) string {
	s = norm.NFC.String(s)
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
