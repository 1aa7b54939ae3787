// Package services – InvitationService
//
// This file implements the guest-facing read path. Invitations are read from
// the remote document store and written through to the local cache, which is
// served instead whenever the remote store cannot be reached. RSVPs still in
// the local outbox take precedence over the remote guest state so a guest
// sees their own decision before it has synced.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
	"github.com/tbourn/wedding-invite-backend/internal/remote"
)

// Invitation sources reported by Load.
const (
	SourceRemote = "remote"
	SourceCache  = "cache"
)

// LoadResult is an invitation as served to a guest.
type LoadResult struct {
	Invitation  domain.CachedInvitation `json:"invitation"`
	WeddingDate string                  `json:"weddingDate,omitempty"`
	Source      string                  `json:"source"`
}

// InvitationService serves invitations with an offline fallback.
type InvitationService struct {
	Local  LocalStore
	Remote RemoteStore
	// Timeout bounds remote reads. Zero disables the bound.
	Timeout time.Duration

	now func() time.Time
}

// NewInvitationService constructs an InvitationService.
func NewInvitationService(local LocalStore, rs RemoteStore, timeout time.Duration) *InvitationService {
	return &InvitationService{Local: local, Remote: rs, Timeout: timeout, now: time.Now}
}

func (s *InvitationService) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Load returns the invitation for slug, preferring the remote store.
func (s *InvitationService) Load(ctx context.Context, slug string) (*LoadResult, error) {
	tr := otel.Tracer("services/InvitationService")
	ctx, span := tr.Start(ctx, "InvitationService.Load", trace.WithAttributes(attribute.String("slug", slug)))
	defer span.End()

	slug, err := normalizeSlug(slug)
	if err != nil {
		return nil, err
	}

	rctx, cancel := withTimeout(ctx, s.Timeout)
	doc, rerr := s.Remote.Get(rctx, domain.CollectionInvitations, slug)
	cancel()

	if rerr == nil {
		inv, date, err := s.hydrate(ctx, slug, doc)
		if err != nil {
			return nil, err
		}
		span.SetAttributes(attribute.String("source", SourceRemote))
		return &LoadResult{Invitation: inv, WeddingDate: date, Source: SourceRemote}, nil
	}
	if errors.Is(rerr, remote.ErrNotFound) {
		return nil, ErrInvitationNotFound
	}

	log.Ctx(ctx).Warn().Err(rerr).Str("slug", slug).Msg("remote invitation read failed; using cache")
	cached, err := s.Local.GetCachedInvitation(ctx, slug)
	if err != nil {
		return nil, err
	}
	if cached == nil {
		return nil, ErrInvitationNotFound
	}
	date, _, err := s.Local.GetWeddingDate(ctx, slug)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("source", SourceCache))
	return &LoadResult{Invitation: *cached, WeddingDate: date, Source: SourceCache}, nil
}

// hydrate writes a remote document through to the local cache and returns
// the cached form.
func (s *InvitationService) hydrate(ctx context.Context, slug string, doc domain.Document) (domain.CachedInvitation, string, error) {
	inv, date, err := invitationFromDocument(slug, doc)
	if err != nil {
		return domain.CachedInvitation{}, "", err
	}

	now := s.clock().UnixMilli()
	inv.Timestamp, inv.LastUpdated = now, now
	prev, err := s.Local.GetCachedInvitation(ctx, slug)
	if err != nil {
		return domain.CachedInvitation{}, "", err
	}
	if prev != nil {
		inv.Timestamp = prev.Timestamp
	}

	if err := s.overlayPending(ctx, &inv); err != nil {
		return domain.CachedInvitation{}, "", err
	}
	if err := s.Local.CacheInvitation(ctx, inv); err != nil {
		return domain.CachedInvitation{}, "", err
	}
	if date != "" {
		if err := s.Local.StoreWeddingDate(ctx, slug, date); err != nil {
			return domain.CachedInvitation{}, "", err
		}
	}
	return inv, date, nil
}

// overlayPending applies the newest unsynced RSVP for the slug, if any.
func (s *InvitationService) overlayPending(ctx context.Context, inv *domain.CachedInvitation) error {
	recs, err := s.Local.ListPendingRSVPsBySlug(ctx, inv.Slug)
	if err != nil {
		return err
	}
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		if r.Synced {
			continue
		}
		a := r.Attending
		inv.Guest.Status = domain.StatusFor(a)
		inv.Guest.Attending = &a
		inv.Guest.DeclineReason = ""
		if r.DeclineReason != nil {
			inv.Guest.DeclineReason = *r.DeclineReason
		}
		inv.Guest.RespondedAt = r.Timestamp
		return nil
	}
	return nil
}

// Watch refreshes the local cache whenever the remote invitation changes and
// calls fn with the refreshed record. Deletions are reported with
// exists=false and leave the cache untouched. Call the returned func to stop.
func (s *InvitationService) Watch(ctx context.Context, slug string, fn func(inv domain.CachedInvitation, exists bool)) (func(), error) {
	slug, err := normalizeSlug(slug)
	if err != nil {
		return nil, err
	}
	stop := s.Remote.OnSnapshot(ctx, domain.CollectionInvitations, slug, func(snap remote.Snapshot, err error) {
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("slug", slug).Msg("invitation snapshot")
			return
		}
		if !snap.Exists {
			fn(domain.CachedInvitation{Slug: slug}, false)
			return
		}
		inv, _, err := s.hydrate(ctx, slug, snap.Data)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("slug", slug).Msg("cache invitation snapshot")
			return
		}
		fn(inv, true)
	})
	return stop, nil
}

// WeddingDate returns the wedding date for slug, from the remote document
// when reachable and the cached setting otherwise.
func (s *InvitationService) WeddingDate(ctx context.Context, slug string) (string, error) {
	res, err := s.Load(ctx, slug)
	if err == nil && res.WeddingDate != "" {
		return res.WeddingDate, nil
	}
	if err != nil && !errors.Is(err, ErrInvitationNotFound) {
		return "", err
	}
	slug, _ = normalizeSlug(slug)
	date, found, err := s.Local.GetWeddingDate(ctx, slug)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrInvitationNotFound
	}
	return date, nil
}

// SetWeddingDate stores date on the remote document and in the local cache.
// When the remote store is unreachable only the cache is updated and
// ErrRemoteUnavailable is returned alongside.
func (s *InvitationService) SetWeddingDate(ctx context.Context, slug, date string) error {
	slug, err := normalizeSlug(slug)
	if err != nil {
		return err
	}
	date = strings.TrimSpace(date)
	if !validDate(date) {
		return ErrInvalidDate
	}

	rctx, cancel := withTimeout(ctx, s.Timeout)
	rerr := s.Remote.Update(rctx, domain.CollectionInvitations, slug, map[string]any{fieldWeddingDate: date})
	cancel()
	if errors.Is(rerr, remote.ErrNotFound) {
		return ErrInvitationNotFound
	}

	if err := s.Local.StoreWeddingDate(ctx, slug, date); err != nil {
		return err
	}
	if rerr != nil {
		log.Ctx(ctx).Warn().Err(rerr).Str("slug", slug).Msg("remote wedding date write failed")
		return ErrRemoteUnavailable
	}
	return nil
}
