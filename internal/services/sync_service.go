// Package services – SyncCoordinator
//
// This file implements the RSVP write-back path. A submission is always
// recorded in the local outbox first and mirrored onto the cached invitation,
// then pushed to the remote document store. When the remote store is
// unreachable the record stays pending and is retried by Flush, either on
// demand or from the Run loop.
//
// Ordering: records are pushed in id order, and a slug whose older record
// failed is skipped for the rest of the sweep, so the newest decision per
// slug is always the last one written remotely.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
	"github.com/tbourn/wedding-invite-backend/internal/remote"
	"github.com/tbourn/wedding-invite-backend/internal/repo"
)

var (
	// rsvpSyncAttempts counts remote RSVP writes by outcome.
	rsvpSyncAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsvp_sync_attempts_total",
			Help: "Remote RSVP write attempts by result (synced, failed, not_found).",
		},
		[]string{"result"},
	)

	// rsvpPending gauges unsynced RSVP records after the last sweep.
	rsvpPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rsvp_pending",
			Help: "Number of RSVP records waiting for remote sync.",
		},
	)
)

func init() {
	prometheus.MustRegister(rsvpSyncAttempts, rsvpPending)
}

const (
	resultSynced   = "synced"
	resultFailed   = "failed"
	resultNotFound = "not_found"
)

// RSVPRequest is an attendance decision submitted by a guest.
type RSVPRequest struct {
	Slug          string
	Attending     bool
	DeclineReason string
	// IdempotencyKey, when set, makes retries of the same submission return
	// the originally queued record.
	IdempotencyKey string
}

// RSVPResult reports what happened to a submission.
type RSVPResult struct {
	RSVP     domain.PendingRSVP `json:"rsvp"`
	Synced   bool               `json:"synced"`
	Replayed bool               `json:"replayed"`
}

// FlushResult summarizes one sweep over the outbox.
type FlushResult struct {
	Attempted int `json:"attempted"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// SyncCoordinator reconciles the local RSVP outbox with the remote store.
type SyncCoordinator struct {
	Local  LocalStore
	Remote RemoteStore

	// Timeout bounds each remote call. Zero disables the bound.
	Timeout time.Duration
	// IdempotencyTTL is how long an Idempotency-Key stays replayable.
	IdempotencyTTL time.Duration
	// MaxReasonLen caps decline reasons by rune length.
	MaxReasonLen int

	// mu serializes remote pushes so per-slug order holds across Flush and
	// SubmitRSVP.
	mu  sync.Mutex
	now func() time.Time
}

// NewSyncCoordinator constructs a SyncCoordinator with defaults.
func NewSyncCoordinator(local LocalStore, rs RemoteStore, timeout time.Duration) *SyncCoordinator {
	return &SyncCoordinator{
		Local:          local,
		Remote:         rs,
		Timeout:        timeout,
		IdempotencyTTL: 24 * time.Hour,
		MaxReasonLen:   500,
		now:            time.Now,
	}
}

func (s *SyncCoordinator) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// SubmitRSVP records the decision locally, mirrors it onto the cached
// invitation and tries to push it. A remote failure is not an error: the
// result reports Synced=false and the record stays queued.
func (s *SyncCoordinator) SubmitRSVP(ctx context.Context, req RSVPRequest) (*RSVPResult, error) {
	tr := otel.Tracer("services/SyncCoordinator")
	ctx, span := tr.Start(ctx, "SyncCoordinator.SubmitRSVP",
		trace.WithAttributes(
			attribute.String("slug", req.Slug),
			attribute.Bool("attending", req.Attending),
			attribute.Bool("idempotent", req.IdempotencyKey != ""),
		))
	defer span.End()

	slug, err := normalizeSlug(req.Slug)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.DeclineReason)
	if req.Attending {
		reason = ""
	}
	if s.MaxReasonLen > 0 && utf8.RuneCountInString(reason) > s.MaxReasonLen {
		return nil, ErrInvalidRSVP
	}

	if req.IdempotencyKey != "" {
		if res, err := s.replay(ctx, slug, req.IdempotencyKey); err != nil || res != nil {
			return res, err
		}
	}

	if err := s.ensureKnown(ctx, slug); err != nil {
		return nil, err
	}

	rec := domain.PendingRSVP{
		Slug:      slug,
		Attending: req.Attending,
		Timestamp: s.clock().UnixMilli(),
	}
	if reason != "" {
		rec.DeclineReason = &reason
	}
	rec, err = s.Local.StorePendingRSVP(ctx, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store rsvp")
		return nil, err
	}
	span.SetAttributes(attribute.Int64("rsvp.id", int64(rec.ID)))

	if req.IdempotencyKey != "" {
		if _, err := repo.CreateIdempotency(ctx, s.Local, slug, req.IdempotencyKey, rec.ID, s.clock(), s.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			log.Ctx(ctx).Warn().Err(err).Str("slug", slug).Msg("idempotency record not saved")
		}
	}

	// The RSVP is already queued; a stale cached status must not fail the
	// submission. Clear any stale reason when the guest now attends.
	if err := s.Local.UpdateLocalGuestStatus(ctx, slug, domain.StatusFor(rec.Attending), rec.Attending, &reason); err != nil {
		span.RecordError(err)
		log.Ctx(ctx).Warn().Err(err).Str("slug", slug).Uint64("rsvp_id", rec.ID).Msg("cached guest status not updated")
	}

	synced := s.flushSlug(ctx, slug, rec.ID)
	span.SetAttributes(attribute.Bool("synced", synced))
	return &RSVPResult{RSVP: markSynced(rec, synced), Synced: synced}, nil
}

// IdempotencyExists reports whether key already produced an RSVP for slug.
// It matches the HTTP idempotency middleware lookup signature.
func (s *SyncCoordinator) IdempotencyExists(ctx context.Context, slug, key string, now time.Time) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.Local, slug, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// replay returns the record an earlier submission with key produced, or nil
// when key is new.
func (s *SyncCoordinator) replay(ctx context.Context, slug, key string) (*RSVPResult, error) {
	idem, err := repo.GetIdempotency(ctx, s.Local, slug, key, s.clock())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	recs, err := s.Local.ListPendingRSVPsBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.ID == idem.RSVPID {
			return &RSVPResult{RSVP: r, Synced: r.Synced, Replayed: true}, nil
		}
	}
	// The record is gone; treat the key as new.
	return nil, nil
}

// ensureKnown rejects slugs that the remote store positively reports as
// missing. Offline submissions for uncached slugs are accepted.
func (s *SyncCoordinator) ensureKnown(ctx context.Context, slug string) error {
	cached, err := s.Local.GetCachedInvitation(ctx, slug)
	if err != nil {
		return err
	}
	if cached != nil {
		return nil
	}
	rctx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()
	_, err = s.Remote.Get(rctx, domain.CollectionInvitations, slug)
	if errors.Is(err, remote.ErrNotFound) {
		return ErrInvitationNotFound
	}
	return nil
}

// Pending returns the unsynced outbox, oldest first.
func (s *SyncCoordinator) Pending(ctx context.Context) ([]domain.PendingRSVP, error) {
	return s.Local.GetPendingRSVPs(ctx)
}

// Flush pushes every unsynced record in id order.
func (s *SyncCoordinator) Flush(ctx context.Context) (FlushResult, error) {
	tr := otel.Tracer("services/SyncCoordinator")
	ctx, span := tr.Start(ctx, "SyncCoordinator.Flush")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.Local.GetPendingRSVPs(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load pending")
		return FlushResult{}, err
	}

	var res FlushResult
	blocked := map[string]bool{}
	for _, r := range pending {
		if ctx.Err() != nil {
			break
		}
		if blocked[r.Slug] {
			res.Skipped++
			continue
		}
		res.Attempted++
		if s.push(ctx, r) {
			res.Synced++
		} else {
			res.Failed++
			blocked[r.Slug] = true
		}
	}
	rsvpPending.Set(float64(len(pending) - res.Synced))

	span.SetAttributes(
		attribute.Int("rsvp.attempted", res.Attempted),
		attribute.Int("rsvp.synced", res.Synced),
		attribute.Int("rsvp.failed", res.Failed),
	)
	if res.Attempted > 0 {
		log.Ctx(ctx).Info().
			Int("attempted", res.Attempted).
			Int("synced", res.Synced).
			Int("failed", res.Failed).
			Int("skipped", res.Skipped).
			Msg("rsvp flush")
	}
	return res, ctx.Err()
}

// flushSlug pushes the pending records of slug in id order and reports
// whether the record with id upTo ended up synced.
func (s *SyncCoordinator) flushSlug(ctx context.Context, slug string, upTo uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.Local.ListPendingRSVPsBySlug(ctx, slug)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("slug", slug).Msg("list pending rsvps")
		return false
	}
	for _, r := range recs {
		if r.Synced || r.ID > upTo {
			continue
		}
		if !s.push(ctx, r) {
			return false
		}
		if r.ID == upTo {
			return true
		}
	}
	return false
}

// push writes r to the remote invitation document and marks it synced.
func (s *SyncCoordinator) push(ctx context.Context, r domain.PendingRSVP) bool {
	reason := ""
	if !r.Attending && r.DeclineReason != nil {
		reason = *r.DeclineReason
	}
	fields := map[string]any{
		fieldGuest + ".status":        string(domain.StatusFor(r.Attending)),
		fieldGuest + ".attending":     r.Attending,
		fieldGuest + ".declineReason": reason,
		fieldGuest + ".respondedAt":   r.Timestamp,
	}

	rctx, cancel := withTimeout(ctx, s.Timeout)
	err := s.Remote.Update(rctx, domain.CollectionInvitations, r.Slug, fields)
	cancel()

	lg := log.Ctx(ctx).With().Str("slug", r.Slug).Uint64("rsvp_id", r.ID).Logger()
	switch {
	case errors.Is(err, remote.ErrNotFound):
		rsvpSyncAttempts.WithLabelValues(resultNotFound).Inc()
		lg.Error().Msg("rsvp target invitation missing remotely; left pending")
		return false
	case err != nil:
		rsvpSyncAttempts.WithLabelValues(resultFailed).Inc()
		lg.Warn().Err(err).Msg("rsvp remote write failed; left pending")
		return false
	}

	if err := s.Local.MarkRSVPSynced(ctx, r.ID); err != nil {
		// The remote write landed; the next sweep rewrites the same values.
		rsvpSyncAttempts.WithLabelValues(resultFailed).Inc()
		lg.Warn().Err(err).Msg("mark rsvp synced")
		return false
	}
	rsvpSyncAttempts.WithLabelValues(resultSynced).Inc()
	return true
}

// Run flushes the outbox every interval until ctx is cancelled.
func (s *SyncCoordinator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := s.Flush(ctx); err != nil && ctx.Err() == nil {
			log.Ctx(ctx).Warn().Err(err).Msg("rsvp flush")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func markSynced(r domain.PendingRSVP, synced bool) domain.PendingRSVP {
	r.Synced = synced
	return r
}
