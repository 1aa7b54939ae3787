// Package repo implements the data persistence layer for domain entities.
// This file provides idempotency helpers for RSVP submissions, stored in the
// settings collection so they work with any LocalInvitationStore.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
)

// ErrDuplicate indicates that a live idempotency record already exists for
// the given (slug, key) pair.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns the live record for (slug, key) at now, or
// ErrNotFound. A stored record for another pair is not a match.
func GetIdempotency(ctx context.Context, st LocalInvitationStore, slug, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(slug) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	found, err := st.GetSetting(ctx, domain.IdempotencyKey(slug, key), &rec)
	if err != nil {
		return nil, err
	}
	if !found || !rec.Matches(slug, key) || rec.Expired(now.UnixMilli()) {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// CreateIdempotency records that key produced rsvpID for slug at now, valid
// for ttl. It returns ErrDuplicate when a live record already exists; an
// expired one is replaced.
func CreateIdempotency(ctx context.Context, st LocalInvitationStore, slug, key string, rsvpID uint64, now time.Time, ttl time.Duration) (*domain.Idempotency, error) {
	if _, err := GetIdempotency(ctx, st, slug, key, now); err == nil {
		return nil, ErrDuplicate
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	rec := &domain.Idempotency{
		Slug:      slug,
		Key:       key,
		RSVPID:    rsvpID,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}
	if err := st.PutSetting(ctx, domain.IdempotencyKey(slug, key), rec); err != nil {
		return nil, err
	}
	return rec, nil
}
