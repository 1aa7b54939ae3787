// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate counts used by the admin
// summary and the sync gauges.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
)

// Stats returns the number of cached invitations and the number of pending
// and synced RSVP records.
//
// It executes three lightweight count queries. An empty store yields zeros.
func (s *SQLiteStore) Stats(ctx context.Context) (_ domain.StoreStats, err error) {
	ctx, span := s.span(ctx, "Stats")
	defer func() { endSpan(span, err) }()

	db, err := s.handle(ctx)
	if err != nil {
		return domain.StoreStats{}, err
	}
	st, err := countRecords(db)
	if err != nil {
		return domain.StoreStats{}, TxFailed("stats", err)
	}
	return st, nil
}

func countRecords(db *gorm.DB) (domain.StoreStats, error) {
	var st domain.StoreStats
	if err := db.Model(&domain.CachedInvitation{}).Count(&st.Invitations).Error; err != nil {
		return st, err
	}
	if err := db.Model(&domain.PendingRSVP{}).Where("synced = ?", false).Count(&st.PendingRSVPs).Error; err != nil {
		return st, err
	}
	if err := db.Model(&domain.PendingRSVP{}).Where("synced = ?", true).Count(&st.SyncedRSVPs).Error; err != nil {
		return st, err
	}
	return st, nil
}
