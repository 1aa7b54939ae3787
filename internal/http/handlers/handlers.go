// Package handlers wires HTTP endpoints to the application services.
//
// Handlers are transport-thin: they validate input, call a service and
// translate the result, or the service error, into an HTTP response.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
	"github.com/tbourn/wedding-invite-backend/internal/search"
	"github.com/tbourn/wedding-invite-backend/internal/services"
	"github.com/tbourn/wedding-invite-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// InvitationService serves invitations to guests.
type InvitationService interface {
	Load(ctx context.Context, slug string) (*services.LoadResult, error)
	Watch(ctx context.Context, slug string, fn func(inv domain.CachedInvitation, exists bool)) (func(), error)
	WeddingDate(ctx context.Context, slug string) (string, error)
	SetWeddingDate(ctx context.Context, slug, date string) error
}

// RSVPService records RSVPs and drives the outbox.
type RSVPService interface {
	SubmitRSVP(ctx context.Context, req services.RSVPRequest) (*services.RSVPResult, error)
	Pending(ctx context.Context) ([]domain.PendingRSVP, error)
	Flush(ctx context.Context) (services.FlushResult, error)
}

// AdminService manages client records.
type AdminService interface {
	Upsert(ctx context.Context, slug string, rec services.ClientRecord) (bool, error)
	List(ctx context.Context, page, pageSize int) ([]services.ClientSummary, int64, error)
	Search(ctx context.Context, q string, k int) ([]search.Result, error)
	Summary(ctx context.Context) (*services.Summary, error)
	Import(ctx context.Context, recs []services.ImportRecord) (*services.ImportResult, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. Admin may be nil when the admin API
// is disabled.
type Handlers struct {
	inv   InvitationService
	rsvp  RSVPService
	admin AdminService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(inv InvitationService, rsvp RSVPService, admin AdminService) *Handlers {
	return &Handlers{inv: inv, rsvp: rsvp, admin: admin}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses page and page_size, applying defaults and caps.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.Clamp(utils.AtoiDefault(c.Query("page"), defaultPage), 1, 0)
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return page, pageSize
}
