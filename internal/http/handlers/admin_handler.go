// Admin HTTP handlers, mounted behind basic auth.
//
//   - GET /admin/invitations          (paginated client records)
//   - PUT /admin/invitations/{slug}   (create or update a client record)
//   - GET /admin/invitations/search   (fuzzy search by guest name or slug)
//   - GET /admin/summary              (RSVP counts and local queue stats)
//   - POST /admin/import              (bulk upsert)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/wedding-invite-backend/internal/search"
	"github.com/tbourn/wedding-invite-backend/internal/services"
	"github.com/tbourn/wedding-invite-backend/internal/utils"
)

const (
	defaultSearchK = 10
	maxSearchK     = 50
	maxImportSize  = 1000
)

// ListInvitationsResponse wraps a page of client records.
type ListInvitationsResponse struct {
	Invitations []services.ClientSummary `json:"invitations"`
	Pagination  Pagination               `json:"pagination"`
}

// UpsertInvitationResponse reports the outcome of an upsert.
type UpsertInvitationResponse struct {
	Slug    string `json:"slug" example:"dara-okafor"`
	Created bool   `json:"created"`
}

// SearchResponse holds ranked search hits.
type SearchResponse struct {
	Results []search.Result `json:"results"`
}

// ListInvitations godoc
// @ID          adminListInvitations
// @Summary     List client records (paginated)
// @Tags        Admin
// @Produce     json
// @Security    BasicAuth
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListInvitationsResponse
// @Failure     401  {string}  string "Unauthorized"
// @Failure     503  {object}  handlers.ErrorResponse "Remote store unavailable"
// @Router      /admin/invitations [get]
func (h *Handlers) ListInvitations(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.admin.List(c.Request.Context(), page, pageSize)
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	if items == nil {
		items = []services.ClientSummary{}
	}
	ok(c, http.StatusOK, ListInvitationsResponse{
		Invitations: items,
		Pagination:  newPagination(page, pageSize, total),
	})
}

// UpsertInvitation godoc
// @ID          adminUpsertInvitation
// @Summary     Create or update a client record
// @Description Creates the invitation document with a pending guest status, or merges the given fields into an existing one. The guest RSVP state is never overwritten.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BasicAuth
// @Param       slug  path  string                 true  "Invitation slug"  example(dara-okafor)
// @Param       body  body  services.ClientRecord  true  "Client record"
// @Success     201  {object}  handlers.UpsertInvitationResponse "Created"
// @Success     200  {object}  handlers.UpsertInvitationResponse "Updated"
// @Failure     400  {object}  handlers.ErrorResponse "Invalid record"
// @Failure     503  {object}  handlers.ErrorResponse "Remote store unavailable"
// @Router      /admin/invitations/{slug} [put]
func (h *Handlers) UpsertInvitation(c *gin.Context) {
	var rec services.ClientRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	slug := c.Param("slug")
	created, err := h.admin.Upsert(c.Request.Context(), slug, rec)
	if err != nil {
		serviceError(c, err, ErrCodeUpsertFailed)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, UpsertInvitationResponse{Slug: strings.ToLower(strings.TrimSpace(slug)), Created: created})
}

// SearchInvitations godoc
// @ID          adminSearchInvitations
// @Summary     Search client records
// @Description Accent-insensitive token search over guest names and slugs.
// @Tags        Admin
// @Produce     json
// @Security    BasicAuth
// @Param       q  query  string  true   "Query"  example(jose)
// @Param       k  query  int     false  "Max results"  minimum(1) maximum(50) default(10)
// @Success     200  {object}  handlers.SearchResponse
// @Failure     400  {object}  handlers.ErrorResponse "Missing query"
// @Router      /admin/invitations/search [get]
func (h *Handlers) SearchInvitations(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q is required")
		return
	}
	k := utils.Clamp(utils.AtoiDefault(c.Query("k"), defaultSearchK), 1, maxSearchK)
	res, err := h.admin.Search(c.Request.Context(), q, k)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, SearchResponse{Results: res})
}

// Summary godoc
// @ID          adminSummary
// @Summary     RSVP summary
// @Tags        Admin
// @Produce     json
// @Security    BasicAuth
// @Success     200  {object}  services.Summary
// @Failure     503  {object}  handlers.ErrorResponse "Remote store unavailable"
// @Router      /admin/summary [get]
func (h *Handlers) Summary(c *gin.Context) {
	sum, err := h.admin.Summary(c.Request.Context())
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, sum)
}

// ImportInvitations godoc
// @ID          adminImport
// @Summary     Bulk import client records
// @Description Upserts each record. Invalid records are reported in `failed`; the import stops early only when the remote store becomes unreachable.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BasicAuth
// @Param       body  body  []services.ImportRecord  true  "Records"
// @Success     200  {object}  services.ImportResult
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse "Remote store unavailable"
// @Router      /admin/import [post]
func (h *Handlers) ImportInvitations(c *gin.Context) {
	var recs []services.ImportRecord
	if err := c.ShouldBindJSON(&recs); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must be a JSON array of records")
		return
	}
	if len(recs) == 0 || len(recs) > maxImportSize {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "between 1 and 1000 records required")
		return
	}
	res, err := h.admin.Import(c.Request.Context(), recs)
	if err != nil {
		serviceError(c, err, ErrCodeUpsertFailed)
		return
	}
	ok(c, http.StatusOK, res)
}
