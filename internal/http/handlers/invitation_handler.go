// Invitation HTTP handlers.
//
// Guest-facing endpoints:
//   - GET  /invitations/{slug}               (load, remote first, cache fallback)
//   - POST /invitations/{slug}/rsvp          (submit an attendance decision)
//   - GET  /invitations/{slug}/wedding-date  (read the wedding date)
//   - PUT  /invitations/{slug}/wedding-date  (set the wedding date)
//   - GET  /invitations/{slug}/events        (server-sent invitation updates)
//
// Idempotency:
// When a POST carries an Idempotency-Key that already produced an RSVP, the
// originally queued record is returned with `Idempotency-Replayed: true`.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
	"github.com/tbourn/wedding-invite-backend/internal/http/middleware"
	"github.com/tbourn/wedding-invite-backend/internal/services"
)

// eventsHeartbeat keeps idle event streams alive through proxies.
var eventsHeartbeat = 15 * time.Second

//
// DTOs
//

// RSVPRequest is the JSON payload for an attendance decision.
type RSVPRequest struct {
	// Attending is required; false declines the invitation.
	Attending *bool `json:"attending" binding:"required" example:"false"`
	// DeclineReason is optional and ignored when attending.
	DeclineReason string `json:"declineReason" example:"Travel conflict"`
}

// WeddingDateRequest is the JSON payload for setting the wedding date.
type WeddingDateRequest struct {
	WeddingDate string `json:"weddingDate" binding:"required" example:"2026-06-20"`
}

// WeddingDateResponse reports the wedding date and whether it reached the
// remote store.
type WeddingDateResponse struct {
	WeddingDate string `json:"weddingDate" example:"2026-06-20"`
	Synced      *bool  `json:"synced,omitempty"`
}

//
// Handlers
//

// GetInvitation godoc
// @ID          getInvitation
// @Summary     Load an invitation
// @Description Returns the invitation for a slug. The remote store is tried first; when it is unreachable the locally cached copy is served and `X-Data-Source: cache` is set. Supports weak ETag via If-None-Match.
// @Tags        Invitations
// @Produce     json
//
// @Param       slug           path    string  true   "Invitation slug"  example(dara-okafor)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
//
// @Success     200  {object}  services.LoadResult
// @Header      200  {string}  ETag           "Weak ETag for the served record"
// @Header      200  {string}  X-Data-Source  "remote or cache"
// @Success     304  {string}  string "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse "Invalid slug"
// @Failure     404  {object}  handlers.ErrorResponse "Invitation not found"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /invitations/{slug} [get]
func (h *Handlers) GetInvitation(c *gin.Context) {
	res, err := h.inv.Load(c.Request.Context(), c.Param("slug"))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}

	etag := fmt.Sprintf(`W/"inv:%s:%d:%s"`, res.Invitation.Slug, res.Invitation.LastUpdated, res.Source)
	c.Header("ETag", etag)
	c.Header("X-Data-Source", res.Source)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}
	ok(c, http.StatusOK, res)
}

// SubmitRSVP godoc
// @ID          submitRSVP
// @Summary     Submit an RSVP
// @Description Records the decision locally and pushes it to the remote store. Returns 201 when the remote write succeeded, 202 when the RSVP was queued for a later sync, and 200 for an idempotent replay.
// @Tags        Invitations
// @Accept      json
// @Produce     json
//
// @Param       slug             path    string                  true   "Invitation slug"  example(dara-okafor)
// @Param       Idempotency-Key  header  string                  false  "Replay-safe key"  example(2b6f0c7e-rsvp-1)
// @Param       body             body    handlers.RSVPRequest    true   "Decision"
//
// @Success     201  {object}  services.RSVPResult  "Synced"
// @Success     202  {object}  services.RSVPResult  "Queued"
// @Success     200  {object}  services.RSVPResult  "Replayed"
// @Header      200  {string}  Idempotency-Replayed  "true when replayed"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Invitation not found"
// @Failure     429  {object}  handlers.ErrorResponse "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /invitations/{slug}/rsvp [post]
func (h *Handlers) SubmitRSVP(c *gin.Context) {
	var req RSVPRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Attending == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "attending (bool) is required")
		return
	}

	key, found := middleware.GetIdempotencyKey(c)
	if !found {
		key = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}

	res, err := h.rsvp.SubmitRSVP(c.Request.Context(), services.RSVPRequest{
		Slug:           c.Param("slug"),
		Attending:      *req.Attending,
		DeclineReason:  req.DeclineReason,
		IdempotencyKey: key,
	})
	if err != nil {
		serviceError(c, err, ErrCodeRSVPFailed)
		return
	}

	switch {
	case res.Replayed:
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, res)
	case res.Synced:
		ok(c, http.StatusCreated, res)
	default:
		ok(c, http.StatusAccepted, res)
	}
}

// GetWeddingDate godoc
// @ID          getWeddingDate
// @Summary     Get the wedding date
// @Tags        Invitations
// @Produce     json
// @Param       slug  path  string  true  "Invitation slug"
// @Success     200  {object}  handlers.WeddingDateResponse
// @Failure     400  {object}  handlers.ErrorResponse "Invalid slug"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /invitations/{slug}/wedding-date [get]
func (h *Handlers) GetWeddingDate(c *gin.Context) {
	date, err := h.inv.WeddingDate(c.Request.Context(), c.Param("slug"))
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, WeddingDateResponse{WeddingDate: date})
}

// PutWeddingDate godoc
// @ID          putWeddingDate
// @Summary     Set the wedding date
// @Description Writes the date to the remote document and the local cache. When the remote store is unreachable the cache is still updated and 202 is returned with synced=false.
// @Tags        Invitations
// @Accept      json
// @Produce     json
// @Param       slug  path  string                       true  "Invitation slug"
// @Param       body  body  handlers.WeddingDateRequest  true  "Date as YYYY-MM-DD"
// @Success     200  {object}  handlers.WeddingDateResponse
// @Success     202  {object}  handlers.WeddingDateResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /invitations/{slug}/wedding-date [put]
func (h *Handlers) PutWeddingDate(c *gin.Context) {
	var req WeddingDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "weddingDate is required")
		return
	}
	date := strings.TrimSpace(req.WeddingDate)

	err := h.inv.SetWeddingDate(c.Request.Context(), c.Param("slug"), date)
	synced := err == nil
	switch {
	case err == nil:
		ok(c, http.StatusOK, WeddingDateResponse{WeddingDate: date, Synced: &synced})
	case errors.Is(err, services.ErrRemoteUnavailable):
		ok(c, http.StatusAccepted, WeddingDateResponse{WeddingDate: date, Synced: &synced})
	default:
		serviceError(c, err, ErrCodeInternal)
	}
}

// InvitationEvents godoc
// @ID          invitationEvents
// @Summary     Stream invitation updates
// @Description Server-sent events. The current invitation is sent first as an `invitation` event, then again whenever the remote document changes.
// @Tags        Invitations
// @Produce     text/event-stream
// @Param       slug  path  string  true  "Invitation slug"
// @Success     200  {object}  domain.CachedInvitation
// @Failure     400  {object}  handlers.ErrorResponse "Invalid slug"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /invitations/{slug}/events [get]
func (h *Handlers) InvitationEvents(c *gin.Context) {
	ctx := c.Request.Context()
	slug := c.Param("slug")

	res, err := h.inv.Load(ctx, slug)
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}

	// Single producer: dropping the stale value never blocks the poller.
	updates := make(chan domain.CachedInvitation, 1)
	stop, err := h.inv.Watch(ctx, slug, func(inv domain.CachedInvitation, exists bool) {
		if !exists {
			return
		}
		select {
		case <-updates:
		default:
		}
		updates <- inv
	})
	if err != nil {
		serviceError(c, err, ErrCodeInternal)
		return
	}
	defer stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	last := res.Invitation
	c.SSEvent("invitation", last)
	c.Writer.Flush()

	heartbeat := time.NewTicker(eventsHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case inv := <-updates:
			// The watcher's first snapshot usually repeats what Load returned.
			if sameInvitation(last, inv) {
				continue
			}
			last = inv
			c.SSEvent("invitation", inv)
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
		}
		c.Writer.Flush()
	}
}

// sameInvitation compares invitation content, ignoring the cache timestamps.
func sameInvitation(a, b domain.CachedInvitation) bool {
	return a.Slug == b.Slug &&
		a.GuestName == b.GuestName &&
		reflect.DeepEqual(a.WeddingInfo, b.WeddingInfo) &&
		reflect.DeepEqual(a.Guest, b.Guest)
}
