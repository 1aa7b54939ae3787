// Sync HTTP handlers.
//
//   - GET  /sync/pending  (list queued RSVPs, oldest first)
//   - POST /sync/flush    (push queued RSVPs to the remote store now)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
)

// PendingResponse lists the RSVP outbox.
type PendingResponse struct {
	Count   int                  `json:"count"`
	Pending []domain.PendingRSVP `json:"pending"`
}

// ListPending godoc
// @ID          listPending
// @Summary     List queued RSVPs
// @Tags        Sync
// @Produce     json
// @Success     200  {object}  handlers.PendingResponse
// @Failure     503  {object}  handlers.ErrorResponse "Local storage unavailable"
// @Router      /sync/pending [get]
func (h *Handlers) ListPending(c *gin.Context) {
	pending, err := h.rsvp.Pending(c.Request.Context())
	if err != nil {
		serviceError(c, err, ErrCodeListFailed)
		return
	}
	if pending == nil {
		pending = []domain.PendingRSVP{}
	}
	ok(c, http.StatusOK, PendingResponse{Count: len(pending), Pending: pending})
}

// FlushPending godoc
// @ID          flushPending
// @Summary     Sync queued RSVPs now
// @Description Pushes every queued RSVP in submission order. Records that fail stay queued; later records of the same invitation are skipped until the next sweep.
// @Tags        Sync
// @Produce     json
// @Success     200  {object}  services.FlushResult
// @Failure     500  {object}  handlers.ErrorResponse "Sync failed"
// @Router      /sync/flush [post]
func (h *Handlers) FlushPending(c *gin.Context) {
	res, err := h.rsvp.Flush(c.Request.Context())
	if err != nil {
		serviceError(c, err, ErrCodeSyncFailed)
		return
	}
	ok(c, http.StatusOK, res)
}
