package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
	"github.com/tbourn/wedding-invite-backend/internal/search"
	"github.com/tbourn/wedding-invite-backend/internal/services"
)

// ---------- stubs ----------

type stubInvSvc struct {
	load    func(context.Context, string) (*services.LoadResult, error)
	watch   func(context.Context, string, func(domain.CachedInvitation, bool)) (func(), error)
	date    func(context.Context, string) (string, error)
	setDate func(context.Context, string, string) error
}

func (s stubInvSvc) Load(ctx context.Context, slug string) (*services.LoadResult, error) {
	return s.load(ctx, slug)
}

func (s stubInvSvc) Watch(ctx context.Context, slug string, fn func(domain.CachedInvitation, bool)) (func(), error) {
	if s.watch == nil {
		return func() {}, nil
	}
	return s.watch(ctx, slug, fn)
}

func (s stubInvSvc) WeddingDate(ctx context.Context, slug string) (string, error) {
	return s.date(ctx, slug)
}

func (s stubInvSvc) SetWeddingDate(ctx context.Context, slug, date string) error {
	return s.setDate(ctx, slug, date)
}

type stubRSVPSvc struct {
	submit  func(context.Context, services.RSVPRequest) (*services.RSVPResult, error)
	pending func(context.Context) ([]domain.PendingRSVP, error)
	flush   func(context.Context) (services.FlushResult, error)
}

func (s stubRSVPSvc) SubmitRSVP(ctx context.Context, req services.RSVPRequest) (*services.RSVPResult, error) {
	return s.submit(ctx, req)
}

func (s stubRSVPSvc) Pending(ctx context.Context) ([]domain.PendingRSVP, error) {
	return s.pending(ctx)
}

func (s stubRSVPSvc) Flush(ctx context.Context) (services.FlushResult, error) {
	return s.flush(ctx)
}

type stubAdminSvc struct {
	upsert  func(context.Context, string, services.ClientRecord) (bool, error)
	list    func(context.Context, int, int) ([]services.ClientSummary, int64, error)
	search  func(context.Context, string, int) ([]search.Result, error)
	summary func(context.Context) (*services.Summary, error)
	imp     func(context.Context, []services.ImportRecord) (*services.ImportResult, error)
}

func (s stubAdminSvc) Upsert(ctx context.Context, slug string, rec services.ClientRecord) (bool, error) {
	return s.upsert(ctx, slug, rec)
}

func (s stubAdminSvc) List(ctx context.Context, page, pageSize int) ([]services.ClientSummary, int64, error) {
	return s.list(ctx, page, pageSize)
}

func (s stubAdminSvc) Search(ctx context.Context, q string, k int) ([]search.Result, error) {
	return s.search(ctx, q, k)
}

func (s stubAdminSvc) Summary(ctx context.Context) (*services.Summary, error) {
	return s.summary(ctx)
}

func (s stubAdminSvc) Import(ctx context.Context, recs []services.ImportRecord) (*services.ImportResult, error) {
	return s.imp(ctx, recs)
}

// ---------- helpers ----------

func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Header("X-Request-ID", "rid-test")
		c.Next()
	})
	r.GET("/invitations/:slug", h.GetInvitation)
	r.POST("/invitations/:slug/rsvp", h.SubmitRSVP)
	r.GET("/invitations/:slug/wedding-date", h.GetWeddingDate)
	r.PUT("/invitations/:slug/wedding-date", h.PutWeddingDate)
	r.GET("/invitations/:slug/events", h.InvitationEvents)
	r.GET("/sync/pending", h.ListPending)
	r.POST("/sync/flush", h.FlushPending)
	r.GET("/admin/invitations", h.ListInvitations)
	r.PUT("/admin/invitations/:slug", h.UpsertInvitation)
	r.GET("/admin/invitations/search", h.SearchInvitations)
	r.GET("/admin/summary", h.Summary)
	r.POST("/admin/import", h.ImportInvitations)
	return r
}

func do(r http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	if er.RequestID != "rid-test" {
		t.Fatalf("request_id = %q", er.RequestID)
	}
	return er
}
