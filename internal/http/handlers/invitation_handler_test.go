package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/wedding-invite-backend/internal/domain"
	"github.com/tbourn/wedding-invite-backend/internal/services"
)

func loadOK(source string) func(context.Context, string) (*services.LoadResult, error) {
	return func(_ context.Context, slug string) (*services.LoadResult, error) {
		return &services.LoadResult{
			Invitation: domain.CachedInvitation{
				Slug:        slug,
				GuestName:   "Dara Okafor",
				Guest:       domain.GuestState{Status: domain.GuestStatusPending},
				LastUpdated: 1700000000000,
			},
			WeddingDate: "2026-06-20",
			Source:      source,
		}, nil
	}
}

func TestGetInvitation_OK_ETag_And_NotModified(t *testing.T) {
	r := newRouter(New(stubInvSvc{load: loadOK(services.SourceCache)}, nil, nil))

	w := do(r, http.MethodGet, "/invitations/dara", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Data-Source") != "cache" {
		t.Fatalf("X-Data-Source = %q", w.Header().Get("X-Data-Source"))
	}
	etag := w.Header().Get("ETag")
	if etag != `W/"inv:dara:1700000000000:cache"` {
		t.Fatalf("ETag = %q", etag)
	}
	var res services.LoadResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("json: %v", err)
	}
	if res.Invitation.GuestName != "Dara Okafor" || res.WeddingDate != "2026-06-20" || res.Source != "cache" {
		t.Fatalf("unexpected body: %+v", res)
	}

	w = do(r, http.MethodGet, "/invitations/dara", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional status = %d", w.Code)
	}
}

func TestGetInvitation_Errors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrInvalidSlug, http.StatusBadRequest, ErrCodeInvalidSlug},
		{services.ErrInvitationNotFound, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tc := range cases {
		err := tc.err
		r := newRouter(New(stubInvSvc{load: func(context.Context, string) (*services.LoadResult, error) {
			return nil, err
		}}, nil, nil))
		w := do(r, http.MethodGet, "/invitations/x", nil, nil)
		if w.Code != tc.status {
			t.Fatalf("%v: status = %d", err, w.Code)
		}
		if er := decodeErr(t, w); er.Code != tc.code {
			t.Fatalf("%v: code = %q", err, er.Code)
		}
	}
}

func TestSubmitRSVP_StatusBySyncOutcome(t *testing.T) {
	var got services.RSVPRequest
	synced := true
	r := newRouter(New(nil, stubRSVPSvc{submit: func(_ context.Context, req services.RSVPRequest) (*services.RSVPResult, error) {
		got = req
		return &services.RSVPResult{
			RSVP:   domain.PendingRSVP{ID: 7, Slug: req.Slug, Attending: req.Attending, Synced: synced},
			Synced: synced,
		}, nil
	}}, nil))

	w := do(r, http.MethodPost, "/invitations/dara/rsvp",
		map[string]any{"attending": false, "declineReason": "Travel conflict"},
		map[string]string{"Idempotency-Key": "key-1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("synced status = %d body=%s", w.Code, w.Body.String())
	}
	if got.Slug != "dara" || got.Attending || got.DeclineReason != "Travel conflict" || got.IdempotencyKey != "key-1" {
		t.Fatalf("service got %+v", got)
	}

	synced = false
	w = do(r, http.MethodPost, "/invitations/dara/rsvp", map[string]any{"attending": true}, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("queued status = %d", w.Code)
	}
	var res services.RSVPResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("json: %v", err)
	}
	if res.Synced || res.RSVP.ID != 7 || !res.RSVP.Attending {
		t.Fatalf("unexpected body: %+v", res)
	}
}

func TestSubmitRSVP_Replay(t *testing.T) {
	r := newRouter(New(nil, stubRSVPSvc{submit: func(_ context.Context, req services.RSVPRequest) (*services.RSVPResult, error) {
		return &services.RSVPResult{RSVP: domain.PendingRSVP{ID: 3, Slug: req.Slug}, Replayed: true}, nil
	}}, nil))

	w := do(r, http.MethodPost, "/invitations/dara/rsvp", map[string]any{"attending": true},
		map[string]string{"Idempotency-Key": "key-1"})
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("status = %d replayed header = %q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
}

func TestSubmitRSVP_BadInput(t *testing.T) {
	calls := 0
	r := newRouter(New(nil, stubRSVPSvc{submit: func(context.Context, services.RSVPRequest) (*services.RSVPResult, error) {
		calls++
		return nil, services.ErrInvalidRSVP
	}}, nil))

	for _, body := range []any{"{not json", map[string]any{"declineReason": "no flag"}} {
		w := do(r, http.MethodPost, "/invitations/dara/rsvp", body, nil)
		if w.Code != http.StatusBadRequest || decodeErr(t, w).Code != ErrCodeBadRequest {
			t.Fatalf("body %v: status = %d", body, w.Code)
		}
	}
	if calls != 0 {
		t.Fatalf("service called on invalid input")
	}

	w := do(r, http.MethodPost, "/invitations/dara/rsvp", map[string]any{"attending": false, "declineReason": "x"}, nil)
	if w.Code != http.StatusBadRequest || decodeErr(t, w).Code != ErrCodeInvalidRSVP {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestWeddingDate_GetAndPut(t *testing.T) {
	var stored string
	svc := stubInvSvc{
		date: func(context.Context, string) (string, error) { return "2026-06-20", nil },
		setDate: func(_ context.Context, _ string, date string) error {
			switch date {
			case "bad":
				return services.ErrInvalidDate
			case "2026-07-01":
				stored = date
				return services.ErrRemoteUnavailable
			}
			stored = date
			return nil
		},
	}
	r := newRouter(New(svc, nil, nil))

	w := do(r, http.MethodGet, "/invitations/dara/wedding-date", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"weddingDate":"2026-06-20"`) {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "synced") {
		t.Fatalf("get should omit synced: %s", w.Body.String())
	}

	w = do(r, http.MethodPut, "/invitations/dara/wedding-date", map[string]string{"weddingDate": " 2026-06-21 "}, nil)
	if w.Code != http.StatusOK || stored != "2026-06-21" || !strings.Contains(w.Body.String(), `"synced":true`) {
		t.Fatalf("put online: %d %s stored=%q", w.Code, w.Body.String(), stored)
	}

	w = do(r, http.MethodPut, "/invitations/dara/wedding-date", map[string]string{"weddingDate": "2026-07-01"}, nil)
	if w.Code != http.StatusAccepted || !strings.Contains(w.Body.String(), `"synced":false`) {
		t.Fatalf("put offline: %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPut, "/invitations/dara/wedding-date", map[string]string{"weddingDate": "bad"}, nil)
	if w.Code != http.StatusBadRequest || decodeErr(t, w).Code != ErrCodeInvalidDate {
		t.Fatalf("put invalid: %d", w.Code)
	}

	w = do(r, http.MethodPut, "/invitations/dara/wedding-date", map[string]string{}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("put missing: %d", w.Code)
	}
}

func TestInvitationEvents_StreamsInitialAndUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := make(chan struct{})
	svc := stubInvSvc{
		load: loadOK(services.SourceRemote),
		watch: func(_ context.Context, slug string, fn func(domain.CachedInvitation, bool)) (func(), error) {
			go func() {
				fn(domain.CachedInvitation{Slug: slug}, false)
				fn(domain.CachedInvitation{Slug: slug, GuestName: "Dara O."}, true)
				time.Sleep(50 * time.Millisecond)
				cancel()
			}()
			return func() { close(stopped) }, nil
		},
	}
	r := newRouter(New(svc, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/invitations/dara/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	select {
	case <-stopped:
	default:
		t.Fatalf("watch was not stopped")
	}
	body := w.Body.String()
	if n := strings.Count(body, "event:invitation"); n != 2 {
		t.Fatalf("invitation events = %d; body=%s", n, body)
	}
	if !strings.Contains(body, "Dara O.") {
		t.Fatalf("update missing: %s", body)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestInvitationEvents_SkipsSnapshotMatchingInitial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := stubInvSvc{
		load: loadOK(services.SourceRemote),
		watch: func(_ context.Context, slug string, fn func(domain.CachedInvitation, bool)) (func(), error) {
			go func() {
				same := domain.CachedInvitation{
					Slug:        slug,
					GuestName:   "Dara Okafor",
					Guest:       domain.GuestState{Status: domain.GuestStatusPending},
					LastUpdated: 1700000009999,
				}
				fn(same, true)
				time.Sleep(20 * time.Millisecond)
				fn(same, true)
				time.Sleep(50 * time.Millisecond)
				cancel()
			}()
			return func() {}, nil
		},
	}
	r := newRouter(New(svc, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/invitations/dara/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if n := strings.Count(w.Body.String(), "event:invitation"); n != 1 {
		t.Fatalf("invitation events = %d, want 1; body=%s", n, w.Body.String())
	}
}

func TestSameInvitation(t *testing.T) {
	a := domain.CachedInvitation{Slug: "dara", GuestName: "Dara", WeddingInfo: domain.Document{"venue": "Finca"}, Timestamp: 1}
	b := a
	b.Timestamp, b.LastUpdated = 2, 3
	if !sameInvitation(a, b) {
		t.Fatalf("timestamps alone must not count as a change")
	}
	b.WeddingInfo = domain.Document{"venue": "Castillo"}
	if sameInvitation(a, b) {
		t.Fatalf("wedding info change not detected")
	}
}

func TestInvitationEvents_NotFound(t *testing.T) {
	r := newRouter(New(stubInvSvc{load: func(context.Context, string) (*services.LoadResult, error) {
		return nil, services.ErrInvitationNotFound
	}}, nil, nil))
	w := do(r, http.MethodGet, "/invitations/ghost/events", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}
