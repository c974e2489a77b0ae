package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crowdbeat/cache"
	"crowdbeat/config"
	"crowdbeat/core/bridge"
	"crowdbeat/model"

	"github.com/gorilla/mux"
)

// memEventRepo is an in-memory EventRepository for handler tests.
type memEventRepo struct {
	events map[int64]*model.Event
	nextID int64
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{events: make(map[int64]*model.Event), nextID: 1}
}

func (r *memEventRepo) Create(ctx context.Context, event *model.Event) error {
	event.ID = r.nextID
	r.nextID++
	event.CreatedAt = time.Now()
	r.events[event.ID] = event
	return nil
}

func (r *memEventRepo) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	return r.events[id], nil
}

func (r *memEventRepo) GetByAccessCode(ctx context.Context, code string) (*model.Event, error) {
	for _, ev := range r.events {
		if ev.AccessCode == code && ev.Status == model.EventStatusActive {
			return ev, nil
		}
	}
	return nil, nil
}

func (r *memEventRepo) ListByOwner(ctx context.Context, ownerID int64) ([]*model.Event, error) {
	var out []*model.Event
	for _, ev := range r.events {
		if ev.OwnerID == ownerID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *memEventRepo) ListEvents(ctx context.Context) ([]*model.Event, error) {
	var out []*model.Event
	for _, ev := range r.events {
		out = append(out, ev)
	}
	return out, nil
}

func (r *memEventRepo) Update(ctx context.Context, event *model.Event) error {
	r.events[event.ID] = event
	return nil
}

func (r *memEventRepo) Close(ctx context.Context, id int64) error {
	if ev, ok := r.events[id]; ok {
		ev.Status = model.EventStatusClosed
	}
	return nil
}

// memRequestRepo is an in-memory SongRequestRepository for handler tests.
type memRequestRepo struct {
	requests map[int64]*model.SongRequest
	nextID   int64
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{requests: make(map[int64]*model.SongRequest), nextID: 1}
}

func (r *memRequestRepo) Create(ctx context.Context, req *model.SongRequest) error {
	req.ID = r.nextID
	r.nextID++
	req.CreatedAt = time.Now()
	r.requests[req.ID] = req
	return nil
}

func (r *memRequestRepo) GetByID(ctx context.Context, id int64) (*model.SongRequest, error) {
	return r.requests[id], nil
}

func (r *memRequestRepo) ListByEvent(ctx context.Context, eventID int64) ([]*model.SongRequest, error) {
	var out []*model.SongRequest
	for _, req := range r.requests {
		if req.EventID == eventID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *memRequestRepo) ListByStatus(ctx context.Context, eventID int64, status string) ([]*model.SongRequest, error) {
	var out []*model.SongRequest
	for _, req := range r.requests {
		if req.EventID == eventID && req.Status == status {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *memRequestRepo) UpdateStatus(ctx context.Context, id int64, status string) (*model.SongRequest, error) {
	req, ok := r.requests[id]
	if !ok {
		return nil, nil
	}
	req.Status = status
	if status == model.RequestStatusPlayed {
		now := time.Now()
		req.PlayedTime = &now
	}
	return req, nil
}

func (r *memRequestRepo) CountByStatus(ctx context.Context, eventID int64, status string) (int64, error) {
	reqs, _ := r.ListByStatus(ctx, eventID, status)
	return int64(len(reqs)), nil
}

func newTestHandler(t *testing.T) (*APIHandler, *memEventRepo, *memRequestRepo) {
	t.Helper()
	events := newMemEventRepo()
	requests := newMemRequestRepo()
	b := bridge.New(events, requests)
	h := NewAPIHandler(
		nil,
		events,
		requests,
		cache.NewSessionCache(nil),
		cache.NewEventCache(nil),
		b,
		nil,
		&config.Config{JWTSecret: "test-secret", SessionTTLHours: 1},
	)
	return h, events, requests
}

func TestGetEventByCode(t *testing.T) {
	h, events, _ := newTestHandler(t)
	events.Create(context.Background(), &model.Event{
		Name:       "Club Night",
		AccessCode: "ABCD2345",
		Status:     model.EventStatusActive,
		OwnerID:    1,
	})

	r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/code/ABCD2345", nil),
		map[string]string{"code": "ABCD2345"})
	w := httptest.NewRecorder()
	h.GetEventByCodeHandler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp["name"] != "Club Night" {
		t.Errorf("name = %v, want Club Night", resp["name"])
	}
	if _, leaked := resp["ownerId"]; leaked {
		t.Error("attendee view leaked ownerId")
	}
}

func TestGetEventByCodeUnknown(t *testing.T) {
	h, _, _ := newTestHandler(t)

	r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/code/NOPE2345", nil),
		map[string]string{"code": "NOPE2345"})
	w := httptest.NewRecorder()
	h.GetEventByCodeHandler(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestCreateFreeRequest(t *testing.T) {
	h, events, requests := newTestHandler(t)
	events.Create(context.Background(), &model.Event{
		Name:              "Club Night",
		AccessCode:        "ABCD2345",
		Status:            model.EventStatusActive,
		AllowFreeRequests: true,
	})

	body := bytes.NewBufferString(`{"songName":"One More Time","artistName":"Daft Punk","requesterName":"Ana"}`)
	r := mux.SetURLVars(httptest.NewRequest(http.MethodPost, "/api/code/ABCD2345/requests", body),
		map[string]string{"code": "ABCD2345"})
	w := httptest.NewRecorder()
	h.CreateRequestHandler(w, r)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	created, _ := requests.GetByID(context.Background(), 1)
	if created == nil {
		t.Fatal("request not persisted")
	}
	if created.Status != model.RequestStatusPending {
		t.Errorf("status = %q, want pending", created.Status)
	}
	if created.SongName != "One More Time" {
		t.Errorf("songName = %q", created.SongName)
	}
}

func TestCreateRequestRequiresSongName(t *testing.T) {
	h, events, _ := newTestHandler(t)
	events.Create(context.Background(), &model.Event{
		AccessCode: "ABCD2345",
		Status:     model.EventStatusActive,
	})

	body := bytes.NewBufferString(`{"artistName":"Daft Punk"}`)
	r := mux.SetURLVars(httptest.NewRequest(http.MethodPost, "/api/code/ABCD2345/requests", body),
		map[string]string{"code": "ABCD2345"})
	w := httptest.NewRecorder()
	h.CreateRequestHandler(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreatePaidRequestWithoutProvider(t *testing.T) {
	h, events, _ := newTestHandler(t)
	events.Create(context.Background(), &model.Event{
		AccessCode:        "ABCD2345",
		Status:            model.EventStatusActive,
		RequestPrice:      500,
		Currency:          "usd",
		AllowFreeRequests: false,
	})

	body := bytes.NewBufferString(`{"songName":"Song"}`)
	r := mux.SetURLVars(httptest.NewRequest(http.MethodPost, "/api/code/ABCD2345/requests", body),
		map[string]string{"code": "ABCD2345"})
	w := httptest.NewRecorder()
	h.CreateRequestHandler(w, r)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	h, _, _ := newTestHandler(t)

	called := false
	handler := h.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) { called = true })

	r := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	w := httptest.NewRecorder()
	handler(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if called {
		t.Fatal("next handler ran without credentials")
	}
}

func TestAuthMiddlewareRejectsGarbageToken(t *testing.T) {
	h, _, _ := newTestHandler(t)

	handler := h.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {})

	r := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	r.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	handler(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestGenerateAccessCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := generateAccessCode()
		if err != nil {
			t.Fatalf("generateAccessCode: %v", err)
		}
		if len(code) != 8 {
			t.Fatalf("code %q has length %d, want 8", code, len(code))
		}
		for _, c := range code {
			if c == '0' || c == 'O' || c == '1' || c == 'I' || c == 'l' {
				t.Fatalf("code %q contains ambiguous character %q", code, c)
			}
		}
		seen[code] = true
	}
	if len(seen) < 90 {
		t.Fatalf("only %d distinct codes out of 100", len(seen))
	}
}

// authed stamps a user ID into the request context the way AuthMiddleware
// does.
func authed(r *http.Request, userID int64) *http.Request {
	ctx := context.WithValue(r.Context(), contextKeyUserID, userID)
	return r.WithContext(ctx)
}

func TestUpdateEventKeepsOmittedPrice(t *testing.T) {
	h, events, _ := newTestHandler(t)
	events.Create(context.Background(), &model.Event{
		Name:         "Club Night",
		OwnerID:      1,
		AccessCode:   "ABCD2345",
		Status:       model.EventStatusActive,
		RequestPrice: 500,
		Currency:     "usd",
	})

	body := bytes.NewBufferString(`{"name":"Renamed Night"}`)
	r := mux.SetURLVars(authed(httptest.NewRequest(http.MethodPut, "/api/events/1", body), 1),
		map[string]string{"id": "1"})
	w := httptest.NewRecorder()
	h.UpdateEventHandler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	ev, _ := events.GetByID(context.Background(), 1)
	if ev.Name != "Renamed Night" {
		t.Errorf("name = %q, want Renamed Night", ev.Name)
	}
	if ev.RequestPrice != 500 {
		t.Errorf("requestPrice = %d after name-only update, want 500", ev.RequestPrice)
	}
}

func TestUpdateEventExplicitPriceChange(t *testing.T) {
	h, events, _ := newTestHandler(t)
	events.Create(context.Background(), &model.Event{
		Name:         "Club Night",
		OwnerID:      1,
		AccessCode:   "ABCD2345",
		Status:       model.EventStatusActive,
		RequestPrice: 500,
	})

	body := bytes.NewBufferString(`{"requestPrice":0}`)
	r := mux.SetURLVars(authed(httptest.NewRequest(http.MethodPut, "/api/events/1", body), 1),
		map[string]string{"id": "1"})
	w := httptest.NewRecorder()
	h.UpdateEventHandler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	ev, _ := events.GetByID(context.Background(), 1)
	if ev.RequestPrice != 0 {
		t.Errorf("requestPrice = %d after explicit zero, want 0", ev.RequestPrice)
	}

	body = bytes.NewBufferString(`{"requestPrice":-100}`)
	r = mux.SetURLVars(authed(httptest.NewRequest(http.MethodPut, "/api/events/1", body), 1),
		map[string]string{"id": "1"})
	w = httptest.NewRecorder()
	h.UpdateEventHandler(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d for negative price, want 400", w.Code)
	}
}

func TestEventCountsReflectAutoConfirms(t *testing.T) {
	h, events, requests := newTestHandler(t)
	events.Create(context.Background(), &model.Event{
		Name:       "Club Night",
		OwnerID:    1,
		AccessCode: "ABCD2345",
		Status:     model.EventStatusActive,
	})
	requests.Create(context.Background(), &model.SongRequest{
		EventID: 1, SongName: "One More Time", ArtistName: "Daft Punk", Status: model.RequestStatusPending,
	})
	requests.Create(context.Background(), &model.SongRequest{
		EventID: 1, SongName: "Thunder", ArtistName: "Imagine Dragons", Status: model.RequestStatusPending,
	})

	// Finish One More Time; the matcher confirms its request without going
	// through any HTTP handler.
	ctx := context.Background()
	h.bridge.SetCurrentTrack(ctx, bridge.Track{ID: "t1", Title: "One More Time", Artist: "Daft Punk"})
	h.bridge.SetCurrentTrack(ctx, bridge.Track{ID: "t2", Title: "Next Song", Artist: "Someone"})

	r := mux.SetURLVars(authed(httptest.NewRequest(http.MethodGet, "/api/events/1", nil), 1),
		map[string]string{"id": "1"})
	w := httptest.NewRecorder()
	h.GetEventHandler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		RequestCounts map[string]int64 `json:"requestCounts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if got := resp.RequestCounts[model.RequestStatusPending]; got != 1 {
		t.Errorf("pending = %d, want 1", got)
	}
	if got := resp.RequestCounts[model.RequestStatusPlayed]; got != 1 {
		t.Errorf("played = %d, want 1", got)
	}
}

func TestBridgeTrackHandlerFillsDefaults(t *testing.T) {
	h, _, _ := newTestHandler(t)

	body := bytes.NewBufferString(`{"title":"","artist":""}`)
	r := httptest.NewRequest(http.MethodPost, "/api/bridge/track", body)
	w := httptest.NewRecorder()
	h.BridgeTrackHandler(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	s := h.bridge.Snapshot()
	if s.CurrentTrack == nil {
		t.Fatal("no current track set")
	}
	if s.CurrentTrack.ID == "" {
		t.Error("missing ID was not generated")
	}
	if s.CurrentTrack.Title != "Unknown Title" || s.CurrentTrack.Artist != "Unknown Artist" {
		t.Errorf("defaults not applied: %+v", s.CurrentTrack)
	}
}
