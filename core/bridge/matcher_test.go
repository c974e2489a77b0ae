package bridge

import (
	"context"
	"errors"
	"testing"

	"crowdbeat/model"
)

// fakeEventStore serves a fixed event list, optionally failing.
type fakeEventStore struct {
	events []*model.Event
	err    error
}

func (f *fakeEventStore) ListEvents(ctx context.Context) ([]*model.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

// fakeRequestStore keeps requests in memory keyed by event.
type fakeRequestStore struct {
	requests map[int64][]*model.SongRequest

	listErr   map[int64]error // per-event ListByStatus failures
	updateErr map[int64]error // per-request UpdateStatus failures

	updated []int64 // request IDs confirmed, in order
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{
		requests:  make(map[int64][]*model.SongRequest),
		listErr:   make(map[int64]error),
		updateErr: make(map[int64]error),
	}
}

func (f *fakeRequestStore) add(req *model.SongRequest) {
	f.requests[req.EventID] = append(f.requests[req.EventID], req)
}

func (f *fakeRequestStore) ListByStatus(ctx context.Context, eventID int64, status string) ([]*model.SongRequest, error) {
	if err := f.listErr[eventID]; err != nil {
		return nil, err
	}
	var out []*model.SongRequest
	for _, req := range f.requests[eventID] {
		if req.Status == status {
			out = append(out, req)
		}
	}
	return out, nil
}

func (f *fakeRequestStore) UpdateStatus(ctx context.Context, id int64, status string) (*model.SongRequest, error) {
	if err := f.updateErr[id]; err != nil {
		return nil, err
	}
	for _, reqs := range f.requests {
		for _, req := range reqs {
			if req.ID == id {
				req.Status = status
				f.updated = append(f.updated, id)
				return req, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeRequestStore) statusOf(id int64) string {
	for _, reqs := range f.requests {
		for _, req := range reqs {
			if req.ID == id {
				return req.Status
			}
		}
	}
	return ""
}

func TestMatcherConfirmsSubstringMatch(t *testing.T) {
	events := &fakeEventStore{events: []*model.Event{{ID: 1}}}
	requests := newFakeRequestStore()
	requests.add(&model.SongRequest{ID: 10, EventID: 1, SongName: "blinding lights", ArtistName: "weeknd", Status: model.RequestStatusPending})
	requests.add(&model.SongRequest{ID: 11, EventID: 1, SongName: "Thunder", ArtistName: "Imagine Dragons", Status: model.RequestStatusPending})

	m := NewMatcher(events, requests)
	track := &Track{ID: "t1", Title: "Blinding Lights", Artist: "The Weeknd"}

	if got := m.Run(context.Background(), track); got != 1 {
		t.Fatalf("confirmed = %d, want 1", got)
	}
	if got := requests.statusOf(10); got != model.RequestStatusPlayed {
		t.Errorf("request 10 status = %q, want played", got)
	}
	if got := requests.statusOf(11); got != model.RequestStatusPending {
		t.Errorf("request 11 status = %q, want pending", got)
	}
}

func TestMatcherRequiresBothFields(t *testing.T) {
	events := &fakeEventStore{events: []*model.Event{{ID: 1}}}
	requests := newFakeRequestStore()
	requests.add(&model.SongRequest{ID: 10, EventID: 1, SongName: "Blinding Lights", ArtistName: "Dua Lipa", Status: model.RequestStatusPending})

	m := NewMatcher(events, requests)
	track := &Track{ID: "t1", Title: "Blinding Lights", Artist: "The Weeknd"}

	if got := m.Run(context.Background(), track); got != 0 {
		t.Fatalf("confirmed = %d, want 0", got)
	}
	if got := requests.statusOf(10); got != model.RequestStatusPending {
		t.Errorf("request 10 status = %q, want pending", got)
	}
}

func TestMatcherConfirmsAcrossEvents(t *testing.T) {
	events := &fakeEventStore{events: []*model.Event{{ID: 1}, {ID: 2}, {ID: 3}}}
	requests := newFakeRequestStore()
	requests.add(&model.SongRequest{ID: 10, EventID: 1, SongName: "One More Time", ArtistName: "Daft Punk", Status: model.RequestStatusPending})
	requests.add(&model.SongRequest{ID: 20, EventID: 2, SongName: "one more time", ArtistName: "daft punk", Status: model.RequestStatusPending})
	requests.add(&model.SongRequest{ID: 30, EventID: 3, SongName: "Around the World", ArtistName: "Daft Punk", Status: model.RequestStatusPending})

	m := NewMatcher(events, requests)
	track := &Track{ID: "t1", Title: "One More Time", Artist: "Daft Punk"}

	if got := m.Run(context.Background(), track); got != 2 {
		t.Fatalf("confirmed = %d, want 2", got)
	}
	if got := requests.statusOf(30); got != model.RequestStatusPending {
		t.Errorf("request 30 status = %q, want pending", got)
	}
}

func TestMatcherListEventsFailure(t *testing.T) {
	events := &fakeEventStore{err: errors.New("db down")}
	requests := newFakeRequestStore()
	requests.add(&model.SongRequest{ID: 10, EventID: 1, SongName: "Song", ArtistName: "Artist", Status: model.RequestStatusPending})

	m := NewMatcher(events, requests)
	if got := m.Run(context.Background(), &Track{ID: "t1", Title: "Song", Artist: "Artist"}); got != 0 {
		t.Fatalf("confirmed = %d, want 0", got)
	}
}

func TestMatcherContinuesPastFailingEvent(t *testing.T) {
	events := &fakeEventStore{events: []*model.Event{{ID: 1}, {ID: 2}}}
	requests := newFakeRequestStore()
	requests.listErr[1] = errors.New("query timeout")
	requests.add(&model.SongRequest{ID: 20, EventID: 2, SongName: "Song", ArtistName: "Artist", Status: model.RequestStatusPending})

	m := NewMatcher(events, requests)
	if got := m.Run(context.Background(), &Track{ID: "t1", Title: "Song", Artist: "Artist"}); got != 1 {
		t.Fatalf("confirmed = %d, want 1", got)
	}
}

func TestMatcherContinuesPastFailingUpdate(t *testing.T) {
	events := &fakeEventStore{events: []*model.Event{{ID: 1}}}
	requests := newFakeRequestStore()
	requests.add(&model.SongRequest{ID: 10, EventID: 1, SongName: "Song", ArtistName: "Artist", Status: model.RequestStatusPending})
	requests.add(&model.SongRequest{ID: 11, EventID: 1, SongName: "Song", ArtistName: "Artist", Status: model.RequestStatusPending})
	requests.updateErr[10] = errors.New("write failed")

	m := NewMatcher(events, requests)
	if got := m.Run(context.Background(), &Track{ID: "t1", Title: "Song", Artist: "Artist"}); got != 1 {
		t.Fatalf("confirmed = %d, want 1", got)
	}
	if got := requests.statusOf(10); got != model.RequestStatusPending {
		t.Errorf("request 10 status = %q, want pending after failed write", got)
	}
	if got := requests.statusOf(11); got != model.RequestStatusPlayed {
		t.Errorf("request 11 status = %q, want played", got)
	}
}

func TestContainsFold(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"Blinding Lights", "blinding lights", true},
		{"lights", "Blinding Lights", true},
		{"Blinding Lights", "lights", true},
		{"weeknd", "The Weeknd", true},
		{"Thunder", "Blinding Lights", false},
		{"", "anything", true},
		{"anything", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		if got := containsFold(c.a, c.b); got != c.want {
			t.Errorf("containsFold(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
