package bridge

import (
	"context"
	"strings"

	"crowdbeat/logger"
	"crowdbeat/model"
)

// Matcher finds pending requests that correspond to a track that just
// finished and confirms them played. The heuristic is a case-folded
// bidirectional substring test on title then artist; it is intentionally
// approximate and an empty field matches anything.
type Matcher struct {
	events   EventStore
	requests RequestStore
}

// NewMatcher creates a Matcher over the given stores.
func NewMatcher(events EventStore, requests RequestStore) *Matcher {
	return &Matcher{events: events, requests: requests}
}

// Run scans every event's pending requests against the demoted track and
// confirms all matches; it never short-circuits after the first hit, so one
// track can confirm requests across several events. Store failures abandon
// only the step they occur in. Returns the number of confirmed requests.
func (m *Matcher) Run(ctx context.Context, track *Track) int {
	events, err := m.events.ListEvents(ctx)
	if err != nil {
		logger.Error("matcher failed to list events", logger.ErrorField(err))
		return 0
	}

	confirmed := 0
	for _, ev := range events {
		pending, err := m.requests.ListByStatus(ctx, ev.ID, model.RequestStatusPending)
		if err != nil {
			logger.Error("matcher failed to list pending requests",
				logger.ErrorField(err),
				logger.Int64("eventId", ev.ID))
			continue
		}

		for _, req := range pending {
			if !containsFold(req.SongName, track.Title) {
				continue
			}
			if !containsFold(req.ArtistName, track.Artist) {
				continue
			}

			if _, err := m.requests.UpdateStatus(ctx, req.ID, model.RequestStatusPlayed); err != nil {
				logger.Error("matcher failed to confirm request",
					logger.ErrorField(err),
					logger.Int64("requestId", req.ID))
				continue
			}
			confirmed++
			logger.Info("request auto-confirmed as played",
				logger.Int64("requestId", req.ID),
				logger.Int64("eventId", ev.ID),
				logger.String("songName", req.SongName),
				logger.String("trackTitle", track.Title))
		}
	}
	return confirmed
}

// containsFold reports whether either string is a case-folded substring of
// the other.
func containsFold(a, b string) bool {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	return strings.Contains(a, b) || strings.Contains(b, a)
}
