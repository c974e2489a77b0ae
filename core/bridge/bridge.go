package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"crowdbeat/logger"
	"crowdbeat/model"
)

// maxRecentlyPlayed caps the recently-played list; the oldest entry is
// evicted on overflow.
const maxRecentlyPlayed = 50

// EventStore is the slice of the persistence layer the bridge reads events
// through.
type EventStore interface {
	ListEvents(ctx context.Context) ([]*model.Event, error)
}

// RequestStore is the slice of the persistence layer the bridge reads and
// confirms song requests through.
type RequestStore interface {
	ListByStatus(ctx context.Context, eventID int64, status string) ([]*model.SongRequest, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*model.SongRequest, error)
}

// Bridge mirrors the DJ software's playback state (current track, upcoming
// playlist, recently played) and pushes it to connected dashboard viewers.
// When a track finishes, pending requests matching it are confirmed played.
//
// All state lives in memory and is lost on restart. A single mutex
// serializes every mutation together with its matching pass and broadcast,
// so concurrent control messages cannot interleave.
type Bridge struct {
	mu       sync.Mutex
	current  *Track
	playlist []Track
	recent   []Track

	matcher  *Matcher
	requests RequestStore
	hub      *Hub
}

// New creates a Bridge wired to the given persistence stores.
func New(events EventStore, requests RequestStore) *Bridge {
	b := &Bridge{
		matcher:  NewMatcher(events, requests),
		requests: requests,
	}
	b.hub = newHub(b.snapshotJSON)
	return b
}

// Hub returns the viewer hub for connection handling.
func (b *Bridge) Hub() *Hub {
	return b.hub
}

// Run starts the hub loop. Blocks until Stop.
func (b *Bridge) Run() {
	b.hub.Run()
}

// Stop shuts down the hub and disconnects all viewers.
func (b *Bridge) Stop() {
	b.hub.Stop()
}

// SetCurrentTrack makes t the playing track. If a different track was
// playing it is demoted: marked played, prepended to recently-played, and
// run through the matching engine. A call with the current track's own ID
// is a metadata refresh and demotes nothing. The new track's ID is removed
// from the playlist, and the resulting state is broadcast.
func (b *Bridge) SetCurrentTrack(ctx context.Context, t Track) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var demoted *Track
	if b.current != nil && b.current.ID != t.ID {
		d := *b.current
		d.Status = TrackStatusPlayed
		now := time.Now()
		d.PlayedAt = &now

		b.recent = append([]Track{d}, b.recent...)
		if len(b.recent) > maxRecentlyPlayed {
			b.recent = b.recent[:maxRecentlyPlayed]
		}
		demoted = &d
	}

	t.Status = TrackStatusPlaying
	t.PlayedAt = nil
	b.current = &t

	// The incoming track was queued and is now playing.
	for i, qt := range b.playlist {
		if qt.ID == t.ID {
			b.playlist = append(b.playlist[:i], b.playlist[i+1:]...)
			break
		}
	}

	logger.Info("current track updated",
		logger.String("trackId", t.ID),
		logger.String("title", t.Title),
		logger.String("artist", t.Artist))

	if demoted != nil {
		b.matcher.Run(ctx, demoted)
	}

	b.broadcastLocked()
}

// SetPlaylist replaces the upcoming playlist wholesale. Every entry becomes
// queued and its position is its index in the input; caller-supplied
// positions are overridden.
func (b *Bridge) SetPlaylist(ctx context.Context, tracks []TrackInput) {
	b.mu.Lock()
	defer b.mu.Unlock()

	playlist := make([]Track, 0, len(tracks))
	for i, in := range tracks {
		playlist = append(playlist, Track{
			ID:       in.ID,
			Title:    in.Title,
			Artist:   in.Artist,
			Album:    in.Album,
			Duration: in.Duration,
			Position: i,
			Status:   TrackStatusQueued,
		})
	}
	b.playlist = playlist

	logger.Info("playlist replaced", logger.Int("tracks", len(playlist)))

	b.broadcastLocked()
}

// ConfirmPlayed marks a song request played in the persistence layer. It
// does not touch bridge state. Returns the updated request, or nil when no
// such request exists.
func (b *Bridge) ConfirmPlayed(ctx context.Context, requestID int64) (*model.SongRequest, error) {
	return b.requests.UpdateStatus(ctx, requestID, model.RequestStatusPlayed)
}

// Snapshot returns a copy of the current state as a state_update.
func (b *Bridge) Snapshot() StateUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// SendState unicasts the current state to one viewer.
func (b *Bridge) SendState(v *Viewer) {
	data, err := b.snapshotJSON()
	if err != nil {
		logger.Error("failed to marshal bridge state", logger.ErrorField(err))
		return
	}
	if !v.enqueue(data) {
		logger.Warn("viewer send buffer full, state dropped", logger.String("viewer", v.remoteAddr))
	}
}

// HandleMessage dispatches one inbound control message from a viewer.
// Malformed payloads are dropped with a warning; no error reply is sent.
func (b *Bridge) HandleMessage(ctx context.Context, v *Viewer, msg *Message) {
	switch msg.Type {
	case MsgTypeGetState:
		b.SendState(v)

	case MsgTypeUpdateTrack:
		if msg.Track == nil || msg.Track.ID == "" {
			logger.Warn("update_track missing track payload", logger.String("viewer", v.remoteAddr))
			return
		}
		in := msg.Track
		b.SetCurrentTrack(ctx, Track{
			ID:       in.ID,
			Title:    in.Title,
			Artist:   in.Artist,
			Album:    in.Album,
			Duration: in.Duration,
			Position: in.Position,
		})

	case MsgTypeUpdatePlaylist:
		if msg.Tracks == nil {
			logger.Warn("update_playlist missing tracks payload", logger.String("viewer", v.remoteAddr))
			return
		}
		b.SetPlaylist(ctx, msg.Tracks)

	case MsgTypeMarkAsPlayed:
		if msg.SongRequestID <= 0 {
			logger.Warn("mark_as_played missing songRequestId", logger.String("viewer", v.remoteAddr))
			return
		}
		req, err := b.ConfirmPlayed(ctx, msg.SongRequestID)
		if err != nil {
			logger.Error("failed to confirm request played",
				logger.ErrorField(err),
				logger.Int64("requestId", msg.SongRequestID))
			return
		}
		if req == nil {
			logger.Warn("mark_as_played for unknown request", logger.Int64("requestId", msg.SongRequestID))
		}

	default:
		logger.Warn("unknown bridge message type",
			logger.String("type", msg.Type),
			logger.String("viewer", v.remoteAddr))
	}
}

// snapshotLocked builds a StateUpdate copy. Caller must hold b.mu.
func (b *Bridge) snapshotLocked() StateUpdate {
	s := StateUpdate{
		Type:           MsgTypeStateUpdate,
		Playlist:       make([]Track, len(b.playlist)),
		RecentlyPlayed: make([]Track, len(b.recent)),
	}
	if b.current != nil {
		c := *b.current
		s.CurrentTrack = &c
	}
	copy(s.Playlist, b.playlist)
	copy(s.RecentlyPlayed, b.recent)
	return s
}

// snapshotJSON marshals the current state. Used by the hub for late joiners
// and get_state requests; takes the bridge lock itself.
func (b *Bridge) snapshotJSON() ([]byte, error) {
	b.mu.Lock()
	s := b.snapshotLocked()
	b.mu.Unlock()
	return json.Marshal(s)
}

// broadcastLocked pushes the current state to all viewers. Caller must hold
// b.mu; the hub enqueue never blocks, so holding the lock here is safe.
func (b *Bridge) broadcastLocked() {
	data, err := json.Marshal(b.snapshotLocked())
	if err != nil {
		logger.Error("failed to marshal bridge state", logger.ErrorField(err))
		return
	}
	b.hub.Broadcast(data)
}
