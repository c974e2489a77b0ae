package bridge

import "time"

// TrackStatus is the playback lifecycle of a Track: queued -> playing ->
// played. A track may enter directly as playing (an ad-hoc track never
// queued). played is terminal.
type TrackStatus string

const (
	TrackStatusPlaying TrackStatus = "playing"
	TrackStatusQueued  TrackStatus = "queued"
	TrackStatusPlayed  TrackStatus = "played"
)

// Track is a unit of music tracked by the bridge. It lives only in memory;
// it is not a database row and its ID is unique only within the current
// playlist/current-track scope.
type Track struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Artist   string      `json:"artist"`
	Album    string      `json:"album,omitempty"`
	Duration int         `json:"duration"` // seconds
	Position int         `json:"position"` // queue index for playlist entries
	Status   TrackStatus `json:"status"`
	PlayedAt *time.Time  `json:"playedAt,omitempty"`
}

// TrackInput is the caller-supplied shape of a track in control messages.
// Status and play order are assigned by the bridge, never by the caller.
type TrackInput struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Duration int    `json:"duration"`
	Position int    `json:"position"`
}

// Control message types accepted from viewer channels, plus the one
// outbound type pushed to them.
const (
	MsgTypeGetState       = "get_state"
	MsgTypeUpdateTrack    = "update_track"
	MsgTypeUpdatePlaylist = "update_playlist"
	MsgTypeMarkAsPlayed   = "mark_as_played"
	MsgTypeStateUpdate    = "state_update"
)

// Message is the inbound control envelope.
type Message struct {
	Type          string       `json:"type"`
	Track         *TrackInput  `json:"track,omitempty"`
	Tracks        []TrackInput `json:"tracks,omitempty"`
	SongRequestID int64        `json:"songRequestId,omitempty"`
}

// StateUpdate is the full-state snapshot pushed to viewers. Playlist and
// RecentlyPlayed are always non-nil so they serialize as arrays.
type StateUpdate struct {
	Type           string  `json:"type"`
	CurrentTrack   *Track  `json:"currentTrack"`
	Playlist       []Track `json:"playlist"`
	RecentlyPlayed []Track `json:"recentlyPlayed"`
}
