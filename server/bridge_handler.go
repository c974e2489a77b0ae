package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"crowdbeat/core/bridge"
	"crowdbeat/logger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var bridgeUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The DJ software and the dashboard connect from local origins that do
	// not match the API host.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// BridgeWSHandler upgrades a connection and attaches it to the bridge as a
// viewer. Both the DJ software feed and dashboard clients use this endpoint;
// the hub pushes the current state immediately on attach.
func (h *APIHandler) BridgeWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := bridgeUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	viewer := bridge.NewViewer(h.bridge.Hub(), conn, r.RemoteAddr)
	h.bridge.Hub().Register(viewer)

	if count, err := h.eventCache.IncrBridgeViewers(r.Context(), 1); err == nil {
		logger.Debug("bridge viewer count", logger.Int64("viewers", count))
	}

	// The request context dies when this handler returns; the pumps outlive
	// it.
	ctx := context.Background()
	go viewer.WritePump()
	go func() {
		viewer.ReadPump(ctx, h.bridge.HandleMessage)
		if _, err := h.eventCache.IncrBridgeViewers(ctx, -1); err != nil {
			logger.Warn("failed to decrement viewer count", logger.ErrorField(err))
		}
	}()
}

// trackFromInput fills the defaults the DJ software sometimes omits.
func trackFromInput(in bridge.TrackInput) bridge.Track {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Title == "" {
		in.Title = "Unknown Title"
	}
	if in.Artist == "" {
		in.Artist = "Unknown Artist"
	}
	return bridge.Track{
		ID:       in.ID,
		Title:    in.Title,
		Artist:   in.Artist,
		Album:    in.Album,
		Duration: in.Duration,
		Position: in.Position,
	}
}

// BridgeStateHandler returns the current bridge state.
func (h *APIHandler) BridgeStateHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.bridge.Snapshot())
}

// BridgeTrackHandler sets the playing track over plain HTTP, for DJ software
// that can fire webhooks but not hold a websocket.
func (h *APIHandler) BridgeTrackHandler(w http.ResponseWriter, r *http.Request) {
	var in bridge.TrackInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.bridge.SetCurrentTrack(r.Context(), trackFromInput(in))
	respondJSON(w, http.StatusOK, h.bridge.Snapshot())
}

// BridgePlaylistHandler replaces the upcoming playlist over plain HTTP.
func (h *APIHandler) BridgePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Tracks []bridge.TrackInput `json:"tracks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if in.Tracks == nil {
		respondError(w, http.StatusBadRequest, "tracks is required")
		return
	}

	h.bridge.SetPlaylist(r.Context(), in.Tracks)
	respondJSON(w, http.StatusOK, h.bridge.Snapshot())
}

// BridgeMarkPlayedHandler confirms a song request played from the dashboard.
func (h *APIHandler) BridgeMarkPlayedHandler(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}

	req, err := h.bridge.ConfirmPlayed(r.Context(), requestID)
	if err != nil {
		logger.Error("failed to confirm request played",
			logger.ErrorField(err),
			logger.Int64("requestId", requestID))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if req == nil {
		respondError(w, http.StatusNotFound, "Request not found")
		return
	}
	respondJSON(w, http.StatusOK, req)
}
