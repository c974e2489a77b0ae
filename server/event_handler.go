package server

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"crowdbeat/logger"
	"crowdbeat/model"
	"crowdbeat/storage"

	"github.com/gorilla/mux"
)

// accessCodeAlphabet avoids characters that read ambiguously on printed QR
// signage (0/O, 1/I/l).
const accessCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func generateAccessCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate access code: %w", err)
	}
	for i, b := range buf {
		buf[i] = accessCodeAlphabet[int(b)%len(accessCodeAlphabet)]
	}
	return string(buf), nil
}

// CreateEventRequest is the event creation body.
type CreateEventRequest struct {
	Name              string `json:"name"`
	Venue             string `json:"venue"`
	RequestPrice      int64  `json:"requestPrice"`
	Currency          string `json:"currency"`
	AllowFreeRequests *bool  `json:"allowFreeRequests"`
	StartsAt          string `json:"startsAt"` // RFC 3339, optional
}

// UpdateEventRequest is the partial-update body. Pointer fields distinguish
// "omitted" from a zero value, so a name-only update cannot reset the price.
type UpdateEventRequest struct {
	Name              string `json:"name"`
	Venue             string `json:"venue"`
	RequestPrice      *int64 `json:"requestPrice"`
	Currency          string `json:"currency"`
	AllowFreeRequests *bool  `json:"allowFreeRequests"`
}

// CreateEventHandler creates an event for the authenticated DJ.
func (h *APIHandler) CreateEventHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "Event name is required")
		return
	}
	if req.RequestPrice < 0 {
		respondError(w, http.StatusBadRequest, "Request price cannot be negative")
		return
	}

	code, err := generateAccessCode()
	if err != nil {
		logger.Error("failed to generate access code", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	event := &model.Event{
		Name:              req.Name,
		Venue:             req.Venue,
		OwnerID:           userID,
		AccessCode:        code,
		Status:            model.EventStatusActive,
		RequestPrice:      req.RequestPrice,
		Currency:          req.Currency,
		AllowFreeRequests: req.AllowFreeRequests == nil || *req.AllowFreeRequests,
	}
	if event.Currency == "" {
		event.Currency = "usd"
	}
	if req.StartsAt != "" {
		startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
		if err != nil {
			respondError(w, http.StatusBadRequest, "startsAt must be RFC 3339")
			return
		}
		event.StartsAt = &startsAt
	}

	if err := h.eventRepo.Create(r.Context(), event); err != nil {
		logger.Error("failed to create event", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Info("event created",
		logger.Int64("eventId", event.ID),
		logger.Int64("ownerId", userID),
		logger.String("accessCode", event.AccessCode))

	respondJSON(w, http.StatusCreated, event)
}

// ListMyEventsHandler lists the authenticated DJ's events.
func (h *APIHandler) ListMyEventsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	events, err := h.eventRepo.ListByOwner(r.Context(), userID)
	if err != nil {
		logger.Error("failed to list events", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondJSON(w, http.StatusOK, events)
}

// loadOwnedEvent fetches an event and checks it belongs to the caller.
func (h *APIHandler) loadOwnedEvent(w http.ResponseWriter, r *http.Request) *model.Event {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return nil
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid event ID")
		return nil
	}

	event, err := h.eventRepo.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("failed to load event", logger.ErrorField(err), logger.Int64("eventId", id))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return nil
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "Event not found")
		return nil
	}
	if event.OwnerID != userID {
		respondError(w, http.StatusForbidden, "Not your event")
		return nil
	}
	return event
}

// GetEventHandler returns one of the DJ's events with its request counts.
// Counts come straight from the database so they stay correct when the
// bridge auto-confirms requests behind the handlers' backs.
func (h *APIHandler) GetEventHandler(w http.ResponseWriter, r *http.Request) {
	event := h.loadOwnedEvent(w, r)
	if event == nil {
		return
	}

	counts := make(map[string]int64, 3)
	for _, status := range []string{model.RequestStatusPending, model.RequestStatusPlayed, model.RequestStatusSkipped} {
		n, err := h.requestRepo.CountByStatus(r.Context(), event.ID, status)
		if err != nil {
			// Counts are advisory; the event itself still renders.
			logger.Warn("failed to count requests",
				logger.ErrorField(err),
				logger.Int64("eventId", event.ID),
				logger.String("status", status))
			continue
		}
		counts[status] = n
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"event":         event,
		"requestCounts": counts,
	})
}

// UpdateEventHandler updates an owned event's mutable fields.
func (h *APIHandler) UpdateEventHandler(w http.ResponseWriter, r *http.Request) {
	event := h.loadOwnedEvent(w, r)
	if event == nil {
		return
	}

	var req UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != "" {
		event.Name = req.Name
	}
	if req.Venue != "" {
		event.Venue = req.Venue
	}
	if req.RequestPrice != nil {
		if *req.RequestPrice < 0 {
			respondError(w, http.StatusBadRequest, "Request price cannot be negative")
			return
		}
		event.RequestPrice = *req.RequestPrice
	}
	if req.Currency != "" {
		event.Currency = req.Currency
	}
	if req.AllowFreeRequests != nil {
		event.AllowFreeRequests = *req.AllowFreeRequests
	}

	if err := h.eventRepo.Update(r.Context(), event); err != nil {
		logger.Error("failed to update event", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondJSON(w, http.StatusOK, event)
}

// CloseEventHandler closes an owned event. Closed events stop accepting
// requests and no longer resolve by access code.
func (h *APIHandler) CloseEventHandler(w http.ResponseWriter, r *http.Request) {
	event := h.loadOwnedEvent(w, r)
	if event == nil {
		return
	}
	if event.Status == model.EventStatusClosed {
		respondError(w, http.StatusConflict, "Event already closed")
		return
	}

	if err := h.eventRepo.Close(r.Context(), event.ID); err != nil {
		logger.Error("failed to close event", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Info("event closed", logger.Int64("eventId", event.ID))
	respondJSON(w, http.StatusOK, map[string]string{"status": model.EventStatusClosed})
}

// GetEventByCodeHandler resolves an access code for attendees. Only active
// events resolve, and only attendee-relevant fields are returned.
func (h *APIHandler) GetEventByCodeHandler(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	event, err := h.eventRepo.GetByAccessCode(r.Context(), code)
	if err != nil {
		logger.Error("failed to resolve access code", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "Event not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":                event.ID,
		"name":              event.Name,
		"venue":             event.Venue,
		"coverPath":         event.CoverPath,
		"requestPrice":      event.RequestPrice,
		"currency":          event.Currency,
		"allowFreeRequests": event.AllowFreeRequests,
	})
}

// UploadEventCoverHandler stores a cover image for an owned event.
func (h *APIHandler) UploadEventCoverHandler(w http.ResponseWriter, r *http.Request) {
	event := h.loadOwnedEvent(w, r)
	if event == nil {
		return
	}

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "Failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("coverFile")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing 'coverFile' in form")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType != "image/jpeg" && contentType != "image/png" {
		respondError(w, http.StatusBadRequest, "Cover must be JPEG or PNG")
		return
	}

	objectPath, err := storage.UploadCover(r.Context(), event.ID, file, header.Size, contentType)
	if err != nil {
		logger.Error("failed to upload cover", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	event.CoverPath = objectPath
	if err := h.eventRepo.Update(r.Context(), event); err != nil {
		logger.Error("failed to save cover path", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"coverPath": objectPath})
}

// ServeCoverHandler streams a stored cover image.
func (h *APIHandler) ServeCoverHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid event ID")
		return
	}

	event, err := h.eventRepo.GetByID(r.Context(), id)
	if err != nil || event == nil || event.CoverPath == "" {
		respondError(w, http.StatusNotFound, "Cover not found")
		return
	}

	obj, err := storage.GetCover(r.Context(), event.CoverPath)
	if err != nil {
		logger.Error("failed to open cover", logger.ErrorField(err))
		respondError(w, http.StatusNotFound, "Cover not found")
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, obj); err != nil {
		logger.Warn("failed to stream cover", logger.ErrorField(err))
	}
}
