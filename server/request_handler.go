package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"crowdbeat/logger"
	"crowdbeat/model"

	"github.com/gorilla/mux"
)

// CreateRequestRequest is the attendee-facing song request body.
type CreateRequestRequest struct {
	SongName      string `json:"songName"`
	ArtistName    string `json:"artistName"`
	RequesterName string `json:"requesterName"`
	// Pay opts into a paid request on events that also allow free ones.
	Pay bool `json:"pay"`
}

// CreateRequestHandler creates a song request against an event resolved by
// access code. No authentication; attendees are anonymous.
func (h *APIHandler) CreateRequestHandler(w http.ResponseWriter, r *http.Request) {
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

	var req CreateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SongName == "" {
		respondError(w, http.StatusBadRequest, "songName is required")
		return
	}

	songReq := &model.SongRequest{
		EventID:       event.ID,
		SongName:      req.SongName,
		ArtistName:    req.ArtistName,
		RequesterName: req.RequesterName,
		Status:        model.RequestStatusPending,
	}

	paid := event.RequestPrice > 0 && (req.Pay || !event.AllowFreeRequests)
	var clientSecret string
	if paid {
		if h.payments == nil {
			respondError(w, http.StatusServiceUnavailable, "Paid requests are not available")
			return
		}
		intent, err := h.payments.CreateIntent(r.Context(), event.RequestPrice, event.Currency, map[string]string{
			"eventId":  strconv.FormatInt(event.ID, 10),
			"songName": req.SongName,
		})
		if err != nil {
			logger.Error("failed to create payment intent", logger.ErrorField(err))
			respondError(w, http.StatusBadGateway, "Payment provider unavailable")
			return
		}
		songReq.AmountPaid = event.RequestPrice
		songReq.PaymentIntentID = intent.ID
		clientSecret = intent.ClientSecret
	}

	if err := h.requestRepo.Create(r.Context(), songReq); err != nil {
		logger.Error("failed to create song request", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Info("song request created",
		logger.Int64("requestId", songReq.ID),
		logger.Int64("eventId", event.ID),
		logger.String("songName", songReq.SongName),
		logger.Bool("paid", paid))

	resp := map[string]interface{}{"request": songReq}
	if clientSecret != "" {
		resp["paymentClientSecret"] = clientSecret
	}
	respondJSON(w, http.StatusCreated, resp)
}

// ListEventRequestsHandler lists requests for an owned event, optionally
// filtered by ?status=.
func (h *APIHandler) ListEventRequestsHandler(w http.ResponseWriter, r *http.Request) {
	event := h.loadOwnedEvent(w, r)
	if event == nil {
		return
	}

	status := r.URL.Query().Get("status")

	var requests []*model.SongRequest
	var err error
	if status != "" {
		if !model.IsValidRequestStatus(status) {
			respondError(w, http.StatusBadRequest, "Unknown status")
			return
		}
		requests, err = h.requestRepo.ListByStatus(r.Context(), event.ID, status)
	} else {
		requests, err = h.requestRepo.ListByEvent(r.Context(), event.ID)
	}
	if err != nil {
		logger.Error("failed to list requests", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondJSON(w, http.StatusOK, requests)
}

// UpdateRequestStatusHandler lets the DJ flip a request's status manually.
func (h *APIHandler) UpdateRequestStatusHandler(w http.ResponseWriter, r *http.Request) {
	event := h.loadOwnedEvent(w, r)
	if event == nil {
		return
	}

	requestID, err := strconv.ParseInt(mux.Vars(r)["requestId"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !model.IsValidRequestStatus(req.Status) {
		respondError(w, http.StatusBadRequest, "Unknown status")
		return
	}

	existing, err := h.requestRepo.GetByID(r.Context(), requestID)
	if err != nil {
		logger.Error("failed to load request", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if existing == nil || existing.EventID != event.ID {
		respondError(w, http.StatusNotFound, "Request not found")
		return
	}

	updated, err := h.requestRepo.UpdateStatus(r.Context(), requestID, req.Status)
	if err != nil {
		logger.Error("failed to update request status", logger.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Info("request status updated",
		logger.Int64("requestId", requestID),
		logger.String("from", existing.Status),
		logger.String("to", req.Status))

	respondJSON(w, http.StatusOK, updated)
}
