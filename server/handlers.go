package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"crowdbeat/cache"
	"crowdbeat/config"
	"crowdbeat/core/auth"
	"crowdbeat/core/bridge"
	"crowdbeat/core/payment"
	"crowdbeat/logger"
	"crowdbeat/repository"
)

type contextKey string

const (
	contextKeyUserID   contextKey = "userID"
	contextKeyUsername contextKey = "username"
)

// APIHandler handles all API requests.
type APIHandler struct {
	userRepo    repository.UserRepository
	eventRepo   repository.EventRepository
	requestRepo repository.SongRequestRepository
	sessions    *cache.SessionCache
	eventCache  *cache.EventCache
	bridge      *bridge.Bridge
	payments    *payment.Client
	cfg         *config.Config
}

// NewAPIHandler creates the API handler with its dependencies.
func NewAPIHandler(
	userRepo repository.UserRepository,
	eventRepo repository.EventRepository,
	requestRepo repository.SongRequestRepository,
	sessions *cache.SessionCache,
	eventCache *cache.EventCache,
	b *bridge.Bridge,
	payments *payment.Client,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		userRepo:    userRepo,
		eventRepo:   eventRepo,
		requestRepo: requestRepo,
		sessions:    sessions,
		eventCache:  eventCache,
		bridge:      b,
		payments:    payments,
		cfg:         cfg,
	}
}

// AuthMiddleware checks for a valid JWT token and a live server-side session.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := auth.ParseToken(h.cfg.JWTSecret, parts[1])
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		// The token must still have a live session; logout deletes it.
		session, err := h.sessions.Get(r.Context(), claims.ID)
		if err != nil {
			logger.Error("session lookup failed", logger.ErrorField(err))
			respondError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if session == nil {
			respondError(w, http.StatusUnauthorized, "Session expired")
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUserID, claims.UserID)
		ctx = context.WithValue(ctx, contextKeyUsername, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext extracts the user ID from the request context.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(contextKeyUserID).(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the username from the request context.
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value(contextKeyUsername).(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Error("failed to encode response", logger.ErrorField(err))
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
