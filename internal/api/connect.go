package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/voicelab/internal/identity"
	"github.com/ashureev/voicelab/internal/pipecat"
	"github.com/go-chi/chi/v5"
)

const (
	connectFailedMessage = "Failed to start agent"
	maxConnectBody       = 64 << 10
)

// SessionStarter starts a voice-agent session for the browser to join.
type SessionStarter interface {
	StartSession(ctx context.Context, customData json.RawMessage) (*pipecat.Session, error)
}

// ConnectHandler proxies call setup to the voice platform, keeping the API
// key on the server.
type ConnectHandler struct {
	starter SessionStarter
	limiter *RateLimiter
}

// NewConnectHandler creates a connect proxy. A nil limiter disables throttling.
func NewConnectHandler(starter SessionStarter, limiter *RateLimiter) *ConnectHandler {
	return &ConnectHandler{starter: starter, limiter: limiter}
}

// RegisterRoutes registers the connect route.
func (h *ConnectHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/connect", h.Connect)
}

type connectRequest struct {
	CustomData json.RawMessage `json:"customData"`
}

// Connect handles POST /api/connect.
func (h *ConnectHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	if h.limiter != nil && !h.limiter.Allow(userID) {
		slog.Warn("Connect rate limit exceeded", "user_id", userID)
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req connectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConnectBody)).Decode(&req); err != nil {
		slog.Error("Connect request rejected", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, connectFailedMessage)
		return
	}

	slog.Info("Connecting to voice agent", "user_id", userID, "level", levelOf(req.CustomData))

	sess, err := h.starter.StartSession(r.Context(), req.CustomData)
	if err != nil {
		slog.Error("Failed to start agent", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, connectFailedMessage)
		return
	}

	JSON(w, http.StatusOK, sess)
}

// levelOf extracts customData.level for logging; customData is free-form.
func levelOf(customData json.RawMessage) any {
	var payload struct {
		Level any `json:"level"`
	}
	if len(customData) == 0 || json.Unmarshal(customData, &payload) != nil {
		return nil
	}
	return payload.Level
}
