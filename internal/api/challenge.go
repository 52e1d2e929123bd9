package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/voicelab/internal/call"
	"github.com/ashureev/voicelab/internal/domain"
	"github.com/ashureev/voicelab/internal/identity"
	"github.com/ashureev/voicelab/internal/levels"
	"github.com/ashureev/voicelab/internal/screen"
	"github.com/ashureev/voicelab/internal/session"
	"github.com/go-chi/chi/v5"
)

// ChallengeHandler serves levels, progress and the screen views.
type ChallengeHandler struct {
	*Handler
}

// NewChallengeHandler creates a new challenge handler.
func NewChallengeHandler(base *Handler) *ChallengeHandler {
	return &ChallengeHandler{Handler: base}
}

// RegisterRoutes registers challenge routes.
func (h *ChallengeHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Get("/levels", h.GetLevels)
		r.Get("/progress", h.GetProgress)
		r.Post("/progress/reset", h.ResetProgress)
		r.Get("/view", h.GetView)
		r.Post("/view/{action}", h.PostAction)
	})
}

// GetConfig returns what the browser SDK needs to reach the connect proxy.
func (h *ChallengeHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"api_base_url":     h.cfg.Pipecat.ClientAPIBase,
		"connect_endpoint": "/connect",
		"agent_configured": h.cfg.PipecatConfigured(),
	})
}

// GetLevels returns the catalog.
func (h *ChallengeHandler) GetLevels(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"levels": h.catalog.All()})
}

// GetProgress returns the player's progress record.
func (h *ChallengeHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	JSON(w, http.StatusOK, h.registry.Tracker(r.Context(), userID).Snapshot())
}

// ResetProgress wipes the player's progress and restarts their open tabs.
func (h *ChallengeHandler) ResetProgress(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	tracker := h.registry.ResetProgress(r.Context(), userID)
	JSON(w, http.StatusOK, tracker.Snapshot())
}

func (h *ChallengeHandler) tab(r *http.Request) *session.Tab {
	ctx := r.Context()
	return h.registry.Get(ctx, identity.UserIDFromContext(ctx), identity.SessionIDFromContext(ctx))
}

// GetView renders the tab's current screen.
func (h *ChallengeHandler) GetView(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.tab(r).Screen.View())
}

type selectLevelRequest struct {
	Level *domain.LevelID `json:"level"`
}

// PostAction applies a screen action and returns the resulting view.
func (h *ChallengeHandler) PostAction(w http.ResponseWriter, r *http.Request) {
	tab := h.tab(r)
	ctrl := tab.Screen
	action := chi.URLParam(r, "action")
	ctx := r.Context()

	var err error
	switch action {
	case "begin":
		ctrl.Begin()
	case "select-level":
		var req selectLevelRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil || req.Level == nil {
			Error(w, http.StatusBadRequest, "level is required")
			return
		}
		err = ctrl.SelectLevel(*req.Level)
	case "start-call":
		err = ctrl.StartCall(ctx)
	case "hang-up":
		err = ctrl.HangUp(ctx)
	case "toggle-mic":
		ctrl.ToggleMic()
	case "next-level":
		err = ctrl.NextLevel(ctx)
	case "back":
		ctrl.BackToWelcome()
	case "reset":
		h.registry.ResetProgress(ctx, tab.UserID)
	default:
		Error(w, http.StatusNotFound, "unknown action")
		return
	}

	if err != nil {
		status, msg := actionError(err)
		slog.Warn("Screen action failed",
			"user_id", tab.UserID,
			"session_id", tab.SessionID,
			"action", action,
			"error", err,
		)
		Error(w, status, msg)
		return
	}

	JSON(w, http.StatusOK, ctrl.View())
}

func actionError(err error) (int, string) {
	switch {
	case errors.Is(err, screen.ErrLevelLocked):
		return http.StatusForbidden, "level_locked"
	case errors.Is(err, levels.ErrUnknownLevel):
		return http.StatusNotFound, "unknown_level"
	case errors.Is(err, screen.ErrCallInProgress):
		return http.StatusConflict, "call_in_progress"
	case errors.Is(err, screen.ErrLevelNotCompleted):
		return http.StatusConflict, "level_not_completed"
	case errors.Is(err, call.ErrNoClient), errors.Is(err, call.ErrRelayClosed):
		return http.StatusConflict, "call_relay_not_connected"
	default:
		return http.StatusBadGateway, err.Error()
	}
}
