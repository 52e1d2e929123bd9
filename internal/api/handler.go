// Package api provides HTTP handlers for the challenge server.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/voicelab/internal/config"
	"github.com/ashureev/voicelab/internal/levels"
	"github.com/ashureev/voicelab/internal/session"
	"github.com/ashureev/voicelab/internal/store"
)

// Handler provides common handler dependencies.
type Handler struct {
	repo     store.Repository
	catalog  *levels.Catalog
	registry *session.Registry
	cfg      *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, catalog *levels.Catalog, registry *session.Registry, cfg *config.Config) *Handler {
	return &Handler{
		repo:     repo,
		catalog:  catalog,
		registry: registry,
		cfg:      cfg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
