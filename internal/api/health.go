package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SessionCounter reports the number of connected widget sessions.
type SessionCounter interface {
	Count() int
}

// HealthHandler handles the status endpoint.
type HealthHandler struct {
	sessions SessionCounter
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(sessions SessionCounter) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

// Status returns the server status and the number of live sessions.
func (h *HealthHandler) Status(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"active_sessions": h.sessions.Count(),
	})
}

// RegisterHealth registers the status route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/status", h.Status)
}
