package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const readyTimeout = 2 * time.Second

// Handler provides health check endpoints
type Handler struct {
	ready func(ctx context.Context) error
}

// NewHandler creates a new health check handler. ready may be nil when the
// process has no database.
func NewHandler(ready func(ctx context.Context) error) *Handler {
	return &Handler{ready: ready}
}

// Health returns liveness status (process is running)
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready returns readiness status (can handle requests)
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := h.ready(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "database not ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Register mounts /health and /ready on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
