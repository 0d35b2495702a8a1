package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/heptiolabs/healthcheck"
)

// HealthHandler handles the versioned health-check endpoint.
type HealthHandler struct {
	checks healthcheck.Handler
}

// NewHealthHandler answers "ready" from checks; checks may be nil.
func NewHealthHandler(checks healthcheck.Handler) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "ready":
		if h.checks == nil {
			writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ok"})
			return
		}
		h.checks.ReadyEndpoint(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
