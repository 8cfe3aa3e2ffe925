package handlers

import (
	"net/http"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
)

// StatusHandler reports which prediction endpoint the dashboard talks to
type StatusHandler struct {
	status providers.StatusSource
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(status providers.StatusSource) *StatusHandler {
	return &StatusHandler{status: status}
}

// GetStatus handles GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.status.Status())
}
