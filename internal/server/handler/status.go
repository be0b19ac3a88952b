package handler

import (
	"net/http"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// StatusSource reports the service status.
type StatusSource interface {
	Status() domain.ServiceStatus
}

// StatusHandler serves the service status for the dashboard.
type StatusHandler struct {
	source StatusSource
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// GetStatus responds with mode, feed health and counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.source.Status())
}
