package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// HistoryHandler serves stored estimates and the audit log.
type HistoryHandler struct {
	estimates domain.EstimateStore
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(estimates domain.EstimateStore, audit domain.AuditStore, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{estimates: estimates, audit: audit, logger: logger}
}

type listEstimatesResponse struct {
	Estimates []domain.CostMetrics `json:"estimates"`
	Total     int64                `json:"total"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
}

// ListEstimates returns stored estimates newest first.
// GET /api/estimates?limit=50&offset=0
func (h *HistoryHandler) ListEstimates(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	list, err := h.estimates.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list estimates failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list estimates")
		return
	}
	total, err := h.estimates.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count estimates failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to count estimates")
		return
	}
	if list == nil {
		list = []domain.CostMetrics{}
	}

	writeJSON(w, http.StatusOK, listEstimatesResponse{
		Estimates: list,
		Total:     total,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
}

// GetEstimate returns one stored estimate.
// GET /api/estimates/{id}
func (h *HistoryHandler) GetEstimate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m, err := h.estimates.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "estimate not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get estimate failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get estimate")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ListAudit returns audit entries newest first.
// GET /api/audit?limit=50&offset=0
func (h *HistoryHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
