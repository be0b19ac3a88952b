package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// EstimateService is the slice of the estimator the handlers need.
type EstimateService interface {
	Latest() (domain.CostMetrics, bool)
	Estimate(ctx context.Context, p domain.TradeParameters) (domain.CostMetrics, error)
	Parameters() domain.TradeParameters
	SetParameters(ctx context.Context, p domain.TradeParameters) error
}

// sourceMirror marks a response served from the Redis mirror rather than
// this process's own state.
const sourceMirror = "mirror"

// EstimateMirror reads the latest estimate mirrored to the metrics cache.
type EstimateMirror interface {
	GetLatest(ctx context.Context, key string) (domain.CostMetrics, error)
}

// EstimateHandler serves estimates and the live trade parameters.
type EstimateHandler struct {
	svc       EstimateService
	mirror    EstimateMirror
	mirrorKey string
	logger    *slog.Logger
}

// NewEstimateHandler creates an EstimateHandler.
func NewEstimateHandler(svc EstimateService, logger *slog.Logger) *EstimateHandler {
	return &EstimateHandler{svc: svc, logger: logger}
}

// WithMirror makes GetLatest fall back to the mirrored estimate under key
// until the local compute loop has produced one.
func (h *EstimateHandler) WithMirror(mirror EstimateMirror, key string) *EstimateHandler {
	h.mirror, h.mirrorKey = mirror, key
	return h
}

type estimateResponse struct {
	domain.CostMetrics
	NetCostBps float64 `json:"net_cost_bps"`
	Source     string  `json:"source,omitempty"`
}

func newEstimateResponse(m domain.CostMetrics) estimateResponse {
	return estimateResponse{CostMetrics: m, NetCostBps: m.NetCostBps()}
}

// GetLatest returns the most recent estimate from the compute loop.
// GET /api/estimate
func (h *EstimateHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	if m, ok := h.svc.Latest(); ok {
		writeJSON(w, http.StatusOK, newEstimateResponse(m))
		return
	}

	if h.mirror != nil {
		m, err := h.mirror.GetLatest(r.Context(), h.mirrorKey)
		switch {
		case err == nil:
			resp := newEstimateResponse(m)
			resp.Source = sourceMirror
			writeJSON(w, http.StatusOK, resp)
			return
		case !errors.Is(err, domain.ErrNotFound):
			h.logger.WarnContext(r.Context(), "handler: read mirrored estimate failed", slog.String("error", err.Error()))
		}
	}
	writeError(w, http.StatusNotFound, "no estimate yet")
}

// PostEstimate computes a one-off estimate for the posted parameters
// against the current book. Missing fields default to the live parameters.
// POST /api/estimate
func (h *EstimateHandler) PostEstimate(w http.ResponseWriter, r *http.Request) {
	p := h.svc.Parameters()
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := h.svc.Estimate(r.Context(), p)
	if err != nil {
		writeEstimateError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newEstimateResponse(m))
}

// GetParams returns the live trade parameters.
// GET /api/params
func (h *EstimateHandler) GetParams(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Parameters())
}

// PutParams replaces the live trade parameters, which triggers a recompute.
// Missing fields keep their current value.
// PUT /api/params
func (h *EstimateHandler) PutParams(w http.ResponseWriter, r *http.Request) {
	p := h.svc.Parameters()
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.SetParameters(r.Context(), p); err != nil {
		writeEstimateError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Parameters())
}
