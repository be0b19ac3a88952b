package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

const (
	defaultBookDepth = 5
	maxBookDepth     = 400
)

// BookSource exposes the current snapshot.
type BookSource interface {
	Current() (*domain.OrderbookSnapshot, bool)
	Version() uint64
}

// BookMirror reads a snapshot mirrored by this or a sibling process.
type BookMirror interface {
	GetSnapshot(ctx context.Context, key string) (*domain.OrderbookSnapshot, error)
}

// BookHandler serves the current order book.
type BookHandler struct {
	book      BookSource
	mirror    BookMirror
	mirrorKey string
	logger    *slog.Logger
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(book BookSource) *BookHandler {
	return &BookHandler{book: book}
}

// WithMirror makes GetBook fall back to the mirrored book under key until
// the local feed has published one. The mirror's TTL bounds how stale that
// book can be.
func (h *BookHandler) WithMirror(mirror BookMirror, key string, logger *slog.Logger) *BookHandler {
	h.mirror, h.mirrorKey, h.logger = mirror, key, logger
	return h
}

type bookResponse struct {
	domain.OrderbookSnapshot
	Version  uint64  `json:"version"`
	MidPrice float64 `json:"mid_price"`
	Crossed  bool    `json:"crossed"`
	Source   string  `json:"source,omitempty"`
}

// GetBook returns the current snapshot truncated to depth levels per side.
// GET /api/book?depth=5
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	depth := queryInt(r, "depth", defaultBookDepth, maxBookDepth)

	if snap, ok := h.book.Current(); ok {
		writeJSON(w, http.StatusOK, bookResponse{
			OrderbookSnapshot: snap.Top(depth),
			Version:           h.book.Version(),
			MidPrice:          snap.MidPrice(),
			Crossed:           snap.Crossed(),
		})
		return
	}

	if h.mirror != nil {
		snap, err := h.mirror.GetSnapshot(r.Context(), h.mirrorKey)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, bookResponse{
				OrderbookSnapshot: snap.Top(depth),
				MidPrice:          snap.MidPrice(),
				Crossed:           snap.Crossed(),
				Source:            sourceMirror,
			})
			return
		case !errors.Is(err, domain.ErrNotFound):
			h.logger.WarnContext(r.Context(), "handler: read mirrored book failed", slog.String("error", err.Error()))
		}
	}
	writeError(w, http.StatusNotFound, "no order book snapshot yet")
}
