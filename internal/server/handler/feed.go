package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// FeedHandler exposes recently rejected feed frames.
type FeedHandler struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewFeedHandler creates a FeedHandler.
func NewFeedHandler(bus domain.SignalBus, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{bus: bus, logger: logger}
}

type rejectEntry struct {
	ID string `json:"id"`
	domain.RejectedFrame
}

// ListRejects returns rejected frames with their parse errors. Without after
// it returns the newest, newest first; with after=<id> it pages forward,
// oldest first, from the entry following id.
// GET /api/feed/rejects?limit=20&after=1746355153000-0
func (h *FeedHandler) ListRejects(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20, 200)

	var (
		msgs []domain.StreamMessage
		err  error
	)
	if after := r.URL.Query().Get("after"); after != "" {
		msgs, err = h.bus.StreamRead(r.Context(), domain.StreamFeedRejects, after, limit)
	} else {
		msgs, err = h.bus.StreamRevRange(r.Context(), domain.StreamFeedRejects, limit)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: read rejects failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read rejected frames")
		return
	}

	out := make([]rejectEntry, 0, len(msgs))
	for _, m := range msgs {
		var rec domain.RejectedFrame
		if err := json.Unmarshal(m.Payload, &rec); err != nil {
			continue
		}
		out = append(out, rejectEntry{ID: m.ID, RejectedFrame: rec})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rejects": out})
}
