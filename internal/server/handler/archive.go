package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
)

// archivePrefix is where archived estimate files live in the bucket.
const archivePrefix = "archive/estimates/"

// ArchiveTrigger requests an archive run.
type ArchiveTrigger interface {
	Trigger() bool
}

// ArchiveHandler lists archived estimate files and triggers archive runs.
type ArchiveHandler struct {
	reader  domain.BlobReader
	trigger ArchiveTrigger
	logger  *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(reader domain.BlobReader, trigger ArchiveTrigger, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{reader: reader, trigger: trigger, logger: logger}
}

// ListArchives returns the archived estimate files.
// GET /api/archive
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.reader.List(r.Context(), archivePrefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to list archives")
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": infos})
}

// DownloadArchive streams one archived JSONL file. The path is relative to
// the archive prefix, as in 2025-05-04/1746355153000000000-5000.jsonl.
// GET /api/archive/files/{path...}
func (h *ArchiveHandler) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	rel := r.PathValue("path")
	if rel == "" || slices.Contains(strings.Split(rel, "/"), "..") {
		writeError(w, http.StatusBadRequest, "invalid archive path")
		return
	}
	key := archivePrefix + rel

	body, err := h.reader.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive file not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get archive failed",
			slog.String("path", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to read archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive download interrupted",
			slog.String("path", key),
			slog.String("error", err.Error()),
		)
	}
}

// TriggerArchive enqueues one archive run.
// POST /api/archive/run
func (h *ArchiveHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	queued := h.trigger.Trigger()
	h.logger.InfoContext(r.Context(), "handler: archive run requested", slog.Bool("queued", queued))

	msg := "archive run enqueued"
	if !queued {
		msg = "archive run already pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      msg,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
