package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jeremyjsx/uploads/internal/storage"
)

type MediaHandler struct {
	backends BackendSource
	logger   *slog.Logger
}

func NewMediaHandler(backends BackendSource, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{
		backends: backends,
		logger:   logger,
	}
}

// Serve streams a stored object for providers whose download URLs point back
// at this service (filesystem and postgres).
func (h *MediaHandler) Serve() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(r.PathValue("path"), "/")
		if path == "" {
			writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "path is required")
			return
		}

		opener, ok := h.backends.Backend().Provider().(storage.Opener)
		if !ok {
			writeError(w, r, http.StatusNotImplemented, "NOT_IMPLEMENTED", "storage provider does not serve files")
			return
		}

		body, contentType, err := opener.Open(r.Context(), path)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, r, http.StatusNotFound, "NOT_FOUND", "file not found")
				return
			}
			h.logger.Error("open file failed", "path", path, "error", err)
			writeInternalError(w, r)
			return
		}
		defer body.Close()

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, body); err != nil {
			h.logger.Warn("write file failed", "path", path, "error", err)
		}
	}
}
