package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/jeremyjsx/uploads/internal/fileupload"
	"github.com/jeremyjsx/uploads/internal/middleware"
)

// BackendSource yields the storage backend to use for the current request.
type BackendSource interface {
	Backend() *fileupload.Backend
}

type UploadsHandler struct {
	backends BackendSource
	logger   *slog.Logger
}

func NewUploadsHandler(backends BackendSource, logger *slog.Logger) *UploadsHandler {
	return &UploadsHandler{
		backends: backends,
		logger:   logger,
	}
}

// Upload stores the raw request body under the {key} path value. The
// {content_type} segment carries the MIME type with "/" encoded as "__".
func (h *UploadsHandler) Upload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		contentType := r.PathValue("content_type")

		body, err := io.ReadAll(r.Body)
		if err != nil {
			h.logger.Error("read upload body failed", "key", key, "error", err)
			writeInternalError(w, r)
			return
		}

		backend := h.backends.Backend()
		path, err := backend.UploadFile(r.Context(), key, body, contentType)
		if err != nil {
			h.logger.Error("upload failed",
				"key", key,
				"content_type", contentType,
				"request_id", middleware.GetRequestID(r.Context()),
				"error", err,
			)
			writeInternalError(w, r)
			return
		}

		h.logger.Debug("file uploaded",
			"key", key,
			"path", path,
			"size", len(body),
			"subject", middleware.Subject(r.Context()),
		)
		w.WriteHeader(http.StatusOK)
	}
}
