package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/campus-activity/checkin-engine/internal/handler/http/response"
	"github.com/campus-activity/checkin-engine/internal/pkg/storage"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type UploadHandler interface {
	Serve(w http.ResponseWriter, r *http.Request)
}

type uploadHandlerImpl struct {
	store  storage.FileStorage
	logger *zap.Logger
}

func NewUploadHandler(store storage.FileStorage, logger *zap.Logger) UploadHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &uploadHandlerImpl{store: store, logger: logger}
}

// Serve streams a stored check-in photo by its storage key.
func (h *uploadHandlerImpl) Serve(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")

	rc, err := h.store.Download(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidPath):
			response.BadRequest(w, "Invalid file path", nil)
		case errors.Is(err, storage.ErrFileNotFound):
			response.NotFound(w, "File not found")
		default:
			h.logger.Error("failed to open upload", zap.String("key", key), zap.Error(err))
			response.InternalServerError(w, "Failed to read file")
		}
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=86400")

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Debug("upload stream interrupted", zap.String("key", key), zap.Error(err))
	}
}
