package storage

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

type Handler struct {
	store    *Uploads
	maxBytes int64
	logger   *slog.Logger
}

func NewHandler(store *Uploads, maxBytes int64, logger *slog.Logger) *Handler {
	return &Handler{store: store, maxBytes: maxBytes, logger: logger}
}

type uploadResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// HandleUploadImage accepts a multipart form with a single "file" part.
func (h *Handler) HandleUploadImage(w http.ResponseWriter, r *http.Request) {
	// room for the multipart envelope around the file
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+64<<10)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, ErrTooLarge.Error())
			return
		}
		h.writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer func() { _ = file.Close() }()

	key, err := h.store.Save(r.Context(), header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnsupportedType):
			h.writeError(w, http.StatusBadRequest, "only jpg, jpeg, png and webp images are allowed")
		case errors.Is(err, ErrTooLarge):
			h.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		default:
			h.logger.Error("failed to store upload", "error", err, "filename", header.Filename)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("file uploaded", "key", key, "size", header.Size)
	h.writeJSON(w, http.StatusCreated, uploadResponse{Key: key, URL: "/upload/file/" + key})
}

func (h *Handler) HandleGetFile(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	f, contentType, err := h.store.Open(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidKey), errors.Is(err, ErrNotFound):
			h.writeError(w, http.StatusNotFound, ErrNotFound.Error())
		default:
			h.logger.Error("failed to open file", "error", err, "key", key)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Error("failed to stream file", "error", err, "key", key)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
