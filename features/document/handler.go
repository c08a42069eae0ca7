package document

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"studyrag/backend/internal/extract"
	"studyrag/backend/internal/middleware"
	"studyrag/backend/internal/worker"
)

type Handler struct {
	service  *Service
	maxBytes int64
}

func NewHandler(service *Service, maxUploadMB int64) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &Handler{service: service, maxBytes: maxUploadMB << 20}
}

// Upload accepts a multipart form with fields document_id, title (optional)
// and file, and answers 202 once the document is queued.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := strconv.ParseInt(r.PathValue("ownerID"), 10, 64)
	if err != nil || ownerID <= 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid owner id", http.StatusBadRequest)
		return
	}

	if r.ContentLength > h.maxBytes {
		h.writeError(ctx, w, "PAYLOAD_TOO_LARGE", "File too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(ctx, w, "PAYLOAD_TOO_LARGE", "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.writeError(ctx, w, "BAD_REQUEST", "Invalid multipart form", http.StatusBadRequest)
		return
	}

	documentID, err := strconv.ParseInt(r.FormValue("document_id"), 10, 64)
	if err != nil || documentID <= 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "document_id is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mediaType := extract.DetectMediaType(header.Filename)
	if mediaType == "" {
		if ct, _, err := mime.ParseMediaType(header.Header.Get("Content-Type")); err == nil {
			mediaType = ct
		}
	}
	if extensionFor(mediaType) == "" {
		h.writeError(ctx, w, "UNSUPPORTED_MEDIA_TYPE", "Unsupported file type", http.StatusUnsupportedMediaType)
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = header.Filename
	}

	meta, err := h.service.Index(ctx, worker.DocumentMeta{
		ID:        documentID,
		OwnerID:   ownerID,
		Title:     title,
		MediaType: mediaType,
	}, file)
	if err != nil {
		slog.ErrorContext(ctx, "failed to queue document", "document_id", documentID, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to queue document", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": meta}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := strconv.ParseInt(r.PathValue("ownerID"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid owner id", http.StatusBadRequest)
		return
	}
	documentID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid document id", http.StatusBadRequest)
		return
	}

	if err := h.service.Delete(ctx, ownerID, documentID); err != nil {
		slog.ErrorContext(ctx, "failed to delete document", "document_id", documentID, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to delete document", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
