package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"studyrag/backend/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) ListFailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	slog.InfoContext(ctx, "listing failed jobs")

	jobs, err := h.service.ListFailed(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to list jobs", http.StatusInternalServerError)
		return
	}
	h.writeJobs(ctx, w, jobs)
}

func (h *Handler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := strconv.ParseInt(r.PathValue("ownerID"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid owner id", http.StatusBadRequest)
		return
	}

	jobs, err := h.service.ListByOwner(ctx, ownerID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list owner jobs", "owner_id", ownerID, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to list jobs", http.StatusInternalServerError)
		return
	}
	h.writeJobs(ctx, w, jobs)
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid job id", http.StatusBadRequest)
		return
	}

	slog.InfoContext(ctx, "retrying job", "id", id)

	if err := h.service.Retry(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to retry job", "id", id, "error", err)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.writeError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
		case errors.Is(err, ErrNotRetryable):
			h.writeError(ctx, w, "CONFLICT", err.Error(), http.StatusConflict)
		default:
			h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to retry job", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": "job retried"}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeJobs(ctx context.Context, w http.ResponseWriter, jobs []Job) {
	if jobs == nil {
		jobs = []Job{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": jobs,
		"meta": map[string]int{"count": len(jobs)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
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
