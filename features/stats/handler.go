package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"studyrag/backend/features/job"
	"studyrag/backend/internal/middleware"
	"studyrag/backend/internal/vector"
)

type VectorStats interface {
	Stats(ctx context.Context, ownerID int64) (vector.Stats, error)
}

type JobLister interface {
	ListByOwner(ctx context.Context, ownerID int64) ([]job.Job, error)
}

type Handler struct {
	index VectorStats
	jobs  JobLister
}

func NewHandler(v VectorStats, j JobLister) *Handler {
	return &Handler{index: v, jobs: j}
}

type StatsResponse struct {
	OwnerID         int64          `json:"ownerId"`
	TotalVectors    int            `json:"totalVectors"`
	UniqueDocuments int            `json:"uniqueDocuments"`
	Jobs            map[string]int `json:"jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := strconv.ParseInt(r.PathValue("ownerID"), 10, 64)
	if err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid owner id", http.StatusBadRequest)
		return
	}

	slog.InfoContext(ctx, "getting stats", "owner_id", ownerID)

	vs, err := h.index.Stats(ctx, ownerID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read vector stats", "owner_id", ownerID, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to read vector stats", http.StatusInternalServerError)
		return
	}

	jobs, err := h.jobs.ListByOwner(ctx, ownerID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list jobs", "owner_id", ownerID, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to list jobs", http.StatusInternalServerError)
		return
	}

	byStatus := map[string]int{}
	for _, j := range jobs {
		byStatus[j.Status]++
	}

	resp := StatsResponse{
		OwnerID:         ownerID,
		TotalVectors:    vs.TotalVectors,
		UniqueDocuments: vs.UniqueDocuments,
		Jobs:            byStatus,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
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
