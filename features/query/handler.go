package query

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"studyrag/backend/internal/embedding"
	"studyrag/backend/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.OwnerID <= 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "owner_id is required", http.StatusBadRequest)
		return
	}

	ans, err := h.service.Ask(ctx, req)
	switch {
	case errors.Is(err, embedding.ErrEmptyInput):
		h.writeError(ctx, w, "VALIDATION_ERROR", "query is required", http.StatusBadRequest)
		return
	case errors.Is(err, ErrGeneration):
		slog.ErrorContext(ctx, "generation failed", "owner_id", req.OwnerID, "error", err)
		h.writeError(ctx, w, "GENERATION_FAILED", "Failed to generate answer", http.StatusBadGateway)
		return
	case err != nil:
		slog.ErrorContext(ctx, "query failed", "owner_id", req.OwnerID, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to answer query", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": ans}); err != nil {
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
