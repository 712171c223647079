package sync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/FadiShak3r/rag-system/internal/indexer"
	"github.com/FadiShak3r/rag-system/internal/middleware"
)

type Trigger interface {
	RunOnce(ctx context.Context, clear bool) (*indexer.Summary, error)
	State() indexer.State
}

type Handler struct {
	trigger Trigger
}

func NewHandler(t Trigger) *Handler {
	return &Handler{trigger: t}
}

type SyncRequest struct {
	Clear bool `json:"clear"`
}

// PostSync runs a full pipeline pass and reports its summary. The run is
// synchronous; a second request while one is in flight gets 409.
func (h *Handler) PostSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req SyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(ctx, w, "INVALID_REQUEST", "invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	slog.InfoContext(ctx, "sync requested", "clear", req.Clear, "correlationId", correlationID)

	summary, err := h.trigger.RunOnce(ctx, req.Clear)
	if err != nil {
		if errors.Is(err, indexer.ErrRunInProgress) {
			h.writeError(ctx, w, "SYNC_IN_PROGRESS", "a sync run is already in progress", http.StatusConflict)
			return
		}
		slog.ErrorContext(ctx, "sync run failed", "error", err, "correlationId", correlationID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		resp := map[string]interface{}{
			"error": map[string]string{
				"code":    "SYNC_FAILED",
				"message": indexer.FailureKind(err) + " failure during sync",
			},
			"data":          summary,
			"correlationId": correlationID,
		}
		if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
			slog.Error("failed to encode error response", "error", encErr)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": summary}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// GetStatus reports the current pipeline stage.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": map[string]string{"state": string(h.trigger.State())},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
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
