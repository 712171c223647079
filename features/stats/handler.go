package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/FadiShak3r/rag-system/features/runlog"
	"github.com/FadiShak3r/rag-system/internal/middleware"
)

const recentRunLimit = 10

type VectorStore interface {
	Count(ctx context.Context) (int, error)
}

type RunRepo interface {
	Recent(ctx context.Context, limit int) ([]runlog.Run, error)
}

type Handler struct {
	vectorStore VectorStore
	runRepo     RunRepo
}

// NewHandler builds the stats handler. runRepo may be nil when run history
// persistence is disabled.
func NewHandler(v VectorStore, r RunRepo) *Handler {
	return &Handler{vectorStore: v, runRepo: r}
}

type RunResponse struct {
	ID                int64     `json:"id"`
	StartedAt         time.Time `json:"started_at"`
	State             string    `json:"state"`
	RowsRead          int       `json:"rows_read"`
	DocumentsUpserted int       `json:"documents_upserted"`
	Cleared           bool      `json:"cleared"`
	Error             string    `json:"error,omitempty"`
	ElapsedMs         int64     `json:"elapsed_ms"`
}

type StatsResponse struct {
	Documents  int           `json:"documents"`
	RecentRuns []RunResponse `json:"recent_runs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	dCount, err := h.vectorStore.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count documents", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count documents", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{Documents: dCount, RecentRuns: []RunResponse{}}

	if h.runRepo != nil {
		runs, err := h.runRepo.Recent(ctx, recentRunLimit)
		if err != nil {
			slog.ErrorContext(ctx, "failed to load recent runs", "error", err, "correlationId", correlationID)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to load recent runs", http.StatusInternalServerError)
			return
		}
		for _, run := range runs {
			resp.RecentRuns = append(resp.RecentRuns, RunResponse{
				ID:                run.ID,
				StartedAt:         run.StartedAt,
				State:             run.State,
				RowsRead:          run.RowsRead,
				DocumentsUpserted: run.DocumentsUpserted,
				Cleared:           run.Cleared,
				Error:             run.Error,
				ElapsedMs:         run.ElapsedMs,
			})
		}
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
