package ask

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/FadiShak3r/rag-system/internal/middleware"
	"github.com/FadiShak3r/rag-system/internal/retrieval"
)

type Answerer interface {
	Ask(ctx context.Context, question string) (string, []retrieval.SearchResult, error)
}

type Handler struct {
	svc Answerer
}

func NewHandler(svc Answerer) *Handler {
	return &Handler{svc: svc}
}

type QueryRequest struct {
	Question string `json:"question"`
}

type SourceResponse struct {
	Content  string  `json:"content"`
	DocID    string  `json:"doc_id"`
	Table    string  `json:"table"`
	RowKey   string  `json:"row_key"`
	Distance float32 `json:"distance"`
}

type QueryResponse struct {
	Answer  string           `json:"answer"`
	Sources []SourceResponse `json:"sources"`
}

func (h *Handler) PostQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "INVALID_REQUEST", "invalid JSON body", http.StatusBadRequest)
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		h.writeError(ctx, w, "INVALID_REQUEST", "question is required", http.StatusBadRequest)
		return
	}

	slog.InfoContext(ctx, "answering query", "correlationId", correlationID)

	answer, results, err := h.svc.Ask(ctx, req.Question)
	if err != nil {
		slog.ErrorContext(ctx, "failed to answer query", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to answer query", http.StatusInternalServerError)
		return
	}

	resp := QueryResponse{Answer: answer, Sources: make([]SourceResponse, 0, len(results))}
	for _, res := range results {
		resp.Sources = append(resp.Sources, SourceResponse{
			Content:  res.Content,
			DocID:    res.DocID,
			Table:    res.Table,
			RowKey:   res.RowKey,
			Distance: res.Distance,
		})
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
