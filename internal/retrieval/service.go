package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type SearchResult struct {
	Content  string  `json:"content"`
	DocID    string  `json:"doc_id"`
	Table    string  `json:"table"`
	RowKey   string  `json:"row_key"`
	Distance float32 `json:"distance"`
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorStore interface {
	Search(ctx context.Context, queryVector []float32, limit int) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
}

type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Service struct {
	embedder  Embedder
	store     VectorStore
	generator Generator
	topK      int
	logger    *QueryLogger
}

func NewService(e Embedder, s VectorStore, g Generator, topK int, l *QueryLogger) *Service {
	if topK < 1 {
		topK = 10
	}
	return &Service{embedder: e, store: s, generator: g, topK: topK, logger: l}
}

const systemPrompt = `You are a database assistant. Answer the question using only the provided context rows. If the context does not contain the answer, say so instead of guessing.`

// Ask embeds the question with the same provider used at index time,
// retrieves the nearest rows, and asks the chat model to answer from them.
func (s *Service) Ask(ctx context.Context, question string) (string, []SearchResult, error) {
	start := time.Now()
	var results []SearchResult
	var err error

	defer func() {
		if s.logger != nil && err == nil {
			s.logger.Log(QueryLogEntry{
				Query:      question,
				NumResults: len(results),
				Duration:   time.Since(start),
			})
		}
	}()

	limit := s.topK
	if isAggregation(question) {
		// Aggregation questions need broad context, not just the nearest rows.
		limit = 50
		if count, cerr := s.store.Count(ctx); cerr == nil && count > 0 && count < limit {
			limit = count
		}
	}

	vecs, err := s.embedder.EmbedBatch(ctx, []string{question})
	if err != nil {
		return "", nil, fmt.Errorf("embedding question: %w", err)
	}

	results, err = s.store.Search(ctx, vecs[0], limit)
	if err != nil {
		return "", nil, fmt.Errorf("searching index: %w", err)
	}

	if len(results) == 0 {
		return "I couldn't find any relevant information in the database to answer your question.", nil, nil
	}

	var sb strings.Builder
	sb.WriteString("Context:\n")
	for _, r := range results {
		sb.WriteString("- ")
		sb.WriteString(r.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)

	answer, err := s.generator.Complete(ctx, systemPrompt, sb.String())
	if err != nil {
		return "", nil, fmt.Errorf("generating answer: %w", err)
	}

	return answer, results, nil
}

// Stats reports the index size for the stats endpoint.
func (s *Service) Stats(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

var aggregationWords = []string{"total", "sum", "all", "top", "highest", "lowest", "average", "most", "least", "how many"}

func isAggregation(question string) bool {
	q := strings.ToLower(question)
	for _, w := range aggregationWords {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}
