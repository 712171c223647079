package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/FadiShak3r/rag-system/internal/embed"
)

type Embedder struct {
	client *openai.Client
	model  string
}

func NewEmbedder(apiKey, model string) *Embedder {
	return &Embedder{client: openai.NewClient(apiKey), model: model}
}

// NewEmbedderWithClient is used by tests to point at a mock server.
func NewEmbedderWithClient(client *openai.Client, model string) *Embedder {
	return &Embedder{client: client, model: model}
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(rsp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(rsp.Data), len(texts))
	}

	// Data carries an Index per item; don't assume response order.
	out := make([][]float32, len(texts))
	for _, d := range rsp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai returned out-of-range embedding index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("openai returned no embedding for input %d", i)
		}
	}
	return out, nil
}

// classify wraps provider failures for the batcher's retry policy. Rate
// limits, timeouts and 5xx are transient; insufficient quota and auth
// failures are fatal.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &embed.ProviderError{Transient: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &embed.ProviderError{Transient: true, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if strings.Contains(strings.ToLower(apiErr.Type), "insufficient_quota") ||
			codeString(apiErr.Code) == "insufficient_quota" {
			return &embed.ProviderError{Transient: false, Err: err}
		}
		switch {
		case apiErr.HTTPStatusCode == 429:
			return &embed.ProviderError{Transient: true, Err: err}
		case apiErr.HTTPStatusCode >= 500:
			return &embed.ProviderError{Transient: true, Err: err}
		default:
			return &embed.ProviderError{Transient: false, Err: err}
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500 {
			return &embed.ProviderError{Transient: true, Err: err}
		}
		return &embed.ProviderError{Transient: false, Err: err}
	}

	return err
}

func codeString(code any) string {
	if s, ok := code.(string); ok {
		return s
	}
	return ""
}
