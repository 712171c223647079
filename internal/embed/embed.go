package embed

import (
	"context"
	"fmt"
)

// Embedder is one provider call: a batch of texts in, one vector per text
// out, same order. Implemented by the openai and gemini adapters.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ProviderError classifies a provider failure. Transient errors (rate limit,
// timeout, 5xx) are retried with backoff; everything else (bad credentials,
// quota exhausted) fails the batch immediately.
type ProviderError struct {
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s provider error: %v", kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// BatchError reports which chunks were in flight when embedding gave up.
// Attempts is 1 for fatal errors, up to maxRetries for exhausted transients.
type BatchError struct {
	ChunkIDs []string
	Attempts int
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding failed after %d attempt(s) for %d chunk(s): %v", e.Attempts, len(e.ChunkIDs), e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
