package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FadiShak3r/rag-system/internal/text"
)

// Batcher partitions chunks into consecutive batches of size <= batchSize,
// calls the provider once per batch, and waits delay between calls to respect
// rate limits. Transient failures back off exponentially from baseDelay,
// doubling per attempt, up to maxRetries.
type Batcher struct {
	embedder   Embedder
	batchSize  int
	delay      time.Duration
	maxRetries int
	baseDelay  time.Duration
}

func NewBatcher(e Embedder, batchSize int, delay time.Duration, maxRetries int, baseDelay time.Duration) *Batcher {
	if batchSize < 1 {
		batchSize = 1
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Batcher{
		embedder:   e,
		batchSize:  batchSize,
		delay:      delay,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// EmbedChunks returns exactly one vector per chunk, order preserved.
// Cancellation is honored between batches only: a batch that started is
// carried to completion so its upsert stays independently complete.
func (b *Batcher) EmbedChunks(ctx context.Context, chunks []text.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))

	totalBatches := (len(chunks) + b.batchSize - 1) / b.batchSize
	for i := 0; i < len(chunks); i += b.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := i + b.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]
		batchNum := i/b.batchSize + 1

		vecs, err := b.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vecs...)

		slog.InfoContext(ctx, "batch embedded",
			"batch", batchNum, "total_batches", totalBatches, "texts", len(batch))

		if end < len(chunks) && b.delay > 0 {
			if err := sleep(ctx, b.delay); err != nil {
				return nil, err
			}
		}
	}

	return vectors, nil
}

func (b *Batcher) embedBatch(ctx context.Context, batch []text.Chunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		vecs, err := b.embedder.EmbedBatch(ctx, texts)
		if err == nil {
			if len(vecs) != len(texts) {
				return nil, &BatchError{
					ChunkIDs: chunkIDs(batch),
					Attempts: attempt,
					Err:      fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(texts)),
				}
			}
			return vecs, nil
		}
		lastErr = err

		var perr *ProviderError
		if !errors.As(err, &perr) || !perr.Transient {
			return nil, &BatchError{ChunkIDs: chunkIDs(batch), Attempts: attempt, Err: err}
		}

		if attempt == b.maxRetries {
			break
		}

		wait := b.baseDelay << (attempt - 1)
		slog.WarnContext(ctx, "transient embedding error, backing off",
			"attempt", attempt, "max_retries", b.maxRetries, "wait", wait, "error", err)
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, &BatchError{ChunkIDs: chunkIDs(batch), Attempts: b.maxRetries, Err: lastErr}
}

func chunkIDs(chunks []text.Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
