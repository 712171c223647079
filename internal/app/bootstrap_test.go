package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	wstore "github.com/FadiShak3r/rag-system/internal/adapter/weaviate"
	"github.com/FadiShak3r/rag-system/internal/config"
	"github.com/FadiShak3r/rag-system/internal/retrieval"
)

type flakySchemaStore struct {
	failures int
	calls    int
}

func (f *flakySchemaStore) EnsureSchema(ctx context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("weaviate not ready")
	}
	return nil
}

func (f *flakySchemaStore) Upsert(ctx context.Context, entries []wstore.Entry) error { return nil }
func (f *flakySchemaStore) Clear(ctx context.Context) error                          { return nil }
func (f *flakySchemaStore) Count(ctx context.Context) (int, error)                   { return 0, nil }
func (f *flakySchemaStore) Search(ctx context.Context, queryVector []float32, limit int) ([]retrieval.SearchResult, error) {
	return nil, nil
}

func TestEnsureSchemaWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		store := &flakySchemaStore{failures: 2}
		err := EnsureSchemaWithRetry(context.Background(), store, 5, time.Millisecond)
		assert.NoError(t, err)
		assert.Equal(t, 3, store.calls)
	})

	t.Run("gives up after attempts exhausted", func(t *testing.T) {
		store := &flakySchemaStore{failures: 10}
		err := EnsureSchemaWithRetry(context.Background(), store, 3, time.Millisecond)
		assert.Error(t, err)
		assert.Equal(t, 3, store.calls)
	})
}

func TestBootstrapProvider(t *testing.T) {
	t.Run("openai requires api key", func(t *testing.T) {
		cfg := &config.Config{EmbeddingProvider: "openai"}
		err := bootstrapProvider(context.Background(), cfg, &Dependencies{})
		assert.ErrorContains(t, err, "OPENAI_API_KEY")
	})

	t.Run("gemini requires api key", func(t *testing.T) {
		cfg := &config.Config{EmbeddingProvider: "gemini"}
		err := bootstrapProvider(context.Background(), cfg, &Dependencies{})
		assert.ErrorContains(t, err, "GEMINI_API_KEY")
	})

	t.Run("openai wires embedder and generator", func(t *testing.T) {
		cfg := &config.Config{
			EmbeddingProvider: "openai",
			OpenAIAPIKey:      "sk-test",
			EmbeddingModel:    "text-embedding-3-small",
			ChatModel:         "gpt-4o-mini",
		}
		deps := &Dependencies{}
		err := bootstrapProvider(context.Background(), cfg, deps)
		assert.NoError(t, err)
		assert.NotNil(t, deps.Embedder)
		assert.NotNil(t, deps.Generator)
	})

	t.Run("unknown provider rejected", func(t *testing.T) {
		cfg := &config.Config{EmbeddingProvider: "cohere"}
		err := bootstrapProvider(context.Background(), cfg, &Dependencies{})
		assert.Error(t, err)
	})
}
