package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adapter "github.com/FadiShak3r/rag-system/internal/adapter/openai"
	"github.com/FadiShak3r/rag-system/internal/embed"
)

func mockClient(t *testing.T, handler http.HandlerFunc) (*goopenai.Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	cfg := goopenai.DefaultConfig("test-key")
	cfg.BaseURL = ts.URL + "/v1"
	return goopenai.NewClientWithConfig(cfg), ts
}

func TestEmbedBatch_Success(t *testing.T) {
	client, ts := mockClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		inputs := req["input"].([]any)
		assert.Len(t, inputs, 2)

		// Respond out of order to exercise index handling
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float32{0.3, 0.4}},
				{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2}},
			},
			"model": "text-embedding-3-small",
		})
	})
	defer ts.Close()

	e := adapter.NewEmbedderWithClient(client, "text-embedding-3-small")
	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vecs[0])
	assert.Equal(t, []float32{0.3, 0.4}, vecs[1])
}

func TestEmbedBatch_RateLimitIsTransient(t *testing.T) {
	client, ts := mockClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "Rate limit reached", "type": "requests"}}`))
	})
	defer ts.Close()

	e := adapter.NewEmbedderWithClient(client, "text-embedding-3-small")
	_, err := e.EmbedBatch(context.Background(), []string{"text"})

	var perr *embed.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Transient)
}

func TestEmbedBatch_QuotaIsFatal(t *testing.T) {
	client, ts := mockClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "You exceeded your current quota", "type": "insufficient_quota", "code": "insufficient_quota"}}`))
	})
	defer ts.Close()

	e := adapter.NewEmbedderWithClient(client, "text-embedding-3-small")
	_, err := e.EmbedBatch(context.Background(), []string{"text"})

	var perr *embed.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Transient)
}

func TestEmbedBatch_BadKeyIsFatal(t *testing.T) {
	client, ts := mockClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`))
	})
	defer ts.Close()

	e := adapter.NewEmbedderWithClient(client, "text-embedding-3-small")
	_, err := e.EmbedBatch(context.Background(), []string{"text"})

	var perr *embed.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Transient)
}

func TestEmbedBatch_ServerErrorIsTransient(t *testing.T) {
	client, ts := mockClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error": {"message": "upstream error", "type": "server_error"}}`))
	})
	defer ts.Close()

	e := adapter.NewEmbedderWithClient(client, "text-embedding-3-small")
	_, err := e.EmbedBatch(context.Background(), []string{"text"})

	var perr *embed.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Transient)
}

func TestGenerator_Complete(t *testing.T) {
	client, ts := mockClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "There are 3 products."}},
			},
		})
	})
	defer ts.Close()

	g := adapter.NewGeneratorWithClient(client, "gpt-4o-mini")
	answer, err := g.Complete(context.Background(), "You answer from context.", "How many products?")
	require.NoError(t, err)
	assert.Equal(t, "There are 3 products.", answer)
}
