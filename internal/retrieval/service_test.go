package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FadiShak3r/rag-system/internal/retrieval"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{0.1, 0.2}
	}
	return vecs, nil
}

type fakeStore struct {
	results   []retrieval.SearchResult
	count     int
	lastLimit int
}

func (f *fakeStore) Search(ctx context.Context, vec []float32, limit int) ([]retrieval.SearchResult, error) {
	f.lastLimit = limit
	return f.results, nil
}

func (f *fakeStore) Count(ctx context.Context) (int, error) { return f.count, nil }

type fakeGenerator struct {
	lastUser string
	answer   string
	err      error
}

func (f *fakeGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	f.lastUser = user
	return f.answer, f.err
}

func TestAsk_AnswersFromContext(t *testing.T) {
	store := &fakeStore{
		results: []retrieval.SearchResult{
			{Content: "Table: products. Name: Mountain Bike. List Price: 1200.5.", DocID: "products:1", RowKey: "1"},
		},
		count: 3,
	}
	gen := &fakeGenerator{answer: "The Mountain Bike costs 1200.5."}
	svc := retrieval.NewService(&fakeEmbedder{}, store, gen, 10, nil)

	answer, results, err := svc.Ask(context.Background(), "What does the Mountain Bike cost?")
	require.NoError(t, err)
	assert.Equal(t, "The Mountain Bike costs 1200.5.", answer)
	require.Len(t, results, 1)
	assert.Contains(t, gen.lastUser, "Mountain Bike")
	assert.Contains(t, gen.lastUser, "What does the Mountain Bike cost?")
	assert.Equal(t, 10, store.lastLimit)
}

func TestAsk_AggregationWidensLimit(t *testing.T) {
	store := &fakeStore{
		results: []retrieval.SearchResult{{Content: "Table: products."}},
		count:   200,
	}
	svc := retrieval.NewService(&fakeEmbedder{}, store, &fakeGenerator{answer: "42"}, 10, nil)

	_, _, err := svc.Ask(context.Background(), "How many products are there in total?")
	require.NoError(t, err)
	assert.Equal(t, 50, store.lastLimit)
}

func TestAsk_AggregationClampsToIndexSize(t *testing.T) {
	store := &fakeStore{
		results: []retrieval.SearchResult{{Content: "Table: products."}},
		count:   7,
	}
	svc := retrieval.NewService(&fakeEmbedder{}, store, &fakeGenerator{answer: "7"}, 10, nil)

	_, _, err := svc.Ask(context.Background(), "What is the average price?")
	require.NoError(t, err)
	assert.Equal(t, 7, store.lastLimit)
}

func TestAsk_EmptyIndex(t *testing.T) {
	svc := retrieval.NewService(&fakeEmbedder{}, &fakeStore{}, &fakeGenerator{}, 10, nil)

	answer, results, err := svc.Ask(context.Background(), "Anything?")
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Contains(t, answer, "couldn't find")
}

func TestAsk_EmbedderFailure(t *testing.T) {
	svc := retrieval.NewService(&fakeEmbedder{err: errors.New("provider down")}, &fakeStore{}, &fakeGenerator{}, 10, nil)

	_, _, err := svc.Ask(context.Background(), "Anything?")
	assert.ErrorContains(t, err, "embedding question")
}

func TestAsk_GeneratorFailure(t *testing.T) {
	store := &fakeStore{results: []retrieval.SearchResult{{Content: "row"}}}
	svc := retrieval.NewService(&fakeEmbedder{}, store, &fakeGenerator{err: errors.New("chat down")}, 10, nil)

	_, _, err := svc.Ask(context.Background(), "Anything?")
	assert.ErrorContains(t, err, "generating answer")
}
