package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wstore "github.com/FadiShak3r/rag-system/internal/adapter/weaviate"
	"github.com/FadiShak3r/rag-system/internal/config"
	"github.com/FadiShak3r/rag-system/internal/retrieval"
)

type stubVectorStore struct{}

func (stubVectorStore) Upsert(ctx context.Context, entries []wstore.Entry) error { return nil }
func (stubVectorStore) Clear(ctx context.Context) error                          { return nil }
func (stubVectorStore) Count(ctx context.Context) (int, error)                   { return 0, nil }
func (stubVectorStore) EnsureSchema(ctx context.Context) error                   { return nil }
func (stubVectorStore) Search(ctx context.Context, queryVector []float32, limit int) ([]retrieval.SearchResult, error) {
	return nil, nil
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

type stubGenerator struct{}

func (stubGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	return "", nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		SourceTable:     "products",
		SourceKeyColumn: "id",
		BatchSize:       10,
		ChunkMaxChars:   4000,
		SyncTime:        "02:00",
		ServerPort:      8081,
		QueryLogPath:    t.TempDir() + "/query.log",
		RetrievalTopK:   10,
	}
	return cfg
}

func newTestApp(t *testing.T) (*App, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	deps := &Dependencies{
		DB:          db,
		VectorStore: stubVectorStore{},
		Embedder:    stubEmbedder{},
		Generator:   stubGenerator{},
	}

	a, err := New(testConfig(t), deps)
	require.NoError(t, err)
	return a, mock
}

func expectRecentRuns(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT (.+) FROM sync_runs ORDER BY started_at DESC").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "started_at", "finished_at", "state", "rows_read",
			"chunks_produced", "documents_upserted", "cleared", "error", "elapsed_ms",
		}))
}

func TestNew_WiresRoutes(t *testing.T) {
	a, mock := newTestApp(t)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/stats", http.StatusOK},
		{http.MethodGet, "/api/sync/status", http.StatusOK},
		{http.MethodPost, "/api/query", http.StatusBadRequest}, // no body
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if tt.path == "/api/stats" {
				expectRecentRuns(mock)
			}
			rec := httptest.NewRecorder()
			a.Handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestNew_CORSHeaders(t *testing.T) {
	a, mock := newTestApp(t)
	expectRecentRuns(mock)

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNew_InvalidSyncTime(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := testConfig(t)
	cfg.SyncTime = "25:99"

	_, err = New(cfg, &Dependencies{
		DB:          db,
		VectorStore: stubVectorStore{},
		Embedder:    stubEmbedder{},
		Generator:   stubGenerator{},
	})
	assert.Error(t, err)
}
