package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/FadiShak3r/rag-system/features/ask"
	"github.com/FadiShak3r/rag-system/features/runlog"
	"github.com/FadiShak3r/rag-system/features/stats"
	syncfeat "github.com/FadiShak3r/rag-system/features/sync"
	"github.com/FadiShak3r/rag-system/internal/config"
	"github.com/FadiShak3r/rag-system/internal/embed"
	"github.com/FadiShak3r/rag-system/internal/extract"
	"github.com/FadiShak3r/rag-system/internal/indexer"
	"github.com/FadiShak3r/rag-system/internal/middleware"
	"github.com/FadiShak3r/rag-system/internal/retrieval"
	"github.com/FadiShak3r/rag-system/internal/text"
)

// embedBackoffBase is the first retry delay for transient embedding
// failures; it doubles on every attempt.
const embedBackoffBase = 500 * time.Millisecond

type App struct {
	Handler      http.Handler
	Orchestrator *indexer.Orchestrator
	Scheduler    *indexer.Scheduler
	port         int
}

func New(cfg *config.Config, deps *Dependencies) (*App, error) {
	// Pipeline stages
	extractor := extract.New(deps.DB, cfg.SourceTable, cfg.SourceKeyColumn)
	chunker := text.NewChunker(cfg.SourceTable, cfg.ChunkMaxChars, cfg.ChunkOverlapChars)
	batcher := embed.NewBatcher(deps.Embedder, cfg.BatchSize, cfg.BatchDelay(), cfg.MaxRetries, embedBackoffBase)
	runRepo := runlog.NewPostgresRepo(deps.DB)

	opts := indexer.Options{
		Runs:           runRepo,
		ExtractTimeout: cfg.ExtractTimeout(),
		UpsertTimeout:  cfg.UpsertTimeout(),
	}
	if deps.NSQProducer != nil {
		opts.Publisher = deps.NSQProducer
	}
	orch := indexer.NewOrchestrator(extractor, chunker, batcher, deps.VectorStore, opts)

	hour, minute, err := config.ParseSyncTime(cfg.SyncTime)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_TIME: %w", err)
	}
	scheduler := indexer.NewScheduler(orch, hour, minute)

	// Feature: Retrieval
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(deps.Embedder, deps.VectorStore, deps.Generator, cfg.RetrievalTopK, queryLogger)

	askHandler := ask.NewHandler(retrievalService)
	statsHandler := stats.NewHandler(deps.VectorStore, runRepo)
	syncHandler := syncfeat.NewHandler(orch)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /api/query", middleware.CorrelationID(enableCORS(askHandler.PostQuery)))
	mux.Handle("GET /api/stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))
	mux.Handle("POST /api/sync", middleware.CorrelationID(enableCORS(syncHandler.PostSync)))
	mux.Handle("GET /api/sync/status", middleware.CorrelationID(enableCORS(syncHandler.GetStatus)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:      mux,
		Orchestrator: orch,
		Scheduler:    scheduler,
		port:         cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
