package indexer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/FadiShak3r/rag-system/features/runlog"
	wstore "github.com/FadiShak3r/rag-system/internal/adapter/weaviate"
	"github.com/FadiShak3r/rag-system/internal/embed"
	"github.com/FadiShak3r/rag-system/internal/extract"
	"github.com/FadiShak3r/rag-system/internal/text"
)

// ErrRunInProgress is returned when a manual run collides with a scheduled
// one. Concurrent runs against the same index are never allowed.
var ErrRunInProgress = errors.New("a sync run is already in progress")

type State string

const (
	StateIdle       State = "idle"
	StateExtracting State = "extracting"
	StateChunking   State = "chunking"
	StateEmbedding  State = "embedding"
	StateUpserting  State = "upserting"
)

// Summary is the structured outcome of one run, success or failure.
type Summary struct {
	Succeeded         bool          `json:"succeeded"`
	FailedStage       State         `json:"failed_stage,omitempty"`
	RowsRead          int           `json:"rows_read"`
	ChunksProduced    int           `json:"chunks_produced"`
	DocumentsUpserted int           `json:"documents_upserted"`
	Cleared           bool          `json:"cleared"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	Elapsed           time.Duration `json:"elapsed_ns"`
	Error             string        `json:"error,omitempty"`
}

type RowSource interface {
	FetchRows(ctx context.Context) ([]extract.RowRecord, error)
}

type Chunker interface {
	ChunkRow(rec extract.RowRecord) []text.Chunk
}

type Batcher interface {
	EmbedChunks(ctx context.Context, chunks []text.Chunk) ([][]float32, error)
}

type VectorStore interface {
	Upsert(ctx context.Context, entries []wstore.Entry) error
	Clear(ctx context.Context) error
}

// Options carry the optional collaborators and per-stage timeouts.
type Options struct {
	Runs           runlog.Repository
	Publisher      EventPublisher
	ExtractTimeout time.Duration
	UpsertTimeout  time.Duration
	UpsertBatch    int
}

// Orchestrator owns one run of the extract -> chunk -> embed -> upsert
// pipeline. Stages are strictly sequential; each stage error aborts the run
// and leaves previously committed entries untouched.
type Orchestrator struct {
	source  RowSource
	chunker Chunker
	batcher Batcher
	store   VectorStore
	opts    Options

	mu    sync.Mutex
	state State
	stMu  sync.Mutex
}

func NewOrchestrator(source RowSource, chunker Chunker, batcher Batcher, store VectorStore, opts Options) *Orchestrator {
	if opts.UpsertBatch < 1 {
		opts.UpsertBatch = 100
	}
	return &Orchestrator{
		source:  source,
		chunker: chunker,
		batcher: batcher,
		store:   store,
		opts:    opts,
		state:   StateIdle,
	}
}

// State reports the stage the current run is in, Idle between runs.
func (o *Orchestrator) State() State {
	o.stMu.Lock()
	defer o.stMu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(ctx context.Context, s State) {
	o.stMu.Lock()
	o.state = s
	o.stMu.Unlock()
	if s != StateIdle {
		slog.InfoContext(ctx, "sync stage", "state", string(s))
	}
}

// RunOnce runs the full pipeline synchronously. clear wipes the index before
// writing, for a full reindex. Returns the summary in both outcomes; err is
// non-nil when the run failed.
func (o *Orchestrator) RunOnce(ctx context.Context, clear bool) (*Summary, error) {
	if !o.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer o.mu.Unlock()
	defer o.setState(context.Background(), StateIdle)

	summary := &Summary{StartedAt: time.Now(), Cleared: clear}

	fail := func(stage State, err error) (*Summary, error) {
		summary.Succeeded = false
		summary.FailedStage = stage
		summary.Error = err.Error()
		o.finish(ctx, summary)
		return summary, err
	}

	// Extract
	o.setState(ctx, StateExtracting)
	extractCtx, cancel := o.stageContext(ctx, o.opts.ExtractTimeout)
	records, err := o.source.FetchRows(extractCtx)
	cancel()
	if err != nil {
		return fail(StateExtracting, err)
	}
	summary.RowsRead = len(records)

	// Chunk
	o.setState(ctx, StateChunking)
	var chunks []text.Chunk
	for _, rec := range records {
		chunks = append(chunks, o.chunker.ChunkRow(rec)...)
	}
	summary.ChunksProduced = len(chunks)

	// Embed
	o.setState(ctx, StateEmbedding)
	vectors, err := o.batcher.EmbedChunks(ctx, chunks)
	if err != nil {
		return fail(StateEmbedding, err)
	}

	// Upsert
	o.setState(ctx, StateUpserting)
	if clear {
		upsertCtx, cancel := o.stageContext(ctx, o.opts.UpsertTimeout)
		err := o.store.Clear(upsertCtx)
		cancel()
		if err != nil {
			return fail(StateUpserting, err)
		}
	}

	entries := make([]wstore.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = wstore.Entry{Chunk: c, Vector: vectors[i]}
	}

	for i := 0; i < len(entries); i += o.opts.UpsertBatch {
		if err := ctx.Err(); err != nil {
			return fail(StateUpserting, err)
		}
		end := i + o.opts.UpsertBatch
		if end > len(entries) {
			end = len(entries)
		}
		upsertCtx, cancel := o.stageContext(ctx, o.opts.UpsertTimeout)
		err := o.store.Upsert(upsertCtx, entries[i:end])
		cancel()
		if err != nil {
			return fail(StateUpserting, err)
		}
		summary.DocumentsUpserted = end
	}

	summary.Succeeded = true
	o.finish(ctx, summary)
	return summary, nil
}

func (o *Orchestrator) finish(ctx context.Context, summary *Summary) {
	summary.FinishedAt = time.Now()
	summary.Elapsed = summary.FinishedAt.Sub(summary.StartedAt)

	if summary.Succeeded {
		slog.InfoContext(ctx, "sync run completed",
			"rows", summary.RowsRead,
			"chunks", summary.ChunksProduced,
			"documents", summary.DocumentsUpserted,
			"cleared", summary.Cleared,
			"elapsed", summary.Elapsed)
	} else {
		slog.ErrorContext(ctx, "sync run failed",
			"stage", string(summary.FailedStage),
			"error", summary.Error,
			"elapsed", summary.Elapsed)
	}

	if o.opts.Runs != nil {
		state := "succeeded"
		if !summary.Succeeded {
			state = "failed"
		}
		run := &runlog.Run{
			StartedAt:         summary.StartedAt,
			FinishedAt:        summary.FinishedAt,
			State:             state,
			RowsRead:          summary.RowsRead,
			ChunksProduced:    summary.ChunksProduced,
			DocumentsUpserted: summary.DocumentsUpserted,
			Cleared:           summary.Cleared,
			Error:             summary.Error,
			ElapsedMs:         summary.Elapsed.Milliseconds(),
		}
		// Bookkeeping only: a failed save must not fail the run.
		if err := o.opts.Runs.Save(ctx, run); err != nil {
			slog.WarnContext(ctx, "failed to record sync run", "error", err)
		}
	}

	publishSummary(ctx, o.opts.Publisher, summary)
}

func (o *Orchestrator) stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// FailureKind names the error class for operator-facing output: connection,
// query, embedding, upsert, or internal.
func FailureKind(err error) string {
	var qerr *extract.QueryError
	var berr *embed.BatchError
	var uerr *wstore.UpsertError
	switch {
	case errors.Is(err, extract.ErrConnection):
		return "connection"
	case errors.As(err, &qerr):
		return "query"
	case errors.As(err, &berr):
		return "embedding"
	case errors.As(err, &uerr):
		return "upsert"
	default:
		return "internal"
	}
}
