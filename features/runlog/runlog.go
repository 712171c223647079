package runlog

import (
	"context"
	"time"
)

// Run is one recorded pass of the indexing pipeline.
type Run struct {
	ID                int64     `json:"id"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	State             string    `json:"state"` // succeeded or failed
	RowsRead          int       `json:"rows_read"`
	ChunksProduced    int       `json:"chunks_produced"`
	DocumentsUpserted int       `json:"documents_upserted"`
	Cleared           bool      `json:"cleared"`
	Error             string    `json:"error,omitempty"`
	ElapsedMs         int64     `json:"elapsed_ms"`
}

type Repository interface {
	Save(ctx context.Context, run *Run) error
	Recent(ctx context.Context, limit int) ([]Run, error)
	Count(ctx context.Context) (int, error)
}
