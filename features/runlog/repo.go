package runlog

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, run *Run) error {
	query := `INSERT INTO sync_runs (started_at, finished_at, state, rows_read, chunks_produced, documents_upserted, cleared, error, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	return r.db.QueryRowContext(ctx, query,
		run.StartedAt, run.FinishedAt, run.State,
		run.RowsRead, run.ChunksProduced, run.DocumentsUpserted,
		run.Cleared, run.Error, run.ElapsedMs,
	).Scan(&run.ID)
}

func (r *PostgresRepo) Recent(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, started_at, finished_at, state, rows_read, chunks_produced, documents_upserted, cleared, error, elapsed_ms
		FROM sync_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.State,
			&run.RowsRead, &run.ChunksProduced, &run.DocumentsUpserted,
			&run.Cleared, &run.Error, &run.ElapsedMs); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_runs`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
