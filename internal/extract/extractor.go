package extract

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ErrConnection marks the data source as unreachable. Runs fail without retry.
var ErrConnection = errors.New("data source unreachable")

// QueryError is a misconfiguration: missing table, missing key column, or a
// query the source rejected. It names the offending table/column for the
// operator.
type QueryError struct {
	Table  string
	Column string
	Err    error
}

func (e *QueryError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("query failed for table %q, column %q: %v", e.Table, e.Column, e.Err)
	}
	return fmt.Sprintf("query failed for table %q: %v", e.Table, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// RowRecord is one source row: the rendered primary-key value plus an ordered
// column list and the non-NULL values keyed by column. Immutable once read.
type RowRecord struct {
	Key     string
	Columns []string
	Values  map[string]string
}

type Extractor struct {
	db        *sql.DB
	table     string
	keyColumn string
}

func New(db *sql.DB, table, keyColumn string) *Extractor {
	return &Extractor{db: db, table: table, keyColumn: keyColumn}
}

// FetchRows reads every row of the configured table in the source's default
// order. All-or-nothing: any failure returns a nil slice.
func (e *Extractor) FetchRows(ctx context.Context) ([]RowRecord, error) {
	if err := e.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	query := fmt.Sprintf("SELECT * FROM %s", quoteTable(e.table))
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &QueryError{Table: e.table, Err: err}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Table: e.table, Err: err}
	}

	keyIdx := -1
	for i, c := range columns {
		if c == e.keyColumn {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return nil, &QueryError{Table: e.table, Column: e.keyColumn, Err: errors.New("key column not present in result set")}
	}

	var records []RowRecord
	for rows.Next() {
		holders := make([]any, len(columns))
		for i := range holders {
			holders[i] = new(any)
		}
		if err := rows.Scan(holders...); err != nil {
			return nil, &QueryError{Table: e.table, Err: err}
		}

		rec := RowRecord{
			Columns: columns,
			Values:  make(map[string]string, len(columns)),
		}
		for i, c := range columns {
			v := *(holders[i].(*any))
			if v == nil {
				continue
			}
			rec.Values[c] = renderScalar(v)
		}

		key, ok := rec.Values[e.keyColumn]
		if !ok || key == "" {
			return nil, &QueryError{Table: e.table, Column: e.keyColumn, Err: errors.New("NULL or empty key value")}
		}
		rec.Key = key
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Table: e.table, Err: err}
	}

	slog.InfoContext(ctx, "rows extracted", "table", e.table, "count", len(records))
	return records, nil
}

// renderScalar normalizes driver values into the string form used for chunk
// text. The rendering must stay stable across runs: chunk ids and re-index
// comparisons depend on it.
func renderScalar(v any) string {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", t), "0"), ".")
	default:
		return fmt.Sprintf("%v", t)
	}
}

// quoteTable quotes a possibly schema-qualified identifier.
func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
