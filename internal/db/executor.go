// Package db runs validated statements against the source-of-truth store.
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Rows is a materialized result set. Columns preserves the statement's
// projection order; Records hold one column-to-value mapping per row.
type Rows struct {
	Columns []string
	Records []map[string]any
}

// Executor runs a statement and materializes its rows. Engine-level errors
// are surfaced verbatim, never reinterpreted.
type Executor interface {
	Query(ctx context.Context, stmt string) (*Rows, error)
	Close() error
}

// SQLExecutor is an Executor over database/sql.
type SQLExecutor struct {
	db *sql.DB
}

// Open connects to Postgres through the pgx stdlib driver and verifies the
// connection is usable.
func Open(ctx context.Context, dsn string) (*SQLExecutor, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return &SQLExecutor{db: conn}, nil
}

func (e *SQLExecutor) Close() error { return e.db.Close() }

func (e *SQLExecutor) Query(ctx context.Context, stmt string) (*Rows, error) {
	rows, err := e.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := &Rows{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		out.Records = append(out.Records, record)
	}
	return out, rows.Err()
}
