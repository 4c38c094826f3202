package db

import (
	"context"
	"database/sql"
	"fmt"
)

// WithStreamLock runs fn under the row-level lock that serializes all
// mutation (append, soft-delete, purge) on a single stream, per spec.md §5:
// "All mutating operations on a single stream run under a database-level
// row lock on the stream row". Postgres takes a real SELECT ... FOR UPDATE;
// the sqlite test dialect has no portable row-lock via database/sql, so it
// falls back to an in-process mutex keyed by stream ID (sqlite is used only
// for single-process tests in this repo, so the fallback is sound there).
func (db *DB) WithStreamLock(ctx context.Context, streamID string, fn func(tx *sql.Tx) error) error {
	if db.Dialect == DialectSQLite {
		mu := db.lockForStream(streamID)
		mu.Lock()
		defer mu.Unlock()
	}

	tx, err := db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if db.Dialect == DialectPostgres {
		q := fmt.Sprintf("SELECT id FROM stream WHERE id = %s FOR UPDATE", db.Placeholder(1))
		var locked string
		if err := tx.QueryRowContext(ctx, q, streamID).Scan(&locked); err != nil {
			return fmt.Errorf("lock stream row: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
