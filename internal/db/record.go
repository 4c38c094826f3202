package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetLastRecord returns the highest-index record in a stream regardless of
// name, deleted, or purged state — the hash-chain tail. Callers must hold
// the stream lock (WithStreamLock) when using this to compute the next
// index/previousHash for an append.
func (db *DB) GetLastRecord(ctx context.Context, q Querier, streamID string) (*Record, error) {
	query := fmt.Sprintf(
		`SELECT id, stream_id, idx, name, path, content, content_type, content_hash, hash, previous_hash,
		        user_id, deleted, purged, storage, headers, created_at
		 FROM record WHERE stream_id = %s ORDER BY idx DESC LIMIT 1`, db.Placeholder(1))
	row := q.QueryRowContext(ctx, query, streamID)
	return db.scanRecordRow(row)
}

func (db *DB) InsertRecord(ctx context.Context, q Querier, r *Record) error {
	query := fmt.Sprintf(
		`INSERT INTO record (id, stream_id, idx, name, path, content, content_type, content_hash, hash,
		                     previous_hash, user_id, deleted, purged, storage, headers, created_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		db.Placeholder(1), db.Placeholder(2), db.Placeholder(3), db.Placeholder(4), db.Placeholder(5),
		db.Placeholder(6), db.Placeholder(7), db.Placeholder(8), db.Placeholder(9), db.Placeholder(10),
		db.Placeholder(11), db.Placeholder(12), db.Placeholder(13), db.Placeholder(14), db.Placeholder(15), db.Placeholder(16),
	)
	_, err := q.ExecContext(ctx, query,
		r.ID, r.StreamID, r.Index, r.Name, r.Path, r.Content, r.ContentType, r.ContentHash, r.Hash,
		r.PreviousHash, r.UserID, boolParam(db.Dialect, r.Deleted), boolParam(db.Dialect, r.Purged),
		r.Storage, r.Headers, db.timeValue(r.CreatedAt))
	return err
}

// GetLatestByName returns the highest-index record with the given name,
// including deleted markers — callers decide whether to treat deleted as
// not-found (point reads do; listings don't).
func (db *DB) GetLatestByName(ctx context.Context, streamID, name string) (*Record, error) {
	query := fmt.Sprintf(
		`SELECT id, stream_id, idx, name, path, content, content_type, content_hash, hash, previous_hash,
		        user_id, deleted, purged, storage, headers, created_at
		 FROM record WHERE stream_id = %s AND name = %s ORDER BY idx DESC LIMIT 1`,
		db.Placeholder(1), db.Placeholder(2))
	row := db.SQL.QueryRowContext(ctx, query, streamID, name)
	return db.scanRecordRow(row)
}

func (db *DB) GetByIndex(ctx context.Context, streamID string, index int64) (*Record, error) {
	query := fmt.Sprintf(
		`SELECT id, stream_id, idx, name, path, content, content_type, content_hash, hash, previous_hash,
		        user_id, deleted, purged, storage, headers, created_at
		 FROM record WHERE stream_id = %s AND idx = %s`, db.Placeholder(1), db.Placeholder(2))
	row := db.SQL.QueryRowContext(ctx, query, streamID, index)
	return db.scanRecordRow(row)
}

func (db *DB) CountRecords(ctx context.Context, streamID string) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM record WHERE stream_id = %s`, db.Placeholder(1))
	var n int64
	if err := db.SQL.QueryRowContext(ctx, query, streamID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Range returns records in [start, end) by index, bounded by maxLimit.
func (db *DB) Range(ctx context.Context, streamID string, start, end int64, maxLimit int) ([]*Record, error) {
	limit := end - start
	if limit <= 0 {
		return nil, nil
	}
	if int64(maxLimit) > 0 && limit > int64(maxLimit) {
		limit = int64(maxLimit)
	}
	query := fmt.Sprintf(
		`SELECT id, stream_id, idx, name, path, content, content_type, content_hash, hash, previous_hash,
		        user_id, deleted, purged, storage, headers, created_at
		 FROM record WHERE stream_id = %s AND idx >= %s ORDER BY idx ASC LIMIT %s`,
		db.Placeholder(1), db.Placeholder(2), db.Placeholder(3))
	rows, err := db.SQL.QueryContext(ctx, query, streamID, start, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return db.scanRecords(rows)
}

// List returns records in index order starting at `after`, capped at limit.
func (db *DB) List(ctx context.Context, streamID string, limit int, after int64) ([]*Record, error) {
	query := fmt.Sprintf(
		`SELECT id, stream_id, idx, name, path, content, content_type, content_hash, hash, previous_hash,
		        user_id, deleted, purged, storage, headers, created_at
		 FROM record WHERE stream_id = %s AND idx >= %s ORDER BY idx ASC LIMIT %s`,
		db.Placeholder(1), db.Placeholder(2), db.Placeholder(3))
	rows, err := db.SQL.QueryContext(ctx, query, streamID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return db.scanRecords(rows)
}

// ListUnique returns, for each name with a live (non-deleted, non-purged)
// record, only its latest record, ordered by that record's index ascending,
// starting at `after` unique entries in, capped at limit.
func (db *DB) ListUnique(ctx context.Context, streamID string, limit int, after int64) ([]*Record, error) {
	query := fmt.Sprintf(`
		SELECT r.id, r.stream_id, r.idx, r.name, r.path, r.content, r.content_type, r.content_hash, r.hash,
		       r.previous_hash, r.user_id, r.deleted, r.purged, r.storage, r.headers, r.created_at
		FROM record r
		INNER JOIN (
			SELECT name, MAX(idx) AS max_idx FROM record WHERE stream_id = %s GROUP BY name
		) latest ON latest.name = r.name AND latest.max_idx = r.idx
		WHERE r.stream_id = %s AND r.deleted = %s AND r.purged = %s
		ORDER BY r.idx ASC LIMIT %s OFFSET %s`,
		db.Placeholder(1), db.Placeholder(2), db.Placeholder(3), db.Placeholder(4), db.Placeholder(5), db.Placeholder(6))
	rows, err := db.SQL.QueryContext(ctx, query, streamID, streamID,
		boolParam(db.Dialect, false), boolParam(db.Dialect, false), limit, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return db.scanRecords(rows)
}

// CountUnique returns the number of live (non-deleted, non-purged) distinct
// names in a stream, used to resolve negative `after` offsets.
func (db *DB) CountUnique(ctx context.Context, streamID string) (int64, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM (
			SELECT r.name FROM record r
			INNER JOIN (SELECT name, MAX(idx) AS max_idx FROM record WHERE stream_id = %s GROUP BY name) latest
				ON latest.name = r.name AND latest.max_idx = r.idx
			WHERE r.stream_id = %s AND r.deleted = %s AND r.purged = %s
		) unique_names`, db.Placeholder(1), db.Placeholder(2), db.Placeholder(3), db.Placeholder(4))
	var n int64
	err := db.SQL.QueryRowContext(ctx, query, streamID, streamID,
		boolParam(db.Dialect, false), boolParam(db.Dialect, false)).Scan(&n)
	return n, err
}

// PurgeAllByName overwrites every record with the given name in the stream
// to empty content and purged=true, preserving hash fields (spec.md §4.6).
func (db *DB) PurgeAllByName(ctx context.Context, q Querier, streamID, name string) error {
	query := fmt.Sprintf(
		`UPDATE record SET content = %s, purged = %s WHERE stream_id = %s AND name = %s`,
		db.Placeholder(1), db.Placeholder(2), db.Placeholder(3), db.Placeholder(4))
	_, err := q.ExecContext(ctx, query, []byte{}, boolParam(db.Dialect, true), streamID, name)
	return err
}

func (db *DB) scanRecordRow(row *sql.Row) (*Record, error) {
	var r Record
	var previousHash, storage sql.NullString
	var deleted, purged any
	var created any
	if err := row.Scan(&r.ID, &r.StreamID, &r.Index, &r.Name, &r.Path, &r.Content, &r.ContentType,
		&r.ContentHash, &r.Hash, &previousHash, &r.UserID, &deleted, &purged, &storage, &r.Headers, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if previousHash.Valid {
		v := previousHash.String
		r.PreviousHash = &v
	}
	if storage.Valid {
		v := storage.String
		r.Storage = &v
	}
	r.Deleted = scanBool(db.Dialect, deleted)
	r.Purged = scanBool(db.Dialect, purged)
	r.CreatedAt = db.scanTime(created)
	return &r, nil
}

func (db *DB) scanRecords(rows *sql.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		var r Record
		var previousHash, storage sql.NullString
		var deleted, purged any
		var created any
		if err := rows.Scan(&r.ID, &r.StreamID, &r.Index, &r.Name, &r.Path, &r.Content, &r.ContentType,
			&r.ContentHash, &r.Hash, &previousHash, &r.UserID, &deleted, &purged, &storage, &r.Headers, &created); err != nil {
			return nil, err
		}
		if previousHash.Valid {
			v := previousHash.String
			r.PreviousHash = &v
		}
		if storage.Valid {
			v := storage.String
			r.Storage = &v
		}
		r.Deleted = scanBool(db.Dialect, deleted)
		r.Purged = scanBool(db.Dialect, purged)
		r.CreatedAt = db.scanTime(created)
		out = append(out, &r)
	}
	return out, rows.Err()
}
