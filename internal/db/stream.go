package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// CreateStream inserts a new stream row. parentID is nil for a root stream.
func (db *DB) CreateStream(ctx context.Context, s *Stream) error {
	q := fmt.Sprintf(
		`INSERT INTO stream (id, pod_name, parent_id, name, path, user_id, access_permission, metadata, has_schema, created_at, updated_at)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		db.Placeholder(1), db.Placeholder(2), db.Placeholder(3), db.Placeholder(4), db.Placeholder(5),
		db.Placeholder(6), db.Placeholder(7), db.Placeholder(8), db.Placeholder(9), db.Placeholder(10), db.Placeholder(11),
	)
	_, err := db.SQL.ExecContext(ctx, q,
		s.ID, s.PodName, s.ParentID, s.Name, s.Path, s.UserID, s.AccessPermission, s.Metadata,
		boolParam(db.Dialect, s.HasSchema), db.timeValue(s.CreatedAt), db.timeValue(s.UpdatedAt))
	return err
}

func (db *DB) GetStreamByPath(ctx context.Context, podName, path string) (*Stream, error) {
	q := fmt.Sprintf(
		`SELECT id, pod_name, parent_id, name, path, user_id, access_permission, metadata, has_schema, created_at, updated_at
		 FROM stream WHERE pod_name = %s AND path = %s`, db.Placeholder(1), db.Placeholder(2))
	row := db.SQL.QueryRowContext(ctx, q, podName, path)
	return db.scanStream(row)
}

func (db *DB) GetStreamByID(ctx context.Context, id string) (*Stream, error) {
	q := fmt.Sprintf(
		`SELECT id, pod_name, parent_id, name, path, user_id, access_permission, metadata, has_schema, created_at, updated_at
		 FROM stream WHERE id = %s`, db.Placeholder(1))
	row := db.SQL.QueryRowContext(ctx, q, id)
	return db.scanStream(row)
}

func (db *DB) GetChildStream(ctx context.Context, podName string, parentID *string, name string) (*Stream, error) {
	var q string
	var row *sql.Row
	if parentID == nil {
		q = fmt.Sprintf(
			`SELECT id, pod_name, parent_id, name, path, user_id, access_permission, metadata, has_schema, created_at, updated_at
			 FROM stream WHERE pod_name = %s AND parent_id IS NULL AND name = %s`, db.Placeholder(1), db.Placeholder(2))
		row = db.SQL.QueryRowContext(ctx, q, podName, name)
	} else {
		q = fmt.Sprintf(
			`SELECT id, pod_name, parent_id, name, path, user_id, access_permission, metadata, has_schema, created_at, updated_at
			 FROM stream WHERE pod_name = %s AND parent_id = %s AND name = %s`, db.Placeholder(1), db.Placeholder(2), db.Placeholder(3))
		row = db.SQL.QueryRowContext(ctx, q, podName, *parentID, name)
	}
	return db.scanStream(row)
}

// ListStreamsByPod returns all streams in a pod, ordered by path, for the
// `.meta/api/streams` read-only projection.
func (db *DB) ListStreamsByPod(ctx context.Context, podName string) ([]*Stream, error) {
	q := fmt.Sprintf(
		`SELECT id, pod_name, parent_id, name, path, user_id, access_permission, metadata, has_schema, created_at, updated_at
		 FROM stream WHERE pod_name = %s ORDER BY path`, db.Placeholder(1))
	rows, err := db.SQL.QueryContext(ctx, q, podName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return db.scanStreams(rows)
}

// ListDescendantStreams returns streamPath and everything nested under it,
// ordered by the path string, for recursive listing (spec.md §6,
// `?recursive=true`). Since '-' sorts before '/', this is not strictly
// depth-first: "a/b-c" sorts between "a/b" and "a/b/x".
func (db *DB) ListDescendantStreams(ctx context.Context, podName, streamPath string) ([]*Stream, error) {
	q := fmt.Sprintf(
		`SELECT id, pod_name, parent_id, name, path, user_id, access_permission, metadata, has_schema, created_at, updated_at
		 FROM stream WHERE pod_name = %s AND (path = %s OR path LIKE %s) ORDER BY path`,
		db.Placeholder(1), db.Placeholder(2), db.Placeholder(3))
	rows, err := db.SQL.QueryContext(ctx, q, podName, streamPath, streamPath+"/%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return db.scanStreams(rows)
}

func (db *DB) DeleteStream(ctx context.Context, id string) error {
	if _, err := db.SQL.ExecContext(ctx, fmt.Sprintf("DELETE FROM record WHERE stream_id = %s", db.Placeholder(1)), id); err != nil {
		return err
	}
	_, err := db.SQL.ExecContext(ctx, fmt.Sprintf("DELETE FROM stream WHERE id = %s", db.Placeholder(1)), id)
	return err
}

func (db *DB) scanStream(row *sql.Row) (*Stream, error) {
	var s Stream
	var parentID sql.NullString
	var hasSchema any
	var created, updated any
	if err := row.Scan(&s.ID, &s.PodName, &parentID, &s.Name, &s.Path, &s.UserID, &s.AccessPermission,
		&s.Metadata, &hasSchema, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if parentID.Valid {
		v := parentID.String
		s.ParentID = &v
	}
	s.HasSchema = scanBool(db.Dialect, hasSchema)
	s.CreatedAt = db.scanTime(created)
	s.UpdatedAt = db.scanTime(updated)
	return &s, nil
}

func (db *DB) scanStreams(rows *sql.Rows) ([]*Stream, error) {
	var out []*Stream
	for rows.Next() {
		var s Stream
		var parentID sql.NullString
		var hasSchema any
		var created, updated any
		if err := rows.Scan(&s.ID, &s.PodName, &parentID, &s.Name, &s.Path, &s.UserID, &s.AccessPermission,
			&s.Metadata, &hasSchema, &created, &updated); err != nil {
			return nil, err
		}
		if parentID.Valid {
			v := parentID.String
			s.ParentID = &v
		}
		s.HasSchema = scanBool(db.Dialect, hasSchema)
		s.CreatedAt = db.scanTime(created)
		s.UpdatedAt = db.scanTime(updated)
		out = append(out, &s)
	}
	return out, rows.Err()
}

// JoinPath materializes a stream path from its segments, matching the
// "slash-joined segments from root" invariant in spec.md §3.
func JoinPath(segments []string) string {
	return strings.Join(segments, "/")
}
