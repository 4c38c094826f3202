package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (db *DB) CreatePod(ctx context.Context, name string, createdAt time.Time) error {
	q := fmt.Sprintf("INSERT INTO pod (name, created_at) VALUES (%s, %s)", db.Placeholder(1), db.Placeholder(2))
	_, err := db.SQL.ExecContext(ctx, q, name, db.timeValue(createdAt))
	return err
}

func (db *DB) GetPod(ctx context.Context, name string) (*Pod, error) {
	q := fmt.Sprintf("SELECT name, created_at FROM pod WHERE name = %s", db.Placeholder(1))
	row := db.SQL.QueryRowContext(ctx, q, name)
	return db.scanPod(row)
}

func (db *DB) PodExists(ctx context.Context, name string) (bool, error) {
	_, err := db.GetPod(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (db *DB) DeletePod(ctx context.Context, name string) error {
	q := fmt.Sprintf(
		"DELETE FROM record WHERE stream_id IN (SELECT id FROM stream WHERE pod_name = %s)",
		db.Placeholder(1))
	if _, err := db.SQL.ExecContext(ctx, q, name); err != nil {
		return err
	}
	_, err := db.SQL.ExecContext(ctx, fmt.Sprintf("DELETE FROM stream WHERE pod_name = %s", db.Placeholder(1)), name)
	if err != nil {
		return err
	}
	_, err = db.SQL.ExecContext(ctx, fmt.Sprintf("DELETE FROM pod WHERE name = %s", db.Placeholder(1)), name)
	return err
}

func (db *DB) scanPod(row *sql.Row) (*Pod, error) {
	var name string
	var created any
	if err := row.Scan(&name, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &Pod{Name: name, CreatedAt: db.scanTime(created)}, nil
}

func (db *DB) timeValue(t time.Time) any {
	if db.Dialect == DialectPostgres {
		return t.UTC()
	}
	return timeFormat(t)
}

func (db *DB) scanTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	default:
		return time.Time{}
	}
}
