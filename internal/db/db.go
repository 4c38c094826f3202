// Package db is the persistence layer: pod, stream, record, and rate_limit
// tables behind a small dialect-aware SQL layer, mirroring the teacher's
// factory.go dialect switch (postgres in production, sqlite for tests).
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"              // registers the "sqlite" driver
)

var ErrNotFound = errors.New("not found")

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB wraps a *sql.DB plus the dialect-specific bits the repository layer
// needs: placeholder style, upsert syntax, and the stream row-lock
// strategy (SELECT ... FOR UPDATE on postgres; an in-process mutex on
// sqlite, since the modernc driver has no portable row-lock primitive).
type DB struct {
	SQL     *sql.DB
	Dialect Dialect

	streamLocksMu sync.Mutex
	streamLocks   map[string]*sync.Mutex
}

func Open(databaseURL string) (*DB, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "postgres", "postgresql":
		sqlDB, err := sql.Open("pgx", databaseURL)
		if err != nil {
			return nil, err
		}
		if err := sqlDB.Ping(); err != nil {
			return nil, err
		}
		db := &DB{SQL: sqlDB, Dialect: DialectPostgres, streamLocks: map[string]*sync.Mutex{}}
		if err := db.ensureSchema(context.Background()); err != nil {
			return nil, err
		}
		return db, nil
	case "sqlite", "sqlite3", "file", "":
		dsn, err := sqliteDSN(databaseURL, parsed)
		if err != nil {
			return nil, err
		}
		sqlDB, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1) // modernc sqlite: single writer avoids SQLITE_BUSY races
		if err := sqlDB.Ping(); err != nil {
			return nil, err
		}
		db := &DB{SQL: sqlDB, Dialect: DialectSQLite, streamLocks: map[string]*sync.Mutex{}}
		if err := db.ensureSchema(context.Background()); err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database scheme: %s", scheme)
	}
}

func sqliteDSN(raw string, parsed *url.URL) (string, error) {
	if raw == ":memory:" || strings.HasPrefix(raw, "file:") {
		return raw, nil
	}
	pathPart := parsed.Path
	if parsed.Host != "" {
		pathPart = "/" + parsed.Host + parsed.Path
	}
	if pathPart == "" {
		return "", errors.New("sqlite path missing")
	}
	dsn := "file:" + pathPart
	if parsed.RawQuery != "" {
		dsn += "?" + parsed.RawQuery
	} else {
		dsn += "?cache=shared&mode=rwc"
	}
	return dsn, nil
}

// Placeholder returns the positional parameter marker for this dialect.
func (db *DB) Placeholder(idx int) string {
	if db.Dialect == DialectPostgres {
		return fmt.Sprintf("$%d", idx)
	}
	return "?"
}

func (db *DB) ensureSchema(ctx context.Context) error {
	var stmts []string
	switch db.Dialect {
	case DialectPostgres:
		stmts = postgresSchema
	default:
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := db.SQL.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// lockForStream returns the in-process mutex used to serialize appends on
// the sqlite dialect, where there is no row-level lock primitive available
// through database/sql. Safe for concurrent callers.
func (db *DB) lockForStream(streamID string) *sync.Mutex {
	db.streamLocksMu.Lock()
	defer db.streamLocksMu.Unlock()
	m, ok := db.streamLocks[streamID]
	if !ok {
		m = &sync.Mutex{}
		db.streamLocks[streamID] = m
	}
	return m
}

func (db *DB) Close() error {
	return db.SQL.Close()
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS pod (
		name TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stream (
		id TEXT PRIMARY KEY,
		pod_name TEXT NOT NULL REFERENCES pod(name),
		parent_id TEXT NULL REFERENCES stream(id),
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		user_id TEXT NOT NULL,
		access_permission TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		has_schema BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE(pod_name, parent_id, name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stream_pod_path ON stream(pod_name, path)`,
	`CREATE TABLE IF NOT EXISTS record (
		id TEXT PRIMARY KEY,
		stream_id TEXT NOT NULL REFERENCES stream(id),
		idx BIGINT NOT NULL,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		content BYTEA NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT 'text/plain',
		content_hash TEXT NOT NULL,
		hash TEXT NOT NULL,
		previous_hash TEXT NULL,
		user_id TEXT NOT NULL,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		purged BOOLEAN NOT NULL DEFAULT FALSE,
		storage TEXT NULL,
		headers TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE(stream_id, idx)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_record_stream_name ON record(stream_id, name, idx)`,
	`CREATE TABLE IF NOT EXISTS rate_limit (
		identifier TEXT NOT NULL,
		action TEXT NOT NULL,
		count INTEGER NOT NULL,
		window_start TIMESTAMPTZ NOT NULL,
		window_end TIMESTAMPTZ NOT NULL,
		UNIQUE(identifier, action, window_start)
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS pod (
		name TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stream (
		id TEXT PRIMARY KEY,
		pod_name TEXT NOT NULL,
		parent_id TEXT NULL,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		user_id TEXT NOT NULL,
		access_permission TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		has_schema INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(pod_name, parent_id, name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stream_pod_path ON stream(pod_name, path)`,
	`CREATE TABLE IF NOT EXISTS record (
		id TEXT PRIMARY KEY,
		stream_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		content BLOB NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT 'text/plain',
		content_hash TEXT NOT NULL,
		hash TEXT NOT NULL,
		previous_hash TEXT NULL,
		user_id TEXT NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0,
		purged INTEGER NOT NULL DEFAULT 0,
		storage TEXT NULL,
		headers TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		UNIQUE(stream_id, idx)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_record_stream_name ON record(stream_id, name, idx)`,
	`CREATE TABLE IF NOT EXISTS rate_limit (
		identifier TEXT NOT NULL,
		action TEXT NOT NULL,
		count INTEGER NOT NULL,
		window_start TEXT NOT NULL,
		window_end TEXT NOT NULL,
		UNIQUE(identifier, action, window_start)
	)`,
}
