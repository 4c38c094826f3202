// Package record implements the append-only, hash-chained record engine
// described in spec.md §4 (Record, Stream) and §5 (hash chaining,
// concurrency). It sits directly on top of internal/db, adding content
// hashing, blob offload, and the soft-delete/purge lifecycle; internal/api
// calls it after internal/permission and internal/pathresolve have already
// resolved a request to a stream.
package record

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/webpods-org/webpods/internal/corerr"
	"github.com/webpods-org/webpods/internal/db"
)

// BlobStore is the subset of internal/blob's Store the engine needs. Kept
// as a narrow interface so the engine can be tested without a filesystem.
type BlobStore interface {
	Put(ctx context.Context, pod, streamPath, hash string, content []byte) error
	Get(ctx context.Context, pod, streamPath, hash string) ([]byte, error)
	Delete(ctx context.Context, pod, streamPath, hash string) error
}

// Validator is the pluggable JSON-Schema hook a stream's .config/schema can
// install (spec.md §4.2, "has_schema"). A nil Validator or a stream with
// HasSchema=false skips validation entirely.
type Validator interface {
	Validate(schema json.RawMessage, content []byte, contentType string) error
}

type Engine struct {
	DB                *db.DB
	Blob              BlobStore
	Validator         Validator
	ExternalThreshold uint64
	MaxRecordLimit    int
}

func New(database *db.DB, blob BlobStore, validator Validator, externalThreshold uint64, maxRecordLimit int) *Engine {
	return &Engine{DB: database, Blob: blob, Validator: validator, ExternalThreshold: externalThreshold, MaxRecordLimit: maxRecordLimit}
}

// AppendInput carries everything needed to append one record.
type AppendInput struct {
	Stream      *db.Stream
	UserID      string
	Name        string
	Content     []byte
	ContentType string
	Headers     string
	Schema      json.RawMessage
}

// Append writes one new record at the tail of the stream's hash chain,
// per spec.md §5: hash_k = sha256(previousHash_{k-1} || sha256(content_k) ||
// userId_k || timestampMs_k), index assigned sequentially starting at 0.
// Runs under the stream's row lock so the chain never forks.
func (e *Engine) Append(ctx context.Context, in AppendInput) (*db.Record, error) {
	if in.Headers == "" {
		in.Headers = "{}"
	}
	if in.Stream.HasSchema && e.Validator != nil && len(in.Schema) > 0 {
		if err := e.Validator.Validate(in.Schema, in.Content, in.ContentType); err != nil {
			return nil, corerr.Wrap(corerr.ValidationError, "content does not satisfy stream schema", err)
		}
	}

	contentHash := sha256Hex(in.Content)
	now := time.Now().UTC()

	var result *db.Record
	err := e.DB.WithStreamLock(ctx, in.Stream.ID, func(tx *sql.Tx) error {
		last, lastErr := e.DB.GetLastRecord(ctx, tx, in.Stream.ID)
		var idx int64
		var previousHash *string
		if lastErr == nil {
			idx = last.Index + 1
			h := last.Hash
			previousHash = &h
		} else if lastErr != db.ErrNotFound {
			return corerr.Wrap(corerr.Database, "read chain tail", lastErr)
		}

		hash := chainHash(previousHash, contentHash, in.UserID, now)

		rec := &db.Record{
			ID:           uuid.NewString(),
			StreamID:     in.Stream.ID,
			Index:        idx,
			Name:         in.Name,
			Path:         db.JoinPath([]string{in.Stream.Path, in.Name}),
			ContentType:  in.ContentType,
			ContentHash:  contentHash,
			Hash:         hash,
			PreviousHash: previousHash,
			UserID:       in.UserID,
			Headers:      in.Headers,
			CreatedAt:    now,
		}

		if e.Blob != nil && e.ExternalThreshold > 0 && uint64(len(in.Content)) > e.ExternalThreshold {
			if err := e.Blob.Put(ctx, in.Stream.PodName, in.Stream.Path, contentHash, in.Content); err != nil {
				return corerr.Wrap(corerr.Storage, "write blob", err)
			}
			storage := "blob"
			rec.Storage = &storage
			rec.Content = []byte{}
		} else {
			rec.Content = in.Content
		}

		if err := e.DB.InsertRecord(ctx, tx, rec); err != nil {
			return corerr.Wrap(corerr.Database, "insert record", err)
		}
		result = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.hydrate(ctx, in.Stream, result)
}

// GetByName returns the current (highest-index) live record with the given
// name. A soft-deleted or purged latest record is reported as NOT_FOUND —
// callers needing history use Range/List directly.
func (e *Engine) GetByName(ctx context.Context, stream *db.Stream, name string) (*db.Record, error) {
	rec, err := e.GetByNameRaw(ctx, stream, name)
	if err != nil {
		return nil, err
	}
	return e.hydrate(ctx, stream, rec)
}

// GetByNameRaw is GetByName without blob hydration, for callers that need
// to inspect Storage before deciding whether to redirect or hydrate
// (spec.md §4.7's external-storage 302 serving path).
func (e *Engine) GetByNameRaw(ctx context.Context, stream *db.Stream, name string) (*db.Record, error) {
	rec, err := e.DB.GetLatestByName(ctx, stream.ID, name)
	if err != nil {
		if err == db.ErrNotFound {
			return nil, corerr.New(corerr.RecordNotFound, "record not found")
		}
		return nil, corerr.Wrap(corerr.Database, "get by name", err)
	}
	if rec.Deleted || rec.Purged {
		return nil, corerr.New(corerr.RecordNotFound, "record not found")
	}
	return rec, nil
}

// GetByIndex returns the record at an exact index, deleted markers included
// (spec.md §4.3: index reads are historical, not subject to delete masking).
func (e *Engine) GetByIndex(ctx context.Context, stream *db.Stream, index int64) (*db.Record, error) {
	rec, err := e.GetByIndexRaw(ctx, stream, index)
	if err != nil {
		return nil, err
	}
	return e.hydrate(ctx, stream, rec)
}

// GetByIndexRaw is GetByIndex without blob hydration; see GetByNameRaw.
func (e *Engine) GetByIndexRaw(ctx context.Context, stream *db.Stream, index int64) (*db.Record, error) {
	rec, err := e.DB.GetByIndex(ctx, stream.ID, index)
	if err != nil {
		if err == db.ErrNotFound {
			return nil, corerr.New(corerr.RecordNotFound, "record not found")
		}
		return nil, corerr.Wrap(corerr.Database, "get by index", err)
	}
	return rec, nil
}

// Hydrate fills a raw record's Content from blob storage when it was
// offloaded, exported for callers that fetched via the *Raw accessors.
func (e *Engine) Hydrate(ctx context.Context, stream *db.Stream, rec *db.Record) (*db.Record, error) {
	return e.hydrate(ctx, stream, rec)
}

// Range returns records in [start, end) by index, capped at MaxRecordLimit.
func (e *Engine) Range(ctx context.Context, stream *db.Stream, start, end int64) ([]*db.Record, error) {
	recs, err := e.DB.Range(ctx, stream.ID, start, end, e.MaxRecordLimit)
	if err != nil {
		return nil, corerr.Wrap(corerr.Database, "range", err)
	}
	return e.hydrateAll(ctx, stream, recs)
}

// List returns every record (including deleted markers) from `after`
// onward, index-ascending, capped at limit.
func (e *Engine) List(ctx context.Context, stream *db.Stream, limit int, after int64) ([]*db.Record, error) {
	limit = e.clampLimit(limit)
	resolved, err := e.resolveAfter(ctx, stream.ID, after, false)
	if err != nil {
		return nil, err
	}
	recs, err := e.DB.List(ctx, stream.ID, limit, resolved)
	if err != nil {
		return nil, corerr.Wrap(corerr.Database, "list", err)
	}
	return e.hydrateAll(ctx, stream, recs)
}

// ListUnique returns the latest live record per distinct name, ordered by
// that record's index ascending — the "last write wins" projection used by
// directory-style listing (spec.md §4.3).
func (e *Engine) ListUnique(ctx context.Context, stream *db.Stream, limit int, after int64) ([]*db.Record, error) {
	limit = e.clampLimit(limit)
	resolved, err := e.resolveAfter(ctx, stream.ID, after, true)
	if err != nil {
		return nil, err
	}
	recs, err := e.DB.ListUnique(ctx, stream.ID, limit, resolved)
	if err != nil {
		return nil, corerr.Wrap(corerr.Database, "list unique", err)
	}
	return e.hydrateAll(ctx, stream, recs)
}

// ListRecursive returns every record, deletion markers included, across a
// stream and every descendant stream, ordered by stream path string (see
// db.ListDescendantStreams), then by index ascending within each stream
// (spec.md §6, `?recursive=true`).
func (e *Engine) ListRecursive(ctx context.Context, podName, streamPath string, limit int) ([]*db.Record, error) {
	streams, err := e.DB.ListDescendantStreams(ctx, podName, streamPath)
	if err != nil {
		return nil, corerr.Wrap(corerr.Database, "list descendant streams", err)
	}
	limit = e.clampLimit(limit)

	var out []*db.Record
	for _, s := range streams {
		remaining := limit - len(out)
		if remaining <= 0 {
			break
		}
		recs, err := e.DB.List(ctx, s.ID, remaining, 0)
		if err != nil {
			return nil, corerr.Wrap(corerr.Database, "list stream for recursive read", err)
		}
		if _, err := e.hydrateAll(ctx, s, recs); err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 || (e.MaxRecordLimit > 0 && limit > e.MaxRecordLimit) {
		return e.MaxRecordLimit
	}
	return limit
}

// resolveAfter turns a negative `after` (spec.md §4.3: "-N" means "the N
// most recent") into an absolute offset.
func (e *Engine) resolveAfter(ctx context.Context, streamID string, after int64, unique bool) (int64, error) {
	if after >= 0 {
		return after, nil
	}
	var total int64
	var err error
	if unique {
		total, err = e.DB.CountUnique(ctx, streamID)
	} else {
		total, err = e.DB.CountRecords(ctx, streamID)
	}
	if err != nil {
		return 0, corerr.Wrap(corerr.Database, "count for negative after", err)
	}
	resolved := total + after
	if resolved < 0 {
		resolved = 0
	}
	return resolved, nil
}

// SoftDelete appends a tombstone record for `name`: a new chain entry,
// Deleted=true, empty content, still participating in the hash chain. The
// name then reads as NOT_FOUND until a later Append overwrites it again.
func (e *Engine) SoftDelete(ctx context.Context, stream *db.Stream, userID, name string) (*db.Record, error) {
	existing, err := e.DB.GetLatestByName(ctx, stream.ID, name)
	if err != nil {
		if err == db.ErrNotFound {
			return nil, corerr.New(corerr.RecordNotFound, "record not found")
		}
		return nil, corerr.Wrap(corerr.Database, "lookup before delete", err)
	}
	if existing.Deleted {
		return nil, corerr.New(corerr.RecordNotFound, "record not found")
	}

	contentHash := sha256Hex(nil)
	now := time.Now().UTC()
	var result *db.Record
	err = e.DB.WithStreamLock(ctx, stream.ID, func(tx *sql.Tx) error {
		last, lastErr := e.DB.GetLastRecord(ctx, tx, stream.ID)
		var idx int64
		var previousHash *string
		if lastErr == nil {
			idx = last.Index + 1
			h := last.Hash
			previousHash = &h
		} else if lastErr != db.ErrNotFound {
			return corerr.Wrap(corerr.Database, "read chain tail", lastErr)
		}
		hash := chainHash(previousHash, contentHash, userID, now)
		rec := &db.Record{
			ID: uuid.NewString(), StreamID: stream.ID, Index: idx, Name: name,
			Path: db.JoinPath([]string{stream.Path, name}), Content: []byte{},
			ContentType: "application/x-webpods-tombstone", ContentHash: contentHash,
			Hash: hash, PreviousHash: previousHash, UserID: userID, Deleted: true,
			Headers: "{}", CreatedAt: now,
		}
		if err := e.DB.InsertRecord(ctx, tx, rec); err != nil {
			return corerr.Wrap(corerr.Database, "insert tombstone", err)
		}
		result = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Purge overwrites every historical record with this name to empty,
// purged content. The hash chain entries remain for audit purposes. If the
// latest record with this name was offloaded to blob storage, its blob is
// removed; blobs written for earlier records of the name are not removed.
func (e *Engine) Purge(ctx context.Context, stream *db.Stream, name string) error {
	recs, err := e.DB.GetLatestByName(ctx, stream.ID, name)
	if err != nil {
		if err == db.ErrNotFound {
			return corerr.New(corerr.RecordNotFound, "record not found")
		}
		return corerr.Wrap(corerr.Database, "lookup before purge", err)
	}
	if e.Blob != nil && recs.Storage != nil {
		if err := e.Blob.Delete(ctx, stream.PodName, stream.Path, recs.ContentHash); err != nil {
			return corerr.Wrap(corerr.Storage, "delete blob", err)
		}
	}
	return e.DB.WithStreamLock(ctx, stream.ID, func(tx *sql.Tx) error {
		if err := e.DB.PurgeAllByName(ctx, tx, stream.ID, name); err != nil {
			return corerr.Wrap(corerr.Database, "purge", err)
		}
		return nil
	})
}

// hydrate fills Content from blob storage when the record offloaded its
// payload (spec.md's external-threshold rule).
func (e *Engine) hydrate(ctx context.Context, stream *db.Stream, rec *db.Record) (*db.Record, error) {
	if rec == nil || rec.Storage == nil || e.Blob == nil {
		return rec, nil
	}
	content, err := e.Blob.Get(ctx, stream.PodName, stream.Path, rec.ContentHash)
	if err != nil {
		return nil, corerr.Wrap(corerr.Storage, "read blob", err)
	}
	rec.Content = content
	return rec, nil
}

func (e *Engine) hydrateAll(ctx context.Context, stream *db.Stream, recs []*db.Record) ([]*db.Record, error) {
	for _, r := range recs {
		if _, err := e.hydrate(ctx, stream, r); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

func sha256Hex(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// chainHash computes hash_k = sha256(previousHash || sha256(content) ||
// userId || timestampMs) per spec.md §5, hex-encoded. previousHash is empty
// string for the first record in a stream.
func chainHash(previousHash *string, contentHash, userID string, ts time.Time) string {
	prev := ""
	if previousHash != nil {
		prev = *previousHash
	}
	ms := strconv.FormatInt(ts.UnixMilli(), 10)
	h := sha256.New()
	h.Write([]byte(prev))
	h.Write([]byte(contentHash))
	h.Write([]byte(userID))
	h.Write([]byte(ms))
	return hex.EncodeToString(h.Sum(nil))
}
