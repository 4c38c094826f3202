package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/webpods-org/webpods/internal/auth"
	"github.com/webpods-org/webpods/internal/corerr"
	"github.com/webpods-org/webpods/internal/db"
	"github.com/webpods-org/webpods/internal/pathresolve"
	"github.com/webpods-org/webpods/internal/ratelimit"
	"github.com/webpods-org/webpods/internal/record"
)

// podHandler routes every pod-subdomain request of spec.md §6 for the
// given pod.
func podHandler(deps *Deps, podName string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		principal, _ := auth.FromContext(ctx)
		userID := ""
		if principal != nil {
			userID = principal.UserID
		}

		if err := admit(ctx, deps, userID, r, w); err != nil {
			writeError(w, err)
			return
		}

		path := strings.Trim(r.URL.Path, "/")

		switch {
		case path == "" && r.Method == http.MethodGet:
			serveRoot(w, r, deps, podName)
		case path == "" && r.Method == http.MethodDelete:
			deletePod(w, r, deps, podName, userID)
		case path == ".meta/api/streams" && r.Method == http.MethodGet:
			listStreams(w, r, deps, podName)
		case strings.HasPrefix(path, ".config/schema/") && r.Method == http.MethodGet:
			readSchema(w, r, deps, podName, userID, strings.TrimPrefix(path, ".config/schema/"))
		case r.Method == http.MethodGet:
			handleRead(w, r, deps, podName, userID, path)
		case r.Method == http.MethodPost:
			handleWrite(w, r, deps, podName, userID, path)
		case r.Method == http.MethodDelete:
			handleDelete(w, r, deps, podName, userID, path)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func admit(ctx context.Context, deps *Deps, userID string, r *http.Request, w http.ResponseWriter) error {
	if deps.RateLimit == nil {
		return nil
	}
	identifier := userID
	if identifier == "" {
		identifier = r.RemoteAddr
	}
	action := ratelimit.ActionRead
	if r.Method != http.MethodGet {
		action = ratelimit.ActionWrite
	}
	decision, err := deps.RateLimit.Admit(ctx, identifier, action)
	if decision != nil {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetUnix, 10))
	}
	return err
}

func streamExistsFn(deps *Deps) pathresolve.StreamExists {
	return func(ctx context.Context, podName, streamPath string) (bool, error) {
		_, err := deps.DB.GetStreamByPath(ctx, podName, streamPath)
		if err == db.ErrNotFound {
			return false, nil
		}
		if err != nil {
			return false, corerr.Wrap(corerr.Database, "check stream existence", err)
		}
		return true, nil
	}
}

// --- GET ---

func handleRead(w http.ResponseWriter, r *http.Request, deps *Deps, podName, userID, path string) {
	ctx := r.Context()
	q := r.URL.Query()
	hasIndex := q.Has("i")

	res, err := pathresolve.ResolveRead(ctx, streamExistsFn(deps), podName, path, hasIndex)
	if err != nil {
		writeError(w, err)
		return
	}

	stream, err := deps.DB.GetStreamByPath(ctx, podName, res.StreamPath)
	if err != nil {
		writeError(w, corerr.Wrap(corerr.StreamNotFound, "stream not found", err))
		return
	}
	if ok, err := deps.Permission.CanRead(ctx, stream, userID); err != nil {
		writeError(w, err)
		return
	} else if !ok {
		writeError(w, corerr.New(corerr.Forbidden, "read access denied"))
		return
	}

	if !res.IsStream {
		rec, err := deps.Engine.GetByNameRaw(ctx, stream, res.RecordName)
		if err != nil {
			writeError(w, err)
			return
		}
		serveRecord(w, r, deps, stream, rec)
		return
	}

	switch {
	case hasIndex:
		serveIndexRead(w, r, deps, stream)
	case q.Get("unique") == "true":
		limit, after := parseLimitAfter(q)
		recs, err := deps.Engine.ListUnique(ctx, stream, limit, after)
		if err != nil {
			writeError(w, err)
			return
		}
		writeRecordList(w, recs)
	case q.Get("recursive") == "true":
		limit, _ := parseLimitAfter(q)
		recs, err := deps.Engine.ListRecursive(ctx, podName, stream.Path, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeRecordList(w, recs)
	default:
		limit, after := parseLimitAfter(q)
		recs, err := deps.Engine.List(ctx, stream, limit, after)
		if err != nil {
			writeError(w, err)
			return
		}
		writeRecordList(w, recs)
	}
}

func serveIndexRead(w http.ResponseWriter, r *http.Request, deps *Deps, stream *db.Stream) {
	ctx := r.Context()
	spec, err := pathresolve.ParseIndexSpec(r.URL.Query().Get("i"))
	if err != nil {
		writeError(w, err)
		return
	}
	if spec.IsRange {
		recs, err := deps.Engine.Range(ctx, stream, spec.Start, spec.End)
		if err != nil {
			writeError(w, err)
			return
		}
		writeRecordList(w, recs)
		return
	}
	count, err := deps.DB.CountRecords(ctx, stream.ID)
	if err != nil {
		writeError(w, corerr.Wrap(corerr.Database, "count records", err))
		return
	}
	idx, err := pathresolve.ResolveIndex(spec.Index, count)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := deps.Engine.GetByIndexRaw(ctx, stream, idx)
	if err != nil {
		writeError(w, err)
		return
	}
	serveRecord(w, r, deps, stream, rec)
}

func parseLimitAfter(q interface{ Get(string) string }) (limit int, after int64) {
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := q.Get("after"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			after = n
		}
	}
	return limit, after
}

// --- POST ---

func handleWrite(w http.ResponseWriter, r *http.Request, deps *Deps, podName, userID, path string) {
	if userID == "" {
		writeError(w, corerr.New(corerr.Unauthorized, "authentication required"))
		return
	}
	if r.ContentLength == 0 {
		createStream(w, r, deps, podName, userID, path)
		return
	}
	appendRecord(w, r, deps, podName, userID, path)
}

func createStream(w http.ResponseWriter, r *http.Request, deps *Deps, podName, userID, path string) {
	ctx := r.Context()
	if err := pathresolve.ValidateStreamPath(path); err != nil {
		writeError(w, err)
		return
	}
	access := r.URL.Query().Get("access")
	if access == "" {
		access = "private"
	}
	segments := pathresolve.Split(path)
	stream, err := ensureStreamHierarchy(ctx, deps, podName, userID, segments, access)
	if err != nil {
		writeError(w, err)
		return
	}
	deps.Cache.InvalidatePod(ctx, podName)
	writeJSON(w, http.StatusCreated, streamJSON(stream))
}

func appendRecord(w http.ResponseWriter, r *http.Request, deps *Deps, podName, userID, path string) {
	ctx := r.Context()
	streamPath, name, err := pathresolve.ResolveWrite(path)
	if err != nil {
		writeError(w, err)
		return
	}
	segments := pathresolve.Split(streamPath)
	if len(segments) == 0 {
		writeError(w, corerr.New(corerr.StreamNotFound, "records must be appended within a stream, not at the pod root"))
		return
	}
	stream, err := ensureStreamHierarchy(ctx, deps, podName, userID, segments, "private")
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := deps.DB.GetChildStream(ctx, podName, &stream.ID, name); err == nil {
		writeError(w, corerr.New(corerr.NameConflict, "a stream with this name already exists in this location"))
		return
	} else if err != db.ErrNotFound {
		writeError(w, corerr.Wrap(corerr.Database, "check name collision", err))
		return
	}
	if ok, err := deps.Permission.CanWrite(ctx, stream, userID); err != nil {
		writeError(w, err)
		return
	} else if !ok {
		writeError(w, corerr.New(corerr.Forbidden, "write access denied"))
		return
	}

	content, contentType, err := decodeBody(r, deps.MaxPayloadSize)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := deps.Engine.Append(ctx, record.AppendInput{
		Stream: stream, UserID: userID, Name: name, Content: content, ContentType: contentType,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	deps.Cache.InvalidateRecord(ctx, stream.ID, name)
	writeRecord(w, rec)
}

// ensureStreamHierarchy walks segments from the pod root, creating any
// missing stream along the way, lazily per spec.md §3. Only the final
// segment is given leafAccess; intermediate segments default to private.
// A segment that collides with an existing live record under the same
// parent fails with NAME_CONFLICT (spec.md §3, §8): a stream path and a
// record path cannot share a name within the same parent.
func ensureStreamHierarchy(ctx context.Context, deps *Deps, podName, userID string, segments []string, leafAccess string) (*db.Stream, error) {
	var parentID *string
	var current *db.Stream
	var builtPath string
	for i, seg := range segments {
		if builtPath == "" {
			builtPath = seg
		} else {
			builtPath = builtPath + "/" + seg
		}
		existing, err := deps.DB.GetChildStream(ctx, podName, parentID, seg)
		if err == nil {
			current = existing
			id := existing.ID
			parentID = &id
			continue
		}
		if err != db.ErrNotFound {
			return nil, corerr.Wrap(corerr.Database, "lookup stream segment", err)
		}
		if parentID != nil {
			if rec, recErr := deps.DB.GetLatestByName(ctx, *parentID, seg); recErr == nil && !rec.Deleted {
				return nil, corerr.New(corerr.NameConflict, "a record with this name already exists in this location")
			} else if recErr != nil && recErr != db.ErrNotFound {
				return nil, corerr.Wrap(corerr.Database, "check name collision", recErr)
			}
		}
		access := "private"
		if i == len(segments)-1 {
			access = leafAccess
		}
		now := time.Now().UTC()
		created := &db.Stream{
			ID: uuid.NewString(), PodName: podName, ParentID: parentID, Name: seg, Path: builtPath,
			UserID: userID, AccessPermission: access, Metadata: "{}", CreatedAt: now, UpdatedAt: now,
		}
		if err := deps.DB.CreateStream(ctx, created); err != nil {
			return nil, corerr.Wrap(corerr.Database, "create stream segment", err)
		}
		current = created
		id := created.ID
		parentID = &id
	}
	return current, nil
}

// --- DELETE ---

func handleDelete(w http.ResponseWriter, r *http.Request, deps *Deps, podName, userID, path string) {
	ctx := r.Context()
	if userID == "" {
		writeError(w, corerr.New(corerr.Unauthorized, "authentication required"))
		return
	}

	exists, err := streamExistsFn(deps)(ctx, podName, path)
	if err != nil {
		writeError(w, err)
		return
	}
	if exists {
		deleteStream(w, r, deps, podName, userID, path)
		return
	}

	segments := pathresolve.Split(path)
	if len(segments) == 0 {
		writeError(w, corerr.New(corerr.StreamNotFound, "stream not found"))
		return
	}
	name := segments[len(segments)-1]
	streamPath := pathresolve.Join(segments[:len(segments)-1])
	stream, err := deps.DB.GetStreamByPath(ctx, podName, streamPath)
	if err != nil {
		writeError(w, corerr.Wrap(corerr.StreamNotFound, "stream not found", err))
		return
	}
	if ok, err := deps.Permission.CanWrite(ctx, stream, userID); err != nil {
		writeError(w, err)
		return
	} else if !ok {
		writeError(w, corerr.New(corerr.Forbidden, "write access denied"))
		return
	}

	if r.URL.Query().Get("purge") == "true" {
		if err := deps.Engine.Purge(ctx, stream, name); err != nil {
			writeError(w, err)
			return
		}
	} else {
		if _, err := deps.Engine.SoftDelete(ctx, stream, userID, name); err != nil {
			writeError(w, err)
			return
		}
	}
	deps.Cache.InvalidateRecord(ctx, stream.ID, name)
	w.WriteHeader(http.StatusNoContent)
}

func deleteStream(w http.ResponseWriter, r *http.Request, deps *Deps, podName, userID, path string) {
	ctx := r.Context()
	stream, err := deps.DB.GetStreamByPath(ctx, podName, path)
	if err != nil {
		writeError(w, corerr.Wrap(corerr.StreamNotFound, "stream not found", err))
		return
	}
	if ok, err := deps.Permission.CanWrite(ctx, stream, userID); err != nil {
		writeError(w, err)
		return
	} else if !ok {
		writeError(w, corerr.New(corerr.Forbidden, "write access denied"))
		return
	}
	if err := deps.DB.DeleteStream(ctx, stream.ID); err != nil {
		writeError(w, corerr.Wrap(corerr.Database, "delete stream", err))
		return
	}
	deps.Cache.InvalidateStream(ctx, podName, path, stream.ID)
	deps.Cache.InvalidatePod(ctx, podName)
	w.WriteHeader(http.StatusNoContent)
}

func deletePod(w http.ResponseWriter, r *http.Request, deps *Deps, podName, userID string) {
	ctx := r.Context()
	if userID == "" {
		writeError(w, corerr.New(corerr.Unauthorized, "authentication required"))
		return
	}
	owner, err := deps.Permission.PodOwner(ctx, podName)
	if err != nil {
		writeError(w, err)
		return
	}
	if owner == "" || owner != userID {
		writeError(w, corerr.New(corerr.Forbidden, "only the pod owner may delete the pod"))
		return
	}
	if err := deps.DB.DeletePod(ctx, podName); err != nil {
		writeError(w, corerr.Wrap(corerr.Database, "delete pod", err))
		return
	}
	deps.Cache.InvalidatePod(ctx, podName)
	w.WriteHeader(http.StatusNoContent)
}

// --- read-only projections ---

func listStreams(w http.ResponseWriter, r *http.Request, deps *Deps, podName string) {
	ctx := r.Context()
	streams, err := deps.DB.ListStreamsByPod(ctx, podName)
	if err != nil {
		writeError(w, corerr.Wrap(corerr.Database, "list streams", err))
		return
	}
	out := make([]map[string]any, 0, len(streams))
	for _, s := range streams {
		out = append(out, streamJSON(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"streams": out})
}

func readSchema(w http.ResponseWriter, r *http.Request, deps *Deps, podName, userID, streamPath string) {
	ctx := r.Context()
	stream, err := deps.DB.GetStreamByPath(ctx, podName, streamPath)
	if err != nil {
		writeError(w, corerr.Wrap(corerr.StreamNotFound, "stream not found", err))
		return
	}
	owner, err := deps.Permission.PodOwner(ctx, podName)
	if err != nil {
		writeError(w, err)
		return
	}
	if userID == "" || userID != owner {
		writeError(w, corerr.New(corerr.Forbidden, "schema read is owner-only"))
		return
	}
	if !stream.HasSchema {
		writeError(w, corerr.New(corerr.NotFound, "stream has no schema"))
		return
	}
	schemaStream, err := deps.DB.GetStreamByPath(ctx, podName, ".config/schema")
	if err != nil {
		writeError(w, corerr.Wrap(corerr.NotFound, "schema not found", err))
		return
	}
	rec, err := deps.Engine.GetByName(ctx, schemaStream, stream.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	_, _ = w.Write(rec.Content)
}

const routingRecordName = "root"

type routingTarget struct {
	Target string `json:"target"`
}

func serveRoot(w http.ResponseWriter, r *http.Request, deps *Deps, podName string) {
	ctx := r.Context()
	routingStream, err := deps.DB.GetStreamByPath(ctx, podName, ".config/routing")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	rec, err := deps.Engine.GetByName(ctx, routingStream, routingRecordName)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	var target routingTarget
	if err := json.Unmarshal(rec.Content, &target); err != nil || target.Target == "" {
		http.NotFound(w, r)
		return
	}
	res, err := pathresolve.ResolveRead(ctx, streamExistsFn(deps), podName, target.Target, false)
	if err != nil || res.RecordName == "" {
		http.NotFound(w, r)
		return
	}
	stream, err := deps.DB.GetStreamByPath(ctx, podName, res.StreamPath)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	targetRec, err := deps.Engine.GetByNameRaw(ctx, stream, res.RecordName)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if maybeRedirectToBlob(w, deps, stream, targetRec) {
		return
	}
	hydrated, err := deps.Engine.Hydrate(ctx, stream, targetRec)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", hydrated.ContentType)
	_, _ = w.Write(hydrated.Content)
}

func streamJSON(s *db.Stream) map[string]any {
	return map[string]any{
		"id":               s.ID,
		"path":             s.Path,
		"name":             s.Name,
		"userId":           s.UserID,
		"accessPermission": s.AccessPermission,
		"hasSchema":        s.HasSchema,
		"createdAt":        s.CreatedAt,
		"updatedAt":        s.UpdatedAt,
	}
}

// serveRecord serves a single-record GET response: a 302 to the CDN when
// the record's content was offloaded to blob storage and an external CDN
// base is configured, falling back to the usual inline 200 otherwise
// (spec.md §4.7, §6, §8 scenario 6).
func serveRecord(w http.ResponseWriter, r *http.Request, deps *Deps, stream *db.Stream, rec *db.Record) {
	if maybeRedirectToBlob(w, deps, stream, rec) {
		return
	}
	hydrated, err := deps.Engine.Hydrate(r.Context(), stream, rec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeRecord(w, hydrated)
}

// maybeRedirectToBlob writes the 302 response and returns true if rec was
// offloaded to blob storage and a CDN base is configured to serve it from.
func maybeRedirectToBlob(w http.ResponseWriter, deps *Deps, stream *db.Stream, rec *db.Record) bool {
	if rec.Storage == nil || deps.Blob == nil {
		return false
	}
	url, ok := deps.Blob.RedirectURL(stream.PodName, stream.Path, rec.ContentHash)
	if !ok {
		return false
	}
	w.Header().Set("Cache-Control", deps.Blob.CacheControl())
	w.Header().Set("Location", url)
	w.WriteHeader(http.StatusFound)
	return true
}

func writeRecord(w http.ResponseWriter, rec *db.Record) {
	w.Header().Set("X-Hash", rec.Hash)
	if rec.PreviousHash != nil {
		w.Header().Set("X-Previous-Hash", *rec.PreviousHash)
	}
	w.Header().Set("X-Author", rec.UserID)
	w.Header().Set("X-Timestamp", rec.CreatedAt.Format(time.RFC3339Nano))
	w.Header().Set("Content-Type", rec.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rec.Content)
}

func writeRecordList(w http.ResponseWriter, recs []*db.Record) {
	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, map[string]any{
			"index":        rec.Index,
			"name":         rec.Name,
			"contentType":  rec.ContentType,
			"contentHash":  rec.ContentHash,
			"hash":         rec.Hash,
			"previousHash": rec.PreviousHash,
			"userId":       rec.UserID,
			"deleted":      rec.Deleted,
			"purged":       rec.Purged,
			"createdAt":    rec.CreatedAt,
			"content":      rec.Content,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out})
}
