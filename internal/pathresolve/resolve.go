// Package pathresolve implements the path-disambiguation rules of
// spec.md §4.4: deciding whether a URL path (after the pod root) names a
// stream operation or a record-within-stream operation, and parsing the
// `?i=` index/range query spec.
package pathresolve

import (
	"context"
	"strconv"
	"strings"

	"github.com/webpods-org/webpods/internal/corerr"
	"github.com/webpods-org/webpods/internal/names"
)

// StreamExists answers whether a stream at the given materialized path
// exists in the pod; the resolver calls back into internal/db through this
// narrow seam so it stays independently testable.
type StreamExists func(ctx context.Context, podName, streamPath string) (bool, error)

// Resolution is the outcome of resolving a read-side request path.
type Resolution struct {
	StreamPath string
	RecordName string // empty when the request targets the stream itself
	IsStream   bool   // true for list/range/unique/recursive operations
}

// Split breaks a request path into its slash-separated segments after
// trimming leading and trailing slashes. It does no validation and keeps
// empty segments (from "//"); callers validate segments themselves
// (ResolveWrite, ValidateStreamPath).
func Split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func Join(segments []string) string {
	return strings.Join(segments, "/")
}

// ResolveRead implements spec.md §4.4's read-side disambiguation: try the
// full path as a stream first; only pop the last segment as a record name
// when the full path is not itself a stream.
func ResolveRead(ctx context.Context, exists StreamExists, podName, path string, hasIndexQuery bool) (*Resolution, error) {
	segments := Split(path)
	if len(segments) == 0 {
		return &Resolution{StreamPath: "", IsStream: true}, nil
	}
	full := Join(segments)
	ok, err := exists(ctx, podName, full)
	if err != nil {
		return nil, err
	}
	if ok {
		// Present with or without ?i= — both are stream-level operations;
		// the HTTP layer distinguishes index/range reads from listing by
		// hasIndexQuery, but the resolution itself is the same.
		_ = hasIndexQuery
		return &Resolution{StreamPath: full, IsStream: true}, nil
	}

	name := segments[len(segments)-1]
	prefix := segments[:len(segments)-1]
	if !names.ValidRecordName(name) {
		return nil, corerr.New(corerr.InvalidName, "invalid record name: "+name)
	}
	prefixPath := Join(prefix)
	if len(prefix) > 0 {
		ok, err := exists(ctx, podName, prefixPath)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, corerr.New(corerr.StreamNotFound, "stream not found: "+prefixPath)
		}
	} else {
		return nil, corerr.New(corerr.StreamNotFound, "stream not found: "+full)
	}
	return &Resolution{StreamPath: prefixPath, RecordName: name, IsStream: false}, nil
}

// ResolveWrite implements the write-side rule: the final segment is always
// the record name, the prefix is always the (possibly nested, possibly
// not-yet-created) stream path.
func ResolveWrite(path string) (streamPath string, recordName string, err error) {
	segments := Split(path)
	if len(segments) == 0 {
		return "", "", corerr.New(corerr.InvalidInput, "path must include a record name")
	}
	name := segments[len(segments)-1]
	if !names.ValidRecordName(name) {
		return "", "", corerr.New(corerr.InvalidName, "invalid record name: "+name)
	}
	prefix := segments[:len(segments)-1]
	for _, seg := range prefix {
		if !names.ValidStreamSegment(seg) {
			return "", "", corerr.New(corerr.InvalidName, "invalid stream segment: "+seg)
		}
	}
	return Join(prefix), name, nil
}

// ValidateStreamPath validates every segment of a stream-creation path
// (spec.md's POST with empty body).
func ValidateStreamPath(path string) error {
	for _, seg := range Split(path) {
		if !names.ValidStreamSegment(seg) {
			return corerr.New(corerr.InvalidName, "invalid stream segment: "+seg)
		}
	}
	return nil
}

// IndexSpec is the parsed form of a `?i=` query value: either a single
// (possibly negative) index, or an `a:b` range.
type IndexSpec struct {
	IsRange bool
	Index   int64
	Start   int64
	End     int64
}

// ParseIndexSpec parses `i=-1` (single index, negative counts from the
// end), or `i=a:b` (half-open range [a,b)).
func ParseIndexSpec(raw string) (*IndexSpec, error) {
	if raw == "" {
		return nil, corerr.New(corerr.InvalidIndex, "empty index spec")
	}
	if strings.Contains(raw, ":") {
		parts := strings.SplitN(raw, ":", 2)
		start, err1 := strconv.ParseInt(parts[0], 10, 64)
		end, err2 := strconv.ParseInt(parts[1], 10, 64)
		if err1 != nil || err2 != nil {
			return nil, corerr.New(corerr.InvalidIndex, "invalid range index spec: "+raw)
		}
		return &IndexSpec{IsRange: true, Start: start, End: end}, nil
	}
	idx, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, corerr.New(corerr.InvalidIndex, "invalid index spec: "+raw)
	}
	return &IndexSpec{Index: idx}, nil
}

// ResolveIndex turns a (possibly negative) single index against a known
// record count into an absolute index, per spec.md §8 ("i=-1 on an
// N-record stream returns index N-1; i=-N-1 → 404").
func ResolveIndex(idx int64, count int64) (int64, error) {
	if idx >= 0 {
		if idx >= count {
			return 0, corerr.New(corerr.RecordNotFound, "index out of range")
		}
		return idx, nil
	}
	resolved := count + idx
	if resolved < 0 {
		return 0, corerr.New(corerr.RecordNotFound, "index out of range")
	}
	return resolved, nil
}
