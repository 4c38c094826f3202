// Package blob implements the content-addressed filesystem blob store of
// spec.md §4.7: records whose content exceeds the external-storage
// threshold are offloaded here instead of stored inline in the record
// table.
package blob

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/webpods-org/webpods/internal/corerr"
)

var ErrNotFound = errors.New("blob not found")

// Store is a filesystem-backed content-addressed layout:
// <root>/<pod>/<streamPath>/.storage/<hash> holds the content file;
// <root>/<pod>/<streamPath>/<name> is a name-link pointing at the same
// hash, kept so a directory listing of the blob root mirrors stream
// layout for operator inspection.
type Store struct {
	Root            string
	ExternalCDNBase string
	CacheTTLSeconds int
}

func New(root, externalCDNBase string, cacheTTLSeconds int) *Store {
	return &Store{Root: root, ExternalCDNBase: externalCDNBase, CacheTTLSeconds: cacheTTLSeconds}
}

func (s *Store) storageDir(pod, streamPath string) string {
	return filepath.Join(s.Root, pod, filepath.FromSlash(streamPath), ".storage")
}

func (s *Store) contentPath(pod, streamPath, hash string) string {
	return filepath.Join(s.storageDir(pod, streamPath), hash)
}

func (s *Store) nameLinkPath(pod, streamPath, name string) string {
	return filepath.Join(s.Root, pod, filepath.FromSlash(streamPath), name)
}

// Put writes content under its hash, via a temp-file-then-rename so a
// reader never observes a partially written blob. Idempotent: writing the
// same hash twice is a no-op after the first call.
func (s *Store) Put(ctx context.Context, pod, streamPath, hash string, content []byte) error {
	_ = ctx
	dir := s.storageDir(pod, streamPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return corerr.Wrap(corerr.Storage, "create blob directory", err)
	}
	dest := s.contentPath(pod, streamPath, hash)
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return corerr.Wrap(corerr.Storage, "create temp blob file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return corerr.Wrap(corerr.Storage, "write temp blob file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return corerr.Wrap(corerr.Storage, "close temp blob file", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return corerr.Wrap(corerr.Storage, "rename temp blob file into place", err)
	}
	return nil
}

// Link records the name → hash association used for directory-style
// inspection of the blob tree; it is advisory, the record table remains
// the source of truth for which hash is current for a name.
func (s *Store) Link(ctx context.Context, pod, streamPath, name, hash string) error {
	_ = ctx
	dir := filepath.Dir(s.nameLinkPath(pod, streamPath, name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return corerr.Wrap(corerr.Storage, "create name-link directory", err)
	}
	return os.WriteFile(s.nameLinkPath(pod, streamPath, name), []byte(hash), 0o644)
}

// Get returns the raw content for a hash.
func (s *Store) Get(ctx context.Context, pod, streamPath, hash string) ([]byte, error) {
	_ = ctx
	data, err := os.ReadFile(s.contentPath(pod, streamPath, hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, corerr.Wrap(corerr.Storage, "read blob", err)
	}
	return data, nil
}

// RedirectURL returns a CDN URL for the hash if ExternalCDNBase is
// configured, for the 302-redirect serving path of spec.md §4.7.
func (s *Store) RedirectURL(pod, streamPath, hash string) (string, bool) {
	if s.ExternalCDNBase == "" {
		return "", false
	}
	base, err := url.Parse(s.ExternalCDNBase)
	if err != nil {
		return "", false
	}
	base.Path = filepath.ToSlash(filepath.Join(base.Path, pod, streamPath, hash))
	return base.String(), true
}

// CacheControl is the header value sent alongside a redirect to
// RedirectURL's target (spec.md §8 scenario 6: "Cache-Control: max-age=...").
func (s *Store) CacheControl() string {
	ttl := s.CacheTTLSeconds
	if ttl <= 0 {
		ttl = 3600
	}
	return "public, max-age=" + strconv.Itoa(ttl)
}

// DeleteName removes a name-link without touching the underlying content
// file (other names, or historical records, may still reference it).
func (s *Store) DeleteName(ctx context.Context, pod, streamPath, name string) error {
	_ = ctx
	err := os.Remove(s.nameLinkPath(pod, streamPath, name))
	if err != nil && !os.IsNotExist(err) {
		return corerr.Wrap(corerr.Storage, "delete name-link", err)
	}
	return nil
}

// Delete unlinks the content file for a hash, used by purge (spec.md §4.6:
// "blob-store hash file is unlinked").
func (s *Store) Delete(ctx context.Context, pod, streamPath, hash string) error {
	_ = ctx
	err := os.Remove(s.contentPath(pod, streamPath, hash))
	if err != nil && !os.IsNotExist(err) {
		return corerr.Wrap(corerr.Storage, "delete blob", err)
	}
	return nil
}

// PathFor is a debug/inspection helper exposing the on-disk layout.
func (s *Store) PathFor(pod, streamPath, hash string) string {
	return s.contentPath(pod, streamPath, hash)
}
