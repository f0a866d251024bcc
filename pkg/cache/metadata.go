package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/boltpm/bolt/pkg/errors"
)

// CachedMetadata wraps a raw registry metadata document with the time it
// was fetched, in epoch seconds. Entries older than the configured TTL are
// treated as absent.
type CachedMetadata struct {
	Data     string `json:"data"`
	CachedAt int64  `json:"cached_at"`
}

// MetadataStore caches registry metadata documents keyed by package name.
//
// Implementations must treat entries past their TTL as missing, and writes
// must be atomic: a reader racing a refresh observes either the old or the
// new document, never a partial one.
type MetadataStore interface {
	// Get returns the cached document for name, or nil when the entry is
	// missing or expired.
	Get(ctx context.Context, name string) (*CachedMetadata, error)

	// Set stores the document for name stamped with the current time.
	Set(ctx context.Context, name, data string) error

	// Close releases backend resources.
	Close() error
}

// FileMetadataStore is the canonical metadata backend: one JSON envelope
// per package under <dir>/<safe-name>.json.
type FileMetadataStore struct {
	dir string
	ttl time.Duration
}

// NewFileMetadataStore creates a file-backed metadata store in dir.
func NewFileMetadataStore(dir string, ttl time.Duration) *FileMetadataStore {
	return &FileMetadataStore{dir: dir, ttl: ttl}
}

func (s *FileMetadataStore) path(name string) string {
	return filepath.Join(s.dir, SafeName(name)+".json")
}

// Get implements MetadataStore.
func (s *FileMetadataStore) Get(ctx context.Context, name string) (*CachedMetadata, error) {
	data, err := os.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeCache, err, "read metadata for %s", name)
	}

	var cached CachedMetadata
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupt entry: treat as a miss so the caller refetches.
		_ = os.Remove(s.path(name))
		return nil, nil
	}

	age := time.Since(time.Unix(cached.CachedAt, 0))
	if s.ttl > 0 && age > s.ttl {
		return nil, nil
	}
	return &cached, nil
}

// Set implements MetadataStore. The envelope is written atomically.
func (s *FileMetadataStore) Set(ctx context.Context, name, data string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(errors.CodeCache, err, "create metadata directory")
	}
	cached := CachedMetadata{Data: data, CachedAt: time.Now().Unix()}
	payload, err := json.Marshal(cached)
	if err != nil {
		return errors.Wrap(errors.CodeCache, err, "marshal metadata for %s", name)
	}
	return atomicWrite(s.path(name), payload, 0o644)
}

// Close implements MetadataStore. It is a no-op for the file store.
func (s *FileMetadataStore) Close() error { return nil }

var _ MetadataStore = (*FileMetadataStore)(nil)
