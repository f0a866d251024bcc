package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/boltpm/bolt/pkg/errors"
)

// ContentStore is a content-addressed blob store. A blob's path is derived
// from the SHA-256 of its bytes, so identical content is stored once:
//
//	<dir>/<first-2-hex>/<remaining-hex>
//
// Re-storing existing content is a no-op, which makes the store safe under
// concurrent writers producing the same bytes.
type ContentStore struct {
	dir string
}

// NewContentStore creates a blob store under dir, creating it if needed.
func NewContentStore(dir string) (*ContentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.CodeCache, err, "create content store")
	}
	return &ContentStore{dir: dir}, nil
}

// Hash computes the SHA-256 of data as a 64-character hex string.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Store writes content under its hash and returns the hash. Storing bytes
// that are already present is a no-op.
func (s *ContentStore) Store(content []byte) (string, error) {
	hash := Hash(content)
	path := s.hashPath(hash)

	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(errors.CodeCache, err, "create blob directory")
	}
	if err := atomicWrite(path, content, 0o644); err != nil {
		return "", err
	}
	return hash, nil
}

// Get returns the content stored under hash, or nil when absent.
func (s *ContentStore) Get(hash string) ([]byte, error) {
	data, err := os.ReadFile(s.hashPath(hash))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeCache, err, "read blob %s", hash)
	}
	return data, nil
}

// Has reports whether content with the given hash is present.
func (s *ContentStore) Has(hash string) bool {
	_, err := os.Stat(s.hashPath(hash))
	return err == nil
}

// Remove deletes the content stored under hash. Returns true when a blob
// was actually removed.
func (s *ContentStore) Remove(hash string) (bool, error) {
	err := os.Remove(s.hashPath(hash))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.CodeCache, err, "remove blob %s", hash)
	}
	return true, nil
}

// hashPath spreads blobs across subdirectories by the first two hex chars
// to keep directory sizes manageable.
func (s *ContentStore) hashPath(hash string) string {
	if len(hash) < 3 {
		return filepath.Join(s.dir, hash)
	}
	return filepath.Join(s.dir, hash[:2], hash[2:])
}
