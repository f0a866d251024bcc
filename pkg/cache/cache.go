// Package cache implements bolt's global, content-addressed package cache.
//
// The cache is shared by every project on the host and lives under a single
// root directory:
//
//	<root>/tarballs/<safe-name>-<version>.tgz   raw archives
//	<root>/content/<safe-name>/<version>/...    extracted package trees
//	<root>/content/<xx>/<rest>                  content-addressed blobs
//	<root>/metadata/<safe-name>.json            registry metadata with TTL
//
// All paths are derived deterministically from the package identity, so two
// processes computing the same key reach the same file. Every write is
// atomic (temp file plus rename), which makes concurrent installs from
// multiple processes safe: a presence check on the final path either sees a
// complete artifact or nothing.
package cache

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/boltpm/bolt/pkg/errors"
)

// DefaultMetadataTTL is how long cached registry metadata stays fresh.
const DefaultMetadataTTL = 5 * time.Minute

// Manager owns the on-disk cache layout. It is safe for concurrent use by
// multiple goroutines and by multiple processes sharing the same root.
type Manager struct {
	root  string
	blobs *ContentStore
	meta  MetadataStore
}

// Options configures a Manager.
type Options struct {
	// MetadataTTL bounds the freshness of cached registry metadata.
	// Zero means DefaultMetadataTTL.
	MetadataTTL time.Duration

	// Metadata overrides the metadata backend. Nil selects the file-based
	// store under <root>/metadata, which is the canonical layout.
	Metadata MetadataStore
}

// NewManager creates a cache manager rooted at dir, creating the directory
// layout if needed.
func NewManager(dir string, opts Options) (*Manager, error) {
	for _, sub := range []string{"", "tarballs", "content", "metadata"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, errors.Wrap(errors.CodeCache, err, "create cache directory")
		}
	}

	ttl := opts.MetadataTTL
	if ttl <= 0 {
		ttl = DefaultMetadataTTL
	}
	meta := opts.Metadata
	if meta == nil {
		meta = NewFileMetadataStore(filepath.Join(dir, "metadata"), ttl)
	}

	blobs, err := NewContentStore(filepath.Join(dir, "content"))
	if err != nil {
		return nil, err
	}

	return &Manager{root: dir, blobs: blobs, meta: meta}, nil
}

// Root returns the cache root directory.
func (m *Manager) Root() string { return m.root }

// Blobs returns the content-addressed blob store sharing this cache root.
func (m *Manager) Blobs() *ContentStore { return m.blobs }

// SafeName converts a package name to its filesystem-safe form:
// "/" becomes "+" and "@" is stripped, so "@scope/pkg" maps to "scope+pkg".
func SafeName(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, "/", "+"), "@", "")
}

// HasPackage reports whether the extracted tree for name@version is present.
// The tree directory exists iff extraction completed successfully.
func (m *Manager) HasPackage(name, version string) bool {
	info, err := os.Stat(m.PackageDir(name, version))
	return err == nil && info.IsDir()
}

// PackageDir returns the path of the extracted tree for name@version.
func (m *Manager) PackageDir(name, version string) string {
	return filepath.Join(m.root, "content", SafeName(name), version)
}

// TarballPath returns the path of the raw archive for name@version.
func (m *Manager) TarballPath(name, version string) string {
	return filepath.Join(m.root, "tarballs", fmt.Sprintf("%s-%s.tgz", SafeName(name), version))
}

// HasTarball reports whether the raw archive for name@version is present.
func (m *Manager) HasTarball(name, version string) bool {
	_, err := os.Stat(m.TarballPath(name, version))
	return err == nil
}

// StoreTarball writes the archive bytes for name@version, creating parent
// directories. The write is atomic; re-storing an existing tarball replaces
// it whole.
func (m *Manager) StoreTarball(name, version string, data []byte) error {
	path := m.TarballPath(name, version)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.CodeCache, err, "create tarball directory")
	}
	return atomicWrite(path, data, 0o644)
}

// StagePackageDir returns a fresh staging directory next to the final
// extracted-tree path for name@version. Extract into it, then call
// CommitPackageDir. Staging keeps the invariant that the final directory
// exists only when extraction completed.
func (m *Manager) StagePackageDir(name, version string) (string, error) {
	final := m.PackageDir(name, version)
	staged := final + ".partial-" + uuid.NewString()
	if err := os.MkdirAll(staged, 0o755); err != nil {
		return "", errors.Wrap(errors.CodeCache, err, "create staging directory")
	}
	return staged, nil
}

// CommitPackageDir atomically promotes a staging directory to the final
// extracted-tree path, replacing any previous tree.
func (m *Manager) CommitPackageDir(staged, name, version string) error {
	final := m.PackageDir(name, version)
	if err := os.RemoveAll(final); err != nil {
		return errors.Wrap(errors.CodeCache, err, "remove stale package dir")
	}
	if err := os.Rename(staged, final); err != nil {
		return errors.Wrap(errors.CodeCache, err, "commit package dir")
	}
	return nil
}

// DiscardPackageDir removes a staging directory after a failed extraction.
func (m *Manager) DiscardPackageDir(staged string) {
	_ = os.RemoveAll(staged)
}

// Metadata returns the cached registry metadata for name, or nil when the
// entry is absent or older than the metadata TTL.
func (m *Manager) Metadata(ctx context.Context, name string) (*CachedMetadata, error) {
	return m.meta.Get(ctx, name)
}

// StoreMetadata caches the raw registry metadata document for name, stamped
// with the current time.
func (m *Manager) StoreMetadata(ctx context.Context, name, data string) error {
	return m.meta.Set(ctx, name, data)
}

// Stats describes the cache contents.
type Stats struct {
	TotalSize    int64 // bytes under content/ (extracted trees and blobs) plus tarballs
	PackageCount int   // extracted name/version trees
	TarballCount int   // raw archives
}

// Stats walks the cache and reports aggregate sizes and counts.
func (m *Manager) Stats() (Stats, error) {
	var s Stats

	contentDir := filepath.Join(m.root, "content")
	err := filepath.WalkDir(contentDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(contentDir, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			// name/version directories sit exactly two levels down.
			if rel != "." && strings.Count(rel, string(filepath.Separator)) == 1 {
				s.PackageCount++
			}
			return nil
		}
		if info, err := d.Info(); err == nil {
			s.TotalSize += info.Size()
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return Stats{}, errors.Wrap(errors.CodeCache, err, "walk content dir")
	}

	tarballs, err := os.ReadDir(filepath.Join(m.root, "tarballs"))
	if err != nil && !os.IsNotExist(err) {
		return Stats{}, errors.Wrap(errors.CodeCache, err, "read tarball dir")
	}
	for _, e := range tarballs {
		if e.IsDir() {
			continue
		}
		s.TarballCount++
		if info, err := e.Info(); err == nil {
			s.TotalSize += info.Size()
		}
	}
	return s, nil
}

// Clear removes every cached artifact and recreates the empty layout.
func (m *Manager) Clear() error {
	if err := os.RemoveAll(m.root); err != nil {
		return errors.Wrap(errors.CodeCache, err, "clear cache")
	}
	for _, sub := range []string{"", "tarballs", "content", "metadata"} {
		if err := os.MkdirAll(filepath.Join(m.root, sub), 0o755); err != nil {
			return errors.Wrap(errors.CodeCache, err, "recreate cache directory")
		}
	}
	return nil
}

// Close releases the metadata backend (a no-op for the file store).
func (m *Manager) Close() error {
	return m.meta.Close()
}

// atomicWrite writes data to path via a temp file in the same directory
// followed by a rename, so readers never observe a partial file.
func atomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return errors.Wrap(errors.CodeCache, err, "write temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.CodeCache, err, "rename temp file")
	}
	return nil
}
