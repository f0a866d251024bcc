package installer

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/boltpm/bolt/pkg/cache"
	"github.com/boltpm/bolt/pkg/errors"
	"github.com/boltpm/bolt/pkg/resolver"
)

// TraversalError reports an archive entry that tries to escape the
// extraction root.
type TraversalError struct {
	Package string
	Path    string
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("path traversal attack detected in package %s: %s", e.Package, e.Path)
}

// Extractor unpacks verified archives from the cache's tarball tier into
// its extracted-tree tier. Extraction goes through a staging directory, so
// the final tree appears only when every entry was written; a crashed or
// failed extraction leaves nothing behind at the final path.
type Extractor struct {
	cache  *cache.Manager
	logger *log.Logger
}

// NewExtractor creates an extractor over the given cache.
func NewExtractor(cacheMgr *cache.Manager, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.Default()
	}
	return &Extractor{cache: cacheMgr, logger: logger}
}

// Extract unpacks the cached archive for a resolved package and returns
// the extracted tree's path. Already-extracted packages return
// immediately.
//
// Every entry path is screened before use: paths containing "..", absolute
// paths, and paths with NUL bytes fail with PATH_TRAVERSAL. The
// conventional leading "package/" component is stripped. The executable
// bit of regular files is preserved on POSIX hosts.
func (e *Extractor) Extract(pkg resolver.ResolvedPackage) (string, error) {
	final := e.cache.PackageDir(pkg.Name, pkg.Version)
	if e.cache.HasPackage(pkg.Name, pkg.Version) {
		return final, nil
	}

	tarballPath := e.cache.TarballPath(pkg.Name, pkg.Version)
	f, err := os.Open(tarballPath)
	if err != nil {
		return "", errors.Wrap(errors.CodeCache, err, "tarball not found for %s@%s", pkg.Name, pkg.Version)
	}
	defer f.Close()

	staged, err := e.cache.StagePackageDir(pkg.Name, pkg.Version)
	if err != nil {
		return "", err
	}

	if err := e.unpack(f, staged, pkg.Name); err != nil {
		e.cache.DiscardPackageDir(staged)
		return "", err
	}
	if err := e.cache.CommitPackageDir(staged, pkg.Name, pkg.Version); err != nil {
		return "", err
	}
	return final, nil
}

func (e *Extractor) unpack(r io.Reader, dest, pkgName string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return errors.Wrap(errors.CodeCache, err, "decompress archive for %s", pkgName)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(errors.CodeCache, err, "read archive for %s", pkgName)
		}

		if err := checkEntryPath(hdr.Name, pkgName); err != nil {
			return err
		}

		rel := strings.TrimPrefix(hdr.Name, "package/")
		if rel == "package" || rel == "" {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.Wrap(errors.CodeCache, err, "create directory for %s", pkgName)
			}
		case tar.TypeReg:
			if err := writeEntry(tr, target, hdr); err != nil {
				return errors.Wrap(errors.CodeCache, err, "extract %s from %s", rel, pkgName)
			}
		default:
			// Links and special files are not part of the registry archive
			// convention; ignore them rather than materialize surprises.
			e.logger.Debug("skipping archive entry", "package", pkgName, "path", hdr.Name, "type", hdr.Typeflag)
		}
	}
}

// checkEntryPath rejects entries that could escape the extraction root.
func checkEntryPath(name, pkgName string) error {
	fail := func(path string) error {
		terr := &TraversalError{Package: pkgName, Path: path}
		return errors.Wrap(errors.CodePathTraversal, terr, "unsafe archive entry in %s", pkgName)
	}
	if strings.Contains(name, "..") {
		return fail(name)
	}
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return fail(name)
	}
	if strings.ContainsRune(name, 0) {
		return fail("null byte in path")
	}
	return nil
}

func writeEntry(tr io.Reader, target string, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	mode := os.FileMode(0o644)
	if hdr.Mode&0o100 != 0 {
		mode = 0o755
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, tr); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
