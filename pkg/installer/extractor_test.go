package installer

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/boltpm/bolt/internal/registrytest"
	"github.com/boltpm/bolt/pkg/cache"
	"github.com/boltpm/bolt/pkg/errors"
	"github.com/boltpm/bolt/pkg/resolver"
)

func newCache(t *testing.T) *cache.Manager {
	t.Helper()
	m, err := cache.NewManager(t.TempDir(), cache.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestExtract(t *testing.T) {
	srv := registrytest.New(t, registrytest.Package{
		Name:    "left-pad",
		Version: "1.3.0",
		Files:   map[string]string{"index.js": "module.exports = pad", "lib/util.js": "x"},
	})
	mgr := newCache(t)

	if err := mgr.StoreTarball("left-pad", "1.3.0", srv.Tarball("left-pad", "1.3.0")); err != nil {
		t.Fatal(err)
	}

	e := NewExtractor(mgr, nil)
	dir, err := e.Extract(resolver.ResolvedPackage{Name: "left-pad", Version: "1.3.0"})
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}

	for _, path := range []string{"package.json", "index.js", "lib/util.js"} {
		if _, err := os.Stat(filepath.Join(dir, path)); err != nil {
			t.Errorf("extracted file missing: %s", path)
		}
	}
	if !mgr.HasPackage("left-pad", "1.3.0") {
		t.Error("HasPackage should be true after extraction")
	}
}

func TestExtractIdempotent(t *testing.T) {
	srv := registrytest.New(t, registrytest.Package{Name: "a", Version: "1.0.0"})
	mgr := newCache(t)
	if err := mgr.StoreTarball("a", "1.0.0", srv.Tarball("a", "1.0.0")); err != nil {
		t.Fatal(err)
	}

	e := NewExtractor(mgr, nil)
	if _, err := e.Extract(resolver.ResolvedPackage{Name: "a", Version: "1.0.0"}); err != nil {
		t.Fatal(err)
	}
	// Second call returns without re-extracting.
	if _, err := e.Extract(resolver.ResolvedPackage{Name: "a", Version: "1.0.0"}); err != nil {
		t.Fatalf("repeat Extract error: %v", err)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	cases := map[string]map[string]string{
		"dotdot":   {"package/../../evil.js": "bad"},
		"absolute": {"/etc/passwd": "bad"},
	}

	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			mgr := newCache(t)
			if err := mgr.StoreTarball("mal", "1.0.0", registrytest.RawTarball(entries)); err != nil {
				t.Fatal(err)
			}

			e := NewExtractor(mgr, nil)
			_, err := e.Extract(resolver.ResolvedPackage{Name: "mal", Version: "1.0.0"})
			if !errors.Is(err, errors.CodePathTraversal) {
				t.Fatalf("expected PATH_TRAVERSAL, got %v", err)
			}
			if mgr.HasPackage("mal", "1.0.0") {
				t.Error("failed extraction must not leave an extracted tree")
			}
		})
	}
}

func TestEntryPathScreening(t *testing.T) {
	// The tar writer itself refuses NUL bytes in entry names, so the NUL
	// defense is exercised at the screening layer.
	for _, bad := range []string{"package/../evil", "/abs/path", "package/a\x00b"} {
		if err := checkEntryPath(bad, "pkg"); !errors.Is(err, errors.CodePathTraversal) {
			t.Errorf("checkEntryPath(%q) should fail with PATH_TRAVERSAL, got %v", bad, err)
		}
	}
	for _, ok := range []string{"package/index.js", "package/lib/a.js"} {
		if err := checkEntryPath(ok, "pkg"); err != nil {
			t.Errorf("checkEntryPath(%q) should pass, got %v", ok, err)
		}
	}
}

func TestExtractPreservesExecutableBit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits are POSIX-only")
	}

	srv := registrytest.New(t, registrytest.Package{
		Name:       "cli-tool",
		Version:    "1.0.0",
		Files:      map[string]string{"bin/run.js": "#!/usr/bin/env node\n"},
		Executable: []string{"bin/run.js"},
	})
	mgr := newCache(t)
	if err := mgr.StoreTarball("cli-tool", "1.0.0", srv.Tarball("cli-tool", "1.0.0")); err != nil {
		t.Fatal(err)
	}

	e := NewExtractor(mgr, nil)
	dir, err := e.Extract(resolver.ResolvedPackage{Name: "cli-tool", Version: "1.0.0"})
	if err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(dir, "bin", "run.js"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Error("executable bit lost on extraction")
	}

	info, err = os.Stat(filepath.Join(dir, "package.json"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o100 != 0 {
		t.Error("plain files should not gain the executable bit")
	}
}

func TestExtractMissingTarball(t *testing.T) {
	mgr := newCache(t)
	e := NewExtractor(mgr, nil)
	_, err := e.Extract(resolver.ResolvedPackage{Name: "ghost", Version: "1.0.0"})
	if !errors.Is(err, errors.CodeCache) {
		t.Errorf("expected CACHE_ERROR, got %v", err)
	}
}
