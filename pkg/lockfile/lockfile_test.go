package lockfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/boltpm/bolt/pkg/errors"
)

func sample() Package {
	return Package{
		Name:         "test-package",
		Version:      "1.0.0",
		Resolved:     "https://registry.npmjs.org/test-package/-/test-package-1.0.0.tgz",
		Integrity:    "sha512-abc123",
		Dependencies: []string{"dep1@^1.0.0"},
	}
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	lf := New()
	lf.AddPackage(sample())
	if err := lf.Save(dir); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil for existing lockfile")
	}
	if len(loaded.Packages) != 1 {
		t.Fatalf("got %d packages, want 1", len(loaded.Packages))
	}
	if loaded.Packages[0].Name != "test-package" {
		t.Errorf("name = %s", loaded.Packages[0].Name)
	}
	if loaded.Version != Version {
		t.Errorf("format version = %d, want %d", loaded.Version, Version)
	}
}

func TestLoadMissingReturnsNil(t *testing.T) {
	lf, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if lf != nil {
		t.Error("Load of missing lockfile should return nil")
	}
}

func TestTamperDetection(t *testing.T) {
	dir := t.TempDir()

	lf := New()
	lf.AddPackage(sample())
	if err := lf.Save(dir); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, Filename)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(content), "1.0.0", "2.0.0", 1)
	if err := os.WriteFile(path, []byte(tampered), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Load(dir)
	if !errors.Is(err, errors.CodeInvalidLockfile) {
		t.Errorf("tampered lockfile should fail with INVALID_LOCKFILE, got %v", err)
	}
}

func TestDeterministicOutput(t *testing.T) {
	dir1, dir2 := t.TempDir(), t.TempDir()

	a := New()
	a.AddPackage(Package{Name: "zeta", Version: "1.0.0", Resolved: "u", Integrity: "i"})
	a.AddPackage(Package{Name: "alpha", Version: "2.0.0", Resolved: "u", Integrity: "i", Dependencies: []string{"b@^1", "a@^1"}})

	b := New()
	b.AddPackage(Package{Name: "alpha", Version: "2.0.0", Resolved: "u", Integrity: "i", Dependencies: []string{"a@^1", "b@^1"}})
	b.AddPackage(Package{Name: "zeta", Version: "1.0.0", Resolved: "u", Integrity: "i"})

	if err := a.Save(dir1); err != nil {
		t.Fatal(err)
	}
	if err := b.Save(dir2); err != nil {
		t.Fatal(err)
	}

	d1, _ := os.ReadFile(filepath.Join(dir1, Filename))
	d2, _ := os.ReadFile(filepath.Join(dir2, Filename))
	if string(d1) != string(d2) {
		t.Error("same logical content should serialize identically")
	}
}

func TestAddPackageReplaces(t *testing.T) {
	lf := New()
	lf.AddPackage(sample())
	updated := sample()
	updated.Integrity = "sha512-updated"
	lf.AddPackage(updated)

	if len(lf.Packages) != 1 {
		t.Fatalf("got %d entries, want 1", len(lf.Packages))
	}
	if lf.Packages[0].Integrity != "sha512-updated" {
		t.Error("AddPackage should replace the existing entry")
	}
}

func TestDiffSelfIsEmpty(t *testing.T) {
	lf := New()
	lf.AddPackage(sample())
	if d := lf.DiffAgainst(lf); !d.IsEmpty() {
		t.Errorf("diff against self should be empty, got %d changes", d.TotalChanges())
	}
}

func TestDiff(t *testing.T) {
	old := New()
	old.AddPackage(Package{Name: "a", Version: "1.0.0", Resolved: "u", Integrity: "i"})
	old.AddPackage(Package{Name: "gone", Version: "1.0.0", Resolved: "u", Integrity: "i"})

	next := New()
	next.AddPackage(Package{Name: "a", Version: "2.0.0", Resolved: "u", Integrity: "i"})
	next.AddPackage(Package{Name: "fresh", Version: "1.0.0", Resolved: "u", Integrity: "i"})

	d := old.DiffAgainst(next)
	if len(d.Added) != 1 || d.Added[0].Name != "fresh" {
		t.Errorf("added = %v", d.Added)
	}
	if len(d.Changed) != 1 || d.Changed[0].Name != "a" {
		t.Errorf("changed = %v", d.Changed)
	}
	if len(d.Removed) != 1 || d.Removed[0].Name != "gone" {
		t.Errorf("removed = %v", d.Removed)
	}
	if d.TotalChanges() != 3 {
		t.Errorf("TotalChanges = %d, want 3", d.TotalChanges())
	}
}

func TestMerge(t *testing.T) {
	a := New()
	a.AddPackage(Package{Name: "a", Version: "1.0.0", Resolved: "u", Integrity: "keep"})

	b := New()
	b.AddPackage(Package{Name: "a", Version: "1.0.0", Resolved: "u", Integrity: "ignored"})
	b.AddPackage(Package{Name: "b", Version: "1.0.0", Resolved: "u", Integrity: "i"})

	a.Merge(b)
	if len(a.Packages) != 2 {
		t.Fatalf("got %d packages, want 2", len(a.Packages))
	}
	if a.FindPackage("a", "1.0.0").Integrity != "keep" {
		t.Error("Merge should not overwrite existing entries")
	}
}

func TestPackageNames(t *testing.T) {
	lf := New()
	lf.AddPackage(Package{Name: "b", Version: "1.0.0"})
	lf.AddPackage(Package{Name: "a", Version: "1.0.0"})
	lf.AddPackage(Package{Name: "a", Version: "2.0.0"})

	names := lf.PackageNames()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("PackageNames = %v", names)
	}
}

func TestPackagesWithScripts(t *testing.T) {
	lf := New()
	lf.AddPackage(Package{Name: "a", Version: "1.0.0", HasScripts: true})
	lf.AddPackage(Package{Name: "b", Version: "1.0.0"})

	scripted := lf.PackagesWithScripts()
	if len(scripted) != 1 || scripted[0].Name != "a" {
		t.Errorf("PackagesWithScripts = %v", scripted)
	}
}
