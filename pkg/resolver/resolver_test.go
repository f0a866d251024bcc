package resolver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boltpm/bolt/internal/registrytest"
	"github.com/boltpm/bolt/pkg/cache"
	"github.com/boltpm/bolt/pkg/errors"
	"github.com/boltpm/bolt/pkg/lockfile"
	"github.com/boltpm/bolt/pkg/registry"
)

func newResolver(t *testing.T, srv *registrytest.Server) (*Resolver, *cache.Manager) {
	t.Helper()
	mgr, err := cache.NewManager(t.TempDir(), cache.Options{MetadataTTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	client := registry.NewClient(registry.Config{URL: srv.URL, Retries: 1}, mgr, nil)
	return New(client, mgr, nil), mgr
}

func TestResolveSingleDependency(t *testing.T) {
	srv := registrytest.New(t, registrytest.Package{Name: "a", Version: "1.0.0"})
	r, _ := newResolver(t, srv)

	res, err := r.Resolve(context.Background(), map[string]string{"a": "^1.0.0"})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(res.ToInstall) != 1 || res.ToInstall[0].Version != "1.0.0" {
		t.Errorf("ToInstall = %+v", res.ToInstall)
	}
	if len(res.FromCache) != 0 {
		t.Errorf("FromCache should be empty on a cold cache")
	}
	if len(res.Lockfile.Packages) != 1 {
		t.Errorf("lockfile has %d entries, want 1", len(res.Lockfile.Packages))
	}
	if !res.Graph.HasPackage("a") {
		t.Error("graph should contain the resolved package")
	}
}

func TestResolvePicksHighestSatisfying(t *testing.T) {
	srv := registrytest.New(t,
		registrytest.Package{Name: "a", Version: "1.0.0"},
		registrytest.Package{Name: "a", Version: "1.4.0"},
		registrytest.Package{Name: "a", Version: "2.0.0"},
	)
	r, _ := newResolver(t, srv)

	res, err := r.Resolve(context.Background(), map[string]string{"a": "^1.0.0"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ToInstall[0].Version != "1.4.0" {
		t.Errorf("chose %s, want 1.4.0", res.ToInstall[0].Version)
	}
}

func TestResolveTransitiveSharedGrandchild(t *testing.T) {
	srv := registrytest.New(t,
		registrytest.Package{Name: "a", Version: "1.0.0", Deps: map[string]string{"c": "^1.0.0"}},
		registrytest.Package{Name: "b", Version: "1.0.0", Deps: map[string]string{"c": "^1.0.0"}},
		registrytest.Package{Name: "c", Version: "1.2.0"},
	)
	r, _ := newResolver(t, srv)

	res, err := r.Resolve(context.Background(), map[string]string{"a": "^1", "b": "^1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Lockfile.Packages) != 3 {
		t.Errorf("lockfile has %d entries, want 3", len(res.Lockfile.Packages))
	}
	if got := len(res.Lockfile.FindPackageVersions("c")); got != 1 {
		t.Errorf("c pinned %d times, want once", got)
	}
	// The shared (name, constraint) site is visited once.
	if hits := srv.MetadataRequests("c"); hits != 1 {
		t.Errorf("c metadata fetched %d times, want 1", hits)
	}
}

func TestConflictHigherWins(t *testing.T) {
	srv := registrytest.New(t,
		registrytest.Package{Name: "a", Version: "1.0.0", Deps: map[string]string{"c": "^1.0.0"}},
		registrytest.Package{Name: "b", Version: "1.0.0", Deps: map[string]string{"c": "^1.5.0"}},
		registrytest.Package{Name: "c", Version: "1.0.0"},
		registrytest.Package{Name: "c", Version: "1.6.0"},
	)
	r, _ := newResolver(t, srv)

	res, err := r.Resolve(context.Background(), map[string]string{"a": "^1", "b": "^1"})
	if err != nil {
		t.Fatal(err)
	}
	entries := res.Lockfile.FindPackageVersions("c")
	if len(entries) != 1 {
		t.Fatalf("c pinned %d times, want once", len(entries))
	}
	if entries[0].Version != "1.6.0" {
		t.Errorf("conflict chose %s, want 1.6.0", entries[0].Version)
	}
}

func TestCycleRejected(t *testing.T) {
	srv := registrytest.New(t,
		registrytest.Package{Name: "a", Version: "1.0.0", Deps: map[string]string{"b": "^1.0.0"}},
		registrytest.Package{Name: "b", Version: "1.0.0", Deps: map[string]string{"a": "^1.0.0"}},
	)
	r, _ := newResolver(t, srv)

	_, err := r.Resolve(context.Background(), map[string]string{"a": "^1.0.0"})
	if !errors.Is(err, errors.CodeCircularDependency) {
		t.Fatalf("expected CIRCULAR_DEPENDENCY, got %v", err)
	}
	msg := err.Error()
	for _, name := range []string{"a@1.0.0", "b@1.0.0"} {
		if !strings.Contains(msg, name) {
			t.Errorf("cycle error %q should name %s", msg, name)
		}
	}
}

func TestPackageNotFound(t *testing.T) {
	srv := registrytest.New(t)
	r, _ := newResolver(t, srv)

	_, err := r.Resolve(context.Background(), map[string]string{"ghost": "^1.0.0"})
	if !errors.Is(err, errors.CodePackageNotFound) {
		t.Errorf("expected PACKAGE_NOT_FOUND, got %v", err)
	}
}

func TestOptionalDependencyMissingIsTolerated(t *testing.T) {
	srv := registrytest.New(t, registrytest.Package{
		Name: "a", Version: "1.0.0",
		OptionalDeps: map[string]string{"fsevents": "^2.0.0"},
	})
	r, _ := newResolver(t, srv)

	res, err := r.Resolve(context.Background(), map[string]string{"a": "^1.0.0"})
	if err != nil {
		t.Fatalf("missing optional dependency should not fail resolution: %v", err)
	}
	if len(res.Lockfile.Packages) != 1 {
		t.Errorf("lockfile has %d entries, want 1", len(res.Lockfile.Packages))
	}
}

func TestNoVersionSatisfies(t *testing.T) {
	srv := registrytest.New(t, registrytest.Package{Name: "a", Version: "1.0.0"})
	r, _ := newResolver(t, srv)

	_, err := r.Resolve(context.Background(), map[string]string{"a": "^9.0.0"})
	if !errors.Is(err, errors.CodeInvalidConstraint) {
		t.Errorf("expected INVALID_VERSION_CONSTRAINT, got %v", err)
	}
}

func TestFromCachePartition(t *testing.T) {
	srv := registrytest.New(t,
		registrytest.Package{Name: "a", Version: "1.0.0"},
		registrytest.Package{Name: "b", Version: "1.0.0"},
	)
	r, mgr := newResolver(t, srv)

	// Materialize a@1.0.0 in the cache.
	staged, err := mgr.StagePackageDir("a", "1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(staged, "package.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := mgr.CommitPackageDir(staged, "a", "1.0.0"); err != nil {
		t.Fatal(err)
	}

	res, err := r.Resolve(context.Background(), map[string]string{"a": "^1", "b": "^1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.FromCache) != 1 || res.FromCache[0].Name != "a" {
		t.Errorf("FromCache = %+v", res.FromCache)
	}
	if len(res.ToInstall) != 1 || res.ToInstall[0].Name != "b" {
		t.Errorf("ToInstall = %+v", res.ToInstall)
	}
}

func TestDeterministicLockfile(t *testing.T) {
	pkgs := []registrytest.Package{
		{Name: "a", Version: "1.0.0", Deps: map[string]string{"shared": "^1.0.0"}},
		{Name: "b", Version: "1.0.0", Deps: map[string]string{"shared": "^1.2.0"}},
		{Name: "shared", Version: "1.0.0"},
		{Name: "shared", Version: "1.3.0"},
	}
	deps := map[string]string{"a": "^1", "b": "^1"}

	srv := registrytest.New(t, pkgs...)
	var outputs [][]byte
	for range 2 {
		r, _ := newResolver(t, srv)
		res, err := r.Resolve(context.Background(), deps)
		if err != nil {
			t.Fatal(err)
		}
		dir := t.TempDir()
		if err := res.Lockfile.Save(dir); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(filepath.Join(dir, lockfile.Filename))
		if err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, data)
	}
	if string(outputs[0]) != string(outputs[1]) {
		t.Error("same deps should produce byte-identical lockfiles across runs")
	}
}

func TestPeerDependenciesRecordedNotRecursed(t *testing.T) {
	srv := registrytest.New(t, registrytest.Package{
		Name: "ui", Version: "1.0.0",
		PeerDeps: map[string]string{"react": "^18.0.0"},
	})
	r, _ := newResolver(t, srv)

	res, err := r.Resolve(context.Background(), map[string]string{"ui": "^1.0.0"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Lockfile.Packages) != 1 {
		t.Fatalf("peers must not be resolved, lockfile has %d entries", len(res.Lockfile.Packages))
	}
	entry := res.Lockfile.FindPackage("ui", "1.0.0")
	if len(entry.PeerDependencies) != 1 || entry.PeerDependencies[0] != "react" {
		t.Errorf("peer list = %v", entry.PeerDependencies)
	}
	if srv.MetadataRequests("react") != 0 {
		t.Error("peer dependencies must not be fetched")
	}
}
