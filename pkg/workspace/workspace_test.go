package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeMember(t *testing.T, root, dir, name string, deps map[string]string) {
	t.Helper()
	full := filepath.Join(root, dir)
	if err := os.MkdirAll(full, 0o755); err != nil {
		t.Fatal(err)
	}
	content := fmt.Sprintf(`{"name": %q, "version": "1.0.0"`, name)
	if len(deps) > 0 {
		content += `, "dependencies": {`
		first := true
		for dep, c := range deps {
			if !first {
				content += ", "
			}
			content += fmt.Sprintf("%q: %q", dep, c)
			first = false
		}
		content += `}`
	}
	content += "}\n"
	if err := os.WriteFile(filepath.Join(full, "package.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscovery(t *testing.T) {
	root := t.TempDir()
	writeMember(t, root, "packages/a", "a", nil)
	writeMember(t, root, "packages/b", "b", nil)
	// Not a package: no package.json.
	if err := os.MkdirAll(filepath.Join(root, "packages", "junk"), 0o755); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(root, []string{"packages/*"})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	if len(m.Packages()) != 2 {
		t.Errorf("discovered %d members, want 2: %v", len(m.Packages()), m.Packages())
	}
	if !m.IsPackage(filepath.Join(root, "packages", "a")) {
		t.Error("packages/a should be a member")
	}
	if m.IsPackage(filepath.Join(root, "packages", "junk")) {
		t.Error("packages/junk should not be a member")
	}
}

func TestBuildOrder(t *testing.T) {
	root := t.TempDir()
	writeMember(t, root, "packages/app", "app", map[string]string{"lib": "^1.0.0", "external": "^2.0.0"})
	writeMember(t, root, "packages/lib", "lib", map[string]string{"core": "^1.0.0"})
	writeMember(t, root, "packages/core", "core", nil)

	m, err := NewManager(root, []string{"packages/*"})
	if err != nil {
		t.Fatal(err)
	}

	order, err := m.BuildOrder()
	if err != nil {
		t.Fatalf("BuildOrder error: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("order length = %d, want 3", len(order))
	}
	pos := make(map[string]int)
	for i, dir := range order {
		pos[filepath.Base(dir)] = i
	}
	if pos["core"] > pos["lib"] || pos["lib"] > pos["app"] {
		t.Errorf("dependency-first order violated: %v", order)
	}
}

func TestCycleDetected(t *testing.T) {
	root := t.TempDir()
	writeMember(t, root, "packages/a", "a", map[string]string{"b": "^1.0.0"})
	writeMember(t, root, "packages/b", "b", map[string]string{"a": "^1.0.0"})

	m, err := NewManager(root, []string{"packages/*"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.BuildOrder(); err == nil {
		t.Error("workspace cycle should fail BuildOrder")
	}
}

func TestExternalDepsIgnored(t *testing.T) {
	g := NewGraph()
	g.AddPackage("a", "/a")
	g.AddDependency("a", "react")

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 1 {
		t.Errorf("order = %v", order)
	}
}
