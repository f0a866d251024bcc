// Package workspace discovers the member packages of a monorepo and
// orders them for building. Discovery follows the workspace glob patterns
// from the root manifest; a directory is a member iff it contains a
// package.json.
package workspace

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/boltpm/bolt/pkg/errors"
	"github.com/boltpm/bolt/pkg/manifest"
)

// Manager discovers and inspects workspace member packages.
type Manager struct {
	root     string
	patterns []string
	packages []string // absolute member directories, sorted
}

// NewManager discovers workspace members under root using the given glob
// patterns (e.g. "packages/*").
func NewManager(root string, patterns []string) (*Manager, error) {
	var packages []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, errors.Wrap(errors.CodeWorkspace, err, "bad workspace pattern %q", pattern)
		}
		for _, match := range matches {
			if info, err := os.Stat(match); err != nil || !info.IsDir() {
				continue
			}
			if _, err := os.Stat(filepath.Join(match, manifest.Filename)); err == nil {
				packages = append(packages, match)
			}
		}
	}
	slices.Sort(packages)
	packages = slices.Compact(packages)

	return &Manager{root: root, patterns: patterns, packages: packages}, nil
}

// Root returns the workspace root directory.
func (m *Manager) Root() string { return m.root }

// Packages returns the member package directories.
func (m *Manager) Packages() []string { return m.packages }

// IsPackage reports whether path is a workspace member.
func (m *Manager) IsPackage(path string) bool {
	return slices.Contains(m.packages, path)
}

// Member pairs a member directory with its parsed manifest.
type Member struct {
	Dir      string
	Manifest *manifest.Manifest
}

// Members loads the manifest of every member package.
func (m *Manager) Members() ([]Member, error) {
	members := make([]Member, 0, len(m.packages))
	for _, dir := range m.packages {
		mf, err := manifest.Load(dir)
		if err != nil {
			return nil, err
		}
		members = append(members, Member{Dir: dir, Manifest: mf})
	}
	return members, nil
}

// BuildGraph builds the internal dependency graph between members.
// Runtime and dev dependencies both order builds; dependencies on
// packages outside the workspace are ignored.
func (m *Manager) BuildGraph() (*Graph, error) {
	members, err := m.Members()
	if err != nil {
		return nil, err
	}

	g := NewGraph()
	for _, member := range members {
		g.AddPackage(member.Manifest.Name, member.Dir)
	}
	for _, member := range members {
		for dep := range member.Manifest.Dependencies {
			g.AddDependency(member.Manifest.Name, dep)
		}
		for dep := range member.Manifest.DevDependencies {
			g.AddDependency(member.Manifest.Name, dep)
		}
	}
	return g, nil
}

// BuildOrder returns member directories in dependency-first order.
func (m *Manager) BuildOrder() ([]string, error) {
	g, err := m.BuildGraph()
	if err != nil {
		return nil, err
	}
	names, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, len(names))
	for _, name := range names {
		order = append(order, g.Path(name))
	}
	return order, nil
}
