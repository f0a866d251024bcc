package workspace

import (
	"slices"

	"github.com/boltpm/bolt/pkg/errors"
)

// Graph is the dependency graph between workspace members. Edges to
// packages that are not members are dropped at insertion.
type Graph struct {
	paths map[string]string   // name -> member dir
	edges map[string][]string // name -> internal dependency names
}

// NewGraph creates an empty workspace graph.
func NewGraph() *Graph {
	return &Graph{
		paths: make(map[string]string),
		edges: make(map[string][]string),
	}
}

// AddPackage registers a member package.
func (g *Graph) AddPackage(name, dir string) {
	g.paths[name] = dir
}

// AddDependency records that from depends on to. Unknown endpoints are
// ignored.
func (g *Graph) AddDependency(from, to string) {
	if _, ok := g.paths[from]; !ok {
		return
	}
	if _, ok := g.paths[to]; !ok {
		return
	}
	if !slices.Contains(g.edges[from], to) {
		g.edges[from] = append(g.edges[from], to)
	}
}

// Path returns the member directory for a package name.
func (g *Graph) Path(name string) string { return g.paths[name] }

// Names returns the member names, sorted.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.paths))
	for name := range g.paths {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// TopologicalOrder returns member names dependency-first, failing when
// members depend on each other cyclically.
func (g *Graph) TopologicalOrder() ([]string, error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(g.paths))
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case gray:
			return errors.New(errors.CodeWorkspace, "workspace dependency cycle involving %s", name)
		case black:
			return nil
		}
		color[name] = gray
		deps := slices.Clone(g.edges[name])
		slices.Sort(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		order = append(order, name)
		return nil
	}

	for _, name := range g.Names() {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
