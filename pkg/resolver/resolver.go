// Package resolver turns a map of declared dependencies into a full
// resolution: the chosen version for every transitively required package,
// the dependency graph, the lockfile, and the partition of packages into
// already-cached and still-to-install.
//
// Resolution is a worklist BFS keyed by (name, constraint) so identical
// constraint sites are visited once. Version selection is
// highest-satisfying; when two constraint sites pick different versions of
// the same package the higher version wins. That rule is commutative, so
// the outcome does not depend on traversal order.
package resolver

import (
	"context"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/boltpm/bolt/pkg/cache"
	"github.com/boltpm/bolt/pkg/errors"
	"github.com/boltpm/bolt/pkg/lockfile"
	"github.com/boltpm/bolt/pkg/registry"
	"github.com/boltpm/bolt/pkg/semver"
)

// maxDepth caps traversal depth to defeat pathological dependency chains.
const maxDepth = 100

// ResolvedPackage is the resolver's output for one chosen (name, version).
// Entries are immutable after emission.
type ResolvedPackage struct {
	Name       string
	Version    string
	TarballURL string
	Integrity  string

	Dependencies         map[string]string
	PeerDependencies     map[string]string
	OptionalDependencies map[string]string

	HasScripts bool
	OS         []string
	CPU        []string
}

// Resolution is the complete result of resolving a dependency map.
type Resolution struct {
	Graph    *Graph
	Lockfile *lockfile.Lockfile

	// ToInstall are resolved packages absent from the content cache.
	ToInstall []ResolvedPackage

	// FromCache are resolved packages already materialized in the cache.
	FromCache []ResolvedPackage
}

// All returns every resolved package, cached or not.
func (r *Resolution) All() []ResolvedPackage {
	out := make([]ResolvedPackage, 0, len(r.ToInstall)+len(r.FromCache))
	out = append(out, r.FromCache...)
	out = append(out, r.ToInstall...)
	return out
}

// Resolver resolves dependency maps against a registry. It holds its
// worklist and emerging graph exclusively during a Resolve call; the
// registry client and cache manager are shared by reference.
type Resolver struct {
	registry *registry.Client
	cache    *cache.Manager
	logger   *log.Logger
}

// New creates a resolver. A nil logger selects log.Default().
func New(reg *registry.Client, cacheMgr *cache.Manager, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{registry: reg, cache: cacheMgr, logger: logger}
}

// workItem is one (name, constraint) site in the BFS worklist.
type workItem struct {
	name       string
	constraint string
	depth      int
	optional   bool
}

// Resolve resolves deps (name -> constraint) to a Resolution.
//
// devDependencies are never recursed; callers wanting the root project's
// devDependencies installed merge them into deps before calling.
func (r *Resolver) Resolve(ctx context.Context, deps map[string]string) (*Resolution, error) {
	graph := NewGraph()
	chosen := make(map[string]ResolvedPackage) // name -> winning entry
	visited := make(map[string]bool)           // name@constraint sites
	var edges [][2]string

	// Seed the worklist in sorted order so decision order is reproducible.
	queue := make([]workItem, 0, len(deps))
	for _, name := range sortedKeys(deps) {
		queue = append(queue, workItem{name: name, constraint: deps[name]})
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.CodeCancelled, err, "resolution cancelled")
		}

		item := queue[0]
		queue = queue[1:]

		key := item.name + "@" + item.constraint
		if visited[key] {
			continue
		}
		visited[key] = true

		meta, err := r.registry.GetPackageMetadata(ctx, item.name)
		if err != nil {
			if item.optional && errors.Is(err, errors.CodePackageNotFound) {
				r.logger.Warn("skipping unavailable optional dependency", "package", item.name)
				continue
			}
			return nil, err
		}

		constraint, err := semver.Parse(item.constraint)
		if err != nil {
			return nil, err
		}
		version, err := semver.HighestMatching(meta.VersionNames(), constraint)
		if err != nil {
			return nil, errors.Wrap(errors.CodeInvalidConstraint, err,
				"no version of %s satisfies %s", item.name, item.constraint)
		}

		// Conflict policy: the higher version wins; the loser's children
		// are not enqueued.
		if prev, ok := chosen[item.name]; ok && prev.Version != version {
			if !higher(version, prev.Version) {
				continue
			}
			r.logger.Warn("version conflict resolved by higher version",
				"package", item.name, "kept", version, "dropped", prev.Version)
		} else if ok {
			continue
		}

		vm, ok := meta.Versions[version]
		if !ok {
			return nil, errors.New(errors.CodeVersionNotFound,
				"version not found: %s@%s", item.name, version)
		}

		entry := ResolvedPackage{
			Name:                 item.name,
			Version:              version,
			TarballURL:           vm.Dist.Tarball,
			Integrity:            vm.Dist.Integrity,
			Dependencies:         vm.Dependencies,
			PeerDependencies:     vm.PeerDependencies,
			OptionalDependencies: vm.OptionalDependencies,
			HasScripts:           vm.HasInstallScripts(),
			OS:                   vm.OS,
			CPU:                  vm.CPU,
		}
		chosen[item.name] = entry
		graph.AddPackage(item.name, version)

		if vm.Deprecated != "" {
			r.logger.Warn("package is deprecated", "package", item.name, "version", version, "reason", vm.Deprecated)
		}

		// Edges cover regular and optional dependencies; peers are
		// recorded on the entry but not traversed.
		if item.depth < maxDepth {
			for _, dep := range sortedKeys(vm.Dependencies) {
				edges = append(edges, [2]string{item.name, dep})
				queue = append(queue, workItem{
					name: dep, constraint: vm.Dependencies[dep], depth: item.depth + 1,
				})
			}
			for _, dep := range sortedKeys(vm.OptionalDependencies) {
				edges = append(edges, [2]string{item.name, dep})
				queue = append(queue, workItem{
					name: dep, constraint: vm.OptionalDependencies[dep], depth: item.depth + 1, optional: true,
				})
			}
		} else {
			r.logger.Warn("dependency depth cap reached", "package", item.name, "depth", item.depth)
		}
	}

	// All nodes exist now; apply the recorded edges.
	for _, e := range edges {
		graph.AddDependency(e[0], e[1])
	}

	if cycle := graph.FindCycle(); cycle != nil {
		return nil, errors.New(errors.CodeCircularDependency,
			"circular dependency detected: %s", strings.Join(cycle, " -> "))
	}

	r.verifyPeers(chosen)

	return r.assemble(chosen, graph), nil
}

// verifyPeers checks every recorded peer constraint against the chosen
// version of the peer, warning on mismatch. Peers the project does not
// install at all are the host's responsibility and stay silent here.
func (r *Resolver) verifyPeers(chosen map[string]ResolvedPackage) {
	for _, name := range sortedKeys(chosen) {
		entry := chosen[name]
		for _, peer := range sortedKeys(entry.PeerDependencies) {
			peerEntry, ok := chosen[peer]
			if !ok {
				continue
			}
			constraint, err := semver.Parse(entry.PeerDependencies[peer])
			if err != nil {
				continue
			}
			if !constraint.MatchesString(peerEntry.Version) {
				r.logger.Warn("peer dependency mismatch",
					"package", name, "peer", peer,
					"required", entry.PeerDependencies[peer], "resolved", peerEntry.Version)
			}
		}
	}
}

// assemble builds the lockfile and cache partition from the final entries.
func (r *Resolver) assemble(chosen map[string]ResolvedPackage, graph *Graph) *Resolution {
	res := &Resolution{Graph: graph, Lockfile: lockfile.New()}

	for _, name := range sortedKeys(chosen) {
		entry := chosen[name]

		res.Lockfile.AddPackage(lockfile.Package{
			Name:                 entry.Name,
			Version:              entry.Version,
			Resolved:             entry.TarballURL,
			Integrity:            entry.Integrity,
			Dependencies:         joinConstraints(entry.Dependencies),
			PeerDependencies:     sortedKeys(entry.PeerDependencies),
			OptionalDependencies: sortedKeys(entry.OptionalDependencies),
			HasScripts:           entry.HasScripts,
			OS:                   entry.OS,
			CPU:                  entry.CPU,
		})

		if r.cache.HasPackage(entry.Name, entry.Version) {
			res.FromCache = append(res.FromCache, entry)
		} else {
			res.ToInstall = append(res.ToInstall, entry)
		}
	}
	return res
}

// higher reports whether version a sorts above b. Unparseable versions
// lose.
func higher(a, b string) bool {
	av, errA := semver.ParseVersion(a)
	bv, errB := semver.ParseVersion(b)
	if errA != nil {
		return false
	}
	if errB != nil {
		return true
	}
	return av.GreaterThan(bv)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func joinConstraints(deps map[string]string) []string {
	out := make([]string, 0, len(deps))
	for _, name := range sortedKeys(deps) {
		out = append(out, name+"@"+deps[name])
	}
	return out
}
