// Package lockfile implements bolt's deterministic, tamper-evident
// lockfile.
//
// The lockfile is TOML with a fixed field order. Entries are sorted by
// (name, version) and every list inside an entry is sorted, so the same
// logical set of resolved packages serializes to byte-identical output on
// every run and host. A top-level integrity field carries the SHA-256 of
// the file serialized with that field elided; Load refuses a file whose
// stored integrity does not match recomputation.
package lockfile

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/boltpm/bolt/pkg/errors"
)

// Version is the current lockfile format version.
const Version = 1

// Filename is the lockfile's name in a project directory.
const Filename = "bolt.lock"

// Lockfile pins every transitively resolved package.
type Lockfile struct {
	Version    int                       `toml:"version"`
	Integrity  string                    `toml:"integrity,omitempty"`
	Packages   []Package                 `toml:"packages,omitempty"`
	Workspaces map[string]WorkspaceEntry `toml:"workspaces,omitempty"`
}

// Package is one locked (name, version) entry.
type Package struct {
	Name      string `toml:"name"`
	Version   string `toml:"version"`
	Resolved  string `toml:"resolved"`
	Integrity string `toml:"integrity"`

	// Dependencies holds "name@constraint" strings for runtime deps.
	Dependencies         []string `toml:"dependencies,omitempty"`
	PeerDependencies     []string `toml:"peer_dependencies,omitempty"`
	OptionalDependencies []string `toml:"optional_dependencies,omitempty"`

	HasScripts bool     `toml:"has_scripts,omitempty"`
	CPU        []string `toml:"cpu,omitempty"`
	OS         []string `toml:"os,omitempty"`
}

// WorkspaceEntry maps a workspace package to its location.
type WorkspaceEntry struct {
	Path         string   `toml:"path"`
	Version      string   `toml:"version"`
	Dependencies []string `toml:"dependencies,omitempty"`
}

// New creates an empty lockfile at the current format version.
func New() *Lockfile {
	return &Lockfile{Version: Version}
}

// Load reads the lockfile from dir. Returns (nil, nil) when the file does
// not exist. Fails with INVALID_LOCKFILE when the stored integrity does
// not match recomputation.
func Load(dir string) (*Lockfile, error) {
	path := filepath.Join(dir, Filename)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeCache, err, "read lockfile")
	}

	var lf Lockfile
	if err := toml.Unmarshal(data, &lf); err != nil {
		return nil, errors.Wrap(errors.CodeInvalidLockfile, err, "lockfile corrupted or invalid")
	}

	if lf.Integrity != "" {
		computed, err := lf.computeIntegrity()
		if err != nil {
			return nil, err
		}
		if computed != lf.Integrity {
			return nil, errors.New(errors.CodeInvalidLockfile, "lockfile corrupted or invalid")
		}
	}
	return &lf, nil
}

// Save normalizes the lockfile, computes its self-integrity, and writes it
// to dir. Output is byte-identical for the same logical content.
func (l *Lockfile) Save(dir string) error {
	l.normalize()

	l.Integrity = ""
	integrity, err := l.computeIntegrity()
	if err != nil {
		return err
	}
	l.Integrity = integrity

	data, err := l.marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, Filename), data, 0o644); err != nil {
		return errors.Wrap(errors.CodeCache, err, "write lockfile")
	}
	return nil
}

// normalize sorts entries by (name, version) and every list inside them.
func (l *Lockfile) normalize() {
	slices.SortFunc(l.Packages, func(a, b Package) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Version, b.Version)
	})
	for i := range l.Packages {
		slices.Sort(l.Packages[i].Dependencies)
		slices.Sort(l.Packages[i].PeerDependencies)
		slices.Sort(l.Packages[i].OptionalDependencies)
		slices.Sort(l.Packages[i].CPU)
		slices.Sort(l.Packages[i].OS)
	}
}

func (l *Lockfile) marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(l); err != nil {
		return nil, errors.Wrap(errors.CodeInvalidLockfile, err, "encode lockfile")
	}
	return buf.Bytes(), nil
}

// computeIntegrity hashes the lockfile serialized with the integrity field
// elided.
func (l *Lockfile) computeIntegrity() (string, error) {
	clone := *l
	clone.Integrity = ""
	data, err := clone.marshal()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "sha256-" + hex.EncodeToString(sum[:]), nil
}

// FindPackage returns the entry for name@version, or nil.
func (l *Lockfile) FindPackage(name, version string) *Package {
	for i := range l.Packages {
		if l.Packages[i].Name == name && l.Packages[i].Version == version {
			return &l.Packages[i]
		}
	}
	return nil
}

// FindPackageVersions returns every locked version of name.
func (l *Lockfile) FindPackageVersions(name string) []*Package {
	var out []*Package
	for i := range l.Packages {
		if l.Packages[i].Name == name {
			out = append(out, &l.Packages[i])
		}
	}
	return out
}

// AddPackage inserts or replaces the entry for (pkg.Name, pkg.Version),
// keeping at most one entry per identity.
func (l *Lockfile) AddPackage(pkg Package) {
	l.Packages = slices.DeleteFunc(l.Packages, func(p Package) bool {
		return p.Name == pkg.Name && p.Version == pkg.Version
	})
	l.Packages = append(l.Packages, pkg)
}

// RemovePackage deletes the entry for name@version, if present.
func (l *Lockfile) RemovePackage(name, version string) {
	l.Packages = slices.DeleteFunc(l.Packages, func(p Package) bool {
		return p.Name == name && p.Version == version
	})
}

// PackageNames returns the sorted, deduplicated package names.
func (l *Lockfile) PackageNames() []string {
	names := make([]string, 0, len(l.Packages))
	for _, p := range l.Packages {
		names = append(names, p.Name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// IsEmpty reports whether the lockfile pins nothing.
func (l *Lockfile) IsEmpty() bool {
	return len(l.Packages) == 0 && len(l.Workspaces) == 0
}

// Merge adds entries from other that this lockfile does not already pin.
func (l *Lockfile) Merge(other *Lockfile) {
	for _, pkg := range other.Packages {
		if l.FindPackage(pkg.Name, pkg.Version) == nil {
			l.Packages = append(l.Packages, pkg)
		}
	}
	for name, ws := range other.Workspaces {
		if l.Workspaces == nil {
			l.Workspaces = make(map[string]WorkspaceEntry)
		}
		if _, ok := l.Workspaces[name]; !ok {
			l.Workspaces[name] = ws
		}
	}
}

// PackagesWithScripts returns the entries that declare install scripts.
func (l *Lockfile) PackagesWithScripts() []*Package {
	var out []*Package
	for i := range l.Packages {
		if l.Packages[i].HasScripts {
			out = append(out, &l.Packages[i])
		}
	}
	return out
}

// Diff describes the changes from l to other.
type Diff struct {
	Added   []Package
	Removed []Package
	Changed []Package
}

// IsEmpty reports whether the diff contains no changes.
func (d *Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// TotalChanges returns the number of changed entries.
func (d *Diff) TotalChanges() int {
	return len(d.Added) + len(d.Removed) + len(d.Changed)
}

// DiffAgainst computes the changes needed to go from l to other: entries
// only in other are Added (or Changed when another version of the same
// name is already pinned), entries whose name vanishes entirely are
// Removed.
func (l *Lockfile) DiffAgainst(other *Lockfile) *Diff {
	d := &Diff{}

	names := make(map[string]bool, len(l.Packages))
	for _, p := range l.Packages {
		names[p.Name] = true
	}

	for _, pkg := range other.Packages {
		existing := l.FindPackage(pkg.Name, pkg.Version)
		switch {
		case existing == nil && names[pkg.Name]:
			d.Changed = append(d.Changed, pkg)
		case existing == nil:
			d.Added = append(d.Added, pkg)
		case !existing.equal(&pkg):
			d.Changed = append(d.Changed, pkg)
		}
	}

	otherNames := make(map[string]bool, len(other.Packages))
	for _, p := range other.Packages {
		otherNames[p.Name] = true
	}
	for _, pkg := range l.Packages {
		if !otherNames[pkg.Name] {
			d.Removed = append(d.Removed, pkg)
		}
	}
	return d
}

func (p *Package) equal(o *Package) bool {
	return p.Name == o.Name &&
		p.Version == o.Version &&
		p.Resolved == o.Resolved &&
		p.Integrity == o.Integrity &&
		p.HasScripts == o.HasScripts &&
		slices.Equal(p.Dependencies, o.Dependencies) &&
		slices.Equal(p.PeerDependencies, o.PeerDependencies) &&
		slices.Equal(p.OptionalDependencies, o.OptionalDependencies) &&
		slices.Equal(p.CPU, o.CPU) &&
		slices.Equal(p.OS, o.OS)
}
