// Package manifest reads and writes package.json files.
//
// Known fields are typed; everything else is preserved verbatim in Other
// and survives a load/save round trip. Runtime, dev, peer, and optional
// dependency maps are kept separate on purpose: which of them participates
// in a resolution is the caller's decision, never hidden behind a merged
// view.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/boltpm/bolt/pkg/errors"
)

// Filename is the manifest's name in a project directory.
const Filename = "package.json"

// Manifest is a parsed package.json.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Main        string `json:"main,omitempty"`
	Module      string `json:"module,omitempty"`
	Types       string `json:"types,omitempty"`
	Type        string `json:"type,omitempty"`

	Scripts              map[string]string `json:"scripts,omitempty"`
	Dependencies         map[string]string `json:"dependencies,omitempty"`
	DevDependencies      map[string]string `json:"devDependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`

	Workspaces     *Workspaces `json:"workspaces,omitempty"`
	PackageManager string      `json:"packageManager,omitempty"`
	Private        bool        `json:"private,omitempty"`

	License    string            `json:"license,omitempty"`
	Author     json.RawMessage   `json:"author,omitempty"`
	Repository json.RawMessage   `json:"repository,omitempty"`
	Keywords   []string          `json:"keywords,omitempty"`
	Engines    map[string]string `json:"engines,omitempty"`
	Files      []string          `json:"files,omitempty"`
	Bin        json.RawMessage   `json:"bin,omitempty"`
	Exports    json.RawMessage   `json:"exports,omitempty"`

	// Other holds fields this tool does not understand; they are written
	// back unchanged.
	Other map[string]json.RawMessage `json:"-"`
}

// Workspaces is either an array of glob patterns or an object carrying
// packages plus nohoist patterns.
type Workspaces struct {
	Packages []string `json:"packages"`
	Nohoist  []string `json:"nohoist,omitempty"`

	// object records which JSON shape was read so Save reproduces it.
	object bool
}

// Patterns returns the workspace glob patterns regardless of shape.
func (w *Workspaces) Patterns() []string {
	if w == nil {
		return nil
	}
	return w.Packages
}

// UnmarshalJSON accepts both the array and the object shape.
func (w *Workspaces) UnmarshalJSON(data []byte) error {
	var patterns []string
	if err := json.Unmarshal(data, &patterns); err == nil {
		w.Packages = patterns
		w.object = false
		return nil
	}
	var obj struct {
		Packages []string `json:"packages"`
		Nohoist  []string `json:"nohoist"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	w.Packages = obj.Packages
	w.Nohoist = obj.Nohoist
	w.object = true
	return nil
}

// MarshalJSON writes back the shape that was read.
func (w *Workspaces) MarshalJSON() ([]byte, error) {
	if !w.object {
		return json.Marshal(w.Packages)
	}
	return json.Marshal(struct {
		Packages []string `json:"packages"`
		Nohoist  []string `json:"nohoist,omitempty"`
	}{w.Packages, w.Nohoist})
}

// knownFields are the manifest keys with typed fields above.
var knownFields = map[string]bool{
	"name": true, "version": true, "description": true, "main": true,
	"module": true, "types": true, "type": true, "scripts": true,
	"dependencies": true, "devDependencies": true, "peerDependencies": true,
	"optionalDependencies": true, "workspaces": true, "packageManager": true,
	"private": true, "license": true, "author": true, "repository": true,
	"keywords": true, "engines": true, "files": true, "bin": true,
	"exports": true,
}

// Load reads a package.json from path, which may be the file itself or a
// directory containing one.
func Load(path string) (*Manifest, error) {
	file := path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		file = filepath.Join(path, Filename)
	}

	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return nil, errors.New(errors.CodePackageJSONNotFound, "package.json not found at %s", file)
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeConfig, err, "read %s", file)
	}

	type alias Manifest
	var m alias
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.CodeConfig, err, "parse %s", file)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.CodeConfig, err, "parse %s", file)
	}
	for key, value := range raw {
		if !knownFields[key] {
			if m.Other == nil {
				m.Other = make(map[string]json.RawMessage)
			}
			m.Other[key] = value
		}
	}

	out := Manifest(m)
	if out.Version == "" {
		out.Version = "1.0.0"
	}
	return &out, nil
}

// Save writes the manifest to path (file or directory), preserving
// passthrough fields. Keys are emitted in sorted order, so saving is
// deterministic.
func (m *Manifest) Save(path string) error {
	file := path
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		file = filepath.Join(path, Filename)
	}

	type alias Manifest
	known, err := json.Marshal((*alias)(m))
	if err != nil {
		return errors.Wrap(errors.CodeConfig, err, "encode manifest")
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return errors.Wrap(errors.CodeConfig, err, "encode manifest")
	}
	for key, value := range m.Other {
		merged[key] = value
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return errors.Wrap(errors.CodeConfig, err, "encode manifest")
	}
	data = append(data, '\n')

	if err := os.WriteFile(file, data, 0o644); err != nil {
		return errors.Wrap(errors.CodeConfig, err, "write %s", file)
	}
	return nil
}

// IsWorkspaceRoot reports whether the manifest declares workspaces.
func (m *Manifest) IsWorkspaceRoot() bool {
	return m.Workspaces != nil && len(m.Workspaces.Packages) > 0
}

// HasDependency reports whether name appears in any dependency map.
func (m *Manifest) HasDependency(name string) bool {
	for _, deps := range []map[string]string{
		m.Dependencies, m.DevDependencies, m.PeerDependencies, m.OptionalDependencies,
	} {
		if _, ok := deps[name]; ok {
			return true
		}
	}
	return false
}
