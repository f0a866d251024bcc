package registry

import "encoding/json"

// PackageMetadata is the registry's root document for a package: the
// dist-tags plus per-version metadata for every published version.
type PackageMetadata struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	DistTags    map[string]string          `json:"dist-tags"`
	Versions    map[string]VersionMetadata `json:"versions"`
	Time        map[string]string          `json:"time"`
	License     string                     `json:"license"`
}

// LatestVersion returns the version the "latest" dist-tag points at, or
// the empty string when the tag is absent.
func (m *PackageMetadata) LatestVersion() string {
	return m.DistTags["latest"]
}

// VersionNames returns the keys of the Versions map.
func (m *PackageMetadata) VersionNames() []string {
	names := make([]string, 0, len(m.Versions))
	for v := range m.Versions {
		names = append(names, v)
	}
	return names
}

// VersionMetadata describes one published version of a package.
type VersionMetadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Main        string `json:"main"`

	Dist DistInfo `json:"dist"`

	Dependencies         map[string]string             `json:"dependencies"`
	DevDependencies      map[string]string             `json:"devDependencies"`
	PeerDependencies     map[string]string             `json:"peerDependencies"`
	OptionalDependencies map[string]string             `json:"optionalDependencies"`
	PeerDependenciesMeta map[string]PeerDependencyMeta `json:"peerDependenciesMeta"`

	Engines map[string]string `json:"engines"`
	OS      []string          `json:"os"`
	CPU     []string          `json:"cpu"`
	Scripts map[string]string `json:"scripts"`

	// Bin is a string or an object in the wild; kept raw for the linker.
	Bin json.RawMessage `json:"bin"`

	Deprecated string `json:"deprecated"`

	// HasInstallScript is the registry's precomputed flag; absent in older
	// documents, in which case the script map decides.
	HasInstallScript *bool `json:"hasInstallScript"`
}

// HasInstallScripts reports whether installing this version would run
// lifecycle scripts. The registry flag wins when present; otherwise the
// common lifecycle script names are checked.
func (v *VersionMetadata) HasInstallScripts() bool {
	if v.HasInstallScript != nil {
		return *v.HasInstallScript
	}
	for _, name := range []string{"preinstall", "install", "postinstall", "prepare"} {
		if _, ok := v.Scripts[name]; ok {
			return true
		}
	}
	return false
}

// DistInfo is the archive descriptor for one published version.
type DistInfo struct {
	Tarball      string `json:"tarball"`
	Integrity    string `json:"integrity"`
	Shasum       string `json:"shasum"`
	FileCount    int    `json:"fileCount"`
	UnpackedSize int64  `json:"unpackedSize"`
}

// PeerDependencyMeta marks a peer dependency as optional.
type PeerDependencyMeta struct {
	Optional bool `json:"optional"`
}

// SearchResult is one entry from the registry search endpoint.
type SearchResult struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}
