// Package registrytest provides an in-process fake npm registry for tests.
//
// The server speaks just enough of the registry wire protocol for the
// resolver and installer: the package root document at /<name> (GET and
// HEAD), gzipped
// tarballs, and the search endpoint. Packages are registered up front with
// their dependency maps and file trees; tarballs are built in memory with
// the conventional "package/" prefix and advertised with a real sha512
// integrity string (or a deliberately wrong one, for tamper tests).
package registrytest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/boltpm/bolt/pkg/security"
	"github.com/boltpm/bolt/pkg/semver"
)

// Package describes one published version served by the fake registry.
type Package struct {
	Name    string
	Version string

	Deps         map[string]string
	DevDeps      map[string]string
	PeerDeps     map[string]string
	OptionalDeps map[string]string
	Scripts      map[string]string

	// Files are extra files in the tarball, path -> content. A package.json
	// is always generated. Paths in Executable get mode 0755.
	Files      map[string]string
	Executable []string

	// Bin declares executables for .bin linking, name -> relative path.
	Bin map[string]string

	// TamperIntegrity advertises a digest that does not match the tarball.
	TamperIntegrity bool
}

// Server is a fake registry bound to an httptest.Server.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	packages map[string]map[string]Package // name -> version -> pkg
	tarballs map[string][]byte             // name@version -> bytes

	metadataHits map[string]int
	tarballHits  map[string]int
}

// New starts a fake registry serving the given packages. The server is
// shut down automatically when the test finishes.
func New(t interface {
	Cleanup(func())
	Fatalf(string, ...any)
}, pkgs ...Package) *Server {
	s := &Server{
		packages:     make(map[string]map[string]Package),
		tarballs:     make(map[string][]byte),
		metadataHits: make(map[string]int),
		tarballHits:  make(map[string]int),
	}
	for _, p := range pkgs {
		s.Add(p)
	}

	r := chi.NewRouter()
	r.Get("/-/v1/search", s.handleSearch)
	r.Get("/tarballs/*", s.handleTarball)
	r.Get("/*", s.handleMetadata)
	r.Head("/*", s.handleMetadata)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Server.Close)
	return s
}

// Add registers another package version after construction.
func (s *Server) Add(p Package) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.packages[p.Name] == nil {
		s.packages[p.Name] = make(map[string]Package)
	}
	s.packages[p.Name][p.Version] = p
	s.tarballs[p.Name+"@"+p.Version] = buildTarball(p)
}

// MetadataRequests returns how many metadata fetches were served for name.
func (s *Server) MetadataRequests(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadataHits[name]
}

// TarballRequests returns how many tarball fetches were served for
// name@version.
func (s *Server) TarballRequests(name, version string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tarballHits[name+"@"+version]
}

// Tarball returns the archive bytes served for name@version.
func (s *Server) Tarball(name, version string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tarballs[name+"@"+version]
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/"))
	if err != nil {
		http.Error(w, "bad name", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	versions, ok := s.packages[name]
	if ok {
		s.metadataHits[name]++
	}
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	doc := map[string]any{
		"name":      name,
		"dist-tags": map[string]string{"latest": latestOf(versions)},
		"versions":  s.versionDocs(name, versions),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

func (s *Server) versionDocs(name string, versions map[string]Package) map[string]any {
	docs := make(map[string]any, len(versions))
	for v, p := range versions {
		integrity := s.integrityFor(p)
		doc := map[string]any{
			"name":    name,
			"version": v,
			"dist": map[string]any{
				"tarball":   s.URL + "/tarballs/" + url.PathEscape(name) + "/" + v + ".tgz",
				"integrity": integrity,
			},
		}
		if len(p.Deps) > 0 {
			doc["dependencies"] = p.Deps
		}
		if len(p.DevDeps) > 0 {
			doc["devDependencies"] = p.DevDeps
		}
		if len(p.PeerDeps) > 0 {
			doc["peerDependencies"] = p.PeerDeps
		}
		if len(p.OptionalDeps) > 0 {
			doc["optionalDependencies"] = p.OptionalDeps
		}
		if len(p.Scripts) > 0 {
			doc["scripts"] = p.Scripts
		}
		docs[v] = doc
	}
	return docs
}

func (s *Server) integrityFor(p Package) string {
	data := s.tarballs[p.Name+"@"+p.Version]
	if p.TamperIntegrity {
		data = append(append([]byte(nil), data...), 0x00)
	}
	integrity, _ := security.ComputeIntegrity(data, "sha512")
	return integrity
}

func (s *Server) handleTarball(w http.ResponseWriter, r *http.Request) {
	// Parse from the escaped path: scoped names escape their slash, so the
	// first unescaped slash separates name from file.
	rest := strings.TrimPrefix(r.URL.EscapedPath(), "/tarballs/")
	name, file, ok := strings.Cut(rest, "/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	name, _ = url.PathUnescape(name)
	version := strings.TrimSuffix(file, ".tgz")

	s.mu.Lock()
	data, found := s.tarballs[name+"@"+version]
	if found {
		s.tarballHits[name+"@"+version]++
	}
	s.mu.Unlock()

	if !found {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("text")

	s.mu.Lock()
	var objects []map[string]any
	for name, versions := range s.packages {
		if query != "" && !strings.Contains(name, query) {
			continue
		}
		objects = append(objects, map[string]any{
			"package": map[string]string{"name": name, "version": latestOf(versions)},
		})
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"objects": objects})
}

func latestOf(versions map[string]Package) string {
	keys := make([]string, 0, len(versions))
	for v := range versions {
		keys = append(keys, v)
	}
	if highest, err := semver.HighestMatching(keys, semver.Any); err == nil {
		return highest
	}
	slices.Sort(keys)
	return keys[len(keys)-1]
}

// buildTarball assembles the gzipped tar archive for a package, with every
// entry under the conventional "package/" prefix.
func buildTarball(p Package) []byte {
	manifest := map[string]any{"name": p.Name, "version": p.Version}
	if len(p.Scripts) > 0 {
		manifest["scripts"] = p.Scripts
	}
	if len(p.Bin) > 0 {
		manifest["bin"] = p.Bin
	}
	manifestJSON, _ := json.MarshalIndent(manifest, "", "  ")

	files := map[string]string{"package.json": string(manifestJSON)}
	for path, content := range p.Files {
		files[path] = content
	}

	executable := make(map[string]bool, len(p.Executable))
	for _, path := range p.Executable {
		executable[path] = true
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	for _, path := range paths {
		content := files[path]
		mode := int64(0o644)
		if executable[path] {
			mode = 0o755
		}
		hdr := &tar.Header{
			Name: "package/" + path,
			Mode: mode,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			panic(fmt.Sprintf("registrytest: write tar header: %v", err))
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			panic(fmt.Sprintf("registrytest: write tar entry: %v", err))
		}
	}

	_ = tw.Close()
	_ = gz.Close()
	return buf.Bytes()
}

// RawTarball builds a gzipped tar archive from arbitrary entries, without
// the package.json convenience. Used for malicious-archive tests.
func RawTarball(entries map[string]string) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	paths := make([]string, 0, len(entries))
	for path := range entries {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	for _, path := range paths {
		content := entries[path]
		hdr := &tar.Header{Name: path, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			panic(fmt.Sprintf("registrytest: write tar header: %v", err))
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			panic(fmt.Sprintf("registrytest: write tar entry: %v", err))
		}
	}

	_ = tw.Close()
	_ = gz.Close()
	return buf.Bytes()
}
