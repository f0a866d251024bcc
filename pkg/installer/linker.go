package installer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/boltpm/bolt/pkg/cache"
	"github.com/boltpm/bolt/pkg/errors"
	"github.com/boltpm/bolt/pkg/resolver"
)

// Linker materializes the project's node_modules tree from the cache's
// extracted trees, preferring links over copies: a POSIX symlink where
// available, a deep copy as the portable fallback. Binary declarations
// from each package manifest are surfaced under node_modules/.bin.
type Linker struct {
	projectDir string
	cache      *cache.Manager
	logger     *log.Logger
}

// NewLinker creates a linker for the given project directory.
func NewLinker(projectDir string, cacheMgr *cache.Manager, logger *log.Logger) *Linker {
	if logger == nil {
		logger = log.Default()
	}
	return &Linker{projectDir: projectDir, cache: cacheMgr, logger: logger}
}

// LinkPackages links every resolved package into node_modules, replacing
// whatever occupied each destination.
func (l *Linker) LinkPackages(pkgs []resolver.ResolvedPackage) error {
	nodeModules := filepath.Join(l.projectDir, "node_modules")
	binDir := filepath.Join(nodeModules, ".bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return errors.Wrap(errors.CodeCache, err, "create node_modules")
	}

	for _, pkg := range pkgs {
		source := l.cache.PackageDir(pkg.Name, pkg.Version)
		if _, err := os.Stat(source); err != nil {
			l.logger.Warn("package not in cache, skipping link", "package", pkg.Name, "version", pkg.Version)
			continue
		}

		target, err := destination(nodeModules, pkg.Name)
		if err != nil {
			return err
		}
		if err := os.RemoveAll(target); err != nil {
			return errors.Wrap(errors.CodeCache, err, "remove existing %s", target)
		}
		if err := linkOrCopy(source, target); err != nil {
			return errors.Wrap(errors.CodeCache, err, "link %s", pkg.Name)
		}
		if err := l.linkBinaries(target, binDir, pkg.Name); err != nil {
			return err
		}
	}
	return nil
}

// destination computes node_modules/<name>, creating the scope directory
// for scoped packages.
func destination(nodeModules, name string) (string, error) {
	if !strings.HasPrefix(name, "@") {
		return filepath.Join(nodeModules, name), nil
	}
	scope, rest, ok := strings.Cut(name, "/")
	if !ok {
		return filepath.Join(nodeModules, name), nil
	}
	scopeDir := filepath.Join(nodeModules, scope)
	if err := os.MkdirAll(scopeDir, 0o755); err != nil {
		return "", errors.Wrap(errors.CodeCache, err, "create scope dir %s", scope)
	}
	return filepath.Join(scopeDir, rest), nil
}

// linkOrCopy links source to target with the best mechanism the host
// offers, falling back to a deep copy.
func linkOrCopy(source, target string) error {
	if err := os.Symlink(source, target); err == nil {
		return nil
	}
	return copyDir(source, target)
}

func copyDir(source, target string) error {
	if err := os.MkdirAll(target, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(source)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		src := filepath.Join(source, entry.Name())
		dst := filepath.Join(target, entry.Name())
		if entry.IsDir() {
			if err := copyDir(src, dst); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(src, dst); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode().Perm())
}

// linkBinaries reads the linked package's manifest and creates .bin
// entries for its "bin" declarations: symlinks with the executable bit on
// POSIX, cmd and PowerShell wrappers elsewhere.
func (l *Linker) linkBinaries(packageDir, binDir, pkgName string) error {
	manifestPath := filepath.Join(packageDir, "package.json")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil // no manifest, nothing to expose
	}

	var pkg struct {
		Bin json.RawMessage `json:"bin"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil || len(pkg.Bin) == 0 {
		return nil
	}

	bins := make(map[string]string)
	var single string
	if err := json.Unmarshal(pkg.Bin, &single); err == nil {
		name := pkgName
		if i := strings.LastIndex(pkgName, "/"); i >= 0 {
			name = pkgName[i+1:]
		}
		bins[name] = single
	} else if err := json.Unmarshal(pkg.Bin, &bins); err != nil {
		return nil
	}

	for name, rel := range bins {
		source := filepath.Join(packageDir, filepath.FromSlash(rel))
		if _, err := os.Stat(source); err != nil {
			l.logger.Warn("declared binary missing", "package", pkgName, "bin", name, "path", rel)
			continue
		}
		if err := createBinLink(binDir, name, source); err != nil {
			return errors.Wrap(errors.CodeCache, err, "link binary %s for %s", name, pkgName)
		}
	}
	return nil
}

func createBinLink(binDir, name, source string) error {
	if runtime.GOOS != "windows" {
		target := filepath.Join(binDir, name)
		_ = os.Remove(target)
		if err := os.Symlink(source, target); err != nil {
			return err
		}
		return os.Chmod(source, 0o755)
	}

	rel, err := filepath.Rel(binDir, source)
	if err != nil {
		rel = source
	}
	cmd := fmt.Sprintf("@ECHO off\r\nnode \"%%~dp0\\%s\" %%*\r\n", rel)
	if err := os.WriteFile(filepath.Join(binDir, name+".cmd"), []byte(cmd), 0o644); err != nil {
		return err
	}
	ps1 := fmt.Sprintf("#!/usr/bin/env pwsh\r\nnode \"$PSScriptRoot\\%s\" $args\r\nexit $LASTEXITCODE\r\n", rel)
	return os.WriteFile(filepath.Join(binDir, name+".ps1"), []byte(ps1), 0o644)
}
