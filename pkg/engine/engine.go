// Package engine wires bolt's subsystems together for one project: the
// configuration, the shared cache, the registry client, and the security
// manager, with constructors for the resolver and installer. The engine is
// an explicit context object; nothing in bolt lives in process-wide state,
// so two engines over different projects share only what the filesystem
// cache shares by design.
package engine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/boltpm/bolt/pkg/cache"
	"github.com/boltpm/bolt/pkg/config"
	"github.com/boltpm/bolt/pkg/errors"
	"github.com/boltpm/bolt/pkg/installer"
	"github.com/boltpm/bolt/pkg/lockfile"
	"github.com/boltpm/bolt/pkg/manifest"
	"github.com/boltpm/bolt/pkg/registry"
	"github.com/boltpm/bolt/pkg/resolver"
	"github.com/boltpm/bolt/pkg/security"
	"github.com/boltpm/bolt/pkg/workspace"
)

// Engine holds everything needed to operate on one project.
type Engine struct {
	ProjectDir string
	Config     *config.Config
	Cache      *cache.Manager
	Registry   *registry.Client
	Security   *security.Manager

	// Workspace is non-nil when the project manifest declares workspaces.
	Workspace *workspace.Manager

	logger *log.Logger
}

// New creates an engine for the project at dir. A nil logger selects
// log.Default().
func New(ctx context.Context, dir string, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.Default()
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	cacheDir, err := cfg.CacheDir()
	if err != nil {
		return nil, err
	}

	cacheOpts := cache.Options{MetadataTTL: cfg.Cache.MetadataTTLDuration()}
	if cfg.Cache.RedisAddr != "" {
		store, err := cache.NewRedisMetadataStore(ctx, cfg.Cache.RedisAddr, cfg.Cache.MetadataTTLDuration())
		if err != nil {
			return nil, err
		}
		cacheOpts.Metadata = store
	}
	cacheMgr, err := cache.NewManager(cacheDir, cacheOpts)
	if err != nil {
		return nil, err
	}

	reg := registry.NewClient(registry.Config{
		URL:        cfg.Registry.URL,
		Scopes:     cfg.Registry.Scopes,
		AuthTokens: cfg.Registry.AuthTokens,
		Timeout:    cfg.Network.TimeoutDuration(),
		Retries:    cfg.Network.Retries,
	}, cacheMgr, logger)

	sec := security.NewManager(security.Policy{
		RequireIntegrity:              cfg.Security.RequireIntegrity,
		AllowScripts:                  cfg.Security.AllowScripts,
		TrustedScopes:                 cfg.Security.TrustedScopes,
		TrustedPackages:               cfg.Security.TrustedPackages,
		DependencyConfusionProtection: cfg.Security.DependencyConfusionProtection,
		AuditOnInstall:                cfg.Security.AuditOnInstall,
	}, logger)

	e := &Engine{
		ProjectDir: dir,
		Config:     cfg,
		Cache:      cacheMgr,
		Registry:   reg,
		Security:   sec,
		logger:     logger,
	}

	if mf, err := manifest.Load(dir); err == nil && mf.IsWorkspaceRoot() {
		ws, err := workspace.NewManager(dir, mf.Workspaces.Patterns())
		if err != nil {
			return nil, err
		}
		e.Workspace = ws
	}

	return e, nil
}

// IsInitialized reports whether the project has a package.json.
func (e *Engine) IsInitialized() bool {
	_, err := os.Stat(filepath.Join(e.ProjectDir, manifest.Filename))
	return err == nil
}

// EnsureInitialized fails with NOT_INITIALIZED when the project has no
// manifest.
func (e *Engine) EnsureInitialized() error {
	if !e.IsInitialized() {
		return errors.New(errors.CodeNotInitialized, "project not initialized: no %s in %s", manifest.Filename, e.ProjectDir)
	}
	return nil
}

// Manifest loads the project's package.json.
func (e *Engine) Manifest() (*manifest.Manifest, error) {
	return manifest.Load(e.ProjectDir)
}

// Lockfile loads the project's lockfile, or nil when absent.
func (e *Engine) Lockfile() (*lockfile.Lockfile, error) {
	return lockfile.Load(e.ProjectDir)
}

// Resolver creates a resolver over this engine's registry and cache.
func (e *Engine) Resolver() *resolver.Resolver {
	return resolver.New(e.Registry, e.Cache, e.logger)
}

// Installer creates an installer for this engine's project.
func (e *Engine) Installer() *installer.Installer {
	return installer.New(
		e.ProjectDir,
		e.Cache,
		e.Security,
		e.Config.Network.Concurrency,
		e.Config.Network.Retries,
		e.logger,
	)
}

// NodeModulesDir returns the project's node_modules path.
func (e *Engine) NodeModulesDir() string {
	return filepath.Join(e.ProjectDir, "node_modules")
}

// Close releases engine resources (the metadata backend).
func (e *Engine) Close() error {
	return e.Cache.Close()
}
