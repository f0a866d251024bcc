// Package installer materializes a resolution on disk: bounded-concurrency
// download of every missing archive, integrity verification, extraction
// into the shared cache, and linking into the project's node_modules tree.
//
// The fetch+extract stage runs each package as one task under an errgroup
// whose limit is the configured network concurrency. The first terminal
// failure cancels the group; tasks already in flight settle before Install
// returns. Because every cache write is atomic, a failed package never
// corrupts cached state for the others.
package installer

import (
	"context"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/boltpm/bolt/pkg/cache"
	"github.com/boltpm/bolt/pkg/errors"
	"github.com/boltpm/bolt/pkg/resolver"
	"github.com/boltpm/bolt/pkg/security"
)

// DefaultConcurrency bounds simultaneous fetch+extract tasks.
const DefaultConcurrency = 16

// InstallResult summarizes an Install call.
type InstallResult struct {
	// InstalledCount is the number of packages fetched and extracted.
	InstalledCount int

	// CachedCount is the number of packages already materialized.
	CachedCount int

	// BytesDownloaded sums the response body lengths of all fetches.
	BytesDownloaded int64
}

// Installer coordinates the download, extraction, and linking phases.
type Installer struct {
	projectDir  string
	cache       *cache.Manager
	security    *security.Manager
	concurrency int
	retries     int
	logger      *log.Logger
}

// New creates an installer for a project directory. Zero concurrency
// selects DefaultConcurrency; a nil logger selects log.Default().
func New(projectDir string, cacheMgr *cache.Manager, sec *security.Manager, concurrency, retries int, logger *log.Logger) *Installer {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Installer{
		projectDir:  projectDir,
		cache:       cacheMgr,
		security:    sec,
		concurrency: concurrency,
		retries:     retries,
		logger:      logger,
	}
}

// Install fetches, verifies, and extracts every package the resolution
// marked for install. force re-fetches packages already in the cache;
// preferOffline uses cached archives without touching the network.
func (i *Installer) Install(ctx context.Context, res *resolver.Resolution, force, preferOffline bool) (*InstallResult, error) {
	var installed, cached int32
	var bytes atomic.Int64

	// Policy-gate every candidate up front so a blocked name aborts the
	// install before any network work starts.
	var work []resolver.ResolvedPackage
	for _, pkg := range res.ToInstall {
		if !force && i.cache.HasPackage(pkg.Name, pkg.Version) {
			cached++
			continue
		}
		if err := i.security.VerifyPackageAllowed(pkg.Name); err != nil {
			return nil, err
		}
		work = append(work, pkg)
	}

	downloader := NewDownloader(i.cache, i.security, i.retries, i.logger)
	extractor := NewExtractor(i.cache, i.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for _, pkg := range work {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.Wrap(errors.CodeCancelled, err, "install cancelled")
			}

			n, err := downloader.Download(gctx, pkg, preferOffline)
			if err != nil {
				return err
			}
			bytes.Add(n)

			if _, err := extractor.Extract(pkg); err != nil {
				return err
			}
			atomic.AddInt32(&installed, 1)
			i.logger.Debug("installed package", "package", pkg.Name, "version", pkg.Version, "bytes", n)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &InstallResult{
		InstalledCount:  int(installed),
		CachedCount:     int(cached) + len(res.FromCache),
		BytesDownloaded: bytes.Load(),
	}, nil
}

// Link materializes the project's node_modules tree from the cache for
// every package in the resolution.
func (i *Installer) Link(ctx context.Context, res *resolver.Resolution) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.CodeCancelled, err, "link cancelled")
	}
	linker := NewLinker(i.projectDir, i.cache, i.logger)
	return linker.LinkPackages(res.All())
}
