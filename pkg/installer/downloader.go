package installer

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/boltpm/bolt/pkg/cache"
	"github.com/boltpm/bolt/pkg/errors"
	"github.com/boltpm/bolt/pkg/httputil"
	"github.com/boltpm/bolt/pkg/resolver"
	"github.com/boltpm/bolt/pkg/security"
)

// archiveTimeout bounds a single archive download. Archives are much
// larger than metadata documents, so the budget is generous.
const archiveTimeout = 300 * time.Second

// Downloader fetches package archives, verifies their integrity, and
// stores them in the cache. Safe for concurrent use.
type Downloader struct {
	cache    *cache.Manager
	security *security.Manager
	http     *http.Client
	retries  int
	logger   *log.Logger
}

// NewDownloader creates a downloader sharing the process HTTP client
// configuration: pooled connections, archive-sized timeout.
func NewDownloader(cacheMgr *cache.Manager, sec *security.Manager, retries int, logger *log.Logger) *Downloader {
	if retries <= 0 {
		retries = 3
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Downloader{
		cache:    cacheMgr,
		security: sec,
		http: &http.Client{
			Timeout: archiveTimeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retries: retries,
		logger:  logger,
	}
}

// Download fetches the archive for a resolved package, verifies it against
// the advertised integrity, and stores it at the cache's tarball path.
// Returns the number of body bytes fetched; zero when the archive was
// already cached and preferOffline is set.
func (d *Downloader) Download(ctx context.Context, pkg resolver.ResolvedPackage, preferOffline bool) (int64, error) {
	if preferOffline && d.cache.HasTarball(pkg.Name, pkg.Version) {
		return 0, nil
	}

	if pkg.Integrity == "" && d.security.RequireIntegrity() {
		return 0, errors.New(errors.CodeIntegrityFailed,
			"%s@%s published without an integrity string and require_integrity is set", pkg.Name, pkg.Version)
	}

	var body []byte
	fetch := func() error {
		var err error
		body, err = d.fetch(ctx, pkg)
		return err
	}
	if err := httputil.Retry(ctx, d.retries, time.Second, fetch); err != nil {
		return 0, err
	}

	if err := security.VerifyIntegrity(body, pkg.Integrity, pkg.Name); err != nil {
		return 0, err
	}
	if err := d.cache.StoreTarball(pkg.Name, pkg.Version, body); err != nil {
		return 0, err
	}
	return int64(len(body)), nil
}

func (d *Downloader) fetch(ctx context.Context, pkg resolver.ResolvedPackage) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pkg.TarballURL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.CodeNetwork, err, "build request for %s", pkg.Name)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, httputil.Retryable(errors.Wrap(errors.CodeNetwork, err, "download %s", pkg.Name))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, httputil.Retryable(errors.New(errors.CodeNetwork,
			"failed to download %s: HTTP %d", pkg.Name, resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, errors.New(errors.CodeNetwork,
			"failed to download %s: HTTP %d", pkg.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, httputil.Retryable(errors.Wrap(errors.CodeNetwork, err, "read archive for %s", pkg.Name))
	}
	return body, nil
}
