// Package registry implements the npm registry wire protocol: package
// metadata lookup with content negotiation, scoped registry overrides,
// per-registry authentication, and search.
//
// Metadata responses are cached through the content cache's metadata tier
// (write-once JSON envelopes with a TTL), so repeated resolutions of the
// same package hit the network at most once per TTL window.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/boltpm/bolt/pkg/cache"
	"github.com/boltpm/bolt/pkg/errors"
	"github.com/boltpm/bolt/pkg/httputil"
)

// acceptHeader prefers the compact install metadata document and falls
// back to the full JSON root document.
const acceptHeader = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8"

// DefaultURL is the public npm registry.
const DefaultURL = "https://registry.npmjs.org"

// Config configures a registry client.
type Config struct {
	// URL is the default registry base URL.
	URL string

	// Scopes maps a scope ("@myorg") to a registry base URL that overrides
	// the default for packages in that scope.
	Scopes map[string]string

	// AuthTokens maps a registry base URL to its bearer token.
	AuthTokens map[string]string

	// Timeout bounds a single metadata request. Zero means 30 seconds.
	Timeout time.Duration

	// Retries bounds retry attempts for transient failures. Zero means 3.
	Retries int

	// UserAgent overrides the User-Agent header. Empty selects the default.
	UserAgent string
}

// Client talks to npm-compatible registries. One client per process is
// expected; the underlying http.Client pools connections per host.
// Client is safe for concurrent use.
type Client struct {
	http   *http.Client
	cfg    Config
	cache  *cache.Manager
	logger *log.Logger
}

// NewClient creates a registry client backed by the given cache manager
// for metadata caching. A nil logger selects log.Default().
func NewClient(cfg Config, cacheMgr *cache.Manager, logger *log.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "bolt/1.0"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:    cfg,
		cache:  cacheMgr,
		logger: logger,
	}
}

// RegistryFor returns the registry base URL serving a package, honoring
// scope overrides.
func (c *Client) RegistryFor(name string) string {
	if strings.HasPrefix(name, "@") {
		scope, _, _ := strings.Cut(name, "/")
		if override, ok := c.cfg.Scopes[scope]; ok {
			return override
		}
	}
	return c.cfg.URL
}

// AuthToken returns the bearer token configured for a registry, if any.
func (c *Client) AuthToken(registry string) (string, bool) {
	token, ok := c.cfg.AuthTokens[registry]
	return token, ok
}

// packageURL builds the metadata URL for a package. Scoped names keep
// their "@" but encode the separating slash as %2f.
func (c *Client) packageURL(name string) string {
	encoded := name
	if strings.HasPrefix(name, "@") {
		encoded = strings.ReplaceAll(name, "/", "%2f")
	}
	return c.RegistryFor(name) + "/" + encoded
}

// GetPackageMetadata fetches the root document for a package, consulting
// the metadata cache first. A non-expired cached document is returned
// verbatim; otherwise the registry is queried, the raw response cached,
// and the parsed document returned.
func (c *Client) GetPackageMetadata(ctx context.Context, name string) (*PackageMetadata, error) {
	if cached, err := c.cache.Metadata(ctx, name); err == nil && cached != nil {
		var meta PackageMetadata
		if err := json.Unmarshal([]byte(cached.Data), &meta); err == nil {
			return &meta, nil
		}
		// Corrupt cache entry: fall through to a fresh fetch.
	}

	var body []byte
	fetch := func() error {
		var err error
		body, err = c.get(ctx, c.packageURL(name), name)
		return err
	}
	if err := httputil.Retry(ctx, c.cfg.Retries, time.Second, fetch); err != nil {
		return nil, err
	}

	var meta PackageMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, errors.Wrap(errors.CodeRegistry, err, "parse metadata for %s", name)
	}

	if err := c.cache.StoreMetadata(ctx, name, string(body)); err != nil {
		c.logger.Warn("failed to cache metadata", "package", name, "err", err)
	}
	return &meta, nil
}

// PackageExists reports whether the registry serves a package by name.
func (c *Client) PackageExists(ctx context.Context, name string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.packageURL(name), nil)
	if err != nil {
		return false, errors.Wrap(errors.CodeNetwork, err, "build request for %s", name)
	}
	c.setHeaders(req, name)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, errors.Wrap(errors.CodeNetwork, err, "check %s", name)
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// Search queries the registry full-text search endpoint. The limit is
// clamped to the endpoint's 1..250 bounds.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	limit = min(max(limit, 1), 250)
	u := fmt.Sprintf("%s/-/v1/search?text=%s&size=%d", c.cfg.URL, url.QueryEscape(query), limit)

	var body []byte
	fetch := func() error {
		var err error
		body, err = c.get(ctx, u, "")
		return err
	}
	if err := httputil.Retry(ctx, c.cfg.Retries, time.Second, fetch); err != nil {
		return nil, err
	}

	var data struct {
		Objects []struct {
			Package SearchResult `json:"package"`
		} `json:"objects"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errors.Wrap(errors.CodeRegistry, err, "parse search response")
	}

	results := make([]SearchResult, 0, len(data.Objects))
	for _, o := range data.Objects {
		results = append(results, o.Package)
	}
	return results, nil
}

// get performs one GET and returns the response body. 404 maps to
// PackageNotFound (when name is known), 5xx and transport failures are
// wrapped retryable, other statuses are registry errors.
func (c *Client) get(ctx context.Context, u, name string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(errors.CodeNetwork, err, "build request")
	}
	c.setHeaders(req, name)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, httputil.Retryable(errors.Wrap(errors.CodeNetwork, err, "fetch %s", u))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		if name != "" {
			return nil, errors.New(errors.CodePackageNotFound, "package not found: %s", name)
		}
		return nil, errors.New(errors.CodeRegistry, "not found: %s", u)
	case resp.StatusCode >= 500:
		return nil, httputil.Retryable(errors.New(errors.CodeNetwork, "registry returned %d for %s", resp.StatusCode, u))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, errors.New(errors.CodeRegistry, "failed to fetch %s: HTTP %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, httputil.Retryable(errors.Wrap(errors.CodeNetwork, err, "read response body"))
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request, name string) {
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	registry := c.cfg.URL
	if name != "" {
		registry = c.RegistryFor(name)
	}
	if token, ok := c.AuthToken(registry); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
