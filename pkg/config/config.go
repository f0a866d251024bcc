// Package config loads bolt's configuration: defaults, the project's
// bolt.toml, an optional .boltrc (JSON), and BOLT_-prefixed environment
// overrides, in that precedence order.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/boltpm/bolt/pkg/errors"
)

// Filename is the primary config file in a project directory.
const Filename = "bolt.toml"

// RCFilename is the secondary JSON config file.
const RCFilename = ".boltrc"

// Config is the complete tool configuration.
type Config struct {
	Registry  Registry  `mapstructure:"registry"`
	Cache     Cache     `mapstructure:"cache"`
	Security  Security  `mapstructure:"security"`
	Network   Network   `mapstructure:"network"`
	Workspace Workspace `mapstructure:"workspace"`
}

// Registry configures registry selection and authentication.
type Registry struct {
	URL        string            `mapstructure:"url"`
	Scopes     map[string]string `mapstructure:"scopes"`
	AuthTokens map[string]string `mapstructure:"auth_tokens"`
	Mirrors    []string          `mapstructure:"mirrors"`
}

// Cache configures the shared package cache.
type Cache struct {
	Dir         string `mapstructure:"dir"`
	MaxSize     int64  `mapstructure:"max_size"`
	MetadataTTL int64  `mapstructure:"metadata_ttl"` // seconds
	Offline     bool   `mapstructure:"offline"`

	// RedisAddr selects the shared Redis metadata backend when non-empty.
	RedisAddr string `mapstructure:"redis_addr"`
}

// MetadataTTLDuration returns the metadata TTL as a duration.
func (c Cache) MetadataTTLDuration() time.Duration {
	return time.Duration(c.MetadataTTL) * time.Second
}

// Security configures the trust policy.
type Security struct {
	RequireIntegrity              bool     `mapstructure:"require_integrity"`
	AllowScripts                  bool     `mapstructure:"allow_scripts"`
	TrustedScopes                 []string `mapstructure:"trusted_scopes"`
	TrustedPackages               []string `mapstructure:"trusted_packages"`
	DependencyConfusionProtection bool     `mapstructure:"dependency_confusion_protection"`
	AuditOnInstall                bool     `mapstructure:"audit_on_install"`
}

// Network configures transport behavior.
type Network struct {
	Timeout     int64 `mapstructure:"timeout"` // seconds
	Concurrency int   `mapstructure:"concurrency"`
	Retries     int   `mapstructure:"retries"`
}

// TimeoutDuration returns the request timeout as a duration.
func (n Network) TimeoutDuration() time.Duration {
	return time.Duration(n.Timeout) * time.Second
}

// Workspace configures monorepo handling.
type Workspace struct {
	Packages       []string `mapstructure:"packages"`
	Hoist          bool     `mapstructure:"hoist"`
	SharedLockfile bool     `mapstructure:"shared_lockfile"`
}

// Load reads the configuration for a project directory.
func Load(projectDir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	tomlPath := filepath.Join(projectDir, Filename)
	if _, err := os.Stat(tomlPath); err == nil {
		v.SetConfigFile(tomlPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(errors.CodeConfig, err, "read %s", Filename)
		}
	}

	rcPath := filepath.Join(projectDir, RCFilename)
	if _, err := os.Stat(rcPath); err == nil {
		rc := viper.New()
		rc.SetConfigFile(rcPath)
		rc.SetConfigType("json")
		if err := rc.ReadInConfig(); err != nil {
			return nil, errors.Wrap(errors.CodeConfig, err, "read %s", RCFilename)
		}
		if err := v.MergeConfigMap(rc.AllSettings()); err != nil {
			return nil, errors.Wrap(errors.CodeConfig, err, "merge %s", RCFilename)
		}
	}

	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.CodeConfig, err, "decode configuration")
	}
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("registry.url", "https://registry.npmjs.org")
	v.SetDefault("cache.metadata_ttl", 300)
	v.SetDefault("cache.offline", false)
	v.SetDefault("security.require_integrity", true)
	v.SetDefault("security.allow_scripts", false)
	v.SetDefault("security.dependency_confusion_protection", true)
	v.SetDefault("security.audit_on_install", true)
	v.SetDefault("network.timeout", 30)
	v.SetDefault("network.concurrency", 16)
	v.SetDefault("network.retries", 3)
	v.SetDefault("workspace.packages", []string{"packages/*"})
	v.SetDefault("workspace.hoist", true)
	v.SetDefault("workspace.shared_lockfile", true)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("BOLT")
	_ = v.BindEnv("registry.url", "BOLT_REGISTRY")
	_ = v.BindEnv("cache.dir", "BOLT_CACHE_DIR")
}

// applyEnvOverrides handles the typed overrides whose unknown values must
// be ignored rather than rejected.
func applyEnvOverrides(cfg *Config) {
	if offline, ok := os.LookupEnv("BOLT_OFFLINE"); ok {
		cfg.Cache.Offline = offline == "1" || equalsTrue(offline)
	}
	if raw, ok := os.LookupEnv("BOLT_CONCURRENCY"); ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.Network.Concurrency = n
		}
	}
	if raw, ok := os.LookupEnv("BOLT_TIMEOUT"); ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.Network.Timeout = int64(n)
		}
	}
}

func equalsTrue(s string) bool {
	return strings.EqualFold(s, "true")
}

// CacheDir resolves the cache root: the configured directory, the
// BOLT_CACHE_DIR override (already merged), or the platform user cache
// location. The directory is created.
func (c *Config) CacheDir() (string, error) {
	dir := c.Cache.Dir
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return "", errors.Wrap(errors.CodeConfig, err, "determine cache directory")
		}
		dir = filepath.Join(base, "bolt")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(errors.CodeConfig, err, "create cache directory")
	}
	return dir, nil
}
