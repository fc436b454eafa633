// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for docket commands.
//
// Configuration is loaded from a single YAML file specified by:
//   - the --config flag passed to the command, or
//   - the DOCKET_CONFIG environment variable, or
//   - $XDG_CONFIG_HOME/docket/config.yaml when that file exists.
//
// When none of these name a file, built-in defaults apply and docket
// runs without any configuration at all. Environment variables never
// override values from the file; the only expansion performed is
// ${HOME} and similar path variables for portability.
//
// The config file may contain environment-specific sections
// (development, staging, production) that override base values when
// the environment matches.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for docket.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Cache configures the content-addressed disk cache.
	Cache CacheConfig `yaml:"cache"`

	// Archive bounds archive extraction.
	Archive ArchiveConfig `yaml:"archive"`

	// Upload configures the resource blob store.
	Upload UploadConfig `yaml:"upload"`

	// Fetch configures remote resource retrieval.
	Fetch FetchConfig `yaml:"fetch"`

	// Service configures the Unix socket service.
	Service ServiceConfig `yaml:"service"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// CacheConfig configures the disk cache shared by parse results and
// fetched resources.
type CacheConfig struct {
	// Directory is where the cache database lives.
	Directory string `yaml:"directory"`

	// TTLDays is how many days entries live after they are written.
	// Zero means entries never expire.
	TTLDays int `yaml:"ttl_days"`

	// TotalLimitMB is the size budget for the cache as a whole.
	// Zero means unlimited.
	TotalLimitMB int64 `yaml:"total_limit_mb"`

	// Namespaces maps namespace names to their size budgets in MB.
	Namespaces map[string]int64 `yaml:"namespaces,omitempty"`

	// EncryptionKey, when set, must be 64 hex characters (32 bytes).
	// Cached values are then encrypted before they hit disk.
	EncryptionKey string `yaml:"encryption_key,omitempty"`
}

// ArchiveConfig bounds the archive extraction engine.
type ArchiveConfig struct {
	// MaxContainerMB rejects containers above this raw size.
	MaxContainerMB int64 `yaml:"max_container_mb"`

	// MaxMembers caps the number of files in one container.
	MaxMembers int `yaml:"max_members"`

	// MaxTotalMB caps the extracted size of one container.
	MaxTotalMB int64 `yaml:"max_total_mb"`

	// TimeoutSeconds bounds the wall-clock time of one extraction.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// UploadConfig configures where extracted resources are stored.
type UploadConfig struct {
	// Enabled turns resource upload on. When false, documents still
	// parse but their resource references are stripped.
	Enabled bool `yaml:"enabled"`

	// Backend selects the store: "local" or "s3".
	Backend string `yaml:"backend"`

	// MaxBatch caps the number of resources one document may carry.
	MaxBatch int `yaml:"max_batch"`

	// TimeoutSeconds bounds one document's upload batch.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// Local configures the local filesystem backend.
	Local LocalStoreConfig `yaml:"local"`

	// S3 configures the S3-compatible backend.
	S3 S3StoreConfig `yaml:"s3"`
}

// LocalStoreConfig configures the local filesystem blob store.
type LocalStoreConfig struct {
	// Directory is the root of the object tree.
	Directory string `yaml:"directory"`
}

// S3StoreConfig configures the S3-compatible blob store.
type S3StoreConfig struct {
	// Endpoint is the S3 host, such as "s3.example.com:9000".
	Endpoint string `yaml:"endpoint"`

	// Bucket receives all objects.
	Bucket string `yaml:"bucket"`

	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// UseSSL selects TLS for the endpoint connection.
	UseSSL bool `yaml:"use_ssl"`

	// PublicBaseURL, when set, is the prefix for issued object URLs.
	PublicBaseURL string `yaml:"public_base_url,omitempty"`

	// Concurrency bounds parallel puts within one batch.
	Concurrency int `yaml:"concurrency"`
}

// FetchConfig configures remote resource retrieval.
type FetchConfig struct {
	// ServiceURL is the base URL of the downstream fetch service.
	// When empty, fetch operations are unavailable.
	ServiceURL string `yaml:"service_url"`

	// Workers bounds concurrent downstream calls.
	Workers int `yaml:"workers"`

	// ChunkSize is the number of URLs per downstream call.
	ChunkSize int `yaml:"chunk_size"`

	// MaxAttempts bounds attempts per chunk, including the first.
	MaxAttempts int `yaml:"max_attempts"`

	// RatePerSecond limits downstream calls.
	RatePerSecond float64 `yaml:"rate_per_second"`

	// TimeoutSeconds is the default deadline for one fetch batch.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// RulesFile points at a JSONC file of URL canonicalization and
	// filtering rules. When empty, built-in rules apply.
	RulesFile string `yaml:"rules_file,omitempty"`
}

// ServiceConfig configures the Unix socket service.
type ServiceConfig struct {
	// Socket is the path of the Unix socket the service listens on.
	Socket string `yaml:"socket"`

	// SweepIntervalMinutes is how often the service sweeps expired
	// and over-budget cache entries. Zero disables sweeping.
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

// ConfigOverrides contains environment-specific configuration overrides.
type ConfigOverrides struct {
	Cache   *CacheConfig   `yaml:"cache,omitempty"`
	Archive *ArchiveConfig `yaml:"archive,omitempty"`
	Upload  *UploadConfig  `yaml:"upload,omitempty"`
	Fetch   *FetchConfig   `yaml:"fetch,omitempty"`
	Service *ServiceConfig `yaml:"service,omitempty"`
}

// Default returns the baseline configuration. The environment is
// development unless DOCKET_ENV selects staging or production.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	cacheDir := filepath.Join(homeDir, ".cache", "docket")

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = os.TempDir()
	}

	environment := Development
	if env := Environment(os.Getenv("DOCKET_ENV")); env == Staging || env == Production {
		environment = env
	}

	return &Config{
		Environment: environment,
		Cache: CacheConfig{
			Directory:    cacheDir,
			TTLDays:      14,
			TotalLimitMB: 2048,
			Namespaces: map[string]int64{
				"parsed": 512,
				"fetch":  1024,
			},
		},
		Archive: ArchiveConfig{
			MaxContainerMB: 256,
			MaxMembers:     4096,
			MaxTotalMB:     1024,
			TimeoutSeconds: 60,
		},
		Upload: UploadConfig{
			Enabled:        true,
			Backend:        "local",
			MaxBatch:       64,
			TimeoutSeconds: 120,
			Local: LocalStoreConfig{
				Directory: filepath.Join(homeDir, ".local", "share", "docket", "objects"),
			},
			S3: S3StoreConfig{
				UseSSL:      true,
				Concurrency: 4,
			},
		},
		Fetch: FetchConfig{
			Workers:        8,
			ChunkSize:      16,
			MaxAttempts:    3,
			RatePerSecond:  10,
			TimeoutSeconds: 180,
		},
		Service: ServiceConfig{
			Socket:               filepath.Join(runtimeDir, "docket.sock"),
			SweepIntervalMinutes: 15,
		},
	}
}

// DefaultPath returns the conventional config file location,
// $XDG_CONFIG_HOME/docket/config.yaml.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, "docket", "config.yaml")
}

// Load resolves configuration for a command that was not given an
// explicit --config path. The DOCKET_CONFIG environment variable wins;
// otherwise the conventional path is used when a file exists there;
// otherwise built-in defaults apply. A path that is set but unreadable
// is an error, never a silent fallback.
func Load() (*Config, error) {
	if path := os.Getenv("DOCKET_CONFIG"); path != "" {
		return LoadFile(path)
	}

	if path := DefaultPath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}

	cfg := Default()
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values; the only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Cache != nil {
		if overrides.Cache.Directory != "" {
			c.Cache.Directory = overrides.Cache.Directory
		}
		if overrides.Cache.TTLDays != 0 {
			c.Cache.TTLDays = overrides.Cache.TTLDays
		}
		if overrides.Cache.TotalLimitMB != 0 {
			c.Cache.TotalLimitMB = overrides.Cache.TotalLimitMB
		}
		if overrides.Cache.Namespaces != nil {
			c.Cache.Namespaces = overrides.Cache.Namespaces
		}
		if overrides.Cache.EncryptionKey != "" {
			c.Cache.EncryptionKey = overrides.Cache.EncryptionKey
		}
	}

	if overrides.Archive != nil {
		if overrides.Archive.MaxContainerMB != 0 {
			c.Archive.MaxContainerMB = overrides.Archive.MaxContainerMB
		}
		if overrides.Archive.MaxMembers != 0 {
			c.Archive.MaxMembers = overrides.Archive.MaxMembers
		}
		if overrides.Archive.MaxTotalMB != 0 {
			c.Archive.MaxTotalMB = overrides.Archive.MaxTotalMB
		}
		if overrides.Archive.TimeoutSeconds != 0 {
			c.Archive.TimeoutSeconds = overrides.Archive.TimeoutSeconds
		}
	}

	if overrides.Upload != nil {
		// Enabled is a bool, so we always apply it from overrides.
		c.Upload.Enabled = overrides.Upload.Enabled
		if overrides.Upload.Backend != "" {
			c.Upload.Backend = overrides.Upload.Backend
		}
		if overrides.Upload.MaxBatch != 0 {
			c.Upload.MaxBatch = overrides.Upload.MaxBatch
		}
		if overrides.Upload.TimeoutSeconds != 0 {
			c.Upload.TimeoutSeconds = overrides.Upload.TimeoutSeconds
		}
		if overrides.Upload.Local.Directory != "" {
			c.Upload.Local.Directory = overrides.Upload.Local.Directory
		}
		if overrides.Upload.S3.Endpoint != "" {
			c.Upload.S3 = overrides.Upload.S3
		}
	}

	if overrides.Fetch != nil {
		if overrides.Fetch.ServiceURL != "" {
			c.Fetch.ServiceURL = overrides.Fetch.ServiceURL
		}
		if overrides.Fetch.Workers != 0 {
			c.Fetch.Workers = overrides.Fetch.Workers
		}
		if overrides.Fetch.ChunkSize != 0 {
			c.Fetch.ChunkSize = overrides.Fetch.ChunkSize
		}
		if overrides.Fetch.MaxAttempts != 0 {
			c.Fetch.MaxAttempts = overrides.Fetch.MaxAttempts
		}
		if overrides.Fetch.RatePerSecond != 0 {
			c.Fetch.RatePerSecond = overrides.Fetch.RatePerSecond
		}
		if overrides.Fetch.TimeoutSeconds != 0 {
			c.Fetch.TimeoutSeconds = overrides.Fetch.TimeoutSeconds
		}
		if overrides.Fetch.RulesFile != "" {
			c.Fetch.RulesFile = overrides.Fetch.RulesFile
		}
	}

	if overrides.Service != nil {
		if overrides.Service.Socket != "" {
			c.Service.Socket = overrides.Service.Socket
		}
		if overrides.Service.SweepIntervalMinutes != 0 {
			c.Service.SweepIntervalMinutes = overrides.Service.SweepIntervalMinutes
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Cache.Directory = expandVars(c.Cache.Directory, vars)
	vars["DOCKET_CACHE"] = c.Cache.Directory // Update for dependent paths.

	c.Upload.Local.Directory = expandVars(c.Upload.Local.Directory, vars)
	c.Fetch.RulesFile = expandVars(c.Fetch.RulesFile, vars)
	c.Service.Socket = expandVars(c.Service.Socket, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Cache.Directory == "" {
		errs = append(errs, fmt.Errorf("cache.directory is required"))
	}
	if c.Cache.TTLDays < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl_days must not be negative"))
	}
	if c.Cache.TotalLimitMB < 0 {
		errs = append(errs, fmt.Errorf("cache.total_limit_mb must not be negative"))
	}
	for name, limit := range c.Cache.Namespaces {
		if limit < 0 {
			errs = append(errs, fmt.Errorf("cache.namespaces.%s must not be negative", name))
		}
	}
	if c.Cache.EncryptionKey != "" {
		if _, err := c.Cache.Key(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Archive.MaxContainerMB < 0 {
		errs = append(errs, fmt.Errorf("archive.max_container_mb must not be negative"))
	}
	if c.Archive.MaxMembers < 0 {
		errs = append(errs, fmt.Errorf("archive.max_members must not be negative"))
	}
	if c.Archive.MaxTotalMB < 0 {
		errs = append(errs, fmt.Errorf("archive.max_total_mb must not be negative"))
	}
	if c.Archive.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("archive.timeout_seconds must not be negative"))
	}

	if c.Upload.Enabled {
		switch c.Upload.Backend {
		case "local":
			if c.Upload.Local.Directory == "" {
				errs = append(errs, fmt.Errorf("upload.local.directory is required for the local backend"))
			}
		case "s3":
			if c.Upload.S3.Endpoint == "" {
				errs = append(errs, fmt.Errorf("upload.s3.endpoint is required for the s3 backend"))
			}
			if c.Upload.S3.Bucket == "" {
				errs = append(errs, fmt.Errorf("upload.s3.bucket is required for the s3 backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("upload.backend must be local or s3, got %q", c.Upload.Backend))
		}
	}
	if c.Upload.MaxBatch < 0 {
		errs = append(errs, fmt.Errorf("upload.max_batch must not be negative"))
	}
	if c.Upload.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("upload.timeout_seconds must not be negative"))
	}

	if c.Fetch.Workers < 0 {
		errs = append(errs, fmt.Errorf("fetch.workers must not be negative"))
	}
	if c.Fetch.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("fetch.chunk_size must not be negative"))
	}
	if c.Fetch.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("fetch.max_attempts must not be negative"))
	}
	if c.Fetch.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("fetch.rate_per_second must not be negative"))
	}
	if c.Fetch.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout_seconds must not be negative"))
	}

	if c.Service.Socket == "" {
		errs = append(errs, fmt.Errorf("service.socket is required"))
	}
	if c.Service.SweepIntervalMinutes < 0 {
		errs = append(errs, fmt.Errorf("service.sweep_interval_minutes must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Cache.Directory,
		filepath.Dir(c.Service.Socket),
	}
	if c.Upload.Enabled && c.Upload.Backend == "local" {
		paths = append(paths, c.Upload.Local.Directory)
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

// Key decodes the configured encryption key. Returns nil when no key
// is configured.
func (c CacheConfig) Key() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("cache.encryption_key is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("cache.encryption_key must be 64 hex characters (32 bytes), got %d bytes", len(key))
	}
	return key, nil
}

// TTL returns the entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// TotalLimitBytes returns the whole-cache budget in bytes.
func (c CacheConfig) TotalLimitBytes() int64 {
	return c.TotalLimitMB << 20
}

// NamespaceLimitBytes returns the per-namespace budgets in bytes.
func (c CacheConfig) NamespaceLimitBytes() map[string]int64 {
	if len(c.Namespaces) == 0 {
		return nil
	}
	limits := make(map[string]int64, len(c.Namespaces))
	for name, mb := range c.Namespaces {
		limits[name] = mb << 20
	}
	return limits
}

// ContainerLimitBytes returns the raw container ceiling in bytes.
func (a ArchiveConfig) ContainerLimitBytes() int64 {
	return a.MaxContainerMB << 20
}

// ExtractedLimitBytes returns the extracted-size ceiling in bytes.
func (a ArchiveConfig) ExtractedLimitBytes() int64 {
	return a.MaxTotalMB << 20
}

// Timeout returns the extraction deadline as a duration.
func (a ArchiveConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// Timeout returns the upload batch deadline as a duration.
func (u UploadConfig) Timeout() time.Duration {
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// Timeout returns the fetch batch deadline as a duration.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// SweepInterval returns the cache sweep cadence as a duration.
func (s ServiceConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalMinutes) * time.Minute
}
