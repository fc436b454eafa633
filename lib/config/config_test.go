// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	// Save and restore DOCKET_ENV.
	origEnv := os.Getenv("DOCKET_ENV")
	defer os.Setenv("DOCKET_ENV", origEnv)
	os.Unsetenv("DOCKET_ENV")

	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}

	if cfg.Cache.TTLDays != 14 {
		t.Errorf("expected ttl_days=14, got %d", cfg.Cache.TTLDays)
	}

	if cfg.Cache.TotalLimitMB != 2048 {
		t.Errorf("expected total_limit_mb=2048, got %d", cfg.Cache.TotalLimitMB)
	}

	if cfg.Cache.Namespaces["parsed"] != 512 || cfg.Cache.Namespaces["fetch"] != 1024 {
		t.Errorf("unexpected namespace budgets: %v", cfg.Cache.Namespaces)
	}

	if !cfg.Upload.Enabled || cfg.Upload.Backend != "local" {
		t.Errorf("expected local upload enabled, got enabled=%v backend=%s", cfg.Upload.Enabled, cfg.Upload.Backend)
	}

	if cfg.Fetch.Workers != 8 {
		t.Errorf("expected fetch workers=8, got %d", cfg.Fetch.Workers)
	}

	if cfg.Service.Socket == "" {
		t.Error("expected a default service socket path")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestDefault_EnvironmentFromDocketEnv(t *testing.T) {
	origEnv := os.Getenv("DOCKET_ENV")
	defer os.Setenv("DOCKET_ENV", origEnv)

	os.Setenv("DOCKET_ENV", "production")
	if cfg := Default(); cfg.Environment != Production {
		t.Errorf("expected environment=production from DOCKET_ENV, got %s", cfg.Environment)
	}

	// Garbage values fall back to development.
	os.Setenv("DOCKET_ENV", "sideways")
	if cfg := Default(); cfg.Environment != Development {
		t.Errorf("expected environment=development for invalid DOCKET_ENV, got %s", cfg.Environment)
	}
}

func TestLoad_WithDocketConfig(t *testing.T) {
	// Save and restore DOCKET_CONFIG.
	origConfig := os.Getenv("DOCKET_CONFIG")
	defer os.Setenv("DOCKET_CONFIG", origConfig)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
environment: staging
cache:
  directory: /test/cache
service:
  socket: /test/docket.sock
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	os.Setenv("DOCKET_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}

	if cfg.Cache.Directory != "/test/cache" {
		t.Errorf("expected directory=/test/cache, got %s", cfg.Cache.Directory)
	}

	if cfg.Service.Socket != "/test/docket.sock" {
		t.Errorf("expected socket=/test/docket.sock, got %s", cfg.Service.Socket)
	}
}

func TestLoad_MissingConfiguredFile(t *testing.T) {
	origConfig := os.Getenv("DOCKET_CONFIG")
	defer os.Setenv("DOCKET_CONFIG", origConfig)

	os.Setenv("DOCKET_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing DOCKET_CONFIG file, got nil")
	}
}

func TestLoad_DefaultsWhenNothingConfigured(t *testing.T) {
	// Save and restore the variables that steer resolution.
	origConfig := os.Getenv("DOCKET_CONFIG")
	origXDG := os.Getenv("XDG_CONFIG_HOME")
	origEnv := os.Getenv("DOCKET_ENV")
	defer func() {
		os.Setenv("DOCKET_CONFIG", origConfig)
		os.Setenv("XDG_CONFIG_HOME", origXDG)
		os.Setenv("DOCKET_ENV", origEnv)
	}()

	os.Unsetenv("DOCKET_CONFIG")
	os.Unsetenv("DOCKET_ENV")
	// Point the conventional location at an empty directory so no real
	// user config leaks into the test.
	os.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Cache.TTLDays != 14 {
		t.Errorf("expected default ttl_days=14, got %d", cfg.Cache.TTLDays)
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
environment: development

cache:
  directory: /data/docket
  ttl_days: 7
  total_limit_mb: 512
  namespaces:
    parsed: 128
  encryption_key: "4a4b4c4d4e4f50515253545556575859414243444546474849505152535455a1"

archive:
  max_container_mb: 64
  max_members: 100
  max_total_mb: 256
  timeout_seconds: 30

upload:
  enabled: true
  backend: s3
  max_batch: 16
  timeout_seconds: 45
  s3:
    endpoint: s3.example.com:9000
    bucket: docket-objects
    access_key: AKTEST
    secret_key: sekrit
    use_ssl: true
    concurrency: 8

fetch:
  service_url: http://localhost:8643
  workers: 4
  chunk_size: 8
  max_attempts: 2
  rate_per_second: 5
  timeout_seconds: 90
  rules_file: /etc/docket/rules.jsonc

service:
  socket: /run/docket/docket.sock
  sweep_interval_minutes: 5
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Cache.Directory != "/data/docket" {
		t.Errorf("expected directory=/data/docket, got %s", cfg.Cache.Directory)
	}
	if cfg.Cache.TTLDays != 7 {
		t.Errorf("expected ttl_days=7, got %d", cfg.Cache.TTLDays)
	}
	if cfg.Cache.Namespaces["parsed"] != 128 {
		t.Errorf("expected parsed namespace budget 128, got %v", cfg.Cache.Namespaces)
	}

	if cfg.Archive.MaxContainerMB != 64 || cfg.Archive.MaxMembers != 100 {
		t.Errorf("unexpected archive limits: %+v", cfg.Archive)
	}

	if cfg.Upload.Backend != "s3" {
		t.Errorf("expected backend=s3, got %s", cfg.Upload.Backend)
	}
	if cfg.Upload.S3.Bucket != "docket-objects" || !cfg.Upload.S3.UseSSL {
		t.Errorf("unexpected s3 config: %+v", cfg.Upload.S3)
	}

	if cfg.Fetch.ServiceURL != "http://localhost:8643" {
		t.Errorf("expected service_url=http://localhost:8643, got %s", cfg.Fetch.ServiceURL)
	}
	if cfg.Fetch.RatePerSecond != 5 {
		t.Errorf("expected rate_per_second=5, got %v", cfg.Fetch.RatePerSecond)
	}
	if cfg.Fetch.RulesFile != "/etc/docket/rules.jsonc" {
		t.Errorf("expected rules_file=/etc/docket/rules.jsonc, got %s", cfg.Fetch.RulesFile)
	}

	if cfg.Service.Socket != "/run/docket/docket.sock" {
		t.Errorf("expected socket=/run/docket/docket.sock, got %s", cfg.Service.Socket)
	}
	if cfg.Service.SweepIntervalMinutes != 5 {
		t.Errorf("expected sweep_interval_minutes=5, got %d", cfg.Service.SweepIntervalMinutes)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("config should validate: %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
environment: production

cache:
  directory: /default/cache

upload:
  enabled: true
  backend: local
  local:
    directory: /default/objects

fetch:
  workers: 8

production:
  cache:
    directory: /prod/cache
  upload:
    enabled: false
  fetch:
    workers: 32
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	// Production overrides should be applied.
	if cfg.Cache.Directory != "/prod/cache" {
		t.Errorf("expected directory=/prod/cache, got %s", cfg.Cache.Directory)
	}

	if cfg.Upload.Enabled {
		t.Error("expected upload disabled from production override")
	}

	if cfg.Fetch.Workers != 32 {
		t.Errorf("expected workers=32 from production override, got %d", cfg.Fetch.Workers)
	}

	// Staging section absent: loading the same file as staging keeps
	// base values.
	stagingContent := strings.Replace(configContent, "environment: production", "environment: staging", 1)
	if err := os.WriteFile(configPath, []byte(stagingContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err = LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Cache.Directory != "/default/cache" {
		t.Errorf("expected base directory for staging, got %s", cfg.Cache.Directory)
	}
	if !cfg.Upload.Enabled {
		t.Error("expected upload enabled for staging")
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	// Verify that environment variables do NOT override config file values.
	// The config file is the single source of truth for deterministic configuration.

	// Save and restore env vars.
	origEnv := os.Getenv("DOCKET_ENV")
	origDir := os.Getenv("DOCKET_CACHE_DIR")
	defer func() {
		os.Setenv("DOCKET_ENV", origEnv)
		os.Setenv("DOCKET_CACHE_DIR", origDir)
	}()

	// Set env vars that should be ignored.
	os.Setenv("DOCKET_ENV", "production")
	os.Setenv("DOCKET_CACHE_DIR", "/env/cache")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
environment: development
cache:
  directory: /file/cache
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	// File values should be used, NOT env vars.
	if cfg.Environment != Development {
		t.Errorf("expected environment=development from file, got %s (env vars should not override)", cfg.Environment)
	}

	if cfg.Cache.Directory != "/file/cache" {
		t.Errorf("expected directory=/file/cache from file, got %s (env vars should not override)", cfg.Cache.Directory)
	}
}

func TestExpandVariables(t *testing.T) {
	// Save and restore env vars referenced by the config file.
	origDir := os.Getenv("DOCKET_CACHE_DIR")
	defer os.Setenv("DOCKET_CACHE_DIR", origDir)
	os.Unsetenv("DOCKET_CACHE_DIR")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
cache:
  directory: ${DOCKET_CACHE_DIR:-/fallback/cache}
upload:
  enabled: true
  backend: local
  local:
    directory: ${DOCKET_CACHE}/objects
service:
  socket: ${DOCKET_RUNTIME_TEST:-/tmp/docket}/docket.sock
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Cache.Directory != "/fallback/cache" {
		t.Errorf("expected directory=/fallback/cache, got %s", cfg.Cache.Directory)
	}

	// ${DOCKET_CACHE} resolves to the expanded cache directory.
	if cfg.Upload.Local.Directory != "/fallback/cache/objects" {
		t.Errorf("expected local directory under the cache dir, got %s", cfg.Upload.Local.Directory)
	}

	if cfg.Service.Socket != "/tmp/docket/docket.sock" {
		t.Errorf("expected socket=/tmp/docket/docket.sock, got %s", cfg.Service.Socket)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/docket",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/docket",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid environment",
			modify: func(c *Config) {
				c.Environment = "invalid"
			},
			wantErr: true,
		},
		{
			name: "empty cache directory",
			modify: func(c *Config) {
				c.Cache.Directory = ""
			},
			wantErr: true,
		},
		{
			name: "negative ttl",
			modify: func(c *Config) {
				c.Cache.TTLDays = -1
			},
			wantErr: true,
		},
		{
			name: "encryption key not hex",
			modify: func(c *Config) {
				c.Cache.EncryptionKey = "zz"
			},
			wantErr: true,
		},
		{
			name: "encryption key wrong length",
			modify: func(c *Config) {
				c.Cache.EncryptionKey = "4a4b4c4d"
			},
			wantErr: true,
		},
		{
			name: "unknown upload backend",
			modify: func(c *Config) {
				c.Upload.Backend = "ftp"
			},
			wantErr: true,
		},
		{
			name: "s3 backend without bucket",
			modify: func(c *Config) {
				c.Upload.Backend = "s3"
				c.Upload.S3.Endpoint = "s3.example.com"
				c.Upload.S3.Bucket = ""
			},
			wantErr: true,
		},
		{
			name: "upload disabled skips backend checks",
			modify: func(c *Config) {
				c.Upload.Enabled = false
				c.Upload.Backend = "ftp"
			},
			wantErr: false,
		},
		{
			name: "negative fetch rate",
			modify: func(c *Config) {
				c.Fetch.RatePerSecond = -1
			},
			wantErr: true,
		},
		{
			name: "empty socket path",
			modify: func(c *Config) {
				c.Service.Socket = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.Cache.Directory = filepath.Join(tmpDir, "cache")
	cfg.Upload.Local.Directory = filepath.Join(tmpDir, "objects")
	cfg.Service.Socket = filepath.Join(tmpDir, "run", "docket.sock")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	// Verify directories were created.
	for _, path := range []string{cfg.Cache.Directory, cfg.Upload.Local.Directory, filepath.Join(tmpDir, "run")} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}

func TestCacheKey(t *testing.T) {
	var cache CacheConfig

	key, err := cache.Key()
	if err != nil || key != nil {
		t.Fatalf("empty key: got %v, %v", key, err)
	}

	cache.EncryptionKey = strings.Repeat("ab", 32)
	key, err = cache.Key()
	if err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(key))
	}
	if key[0] != 0xab {
		t.Errorf("unexpected key bytes: %x", key[:4])
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	if got := cfg.Cache.TTL(); got != 14*24*time.Hour {
		t.Errorf("TTL() = %v, want 336h", got)
	}
	if got := cfg.Cache.TotalLimitBytes(); got != 2048<<20 {
		t.Errorf("TotalLimitBytes() = %d", got)
	}
	if got := cfg.Cache.NamespaceLimitBytes()["parsed"]; got != 512<<20 {
		t.Errorf("parsed namespace budget = %d", got)
	}
	if got := cfg.Archive.Timeout(); got != 60*time.Second {
		t.Errorf("archive Timeout() = %v", got)
	}
	if got := cfg.Service.SweepInterval(); got != 15*time.Minute {
		t.Errorf("SweepInterval() = %v", got)
	}
}
