package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewDefaults tests that New returns a valid default configuration.
func TestNewDefaults(t *testing.T) {
	t.Parallel()

	cfg := New()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate, got %v", err)
	}
	if cfg.RedisAddress != DefaultRedisAddress {
		t.Errorf("RedisAddress = %q, want %q", cfg.RedisAddress, DefaultRedisAddress)
	}
	if cfg.MaxDepth != DefaultMaxDepth {
		t.Errorf("MaxDepth = %d, want %d", cfg.MaxDepth, DefaultMaxDepth)
	}
	if cfg.FetchTimeout.Std() != DefaultFetchTimeout {
		t.Errorf("FetchTimeout = %v, want %v", cfg.FetchTimeout.Std(), DefaultFetchTimeout)
	}
}

// TestValidate tests field validation with specific sentinel errors.
func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "empty redis address",
			mutate:  func(c *Config) { c.RedisAddress = "" },
			wantErr: ErrNoRedisAddress,
		},
		{
			name:    "zero fetch timeout",
			mutate:  func(c *Config) { c.FetchTimeout = 0 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "negative depth",
			mutate:  func(c *Config) { c.MaxDepth = -1 },
			wantErr: ErrInvalidMaxDepth,
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.MaxFetchAttempts = 0 },
			wantErr: ErrInvalidAttempts,
		},
		{
			name:    "zero visibility timeout",
			mutate:  func(c *Config) { c.VisibilityTimeout = 0 },
			wantErr: ErrInvalidVisibilityTimeout,
		},
		{
			name:    "negative retry budget",
			mutate:  func(c *Config) { c.EnrichRetryBudget = -1 },
			wantErr: ErrInvalidRetryBudget,
		},
		{
			name:    "zero backoff base",
			mutate:  func(c *Config) { c.ProxyBackoffBase = 0 },
			wantErr: ErrInvalidBackoff,
		},
		{
			name:    "zero worker count",
			mutate:  func(c *Config) { c.WorkerCount = 0 },
			wantErr: ErrInvalidWorkerCount,
		},
		{
			name:    "negative body size",
			mutate:  func(c *Config) { c.MaxBodySize = -1 },
			wantErr: ErrInvalidMaxBodySize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := New()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestLoad tests loading a YAML file over defaults.
func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, ".onioncrawl")
	content := []byte(`
redisAddress: "redis.internal:6379"
maxDepth: 2
fetchTimeout: 45s
quarantineCooldown: 3m
proxyAddresses:
  - "127.0.0.1:9050"
  - "127.0.0.1:9052"
`)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.RedisAddress != "redis.internal:6379" {
		t.Errorf("RedisAddress = %q", cfg.RedisAddress)
	}
	if cfg.MaxDepth != 2 {
		t.Errorf("MaxDepth = %d, want 2", cfg.MaxDepth)
	}
	if cfg.FetchTimeout.Std() != 45*time.Second {
		t.Errorf("FetchTimeout = %v, want 45s", cfg.FetchTimeout.Std())
	}
	if cfg.QuarantineCooldown.Std() != 3*time.Minute {
		t.Errorf("QuarantineCooldown = %v, want 3m", cfg.QuarantineCooldown.Std())
	}
	if len(cfg.ProxyAddresses) != 2 {
		t.Errorf("ProxyAddresses = %v, want 2 entries", cfg.ProxyAddresses)
	}
	// Unset fields keep their defaults.
	if cfg.MaxFetchAttempts != DefaultMaxFetchAttempts {
		t.Errorf("MaxFetchAttempts = %d, want default", cfg.MaxFetchAttempts)
	}
}

// TestLoadMissingExplicit tests the error for an explicit missing path.
func TestLoadMissingExplicit(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Load() = %v, want ErrConfigNotFound", err)
	}
}

// TestWriteDefault tests writing and re-loading the default config file.
func TestWriteDefault(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".onioncrawl")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	// Overwriting must be refused.
	if err := WriteDefault(path); err == nil {
		t.Fatal("expected error when file exists")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of written default error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written default must validate, got %v", err)
	}
}
