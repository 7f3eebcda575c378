package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadDefaults tests that an empty directory yields the default settings.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "http://localhost:8000", cfg.Backend.URL)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 5*time.Second, cfg.UI.BannerTTL)
	assert.Equal(t, time.Second, cfg.UI.LoginCloseDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.UI.RegisterCloseDelay)
	assert.Equal(t, 10, cfg.RateLimit.PerSecond)
	assert.Equal(t, 24*time.Hour, cfg.Visitor.TTL)
	assert.Equal(t, 5*time.Minute, cfg.Visitor.FirstContactTTL)
	assert.Equal(t, 10000, cfg.Visitor.Max)
	assert.False(t, cfg.IsProduction())
}

// TestLoadFileAndEnv tests that environment variables override config.yaml.
func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := "backend:\n  url: http://backend.internal:9000\n  timeout: 3s\nui:\n  banner_ttl: 7s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("PORTAL_UI_BANNER_TTL", "2s")
	t.Setenv("PORTAL_ADDR", ":9999")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "http://backend.internal:9000", cfg.Backend.URL)
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 2*time.Second, cfg.UI.BannerTTL)
	assert.Equal(t, ":9999", cfg.Addr)
}

// TestLoadDotEnv tests that .env supplies values missing from the environment.
func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PORTAL_LOG_LEVEL=debug\n"), 0o600))
	t.Setenv("PORTAL_LOG_LEVEL", "")
	os.Unsetenv("PORTAL_LOG_LEVEL")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

// TestValidate tests configuration validation.
func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Backend:   BackendConfig{URL: "http://localhost:8000", Timeout: time.Second},
			UI:        UIConfig{BannerTTL: time.Second, LoginCloseDelay: time.Second, RegisterCloseDelay: time.Second},
			Visitor:   VisitorConfig{TTL: time.Hour, FirstContactTTL: time.Minute, Max: 10},
			RateLimit: RateLimitConfig{PerSecond: 1},
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "relative backend url", mutate: func(c *Config) { c.Backend.URL = "/api" }, wantErr: "backend.url"},
		{name: "ftp backend url", mutate: func(c *Config) { c.Backend.URL = "ftp://x" }, wantErr: "backend.url"},
		{name: "zero timeout", mutate: func(c *Config) { c.Backend.Timeout = 0 }, wantErr: "backend.timeout"},
		{name: "short csrf key", mutate: func(c *Config) { c.CSRF.Key = "abcd" }, wantErr: "64 hex"},
		{name: "production without key", mutate: func(c *Config) { c.Env = EnvProduction }, wantErr: "required in production"},
		{name: "production with key", mutate: func(c *Config) {
			c.Env = EnvProduction
			c.CSRF.Key = strings.Repeat("ab", 32)
		}},
		{name: "zero banner ttl", mutate: func(c *Config) { c.UI.BannerTTL = 0 }, wantErr: "ui delays"},
		{name: "first contact ttl above ttl", mutate: func(c *Config) { c.Visitor.FirstContactTTL = 2 * time.Hour }, wantErr: "first_contact_ttl"},
		{name: "zero visitor max", mutate: func(c *Config) { c.Visitor.Max = 0 }, wantErr: "visitor.max"},
		{name: "zero rate", mutate: func(c *Config) { c.RateLimit.PerSecond = 0 }, wantErr: "rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestCSRFKey tests key decoding and development key generation.
func TestCSRFKey(t *testing.T) {
	key, generated, err := Config{CSRF: CSRFConfig{Key: strings.Repeat("0f", 32)}}.CSRFKey()
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Len(t, key, 32)

	key, generated, err = Config{}.CSRFKey()
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Len(t, key, 32)

	_, _, err = Config{Env: EnvProduction}.CSRFKey()
	assert.Error(t, err)
}
