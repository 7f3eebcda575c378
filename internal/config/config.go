// Package config loads portal settings from config.yaml, .env and PORTAL_*
// environment variables.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. PORTAL_BACKEND_URL.
const EnvPrefix = "PORTAL"

// EnvProduction is the env value that enforces a fixed CSRF key.
const EnvProduction = "production"

// Config is the portal configuration.
type Config struct {
	Addr      string          `mapstructure:"addr"`
	Env       string          `mapstructure:"env"`
	Backend   BackendConfig   `mapstructure:"backend"`
	CSRF      CSRFConfig      `mapstructure:"csrf"`
	Log       LogConfig       `mapstructure:"log"`
	UI        UIConfig        `mapstructure:"ui"`
	Visitor   VisitorConfig   `mapstructure:"visitor"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// BackendConfig points at the activities API.
type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CSRFConfig holds the hex-encoded 32-byte CSRF secret.
type CSRFConfig struct {
	Key string `mapstructure:"key"`
}

// LogConfig selects the zap level and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// UIConfig holds the auto-dismiss delays.
type UIConfig struct {
	BannerTTL          time.Duration `mapstructure:"banner_ttl"`
	LoginCloseDelay    time.Duration `mapstructure:"login_close_delay"`
	RegisterCloseDelay time.Duration `mapstructure:"register_close_delay"`
}

// VisitorConfig bounds how many visitor controllers are kept and for how long.
// FirstContactTTL applies to a visitor that has made only one request.
type VisitorConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	FirstContactTTL time.Duration `mapstructure:"first_contact_ttl"`
	Max             int           `mapstructure:"max"`
}

// RateLimitConfig is the per-IP request budget.
type RateLimitConfig struct {
	PerSecond int `mapstructure:"per_second"`
}

// IsProduction reports whether the portal runs in production mode.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load reads configuration. Files are optional: a missing config.yaml or .env
// leaves defaults and environment variables in charge.
// PRE: dir is the directory searched for config.yaml and .env ("" means ".")
// POST: Returns a validated config
func Load(dir string) (Config, error) {
	if dir == "" {
		dir = "."
	}
	// .env never overrides variables already set in the process.
	if err := godotenv.Load(dir + "/.env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("env", "development")
	v.SetDefault("backend.url", "http://localhost:8000")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("csrf.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("ui.banner_ttl", 5*time.Second)
	v.SetDefault("ui.login_close_delay", time.Second)
	v.SetDefault("ui.register_close_delay", 1500*time.Millisecond)
	v.SetDefault("visitor.ttl", 24*time.Hour)
	v.SetDefault("visitor.first_contact_ttl", 5*time.Minute)
	v.SetDefault("visitor.max", 10000)
	v.SetDefault("rate_limit.per_second", 10)
}

// Validate checks required and well-formed settings.
func (c Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.url must be an absolute http(s) URL, got %q", c.Backend.URL)
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("backend.timeout must be positive")
	}
	if c.CSRF.Key != "" {
		if _, err := decodeKey(c.CSRF.Key); err != nil {
			return err
		}
	} else if c.IsProduction() {
		return errors.New("csrf.key is required in production")
	}
	if c.UI.BannerTTL <= 0 || c.UI.LoginCloseDelay <= 0 || c.UI.RegisterCloseDelay <= 0 {
		return errors.New("ui delays must be positive")
	}
	if c.Visitor.TTL <= 0 {
		return errors.New("visitor.ttl must be positive")
	}
	if c.Visitor.FirstContactTTL <= 0 || c.Visitor.FirstContactTTL > c.Visitor.TTL {
		return errors.New("visitor.first_contact_ttl must be positive and at most visitor.ttl")
	}
	if c.Visitor.Max <= 0 {
		return errors.New("visitor.max must be positive")
	}
	if c.RateLimit.PerSecond <= 0 {
		return errors.New("rate_limit.per_second must be positive")
	}
	return nil
}

// CSRFKey returns the configured key, or a random one outside production.
// The second result reports whether the key was generated.
func (c Config) CSRFKey() ([]byte, bool, error) {
	if c.CSRF.Key != "" {
		key, err := decodeKey(c.CSRF.Key)
		return key, false, err
	}
	if c.IsProduction() {
		return nil, false, errors.New("csrf.key is required in production")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate csrf key: %w", err)
	}
	return key, true, nil
}

func decodeKey(keyHex string) ([]byte, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != 32 {
		return nil, errors.New("csrf.key must be 64 hex characters (32 bytes)")
	}
	return key, nil
}
