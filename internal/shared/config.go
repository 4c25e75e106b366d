package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	OAuth    OAuthConfig    `toml:"oauth"`
	Guard    GuardConfig    `toml:"guard"`
	Session  SessionConfig  `toml:"session"`
	Upstream UpstreamConfig `toml:"upstream"`
	Log      LogConfig      `toml:"log"`
	Sentry   SentryConfig   `toml:"sentry"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	TrustProxy     bool     `toml:"trust_proxy"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Addr returns host:port for [http.Server].
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig contains database connection settings.
//
// URL accepts a sqlite path (optionally prefixed with sqlite://), ":memory:", or a postgres:// URL.
type DatabaseConfig struct {
	URL          string `toml:"url"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// InMemory reports whether URL names a private in-memory sqlite database.
func (d DatabaseConfig) InMemory() bool {
	return strings.HasPrefix(strings.TrimPrefix(strings.TrimSpace(d.URL), "sqlite://"), ":memory:")
}

// OAuthConfig contains Google OAuth2 client settings.
type OAuthConfig struct {
	ClientID            string   `toml:"client_id"`
	ClientSecret        string   `toml:"client_secret"`
	RedirectURI         string   `toml:"redirect_uri"`
	Scopes              []string `toml:"scopes"`
	RequiredScopePrefix string   `toml:"required_scope_prefix"`
	VerifyIDToken       bool     `toml:"verify_id_token"`
	Issuer              string   `toml:"issuer"`
	JWKSURL             string   `toml:"jwks_url"`
}

// GuardConfig contains rate limiting and brute-force settings. Windows are in seconds.
type GuardConfig struct {
	Backend               string `toml:"backend"`
	Shards                int    `toml:"shards"`
	RateLimitMaxRequests  int    `toml:"rate_limit_max_requests"`
	RateLimitWindow       int    `toml:"rate_limit_window"`
	AuthMaxRequests       int    `toml:"auth_max_requests"`
	AuthWindow            int    `toml:"auth_window"`
	BruteForceMaxAttempts int    `toml:"brute_force_max_attempts"`
	BruteForceWindow      int    `toml:"brute_force_window"`
}

// SessionConfig contains session lifetime settings in seconds.
type SessionConfig struct {
	TTL           int `toml:"ttl"`
	PurgeInterval int `toml:"purge_interval"`
}

// UpstreamConfig points at the ytmusicapi proxy that gated /api requests are forwarded to.
type UpstreamConfig struct {
	URL               string  `toml:"url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	Timeout           int     `toml:"timeout"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string `toml:"dsn"`
	Environment string `toml:"environment"`
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (g GuardConfig) RateWindow() time.Duration         { return seconds(g.RateLimitWindow) }
func (g GuardConfig) AuthRateWindow() time.Duration     { return seconds(g.AuthWindow) }
func (g GuardConfig) BruteForceDuration() time.Duration { return seconds(g.BruteForceWindow) }
func (s SessionConfig) TTLDuration() time.Duration      { return seconds(s.TTL) }
func (s SessionConfig) PurgeEvery() time.Duration       { return seconds(s.PurgeInterval) }
func (u UpstreamConfig) TimeoutDuration() time.Duration { return seconds(u.Timeout) }

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process environment.
// Missing files are skipped; variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values with environment variables when they are set.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, v)
		}
		*dst = n
		return nil
	}

	str("GOOGLE_CLIENT_ID", &c.OAuth.ClientID)
	str("GOOGLE_CLIENT_SECRET", &c.OAuth.ClientSecret)
	str("GOOGLE_REDIRECT_URI", &c.OAuth.RedirectURI)
	str("DATABASE_URL", &c.Database.URL)
	str("YTGATE_UPSTREAM_URL", &c.Upstream.URL)
	str("SENTRY_DSN", &c.Sentry.DSN)
	str("LOG_LEVEL", &c.Log.Level)

	for key, dst := range map[string]*int{
		"RATE_LIMIT_MAX_REQUESTS":  &c.Guard.RateLimitMaxRequests,
		"RATE_LIMIT_WINDOW":        &c.Guard.RateLimitWindow,
		"BRUTE_FORCE_MAX_ATTEMPTS": &c.Guard.BruteForceMaxAttempts,
		"BRUTE_FORCE_WINDOW":       &c.Guard.BruteForceWindow,
		"SESSION_TTL":              &c.Session.TTL,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks the values the guard and session store depend on.
func (c *Config) Validate() error {
	positive := map[string]int{
		"guard.rate_limit_max_requests":  c.Guard.RateLimitMaxRequests,
		"guard.rate_limit_window":        c.Guard.RateLimitWindow,
		"guard.auth_max_requests":        c.Guard.AuthMaxRequests,
		"guard.auth_window":              c.Guard.AuthWindow,
		"guard.brute_force_max_attempts": c.Guard.BruteForceMaxAttempts,
		"guard.brute_force_window":       c.Guard.BruteForceWindow,
		"session.ttl":                    c.Session.TTL,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, name, v)
		}
	}

	switch c.Guard.Backend {
	case "", "memory", "sql":
	default:
		return fmt.Errorf("%w: unknown guard backend %q", ErrInvalidConfig, c.Guard.Backend)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("%w: database.url is required", ErrInvalidConfig)
	}

	return nil
}
