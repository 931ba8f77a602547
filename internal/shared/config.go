package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Session store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config represents the application configuration loaded from a TOML file and the environment.
//
// It is read-only once [Config.Validate] succeeds.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Session     SessionConfig     `toml:"session"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains the Spotify app credentials and the requested scope.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	Scope        string `toml:"scope"`
}

// Scopes returns the configured scope split on whitespace.
func (s SpotifyConfig) Scopes() []string {
	return SplitScope(s.Scope)
}

// SessionConfig controls the signed session cookie and the token store behind it.
type SessionConfig struct {
	Secret     string `toml:"secret"`
	CookieName string `toml:"cookie_name"`
	MaxAge     int    `toml:"max_age"` // seconds
	Secure     bool   `toml:"secure"`
	Store      string `toml:"store"`
}

// TTL returns the session retention window.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.MaxAge) * time.Second
}

// DatabaseConfig contains database connection settings for the sqlite session store.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	Landing         string   `toml:"landing"`
	UpstreamTimeout int      `toml:"upstream_timeout"` // seconds
	AllowedOrigins  []string `toml:"allowed_origins"`
	RateLimit       float64  `toml:"rate_limit"` // requests per second per client
	RateBurst       int      `toml:"rate_burst"`
	LogLevel        string   `toml:"log_level"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Timeout returns the upstream request timeout.
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.UpstreamTimeout) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path on top of [DefaultConfig].
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
		return fmt.Errorf("%w: config file already exists at %s", ErrInvalidInput, path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnvFiles loads KEY=VALUE pairs from the given env files into the process environment.
//
// Missing files are skipped and variables already set in the environment win.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values with environment variables found by lookup.
//
// The SPOTIPY_* names are accepted as fallbacks for the credential variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&c.Credentials.Spotify.ClientID, "CLIENT_ID", "SPOTIPY_CLIENT_ID")
	str(&c.Credentials.Spotify.ClientSecret, "CLIENT_SECRET", "SPOTIPY_CLIENT_SECRET")
	str(&c.Credentials.Spotify.RedirectURI, "REDIRECT_URI", "SPOTIPY_REDIRECT_URI")
	str(&c.Credentials.Spotify.Scope, "SCOPE")
	str(&c.Session.Secret, "SESSION_SECRET")
	str(&c.Session.Store, "SESSION_STORE")
	str(&c.Database.Path, "DATABASE_PATH")
	str(&c.Server.Host, "HOST")
	str(&c.Server.LogLevel, "LOG_LEVEL")

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PORT must be a number, got %q", ErrInvalidConfig, v)
		}
		c.Server.Port = port
	}

	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}

	return nil
}

// Validate reports missing or inconsistent settings. It runs once at startup.
func (c *Config) Validate() error {
	var missing []string
	if c.Credentials.Spotify.ClientID == "" {
		missing = append(missing, "CLIENT_ID")
	}
	if c.Credentials.Spotify.ClientSecret == "" {
		missing = append(missing, "CLIENT_SECRET")
	}
	if c.Credentials.Spotify.RedirectURI == "" {
		missing = append(missing, "REDIRECT_URI")
	}
	if c.Session.Secret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	if len(c.Credentials.Spotify.Scopes()) == 0 {
		return fmt.Errorf("%w: SCOPE must list at least one permission", ErrInvalidConfig)
	}

	switch c.Session.Store {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("%w: unknown session store %q", ErrInvalidConfig, c.Session.Store)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Server.Port)
	}

	if c.Session.MaxAge <= 0 {
		return fmt.Errorf("%w: session max_age must be positive", ErrInvalidConfig)
	}

	if c.Server.UpstreamTimeout <= 0 {
		c.Server.UpstreamTimeout = 10
	}

	return nil
}
