package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration.
//
// Values come from the embedded defaults, then a TOML file, then the environment (including a .env file).
// Build it once at startup and pass it to constructors; nothing else reads configuration.
type Config struct {
	Spotify   SpotifyConfig   `toml:"spotify"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	Store     StoreConfig     `toml:"store"`
	Server    ServerConfig    `toml:"server"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Log       LogConfig       `toml:"log"`
}

// SpotifyConfig contains Spotify application credentials and endpoints.
//
// ClientSecret is optional: the authorization code flow uses PKCE as a public client.
type SpotifyConfig struct {
	ClientID       string   `toml:"client_id" env:"SPOTIFY_CLIENT_ID"`
	ClientSecret   string   `toml:"client_secret" env:"SPOTIFY_CLIENT_SECRET"`
	RedirectURI    string   `toml:"redirect_uri" env:"SPOTIFY_REDIRECT_URI"`
	Scopes         []string `toml:"scopes" env:"SPOTIFY_SCOPES" envSeparator:" "`
	AuthURL        string   `toml:"auth_url" env:"SPOTIFY_AUTH_URL"`
	TokenURL       string   `toml:"token_url" env:"SPOTIFY_TOKEN_URL"`
	APIURL         string   `toml:"api_url" env:"SPOTIFY_API_URL"`
	TimeoutSeconds int      `toml:"timeout_seconds" env:"SPOTIFY_TIMEOUT_SECONDS"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"DATABASE_PATH"`
	MaxOpenConns int    `toml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `toml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
}

// RedisConfig contains the connection URL for the ephemeral store and rate limiter.
type RedisConfig struct {
	URL       string `toml:"url" env:"REDIS_URL"`
	KeyPrefix string `toml:"key_prefix" env:"REDIS_KEY_PREFIX"`
}

// StoreConfig selects the ephemeral store backend: "redis" or "bolt".
type StoreConfig struct {
	Backend  string `toml:"backend" env:"STORE_BACKEND"`
	BoltPath string `toml:"bolt_path" env:"STORE_BOLT_PATH"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string `toml:"host" env:"SERVER_HOST"`
	Port           int    `toml:"port" env:"PORT"`
	FrontendURL    string `toml:"frontend_url" env:"FRONTEND_URL"`
	AllowedOrigins string `toml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	Environment    string `toml:"environment" env:"ENVIRONMENT"`
	CookieName     string `toml:"cookie_name" env:"SESSION_COOKIE_NAME"`
}

// RateLimitConfig contains the per-user token bucket parameters.
type RateLimitConfig struct {
	MaxTokens         float64 `toml:"max_tokens" env:"RATELIMIT_MAX_TOKENS"`
	RefillRate        float64 `toml:"refill_rate" env:"RATELIMIT_REFILL_RATE"`
	IdleExpirySeconds int     `toml:"idle_expiry_seconds" env:"RATELIMIT_IDLE_EXPIRY_SECONDS"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level" env:"LOG_LEVEL"`
}

// LoadConfig reads a TOML configuration file from the specified path on top of [DefaultConfig].
//
// Keys missing from the file keep their default values.
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

// ResolveConfig builds the runtime configuration: defaults, then the TOML file at path when it exists,
// then variables from envFiles (default ".env") and the process environment.
func ResolveConfig(path string, envFiles ...string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if config, err = LoadConfig(path); err != nil {
				return nil, err
			}
		}
	}

	if err := config.ApplyEnv(envFiles...); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv loads .env files (missing files are ignored) and overrides fields from environment variables.
func (c *Config) ApplyEnv(envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	if err := env.Parse(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.Spotify.ClientID == "" {
		errs = append(errs, fmt.Errorf("spotify.client_id is required"))
	}
	if c.Spotify.RedirectURI == "" {
		errs = append(errs, fmt.Errorf("spotify.redirect_uri is required"))
	}
	if c.Server.FrontendURL == "" {
		errs = append(errs, fmt.Errorf("server.frontend_url is required"))
	}

	switch c.Store.Backend {
	case "redis":
		if c.Redis.URL == "" {
			errs = append(errs, fmt.Errorf("redis.url is required for the redis store backend"))
		}
	case "bolt":
		if c.Store.BoltPath == "" {
			errs = append(errs, fmt.Errorf("store.bolt_path is required for the bolt store backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend must be redis or bolt, got %q", c.Store.Backend))
	}

	// The rate limiter always talks to Redis.
	if c.Redis.URL == "" && c.Store.Backend != "redis" {
		errs = append(errs, fmt.Errorf("redis.url is required for rate limiting"))
	}

	if c.RateLimit.MaxTokens < 1 || c.RateLimit.RefillRate <= 0 {
		errs = append(errs, fmt.Errorf("ratelimit.max_tokens must be >= 1 and ratelimit.refill_rate > 0"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether secure cookie attributes should be used.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Origins splits the comma-separated allowed origins, dropping blanks.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.Server.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// UpstreamTimeout bounds every outbound Spotify request.
func (c *Config) UpstreamTimeout() time.Duration {
	if c.Spotify.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Spotify.TimeoutSeconds) * time.Second
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
