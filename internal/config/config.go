package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Store    StoreConfig    `yaml:"store" envconfig:"STORE"`
}

// ServerConfig contains HTTP server configuration. The port tag is
// HTTP_PORT rather than PORT: envconfig also consults the bare tag name,
// and a platform-provided $PORT must not leak in.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// SecurityConfig contains authentication and access configuration.
// JWTSecret has no default: refusing to sign tokens with a known
// development secret is a startup requirement, not a warning.
type SecurityConfig struct {
	JWTSecret         string          `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
	AccessTokenTTL    time.Duration   `yaml:"access_token_ttl" envconfig:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL   time.Duration   `yaml:"refresh_token_ttl" envconfig:"REFRESH_TOKEN_TTL"`
	AllowRegistration bool            `yaml:"allow_registration" envconfig:"ALLOW_REGISTRATION"`
	AdminPassword     string          `yaml:"admin_password" envconfig:"ADMIN_PASSWORD"`
	AllowedOrigins    []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	RateLimit         RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// StoreConfig contains the SQLite store configuration. The tag is DB_PATH,
// not PATH, so the lookup can never fall through to the shell's $PATH.
type StoreConfig struct {
	Path string `yaml:"path" envconfig:"DB_PATH"`
}

// defaultConfig returns the built-in defaults. Defaults live here rather
// than in envconfig tags: tag defaults are re-applied on every Process call
// and would clobber values a config file already set.
func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            8100,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 168 * time.Hour,
			AllowedOrigins:  []string{"*"},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Path: "data/killswitch.db",
		},
	}
}

// Load loads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
func Load() (*Config, error) {
	return LoadFile(configFilePath())
}

// LoadFile loads configuration in three layers: built-in defaults, then the
// given YAML file (if present), then environment variables. Each layer
// overrides the one before it, then the result is validated.
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("KILLSWITCH", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func configFilePath() string {
	if path := os.Getenv("KILLSWITCH_CONFIG"); path != "" {
		return path
	}
	return "config.yaml"
}

// validate enforces fail-fast startup conditions.
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required; refusing to start with an empty signing key")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 bytes, got %d", len(c.Security.JWTSecret))
	}
	if c.Security.AccessTokenTTL <= 0 {
		return fmt.Errorf("security.access_token_ttl must be positive")
	}
	if c.Security.RefreshTokenTTL <= c.Security.AccessTokenTTL {
		return fmt.Errorf("security.refresh_token_ttl must exceed access_token_ttl")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}
	return nil
}
