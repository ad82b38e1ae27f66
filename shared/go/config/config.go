package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// MinInviteSecretLength matches the shortest secret the token signer accepts.
const MinInviteSecretLength = 32

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Security  SecurityConfig
	Invites   InviteConfig
	CORS      CORSConfig
	Logging   LoggingConfig
	Telemetry TelemetryConfig

	// BootstrapDemo seeds a demo user, venue, festival and event on start.
	BootstrapDemo bool `env:"BOOTSTRAP_DEMO" envDefault:"false"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port int    `env:"PORT" envDefault:"8080"`
	Host string `env:"HOST" envDefault:"0.0.0.0"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig holds session and privilege settings
type SecurityConfig struct {
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SuperAdminIDs []string      `env:"SUPERADMIN_USER_IDS" envSeparator:","`
}

// InviteConfig holds invitation link settings
type InviteConfig struct {
	TokenSecret   string        `env:"INVITE_TOKEN_SECRET"`
	TTL           time.Duration `env:"INVITE_TTL" envDefault:"168h"`
	PublicBaseURL string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:5173"`
	// ResolveRate and ResolveBurst throttle the public acceptance lookup per client IP.
	ResolveRate  float64 `env:"RESOLVE_RATE_PER_SECOND" envDefault:"5"`
	ResolveBurst int     `env:"RESOLVE_BURST" envDefault:"10"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173,http://localhost:8080"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`  // debug, info, warn, error
	Format string `env:"LOG_FORMAT" envDefault:"json"` // json, text
}

// TelemetryConfig holds tracing settings. Tracing is off when the endpoint is empty.
type TelemetryConfig struct {
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads configuration from .env files and the environment
func Load() (*Config, error) {
	// Both files are optional; values already in the environment win.
	_ = godotenv.Load("config/local.env")
	_ = godotenv.Load()

	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Parse reads configuration from the process environment without validating it.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.CORS.AllowedOrigins = trimList(cfg.CORS.AllowedOrigins)
	cfg.Security.SuperAdminIDs = trimList(cfg.Security.SuperAdminIDs)
	cfg.Invites.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.Invites.PublicBaseURL), "/")
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	return cfg, nil
}

// Validate checks that all required configuration is present and valid
func (c *Config) Validate() error {
	var errors []string

	if c.Database.URL == "" {
		errors = append(errors, "DATABASE_URL is required")
	}

	if c.Invites.TokenSecret == "" {
		errors = append(errors, "INVITE_TOKEN_SECRET is required")
	} else if len(c.Invites.TokenSecret) < MinInviteSecretLength {
		errors = append(errors, fmt.Sprintf("INVITE_TOKEN_SECRET must be at least %d characters", MinInviteSecretLength))
	}
	if c.Invites.TTL <= 0 {
		errors = append(errors, "INVITE_TTL must be positive")
	}
	if u, err := url.Parse(c.Invites.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, "PUBLIC_BASE_URL must be an absolute URL")
	}
	if c.Invites.ResolveRate <= 0 || c.Invites.ResolveBurst < 1 {
		errors = append(errors, "RESOLVE_RATE_PER_SECOND and RESOLVE_BURST must be positive")
	}

	if c.Security.SessionTTL <= 0 {
		errors = append(errors, "SESSION_TTL must be positive")
	}
	if _, err := c.SuperAdmins(); err != nil {
		errors = append(errors, err.Error())
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "PORT must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		errors = append(errors, "LOG_LEVEL must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		errors = append(errors, "LOG_FORMAT must be one of: json, text")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// SuperAdmins parses SUPERADMIN_USER_IDS.
func (c *Config) SuperAdmins() ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(c.Security.SuperAdminIDs))
	for _, raw := range c.Security.SuperAdminIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("SUPERADMIN_USER_IDS contains an invalid id %q", raw)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(os.Getenv("ENV"))
	return env == "" || env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return strings.ToLower(os.Getenv("ENV")) == "production"
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
