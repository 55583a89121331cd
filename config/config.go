// Package config loads the console configuration from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Backend names accepted by MEDSTORE_BACKEND.
const (
	BackendREST   = "rest"
	BackendKratos = "kratos"
)

// Config is the console configuration.
type Config struct {
	HTTPAddr    string `env:"MEDSTORE_HTTP_ADDR" envDefault:"localhost:8080"`
	APIURL      string `env:"MEDSTORE_API_URL" envDefault:"http://localhost:5000"`
	Backend     string `env:"MEDSTORE_BACKEND" envDefault:"rest"`
	KratosURL   string `env:"MEDSTORE_KRATOS_URL" envDefault:"http://127.0.0.1:4433"`
	ProviderURL string `env:"MEDSTORE_PROVIDER_URL"`

	CheckTimeout   time.Duration `env:"MEDSTORE_CHECK_TIMEOUT" envDefault:"4s"`
	RequestTimeout time.Duration `env:"MEDSTORE_REQUEST_TIMEOUT" envDefault:"10s"`

	RedisAddr     string        `env:"MEDSTORE_REDIS_ADDR"`
	RedisPassword string        `env:"MEDSTORE_REDIS_PASSWORD"`
	RedisDB       int           `env:"MEDSTORE_REDIS_DB" envDefault:"0"`
	RedisPrefix   string        `env:"MEDSTORE_REDIS_PREFIX" envDefault:"medstore"`
	CredentialTTL time.Duration `env:"MEDSTORE_CREDENTIAL_TTL" envDefault:"24h"`

	JWKSFile     string `env:"MEDSTORE_JWKS_FILE"`
	CookieName   string `env:"MEDSTORE_COOKIE_NAME" envDefault:"medstore_console"`
	CookieSecure bool   `env:"MEDSTORE_COOKIE_SECURE" envDefault:"false"`

	RoutesFile   string `env:"MEDSTORE_ROUTES_FILE"`
	OTelEndpoint string `env:"MEDSTORE_OTEL_ENDPOINT"`

	LogFormat string `env:"MEDSTORE_LOG_FORMAT" envDefault:"text"`
	LogLevel  string `env:"MEDSTORE_LOG_LEVEL" envDefault:"info"`
}

// Load parses the process environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFrom parses vars instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("MEDSTORE_HTTP_ADDR is required")
	}
	if err := validateURL("MEDSTORE_API_URL", c.APIURL); err != nil {
		return err
	}
	switch c.Backend {
	case BackendREST:
	case BackendKratos:
		if err := validateURL("MEDSTORE_KRATOS_URL", c.KratosURL); err != nil {
			return err
		}
	default:
		return fmt.Errorf("MEDSTORE_BACKEND must be %q or %q, got %q", BackendREST, BackendKratos, c.Backend)
	}
	if c.ProviderURL != "" {
		if err := validateURL("MEDSTORE_PROVIDER_URL", c.ProviderURL); err != nil {
			return err
		}
	}
	if c.CheckTimeout <= 0 || c.RequestTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.CredentialTTL < 0 {
		return fmt.Errorf("MEDSTORE_CREDENTIAL_TTL must not be negative")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("MEDSTORE_COOKIE_NAME is required")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("MEDSTORE_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// ProviderLoginURL is the full-page redirect target of the provider button.
// It defaults to the API's Google login endpoint.
func (c Config) ProviderLoginURL() string {
	if c.ProviderURL != "" {
		return c.ProviderURL
	}
	return strings.TrimRight(c.APIURL, "/") + "/login/google"
}

// Logger builds the process logger described by LogFormat and LogLevel.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("MEDSTORE_LOG_LEVEL: %w", err)
	}
	return level, nil
}

func validateURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw)
	}
	return nil
}
