// Package config loads the server configuration from environment variables:
// HTTP server limits, logging, the local and remote invitation stores,
// background sync, admin credentials, rate limiting and tracing. Unset or
// unparsable variables fall back to defaults; Validate reports the rest.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig controls the Strict-Transport-Security header.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig configures the OTLP trace exporter.
type OTELConfig struct {
	Enabled     bool
	Endpoint    string // host:port of the collector
	Insecure    bool   // plaintext gRPC
	ServiceName string
	SampleRatio float64 // parent-based ratio in [0,1]
}

// Config is the full server configuration. Field comments name the
// environment variable when it differs from the field name.
type Config struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug, release or test

	LogLevel       string
	LogPretty      bool // console writer instead of JSON
	SwaggerEnabled bool
	APIBasePath    string // API_BASE_PATH, always "/"-prefixed

	LocalStoreURL string // sqlite://path, kvdb://path or a bare SQLite path
	RemoteDriver  string // postgres or sqlite
	RemoteDSN     string

	SyncInterval     time.Duration // outbox flush period
	RemoteTimeout    time.Duration // bound on each remote call
	SnapshotInterval time.Duration // remote watcher poll period

	// Admin routes are mounted only when AdminUser is set.
	AdminUser     string
	AdminPassword string

	RateRPS   float64 // RATE_RPS, tokens per second
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, fills defaults, normalizes aliases and
// validates the result. The config is returned even when invalid.
func Load() (Config, error) {
	cfg := Config{
		Port:              env("PORT", "8080", text),
		ReadTimeout:       env("READ_TIMEOUT", 15*time.Second, duration),
		ReadHeaderTimeout: env("READ_HEADER_TIMEOUT", 10*time.Second, duration),
		WriteTimeout:      env("WRITE_TIMEOUT", 20*time.Second, duration),
		IdleTimeout:       env("IDLE_TIMEOUT", 60*time.Second, duration),
		MaxHeaderBytes:    env("MAX_HEADER_BYTES", 1<<20, integer),
		GinMode:           env("GIN_MODE", "release", lower),

		LogLevel:       env("LOG_LEVEL", "info", lower),
		LogPretty:      env("LOG_PRETTY", false, boolean),
		SwaggerEnabled: env("SWAGGER_ENABLED", false, boolean),
		APIBasePath:    normalizeBasePath(env("API_BASE_PATH", "/api/v1", text)),

		LocalStoreURL: env("LOCAL_STORE_URL", "sqlite://wedding_invitation_cache.db", text),
		RemoteDriver:  env("REMOTE_DRIVER", "sqlite", lower),
		RemoteDSN:     env("REMOTE_DSN", "remote.db", text),

		SyncInterval:     env("SYNC_INTERVAL", 30*time.Second, duration),
		RemoteTimeout:    env("REMOTE_TIMEOUT", 5*time.Second, duration),
		SnapshotInterval: env("SNAPSHOT_INTERVAL", 2*time.Second, duration),

		AdminUser:     env("ADMIN_USER", "", text),
		AdminPassword: env("ADMIN_PASSWORD", "", text),

		RateRPS:   env("RATE_RPS", 5.0, decimal),
		RateBurst: env("RATE_BURST", 10, integer),

		CORS: CORSConfig{AllowedOrigins: splitCSV(env("CORS_ALLOWED_ORIGINS", "", text))},
		Security: SecurityConfig{
			EnableHSTS: env("ENABLE_HSTS", false, boolean),
			HSTSMaxAge: env("HSTS_MAX_AGE", 180*24*time.Hour, duration),
		},

		IdempotencyTTL: env("IDEMPOTENCY_TTL", 24*time.Hour, duration),

		OTEL: OTELConfig{
			Enabled:     env("OTEL_ENABLED", false, boolean),
			Endpoint:    env("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317", text),
			Insecure:    env("OTEL_EXPORTER_OTLP_INSECURE", true, boolean),
			ServiceName: env("OTEL_SERVICE_NAME", "wedding-invite-backend", text),
			SampleRatio: env("OTEL_TRACES_SAMPLER_ARG", 1.0, decimal),
		},
	}

	cfg.normalize()
	return cfg, cfg.Validate()
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	if c.RemoteDriver == "postgresql" {
		c.RemoteDriver = "postgres"
	}
}

// Validate reports every invalid setting at once. Callers that override
// fields after Load (CLI flags) run it again.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		check(false, "LOG_LEVEL must be one of: trace, debug, info, warn, error, fatal, panic")
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")

	// Stores and sync
	check(strings.TrimSpace(c.LocalStoreURL) != "", "LOCAL_STORE_URL must not be empty")
	check(c.RemoteDriver == "postgres" || c.RemoteDriver == "sqlite", "REMOTE_DRIVER must be one of: postgres, sqlite")
	check(strings.TrimSpace(c.RemoteDSN) != "", "REMOTE_DSN must not be empty")
	check(c.SyncInterval > 0 && c.RemoteTimeout > 0 && c.SnapshotInterval > 0,
		"SYNC_INTERVAL, REMOTE_TIMEOUT and SNAPSHOT_INTERVAL must be positive")
	check(c.AdminUser == "" || c.AdminPassword != "", "ADMIN_PASSWORD must be set when ADMIN_USER is set")

	// Web protection
	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// env returns the parsed value of key, or def when the variable is unset,
// empty or fails to parse. Whitespace reaches parse untouched.
func env[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func text(s string) (string, error) { return s, nil }

func lower(s string) (string, error) { return strings.ToLower(strings.TrimSpace(s)), nil }

func integer(s string) (int, error) { return strconv.Atoi(strings.TrimSpace(s)) }

func decimal(s string) (float64, error) { return strconv.ParseFloat(strings.TrimSpace(s), 64) }

func duration(s string) (time.Duration, error) { return time.ParseDuration(strings.TrimSpace(s)) }

func boolean(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

func splitCSV(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// normalizeBasePath returns p with exactly one leading slash and no trailing
// slash, or "/" when p is blank.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
