package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Config is built once at process start and handed to constructors
// explicitly. The session expiry is the one runtime-mutable knob: services
// read it through the getter on every call so administrative changes apply
// without a restart.
type Config struct {
	Profile string

	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	DatabaseDriver string
	DatabaseDSN    string

	SessionCookieSecure    bool
	SessionCleanupInterval time.Duration
	BcryptCost             int

	APIRateLimitRPM  int
	AuthRateLimitRPM int
	RedisAddr        string

	BootstrapDefaultAdmin bool

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
	EnableOTelHTTP            bool

	sessionExpireMinutes atomic.Int64
}

// SessionExpireMinutes returns the current session lifetime in minutes.
// Zero is the documented sentinel for sessions that never expire.
func (c *Config) SessionExpireMinutes() int {
	return int(c.sessionExpireMinutes.Load())
}

// SetSessionExpireMinutes updates the session lifetime at runtime.
func (c *Config) SetSessionExpireMinutes(minutes int) {
	if minutes < 0 {
		minutes = 0
	}
	c.sessionExpireMinutes.Store(int64(minutes))
}

// Load builds the configuration from the environment, validates it, and
// records a config validation event either way.
func Load(ctx context.Context) (*Config, error) {
	cfg, err := load()
	profile := "unknown"
	if cfg != nil {
		profile = cfg.Profile
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	recordConfigValidationEvent(ctx, profile, outcome, classifyConfigLoadError(err))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() (*Config, error) {
	cfg := &Config{
		Profile:                  envString("SLIDESMITH_PROFILE", "dev"),
		ListenAddr:               envString("SLIDESMITH_LISTEN_ADDR", ":8080"),
		DatabaseDriver:           envString("SLIDESMITH_DB_DRIVER", "sqlite"),
		DatabaseDSN:              envString("SLIDESMITH_DB_DSN", "file:slidesmith.db?_pragma=busy_timeout(5000)"),
		RedisAddr:                envString("SLIDESMITH_REDIS_ADDR", ""),
		OTELServiceName:          envString("OTEL_SERVICE_NAME", "slidesmith"),
		OTELEnvironment:          envString("OTEL_ENVIRONMENT", "dev"),
		OTELExporterOTLPEndpoint: envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}

	var err error
	if cfg.ReadHeaderTimeout, err = envDuration("SLIDESMITH_READ_HEADER_TIMEOUT", 5*time.Second); err != nil {
		return cfg, err
	}
	if cfg.ShutdownTimeout, err = envDuration("SLIDESMITH_SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return cfg, err
	}
	if cfg.SessionCleanupInterval, err = envDuration("SLIDESMITH_SESSION_CLEANUP_INTERVAL", time.Hour); err != nil {
		return cfg, err
	}
	if cfg.OTELMetricsExportInterval, err = envDuration("OTEL_METRICS_EXPORT_INTERVAL", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.BcryptCost, err = envInt("SLIDESMITH_BCRYPT_COST", 12); err != nil {
		return cfg, err
	}
	if cfg.APIRateLimitRPM, err = envInt("SLIDESMITH_API_RATE_LIMIT_RPM", 600); err != nil {
		return cfg, err
	}
	if cfg.AuthRateLimitRPM, err = envInt("SLIDESMITH_AUTH_RATE_LIMIT_RPM", 30); err != nil {
		return cfg, err
	}
	if cfg.SessionCookieSecure, err = envBool("SLIDESMITH_SESSION_COOKIE_SECURE", false); err != nil {
		return cfg, err
	}
	if cfg.BootstrapDefaultAdmin, err = envBool("SLIDESMITH_BOOTSTRAP_DEFAULT_ADMIN", true); err != nil {
		return cfg, err
	}
	if cfg.OTELMetricsEnabled, err = envBool("OTEL_METRICS_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELTracingEnabled, err = envBool("OTEL_TRACING_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELLogsEnabled, err = envBool("OTEL_LOGS_ENABLED", false); err != nil {
		return cfg, err
	}
	if cfg.OTELExporterOTLPInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return cfg, err
	}
	cfg.EnableOTelHTTP = cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled

	expireMinutes, err := envInt("SLIDESMITH_SESSION_EXPIRE_MINUTES", 1440)
	if err != nil {
		return cfg, err
	}
	cfg.SetSessionExpireMinutes(expireMinutes)

	if err := cfg.validate(expireMinutes); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) validate(expireMinutes int) error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("validate config: SLIDESMITH_DB_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("validate config: SLIDESMITH_DB_DSN is required")
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("validate config: SLIDESMITH_LISTEN_ADDR is required")
	}
	if expireMinutes < 0 {
		return fmt.Errorf("validate config: SLIDESMITH_SESSION_EXPIRE_MINUTES must be >= 0")
	}
	if c.APIRateLimitRPM <= 0 || c.AuthRateLimitRPM <= 0 {
		return fmt.Errorf("validate config: rate limit RPM values must be positive")
	}
	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
