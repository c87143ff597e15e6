// Package config handles application configuration and environment loading.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds the configuration for the reconciliation service and its
// HTTP API.
type Config struct {
	LedgerDBPath string // path to the SQLite ledger store
	ListenAddr   string // HTTP listen address (default ":8080")
	LogLevel     string // log level: debug, info, warn, error (default "info")
	Env          string // environment: "development" (default) or "production"

	// Reconciliation
	Environments    []string // deployment environments to reconcile (default ["PROD"])
	AccessLevels    []string // access-level total order, least to most privileged
	GracePeriodRuns int      // consecutive missed runs before retirement (default 2)
	RunSchedule     string   // cron expression for scheduled runs; empty disables
	AdapterFixtures []string // YAML fixture paths for the static adapters

	// Auth
	JWTSecret string // HS256 shared secret for bearer-token auth

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LedgerDBPath: os.Getenv("LEDGER_DB_PATH"),
		ListenAddr:   os.Getenv("LISTEN_ADDR"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		Env:          os.Getenv("ENV"),
		RunSchedule:  os.Getenv("RUN_SCHEDULE"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
	}

	cfg.Environments = splitList(os.Getenv("ENVIRONMENTS"))
	cfg.AccessLevels = splitList(os.Getenv("ACCESS_LEVEL_ORDER"))
	cfg.AdapterFixtures = splitList(os.Getenv("ADAPTER_FIXTURES"))
	cfg.CORSAllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	if v := os.Getenv("GRACE_PERIOD_RUNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GracePeriodRuns = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	// Defaults
	if cfg.LedgerDBPath == "" {
		cfg.LedgerDBPath = "accessledger.sqlite"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.Environments) == 0 {
		cfg.Environments = []string{"PROD"}
	}
	if len(cfg.AccessLevels) == 0 {
		cfg.AccessLevels = []string{"none", "read", "write", "admin"}
	}
	if cfg.GracePeriodRuns <= 0 {
		cfg.GracePeriodRuns = 2
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.JWTSecret == "" {
		cfg.Warnings = append(cfg.Warnings, "JWT_SECRET not set; bearer-token auth is disabled and only API keys will authenticate")
	}

	return cfg, nil
}

// splitList splits a comma-separated env value into trimmed, non-empty parts.
func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
