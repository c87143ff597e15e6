package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LEDGER_DB_PATH", "LISTEN_ADDR", "LOG_LEVEL", "ENV",
		"ENVIRONMENTS", "ACCESS_LEVEL_ORDER", "GRACE_PERIOD_RUNS",
		"RUN_SCHEDULE", "ADAPTER_FIXTURES", "JWT_SECRET",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "accessledger.sqlite", cfg.LedgerDBPath)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"PROD"}, cfg.Environments)
	assert.Equal(t, []string{"none", "read", "write", "admin"}, cfg.AccessLevels)
	assert.Equal(t, 2, cfg.GracePeriodRuns)
	assert.Equal(t, 100.0, cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEDGER_DB_PATH", "/tmp/ledger.db")
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("ENV", "production")
	t.Setenv("ENVIRONMENTS", "PROD, STAGING ,DEV")
	t.Setenv("ACCESS_LEVEL_ORDER", "viewer,editor,owner")
	t.Setenv("GRACE_PERIOD_RUNS", "4")
	t.Setenv("RUN_SCHEDULE", "0 2 * * *")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("RATE_LIMIT_RPS", "10.5")
	t.Setenv("RATE_LIMIT_BURST", "20")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/ledger.db", cfg.LedgerDBPath)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"PROD", "STAGING", "DEV"}, cfg.Environments)
	assert.Equal(t, []string{"viewer", "editor", "owner"}, cfg.AccessLevels)
	assert.Equal(t, 4, cfg.GracePeriodRuns)
	assert.Equal(t, "0 2 * * *", cfg.RunSchedule)
	assert.Equal(t, 10.5, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_MissingJWTSecretWarns(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "JWT_SECRET")
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"ERROR":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, (&Config{LogLevel: in}).SlogLevel(), "level %q", in)
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a"}, splitList("a"))
	assert.Equal(t, []string{"a", "b"}, splitList(" a , b ,, "))
}
