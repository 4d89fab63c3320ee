package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	assert.Equal(t, "sqlite://syncq.db", cfg.Store.DSN)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, 50, cfg.Queue.ClaimLimit)
	assert.Equal(t, 100, cfg.Queue.BatchCap)
	assert.Equal(t, 7*24*time.Hour, time.Duration(cfg.Retention.Window))
	assert.Equal(t, 24*time.Hour, time.Duration(cfg.Retention.Interval))
	assert.Equal(t, 1000, cfg.Retention.Limit)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncq.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
store: dsn: "postgres://syncq@localhost/syncq?sslmode=disable"
queue: {
	maxRetries: 0
	claimLimit: 10
}
retention: window: "72h"
http: jwtSecret: "s3cret"
log: {level: "debug", format: "json"}
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://syncq@localhost/syncq?sslmode=disable", cfg.Store.DSN)
	assert.Equal(t, 0, cfg.Queue.MaxRetries)
	assert.Equal(t, 10, cfg.Queue.ClaimLimit)
	assert.Equal(t, 100, cfg.Queue.BatchCap, "untouched fields keep defaults")
	assert.Equal(t, 72*time.Hour, time.Duration(cfg.Retention.Window))
	assert.Equal(t, 24*time.Hour, time.Duration(cfg.Retention.Interval))
	assert.Equal(t, "s3cret", cfg.HTTP.JWTSecret)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
}

func TestParse_EmptyFile(t *testing.T) {
	cfg, err := Parse("empty.cue", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax error", `queue: {`},
		{"unknown level", `log: level: "verbose"`},
		{"unknown format", `log: format: "xml"`},
		{"negative retries", `queue: maxRetries: -1`},
		{"zero claim limit", `queue: claimLimit: 0`},
		{"fractional retries", `queue: maxRetries: 1.5`},
		{"bad duration", `retention: window: "seven days"`},
		{"zero duration", `retention: interval: "0s"`},
		{"empty dsn", `store: dsn: ""`},
		{"unknown block", `cache: size: 10`},
		{"unknown field", `queue: retries: 3`},
		{"non-concrete", `queue: maxRetries: int`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.cue", []byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestConfig_ServiceOptions(t *testing.T) {
	cfg := Default()
	cfg.Queue.MaxRetries = 0
	cfg.Retention.Limit = 5

	opts := cfg.ServiceOptions()
	require.NotNil(t, opts.MaxRetries)
	assert.Equal(t, 0, *opts.MaxRetries)
	assert.Equal(t, 50, opts.ClaimLimit)
	assert.Equal(t, 100, opts.BatchCap)
	assert.Equal(t, 7*24*time.Hour, opts.RetentionWindow)
	assert.Equal(t, 24*time.Hour, opts.SweepInterval)
	assert.Equal(t, 5, opts.SweepLimit)
}

func TestLogConfig_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "info"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "WARN"}.SlogLevel())
	assert.Equal(t, slog.LevelError, LogConfig{Level: "error"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{}.SlogLevel())
}

func TestDuration_MarshalJSON(t *testing.T) {
	data, err := Duration(90 * time.Minute).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1h30m0s"`, string(data))
}
