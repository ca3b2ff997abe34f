package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every STOPWATCH_ env var that Load() reads.
var allConfigKeys = []string{
	"STOPWATCH_LISTEN_ADDR",
	"STOPWATCH_DB_PATH",
	"STOPWATCH_SETTINGS_BACKEND",
	"STOPWATCH_SETTINGS_FILE",
	"STOPWATCH_TICK_INTERVAL",
	"STOPWATCH_REPORT_THRESHOLD",
	"STOPWATCH_REPORT_CONCURRENCY",
	"STOPWATCH_SECRET_KEY",
}

// isolateConfigEnv saves and unsets all STOPWATCH_ env vars so tests don't
// inherit values from the host environment.
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("STOPWATCH_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("STOPWATCH_DB_PATH", "/tmp/test.db")
	t.Setenv("STOPWATCH_SETTINGS_BACKEND", "yaml")
	t.Setenv("STOPWATCH_SETTINGS_FILE", "/tmp/settings.yaml")
	t.Setenv("STOPWATCH_TICK_INTERVAL", "2s")
	t.Setenv("STOPWATCH_REPORT_THRESHOLD", "10m")
	t.Setenv("STOPWATCH_REPORT_CONCURRENCY", "8")
	t.Setenv("STOPWATCH_SECRET_KEY", "abcd")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, BackendYAML, cfg.SettingsBackend)
	assert.Equal(t, "/tmp/settings.yaml", cfg.SettingsFile)
	assert.Equal(t, 2*time.Second, cfg.TickInterval)
	assert.Equal(t, 10*time.Minute, cfg.ReportThreshold)
	assert.Equal(t, 8, cfg.ReportConcurrency)
	assert.True(t, cfg.HasSecretKey())
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7070", cfg.ListenAddr)
	assert.Equal(t, "stopwatch.db", cfg.DBPath)
	assert.Equal(t, BackendSQLite, cfg.SettingsBackend)
	assert.Empty(t, cfg.SettingsFile)
	assert.Equal(t, 5*time.Second, cfg.TickInterval)
	assert.Equal(t, time.Minute, cfg.ReportThreshold)
	assert.Equal(t, 4, cfg.ReportConcurrency)
	assert.False(t, cfg.HasSecretKey())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown backend", key: "STOPWATCH_SETTINGS_BACKEND", value: "registry"},
		{name: "bad tick interval", key: "STOPWATCH_TICK_INTERVAL", value: "often"},
		{name: "tick interval too short", key: "STOPWATCH_TICK_INTERVAL", value: "1ms"},
		{name: "bad report threshold", key: "STOPWATCH_REPORT_THRESHOLD", value: "soon"},
		{name: "report threshold too short", key: "STOPWATCH_REPORT_THRESHOLD", value: "500ms"},
		{name: "zero concurrency", key: "STOPWATCH_REPORT_CONCURRENCY", value: "0"},
		{name: "non-numeric concurrency", key: "STOPWATCH_REPORT_CONCURRENCY", value: "four"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()

			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
