// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Settings backends.
const (
	BackendSQLite = "sqlite"
	BackendYAML   = "yaml"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr        string
	DBPath            string
	SettingsBackend   string
	SettingsFile      string
	TickInterval      time.Duration
	ReportThreshold   time.Duration
	ReportConcurrency int
	SecretKey         string
}

// HasSecretKey returns true when an explicit vault key was configured. The
// composition root otherwise derives the key from the machine and user.
func (c *Config) HasSecretKey() bool {
	return c.SecretKey != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// Every variable is optional: STOPWATCH_LISTEN_ADDR (127.0.0.1:7070),
// STOPWATCH_DB_PATH (stopwatch.db), STOPWATCH_SETTINGS_BACKEND (sqlite|yaml),
// STOPWATCH_SETTINGS_FILE (empty means the per-user config directory),
// STOPWATCH_TICK_INTERVAL (5s), STOPWATCH_REPORT_THRESHOLD (1m),
// STOPWATCH_REPORT_CONCURRENCY (4) and STOPWATCH_SECRET_KEY (64 hex chars).
func Load() (*Config, error) {
	listenAddr := "127.0.0.1:7070"
	if v, ok := os.LookupEnv("STOPWATCH_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "stopwatch.db"
	if v, ok := os.LookupEnv("STOPWATCH_DB_PATH"); ok {
		dbPath = v
	}

	backend := BackendSQLite
	if v, ok := os.LookupEnv("STOPWATCH_SETTINGS_BACKEND"); ok && v != "" {
		switch v {
		case BackendSQLite, BackendYAML:
			backend = v
		default:
			return nil, fmt.Errorf("STOPWATCH_SETTINGS_BACKEND must be %q or %q, got %q", BackendSQLite, BackendYAML, v)
		}
	}

	tickInterval, err := durationEnv("STOPWATCH_TICK_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}
	if tickInterval < 100*time.Millisecond {
		return nil, fmt.Errorf("STOPWATCH_TICK_INTERVAL %s is too short, minimum is 100ms", tickInterval)
	}

	reportThreshold, err := durationEnv("STOPWATCH_REPORT_THRESHOLD", time.Minute)
	if err != nil {
		return nil, err
	}
	if reportThreshold < time.Second {
		return nil, fmt.Errorf("STOPWATCH_REPORT_THRESHOLD %s is too short, minimum is 1s", reportThreshold)
	}

	concurrency := 4
	if v, ok := os.LookupEnv("STOPWATCH_REPORT_CONCURRENCY"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("STOPWATCH_REPORT_CONCURRENCY must be a positive integer, got %q", v)
		}
		concurrency = parsed
	}

	return &Config{
		ListenAddr:        listenAddr,
		DBPath:            dbPath,
		SettingsBackend:   backend,
		SettingsFile:      os.Getenv("STOPWATCH_SETTINGS_FILE"),
		TickInterval:      tickInterval,
		ReportThreshold:   reportThreshold,
		ReportConcurrency: concurrency,
		SecretKey:         os.Getenv("STOPWATCH_SECRET_KEY"),
	}, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	return parsed, nil
}
