package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for hosts without a trust store

	jiraadapter "github.com/ericfisherdev/jirastopwatch/internal/adapter/driven/jira"
	sqliteadapter "github.com/ericfisherdev/jirastopwatch/internal/adapter/driven/sqlite"
	vaultadapter "github.com/ericfisherdev/jirastopwatch/internal/adapter/driven/vault"
	"github.com/ericfisherdev/jirastopwatch/internal/adapter/driven/yamlfile"
	httphandler "github.com/ericfisherdev/jirastopwatch/internal/adapter/driving/http"
	"github.com/ericfisherdev/jirastopwatch/internal/application"
	"github.com/ericfisherdev/jirastopwatch/internal/config"
	"github.com/ericfisherdev/jirastopwatch/internal/domain/port/driven"
	"github.com/ericfisherdev/jirastopwatch/internal/platform"
)

const appName = "jirastopwatch"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"settings_backend", cfg.SettingsBackend,
		"tick_interval", cfg.TickInterval,
		"report_threshold", cfg.ReportThreshold,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the settings backend, holding the single-instance lock for it.
	backend, scope, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	lock, err := platform.AcquireInstanceLock(appName, scope)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	// 4. Credential vault: explicit key or machine/user derived.
	keySource := vaultadapter.MachineKey(appName)
	if cfg.HasSecretKey() {
		key, err := vaultadapter.ParseHexKey(cfg.SecretKey)
		if err != nil {
			return fmt.Errorf("STOPWATCH_SECRET_KEY: %w", err)
		}
		keySource = vaultadapter.StaticKey(key)
	}
	vault := vaultadapter.New(keySource)

	// 5. Load settings. A credential that cannot be decrypted is logged and
	// the app continues logged out.
	store := application.NewSettingsStore(backend, vault, slog.Default())
	settings, err := store.Load(ctx)
	switch {
	case errors.Is(err, application.ErrCredentialsNotRestored):
		slog.Warn("stored credentials could not be restored, log in again", "error", err)
	case err != nil:
		return err
	}
	prefs := application.NewPreferences(store, settings, slog.Default())

	// 6. Tracker session, restored from remembered credentials if possible.
	trackers := application.NewTrackerClientProvider(nil, "")
	factory := func(baseURL string) (driven.TrackerClient, error) {
		client, err := jiraadapter.NewClient(baseURL)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	session := application.NewSessionService(factory, trackers, prefs, slog.Default())
	if err := session.Restore(ctx); err != nil {
		if errors.Is(err, application.ErrNoCredentials) {
			slog.Info("no remembered credentials, reporting disabled until login")
		} else {
			slog.Warn("could not restore tracker session", "error", err)
		}
	}

	// 7. Timer coordinator, seeded from the persisted snapshot.
	coord := application.NewTimerCoordinator(trackers, application.CoordinatorConfig{
		TickInterval:      cfg.TickInterval,
		ReportThreshold:   cfg.ReportThreshold,
		ReportConcurrency: cfg.ReportConcurrency,
		TimerEditable:     settings.TimerEditable,
	}, slog.Default())

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		coord.Run(loopCtx)
		close(loopDone)
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	if err := coord.Import(ctx, application.RestorableIssues(settings)); err != nil {
		return fmt.Errorf("import timers: %w", err)
	}
	if _, err := coord.Resize(ctx, settings.IssueCount); err != nil {
		return fmt.Errorf("size timers: %w", err)
	}

	// 8. HTTP driving adapter.
	apiHandler := httphandler.NewHandler(coord, prefs, session, trackers, slog.Default())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	slog.Info("jirastopwatch started",
		"listen_addr", cfg.ListenAddr,
		"timers", settings.IssueCount,
		"first_run", settings.FirstRun,
	)

	// 9. Wait for shutdown signal or a server failure.
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		slog.Error("http server error", "error", err)
	}
	slog.Info("shutting down")

	// 10. Graceful shutdown: stop taking commands, pause timers and wait for
	// in-flight reports, then persist.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	issues, err := coord.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("drain timers: %w", err)
	}
	if err := coord.WaitReports(shutdownCtx); err != nil {
		slog.Warn("pending tracker reports abandoned", "error", err)
	}

	// There is no UI at shutdown to ask; "ask" keeps the elapsed time.
	if err := prefs.Persist(shutdownCtx, issues, func() bool { return true }); err != nil {
		return err
	}

	slog.Info("shutdown complete")
	return nil
}

// openBackend returns the configured settings backend, the scope string used
// for the instance lock, and a close function.
func openBackend(ctx context.Context, cfg *config.Config) (driven.SettingsBackend, string, func(), error) {
	if cfg.SettingsBackend == config.BackendYAML {
		path := cfg.SettingsFile
		if path == "" {
			var err error
			path, err = yamlfile.DefaultPath(appName)
			if err != nil {
				return nil, "", nil, err
			}
		}
		slog.Info("settings file", "path", path)
		return yamlfile.New(path), path, func() {}, nil
	}

	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, "", nil, err
	}
	closeDB := func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}
	slog.Info("database opened", "path", cfg.DBPath)

	version, err := sqliteadapter.MigrateAndReport(db.Writer)
	if err != nil {
		closeDB()
		return nil, "", nil, err
	}
	slog.Info("migrations complete", "schema_version", version)

	return sqliteadapter.NewSettingsRepo(db), db.Path(), closeDB, nil
}
