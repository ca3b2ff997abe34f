package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/jirastopwatch/internal/domain/model"
	"github.com/ericfisherdev/jirastopwatch/internal/domain/port/driven"
)

// ErrNoCredentials is returned by SessionService.Restore when there is
// nothing remembered to log in with.
var ErrNoCredentials = errors.New("no remembered credentials")

// TrackerFactory builds an unauthenticated tracker client for baseURL.
type TrackerFactory func(baseURL string) (driven.TrackerClient, error)

// SessionService logs the user in to the tracker and keeps the
// TrackerClientProvider and Preferences in sync with the outcome.
type SessionService struct {
	factory  TrackerFactory
	trackers *TrackerClientProvider
	prefs    *Preferences
	logger   *slog.Logger
}

// NewSessionService creates a SessionService.
func NewSessionService(factory TrackerFactory, trackers *TrackerClientProvider, prefs *Preferences, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{factory: factory, trackers: trackers, prefs: prefs, logger: logger}
}

// Login authenticates against the tracker at baseURL. On success the new
// client replaces the current one. When remember is false the in-memory
// username and password are cleared, so the next save purges any stored
// password; otherwise both are kept for the next save.
func (s *SessionService) Login(ctx context.Context, baseURL, username, password string, remember bool) error {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = s.prefs.Get().JiraBaseURL
	}

	client, err := s.authenticate(ctx, baseURL, username, password)
	if err != nil {
		return err
	}

	s.prefs.Update(func(settings *model.Settings) {
		settings.JiraBaseURL = baseURL
		settings.RememberCredentials = remember
		if remember {
			settings.Username = username
			settings.Password = password
		} else {
			settings.Username = ""
			settings.Password = ""
		}
	})
	s.trackers.Replace(client, username)
	s.logger.Info("logged in to tracker", "username", username, "base_url", baseURL, "remember", remember)
	return nil
}

// Restore logs in with the credentials loaded at startup. It returns
// ErrNoCredentials when none were remembered.
func (s *SessionService) Restore(ctx context.Context) error {
	settings := s.prefs.Get()
	cred, ok := settings.Credential()
	if !ok || settings.JiraBaseURL == "" {
		return ErrNoCredentials
	}

	client, err := s.authenticate(ctx, settings.JiraBaseURL, cred.Username, cred.Password)
	if err != nil {
		return err
	}
	s.trackers.Replace(client, cred.Username)
	s.logger.Info("restored tracker session", "username", cred.Username)
	return nil
}

// Logout drops the current tracker client and forgets the password.
func (s *SessionService) Logout() {
	s.trackers.Clear()
	s.prefs.Update(func(settings *model.Settings) {
		settings.Password = ""
	})
	s.logger.Info("logged out of tracker")
}

// Username returns the user the current client is authenticated as, or ""
// when nobody is logged in.
func (s *SessionService) Username() string {
	if !s.trackers.HasClient() {
		return ""
	}
	return s.trackers.Username()
}

func (s *SessionService) authenticate(ctx context.Context, baseURL, username, password string) (driven.TrackerClient, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required: %w", driven.ErrAuth)
	}
	client, err := s.factory(baseURL)
	if err != nil {
		return nil, fmt.Errorf("create tracker client: %w", err)
	}
	if _, err := client.Authenticate(ctx, username, password); err != nil {
		s.logger.Warn("tracker authentication failed", "username", username, "error", err)
		return nil, err
	}
	return client, nil
}
