package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/ericfisherdev/jirastopwatch/internal/domain/model"
	"github.com/ericfisherdev/jirastopwatch/internal/domain/port/driven"
)

// ErrCredentialsNotRestored is returned by SettingsStore.Load when the stored
// password could not be decrypted. The returned settings are still usable,
// with an empty password.
var ErrCredentialsNotRestored = errors.New("credentials could not be restored")

// Settings keys in the backing key/value store.
const (
	keyJiraBaseURL         = "jira_base_url"
	keyAlwaysOnTop         = "always_on_top"
	keyMinimizeToTray      = "minimize_to_tray"
	keyPauseActiveTimer    = "pause_active_timer"
	keyIssueCount          = "issue_count"
	keyIssueKeys           = "issue_keys"
	keyTimerEditable       = "timer_editable"
	keySaveTimerState      = "save_timer_state"
	keyCurrentFilter       = "current_filter"
	keyFirstRun            = "first_run"
	keyUsername            = "username"
	keyPassword            = "password"
	keyRememberCredentials = "remember_credentials"
	keyPersistedIssues     = "persisted_issues"
)

// SettingsStore maps model.Settings to and from a flat key/value backend.
// Passwords go through the credential vault; the issue list through the
// snapshot codec.
type SettingsStore struct {
	backend driven.SettingsBackend
	vault   driven.CredentialVault
	logger  *slog.Logger
}

// NewSettingsStore creates a SettingsStore.
func NewSettingsStore(backend driven.SettingsBackend, vault driven.CredentialVault, logger *slog.Logger) *SettingsStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsStore{backend: backend, vault: vault, logger: logger}
}

// Load reads every persisted field. The returned settings are always usable:
// missing or unparseable fields fall back to defaults, and a corrupt issue
// list becomes an empty list. A non-nil error means either the backend could
// not be read (defaults returned) or the password could not be decrypted
// (wraps ErrCredentialsNotRestored, password empty).
func (s *SettingsStore) Load(ctx context.Context) (model.Settings, error) {
	settings := model.DefaultSettings()

	values, err := s.backend.Load(ctx)
	if err != nil {
		return settings, fmt.Errorf("load settings: %w", err)
	}

	settings.JiraBaseURL = values[keyJiraBaseURL]
	settings.Username = values[keyUsername]
	settings.AlwaysOnTop = s.boolValue(values, keyAlwaysOnTop, settings.AlwaysOnTop)
	settings.MinimizeToTray = s.boolValue(values, keyMinimizeToTray, settings.MinimizeToTray)
	settings.PauseActiveTimer = s.boolValue(values, keyPauseActiveTimer, settings.PauseActiveTimer)
	settings.TimerEditable = s.boolValue(values, keyTimerEditable, settings.TimerEditable)
	settings.FirstRun = s.boolValue(values, keyFirstRun, settings.FirstRun)
	settings.RememberCredentials = s.boolValue(values, keyRememberCredentials, settings.RememberCredentials)
	settings.CurrentFilter = s.intValue(values, keyCurrentFilter, settings.CurrentFilter)

	if count := s.intValue(values, keyIssueCount, settings.IssueCount); count >= 1 {
		settings.IssueCount = count
	} else {
		s.logger.Warn("ignoring stored issue count", "value", count)
	}

	if raw, ok := values[keySaveTimerState]; ok {
		if v, err := model.ParseSaveTimerSetting(raw); err == nil {
			settings.SaveTimerState = v
		} else {
			s.logger.Warn("ignoring stored setting", "key", keySaveTimerState, "error", err)
		}
	}

	if raw := values[keyIssueKeys]; raw != "" {
		var keys []string
		if err := json.Unmarshal([]byte(raw), &keys); err != nil {
			s.logger.Warn("ignoring stored issue keys", "error", err)
		} else if keys != nil {
			settings.IssueKeys = keys
		}
	}

	issues, err := DecodeIssues(values[keyPersistedIssues])
	if err != nil {
		s.logger.Warn("persisted issues unreadable, starting with an empty list", "error", err)
		issues = []model.PersistedIssue{}
	}
	settings.PersistedIssues = issues

	// An empty stored password means "no credential"; never hand it to the vault.
	if stored := values[keyPassword]; stored != "" {
		password, err := s.vault.Decrypt(stored)
		if err != nil {
			return settings, fmt.Errorf("%w: %w", ErrCredentialsNotRestored, err)
		}
		settings.Password = password
	}

	return settings, nil
}

// Save writes every field of settings. The password is encrypted only when
// non-empty and remembered; otherwise an empty password is written, purging
// any previously stored ciphertext. If encryption fails the remaining fields
// are still saved (with an empty password) and the error is returned.
func (s *SettingsStore) Save(ctx context.Context, settings model.Settings) error {
	issueKeys := settings.IssueKeys
	if issueKeys == nil {
		issueKeys = []string{}
	}
	encodedKeys, err := json.Marshal(issueKeys)
	if err != nil {
		return fmt.Errorf("encode issue keys: %w", err)
	}

	values := map[string]string{
		keyJiraBaseURL:         settings.JiraBaseURL,
		keyAlwaysOnTop:         strconv.FormatBool(settings.AlwaysOnTop),
		keyMinimizeToTray:      strconv.FormatBool(settings.MinimizeToTray),
		keyPauseActiveTimer:    strconv.FormatBool(settings.PauseActiveTimer),
		keyIssueCount:          strconv.Itoa(settings.IssueCount),
		keyIssueKeys:           string(encodedKeys),
		keyTimerEditable:       strconv.FormatBool(settings.TimerEditable),
		keySaveTimerState:      string(settings.SaveTimerState),
		keyCurrentFilter:       strconv.Itoa(settings.CurrentFilter),
		keyFirstRun:            strconv.FormatBool(settings.FirstRun),
		keyUsername:            settings.Username,
		keyPassword:            "",
		keyRememberCredentials: strconv.FormatBool(settings.RememberCredentials),
		keyPersistedIssues:     EncodeIssues(settings.PersistedIssues),
	}

	var cryptoErr error
	if settings.RememberCredentials && settings.Password != "" {
		encrypted, err := s.vault.Encrypt(settings.Password)
		if err != nil {
			cryptoErr = fmt.Errorf("encrypt password: %w", err)
			s.logger.Error("password not saved", "error", err)
		} else {
			values[keyPassword] = encrypted
		}
	}

	if err := s.backend.Save(ctx, values); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return cryptoErr
}

func (s *SettingsStore) boolValue(values map[string]string, key string, fallback bool) bool {
	raw, ok := values[key]
	if !ok {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		s.logger.Warn("ignoring stored setting", "key", key, "value", raw)
		return fallback
	}
	return v
}

func (s *SettingsStore) intValue(values map[string]string, key string, fallback int) int {
	raw, ok := values[key]
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		s.logger.Warn("ignoring stored setting", "key", key, "value", raw)
		return fallback
	}
	return v
}
