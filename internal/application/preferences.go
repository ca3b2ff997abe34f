package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ericfisherdev/jirastopwatch/internal/domain/model"
)

// Preferences holds the settings loaded at startup and edited at runtime.
// It is the single in-memory copy shared by the HTTP adapter, the session
// service and the shutdown path.
type Preferences struct {
	mu       sync.RWMutex
	settings model.Settings
	store    *SettingsStore
	logger   *slog.Logger
}

// NewPreferences creates a Preferences seeded with initial.
func NewPreferences(store *SettingsStore, initial model.Settings, logger *slog.Logger) *Preferences {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preferences{settings: cloneSettings(initial), store: store, logger: logger}
}

// Get returns a copy of the current settings.
func (p *Preferences) Get() model.Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneSettings(p.settings)
}

// Update applies fn to the current settings and returns the result.
func (p *Preferences) Update(fn func(*model.Settings)) model.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.settings)
	return cloneSettings(p.settings)
}

// Persist merges the timer snapshot into the settings and saves them.
// SaveTimerState decides whether elapsed time is kept; issue keys and
// comments always are. confirm answers the SaveTimerAsk question.
func (p *Preferences) Persist(ctx context.Context, issues []model.PersistedIssue, confirm func() bool) error {
	settings := p.Update(func(s *model.Settings) {
		keepElapsed := s.SaveTimerState.ShouldPersist(confirm)

		persisted := make([]model.PersistedIssue, 0, len(issues))
		keys := make([]string, 0, len(issues))
		for _, issue := range issues {
			if !keepElapsed {
				issue.Elapsed = 0
				issue.Reported = 0
			}
			persisted = append(persisted, issue)
			keys = append(keys, issue.IssueKey)
		}

		s.PersistedIssues = persisted
		s.IssueKeys = keys
		if len(issues) > 0 {
			s.IssueCount = len(issues)
		}
		s.FirstRun = false
	})

	if err := p.store.Save(ctx, settings); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	p.logger.Info("settings saved", "issues", len(settings.PersistedIssues), "save_timer_state", settings.SaveTimerState)
	return nil
}

// RestorableIssues returns the slots to recreate at startup. Persisted
// snapshots win; older installs that only stored issue keys get one paused,
// empty slot per key.
func RestorableIssues(settings model.Settings) []model.PersistedIssue {
	if len(settings.PersistedIssues) > 0 {
		return slices.Clone(settings.PersistedIssues)
	}
	issues := make([]model.PersistedIssue, 0, len(settings.IssueKeys))
	for _, key := range settings.IssueKeys {
		issues = append(issues, model.PersistedIssue{IssueKey: key})
	}
	return issues
}

func cloneSettings(s model.Settings) model.Settings {
	s.IssueKeys = slices.Clone(s.IssueKeys)
	s.PersistedIssues = slices.Clone(s.PersistedIssues)
	if s.IssueKeys == nil {
		s.IssueKeys = []string{}
	}
	if s.PersistedIssues == nil {
		s.PersistedIssues = []model.PersistedIssue{}
	}
	return s
}
