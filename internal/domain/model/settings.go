package model

import (
	"fmt"
	"time"
)

// SaveTimerSetting controls whether accumulated elapsed time survives a restart.
type SaveTimerSetting string

const (
	SaveTimerNever  SaveTimerSetting = "never"
	SaveTimerAlways SaveTimerSetting = "always"
	SaveTimerAsk    SaveTimerSetting = "ask"
)

// ParseSaveTimerSetting converts a stored value into a SaveTimerSetting.
func ParseSaveTimerSetting(s string) (SaveTimerSetting, error) {
	switch v := SaveTimerSetting(s); v {
	case SaveTimerNever, SaveTimerAlways, SaveTimerAsk:
		return v, nil
	default:
		return "", fmt.Errorf("unknown save timer setting %q", s)
	}
}

// ShouldPersist resolves the setting into a yes/no decision. confirm is only
// consulted for SaveTimerAsk; a nil confirm is treated as "no".
func (s SaveTimerSetting) ShouldPersist(confirm func() bool) bool {
	switch s {
	case SaveTimerAlways:
		return true
	case SaveTimerAsk:
		return confirm != nil && confirm()
	default:
		return false
	}
}

// PersistedIssue is the snapshot of one timer slot written at shutdown.
// Reported is the part of Elapsed the tracker has already accepted, so a
// restart resumes reporting from where it left off.
type PersistedIssue struct {
	IssueKey string
	Elapsed  time.Duration
	Reported time.Duration
	Comment  string
}

// DefaultIssueCount is the number of timer slots on a fresh install.
const DefaultIssueCount = 3

// Settings is every persisted configuration field plus the issue snapshot list.
// Password is plaintext and exists only in memory; the settings store encrypts
// it before it reaches the backend.
type Settings struct {
	JiraBaseURL      string
	AlwaysOnTop      bool
	MinimizeToTray   bool
	PauseActiveTimer bool
	IssueCount       int
	IssueKeys        []string
	TimerEditable    bool
	SaveTimerState   SaveTimerSetting
	CurrentFilter    int
	FirstRun         bool

	Username            string
	Password            string
	RememberCredentials bool

	PersistedIssues []PersistedIssue
}

// DefaultSettings returns the settings of a fresh install.
func DefaultSettings() Settings {
	return Settings{
		IssueCount:      DefaultIssueCount,
		IssueKeys:       []string{},
		SaveTimerState:  SaveTimerAlways,
		FirstRun:        true,
		PersistedIssues: []PersistedIssue{},
	}
}

// Credential returns the remembered username and password, if any.
func (s Settings) Credential() (Credential, bool) {
	if !s.RememberCredentials || s.Username == "" || s.Password == "" {
		return Credential{}, false
	}
	return Credential{Username: s.Username, Password: s.Password}, true
}
