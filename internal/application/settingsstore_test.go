package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/jirastopwatch/internal/application"
	"github.com/ericfisherdev/jirastopwatch/internal/domain/model"
	"github.com/ericfisherdev/jirastopwatch/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockBackend struct {
	values  map[string]string
	loadErr error
	saveErr error
	saves   int
}

func (m *mockBackend) Load(_ context.Context) (map[string]string, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *mockBackend) Save(_ context.Context, values map[string]string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.values = make(map[string]string, len(values))
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

// mockVault "encrypts" by prefixing, so ciphertext never equals plaintext.
type mockVault struct {
	encryptCalls int
	decryptCalls int
	encryptErr   error
	decryptErr   error
}

func (m *mockVault) Encrypt(plaintext string) (string, error) {
	m.encryptCalls++
	if plaintext == "" {
		return "", driven.ErrEmptyInput
	}
	if m.encryptErr != nil {
		return "", m.encryptErr
	}
	return "enc:" + plaintext, nil
}

func (m *mockVault) Decrypt(ciphertext string) (string, error) {
	m.decryptCalls++
	if ciphertext == "" {
		return "", driven.ErrEmptyInput
	}
	if m.decryptErr != nil {
		return "", m.decryptErr
	}
	plaintext, ok := strings.CutPrefix(ciphertext, "enc:")
	if !ok {
		return "", driven.ErrCryptoCorrupt
	}
	return plaintext, nil
}

func fullSettings() model.Settings {
	return model.Settings{
		JiraBaseURL:         "https://jira.example.com",
		AlwaysOnTop:         true,
		MinimizeToTray:      true,
		PauseActiveTimer:    true,
		IssueCount:          2,
		IssueKeys:           []string{"ABC-1", "ABC-2"},
		TimerEditable:       true,
		SaveTimerState:      model.SaveTimerAsk,
		CurrentFilter:       7,
		FirstRun:            false,
		Username:            "alice",
		Password:            "s3cret",
		RememberCredentials: true,
		PersistedIssues: []model.PersistedIssue{
			{IssueKey: "ABC-1", Elapsed: 90 * time.Second, Reported: time.Minute, Comment: "standup"},
			{IssueKey: "ABC-2", Elapsed: 3 * time.Hour},
		},
	}
}

// --- Tests ---

func TestSettingsStore_RoundTrip(t *testing.T) {
	backend := &mockBackend{}
	vault := &mockVault{}
	store := application.NewSettingsStore(backend, vault, nil)
	ctx := context.Background()

	in := fullSettings()
	require.NoError(t, store.Save(ctx, in))
	assert.Equal(t, "enc:s3cret", backend.values["password"], "password is stored encrypted")

	out, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSettingsStore_LoadEmptyBackendReturnsDefaults(t *testing.T) {
	vault := &mockVault{}
	store := application.NewSettingsStore(&mockBackend{}, vault, nil)

	out, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSettings(), out)
	assert.Zero(t, vault.decryptCalls)
}

func TestSettingsStore_EmptyPasswordNeverReachesVault(t *testing.T) {
	backend := &mockBackend{}
	vault := &mockVault{}
	store := application.NewSettingsStore(backend, vault, nil)
	ctx := context.Background()

	in := fullSettings()
	in.Password = ""
	require.NoError(t, store.Save(ctx, in))

	out, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, out.Password)
	assert.Zero(t, vault.encryptCalls)
	assert.Zero(t, vault.decryptCalls)
}

func TestSettingsStore_RememberFalsePurgesStoredPassword(t *testing.T) {
	backend := &mockBackend{}
	vault := &mockVault{}
	store := application.NewSettingsStore(backend, vault, nil)
	ctx := context.Background()

	in := fullSettings()
	require.NoError(t, store.Save(ctx, in))
	require.NotEmpty(t, backend.values["password"])

	in.RememberCredentials = false
	require.NoError(t, store.Save(ctx, in))
	assert.Empty(t, backend.values["password"])
	assert.Equal(t, "alice", backend.values["username"])

	out, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, out.Password)
	assert.False(t, out.RememberCredentials)
}

func TestSettingsStore_CorruptIssueBlobBecomesEmptyList(t *testing.T) {
	backend := &mockBackend{values: map[string]string{
		"issue_count":      "4",
		"persisted_issues": "definitely not a snapshot",
	}}
	store := application.NewSettingsStore(backend, &mockVault{}, nil)

	out, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out.PersistedIssues)
	assert.NotNil(t, out.PersistedIssues)
	assert.Equal(t, 4, out.IssueCount)
}

func TestSettingsStore_DecryptFailureKeepsOtherSettings(t *testing.T) {
	backend := &mockBackend{}
	vault := &mockVault{}
	store := application.NewSettingsStore(backend, vault, nil)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, fullSettings()))

	vault.decryptErr = driven.ErrCryptoCorrupt
	out, err := store.Load(ctx)

	require.ErrorIs(t, err, application.ErrCredentialsNotRestored)
	require.ErrorIs(t, err, driven.ErrCryptoCorrupt)
	assert.Empty(t, out.Password)
	assert.Equal(t, "alice", out.Username)
	assert.Equal(t, "https://jira.example.com", out.JiraBaseURL)
	assert.Len(t, out.PersistedIssues, 2)
}

func TestSettingsStore_EncryptFailureStillSavesOtherFields(t *testing.T) {
	backend := &mockBackend{}
	vault := &mockVault{encryptErr: driven.ErrCryptoUnavailable}
	store := application.NewSettingsStore(backend, vault, nil)

	err := store.Save(context.Background(), fullSettings())

	require.ErrorIs(t, err, driven.ErrCryptoUnavailable)
	assert.Equal(t, 1, backend.saves)
	assert.Empty(t, backend.values["password"])
	assert.Equal(t, "https://jira.example.com", backend.values["jira_base_url"])
}

func TestSettingsStore_InvalidValuesFallBackToDefaults(t *testing.T) {
	backend := &mockBackend{values: map[string]string{
		"issue_count":      "0",
		"always_on_top":    "maybe",
		"save_timer_state": "sometimes",
		"issue_keys":       "{not json",
		"current_filter":   "x",
	}}
	store := application.NewSettingsStore(backend, &mockVault{}, nil)

	out, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSettings(), out)
}

func TestSettingsStore_BackendErrors(t *testing.T) {
	boom := errors.New("disk on fire")
	ctx := context.Background()

	store := application.NewSettingsStore(&mockBackend{loadErr: boom}, &mockVault{}, nil)
	out, err := store.Load(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, model.DefaultSettings(), out)

	store = application.NewSettingsStore(&mockBackend{saveErr: boom}, &mockVault{}, nil)
	require.ErrorIs(t, store.Save(ctx, fullSettings()), boom)
}
