package driven

import "context"

// SettingsBackend defines the driven port for the flat key/value store that
// holds persisted settings. Values are opaque strings; typing and encryption
// happen above this port.
type SettingsBackend interface {
	// Load returns every stored key. A backend with nothing stored returns an
	// empty, non-nil map.
	Load(ctx context.Context) (map[string]string, error)

	// Save replaces the stored key set with values.
	Save(ctx context.Context, values map[string]string) error
}
