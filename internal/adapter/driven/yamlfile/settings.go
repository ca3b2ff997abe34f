// Package yamlfile implements the SettingsBackend port as a YAML document in
// the user's configuration directory.
package yamlfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/jirastopwatch/internal/domain/port/driven"
)

const settingsFileName = "settings.yaml"

// Compile-time interface satisfaction check.
var _ driven.SettingsBackend = (*SettingsFile)(nil)

// document is the on-disk layout. Settings live under their own key so the
// file can grow other sections without touching the flat map.
type document struct {
	Version  int               `yaml:"version"`
	Settings map[string]string `yaml:"settings"`
}

const documentVersion = 1

// SettingsFile stores settings in a single YAML file.
type SettingsFile struct {
	path string
}

// New creates a SettingsFile at path.
func New(path string) *SettingsFile {
	return &SettingsFile{path: path}
}

// DefaultPath returns <UserConfigDir>/<appName>/settings.yaml.
func DefaultPath(appName string) (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(configDir, appName, settingsFileName), nil
}

// Path returns the file the settings are stored in.
func (f *SettingsFile) Path() string {
	return f.path
}

// Load reads the settings file. A missing file yields an empty map.
func (f *SettingsFile) Load(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rawData, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(rawData, &doc); err != nil {
		return nil, fmt.Errorf("parse settings yaml: %w", err)
	}
	if doc.Version > documentVersion {
		return nil, fmt.Errorf("settings file version %d is newer than supported %d", doc.Version, documentVersion)
	}
	if doc.Settings == nil {
		doc.Settings = map[string]string{}
	}
	return doc.Settings, nil
}

// Save writes values to a temporary file and renames it over the settings
// file, so a crash mid-write leaves the previous file intact.
func (f *SettingsFile) Save(ctx context.Context, values map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	serialized, err := yaml.Marshal(document{Version: documentVersion, Settings: values})
	if err != nil {
		return fmt.Errorf("marshal settings yaml: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), settingsFileName+".*")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(serialized); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write settings file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}
