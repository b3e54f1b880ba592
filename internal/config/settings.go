package config

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings holds system-wide import defaults loaded from .registrar.yaml.
//
// These mirror the administrator-facing data import settings: a strictness
// flag set here forces the behavior for every import run, regardless of what
// an individual request asks for. Callers combine these with per-run options
// using logical OR.
type Settings struct {
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	StrictPeriods bool `yaml:"data_import_strict_periods"`
	//nolint:tagliatelle
	StrictAttrOptionCombos bool `yaml:"data_import_strict_attribute_option_combos"`
	//nolint:tagliatelle
	StrictOrgUnits bool `yaml:"data_import_strict_organisation_units"`
	//nolint:tagliatelle
	RequireAttrOptionCombo bool `yaml:"data_import_require_attribute_option_combo"`
}

// DefaultSettingsPath is the default location for the registrar settings file.
// Uses hidden file format following common tool conventions (.eslintrc, .prettierrc, etc.).
const DefaultSettingsPath = ".registrar.yaml"

// SettingsPathEnvVar is the environment variable name for a custom settings path.
const SettingsPathEnvVar = "REGISTRAR_CONFIG_PATH"

// LoadSettings loads system import settings from a YAML file at the given path.
//
// Behavior:
//   - Returns zero-value settings (not error) if the file doesn't exist - the
//     file is optional and all settings default to permissive
//   - Returns zero-value settings + logs warning if YAML is invalid (graceful
//     degradation)
//   - Returns populated settings on success
//
// Graceful degradation ensures an import run can start even without a settings
// file; a missing file simply means no globally forced strictness.
func LoadSettings(path string) (*Settings, error) {
	settings := &Settings{}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Settings file not found, using permissive import defaults",
				slog.String("path", path))

			return settings, nil
		}

		slog.Warn("Failed to read settings file, using permissive import defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return settings, nil
	}

	if len(data) == 0 {
		return settings, nil
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		slog.Warn("Failed to parse settings file, using permissive import defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return &Settings{}, nil
	}

	return settings, nil
}

// SettingsPath returns the settings file path from the environment, falling
// back to DefaultSettingsPath.
func SettingsPath() string {
	return GetEnvStr(SettingsPathEnvVar, DefaultSettingsPath)
}
