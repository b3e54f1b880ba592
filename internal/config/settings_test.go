package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSettingsFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".registrar.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing settings file: %v", err)
	}

	return path
}

func TestLoadSettings(t *testing.T) {
	path := writeSettingsFile(t, `
data_import_strict_periods: true
data_import_strict_attribute_option_combos: true
data_import_strict_organisation_units: false
data_import_require_attribute_option_combo: true
`)

	settings, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings returned error: %v", err)
	}

	if !settings.StrictPeriods {
		t.Error("StrictPeriods should be true")
	}

	if !settings.StrictAttrOptionCombos {
		t.Error("StrictAttrOptionCombos should be true")
	}

	if settings.StrictOrgUnits {
		t.Error("StrictOrgUnits should be false")
	}

	if !settings.RequireAttrOptionCombo {
		t.Error("RequireAttrOptionCombo should be true")
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	settings, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("a missing settings file must not be an error: %v", err)
	}

	if *settings != (Settings{}) {
		t.Errorf("settings = %+v, want permissive zero values", settings)
	}
}

func TestLoadSettingsInvalidYAML(t *testing.T) {
	path := writeSettingsFile(t, "data_import_strict_periods: [broken")

	settings, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("invalid YAML must degrade, not fail: %v", err)
	}

	if *settings != (Settings{}) {
		t.Errorf("settings = %+v, want permissive zero values", settings)
	}
}

func TestLoadSettingsEmptyFile(t *testing.T) {
	path := writeSettingsFile(t, "")

	settings, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings returned error: %v", err)
	}

	if *settings != (Settings{}) {
		t.Errorf("settings = %+v, want zero values", settings)
	}
}

func TestSettingsPath(t *testing.T) {
	t.Setenv(SettingsPathEnvVar, "")

	if got := SettingsPath(); got != DefaultSettingsPath {
		t.Errorf("SettingsPath = %q, want %q", got, DefaultSettingsPath)
	}

	t.Setenv(SettingsPathEnvVar, "/etc/registrar/settings.yaml")

	if got := SettingsPath(); got != "/etc/registrar/settings.yaml" {
		t.Errorf("SettingsPath = %q, want env override", got)
	}
}
