package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestGetEnvStr(t *testing.T) {
	t.Setenv("REGISTRAR_TEST_STR", "value")

	if got := GetEnvStr("REGISTRAR_TEST_STR", "fallback"); got != "value" {
		t.Errorf("GetEnvStr = %q, want %q", got, "value")
	}

	if got := GetEnvStr("REGISTRAR_TEST_STR_MISSING", "fallback"); got != "fallback" {
		t.Errorf("GetEnvStr = %q, want fallback", got)
	}

	t.Setenv("REGISTRAR_TEST_STR", "")

	if got := GetEnvStr("REGISTRAR_TEST_STR", "fallback"); got != "fallback" {
		t.Errorf("GetEnvStr with empty value = %q, want fallback", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{name: "valid", value: "42", want: 42},
		{name: "negative", value: "-1", want: -1},
		{name: "invalid falls back", value: "not-a-number", want: 25},
		{name: "empty falls back", value: "", want: 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REGISTRAR_TEST_INT", tt.value)

			if got := GetEnvInt("REGISTRAR_TEST_INT", 25); got != tt.want {
				t.Errorf("GetEnvInt = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value        string
		defaultValue bool
		want         bool
	}{
		{value: "true", want: true},
		{value: "1", want: true},
		{value: "yes", want: true},
		{value: "TRUE", want: true},
		{value: "false", defaultValue: true, want: false},
		{value: "0", defaultValue: true, want: false},
		{value: "no", defaultValue: true, want: false},
		{value: "maybe", defaultValue: true, want: true},
		{value: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("REGISTRAR_TEST_BOOL", tt.value)

			if got := GetEnvBool("REGISTRAR_TEST_BOOL", tt.defaultValue); got != tt.want {
				t.Errorf("GetEnvBool(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("REGISTRAR_TEST_DURATION", "90s")

	if got := GetEnvDuration("REGISTRAR_TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Errorf("GetEnvDuration = %v, want 90s", got)
	}

	t.Setenv("REGISTRAR_TEST_DURATION", "ninety seconds")

	if got := GetEnvDuration("REGISTRAR_TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("GetEnvDuration with invalid value = %v, want default", got)
	}
}

func TestGetEnvLogLevel(t *testing.T) {
	tests := []struct {
		value string
		want  slog.Level
	}{
		{value: "debug", want: slog.LevelDebug},
		{value: "info", want: slog.LevelInfo},
		{value: "warn", want: slog.LevelWarn},
		{value: "warning", want: slog.LevelWarn},
		{value: "ERROR", want: slog.LevelError},
		{value: "verbose", want: slog.LevelInfo},
		{value: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("REGISTRAR_TEST_LOG_LEVEL", tt.value)

			if got := GetEnvLogLevel("REGISTRAR_TEST_LOG_LEVEL", slog.LevelInfo); got != tt.want {
				t.Errorf("GetEnvLogLevel(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
