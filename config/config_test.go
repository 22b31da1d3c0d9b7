package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.MaxDurationSecs != 30 {
		t.Fatalf("expected default max duration 30, got %d", cfg.Audio.MaxDurationSecs)
	}
	if cfg.Model.Size != "base" {
		t.Fatalf("expected default model base, got %q", cfg.Model.Size)
	}
	if cfg.Inject.TypingSpeed != 1.0 {
		t.Fatalf("expected default typing speed 1.0, got %g", cfg.Inject.TypingSpeed)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "murmur.yaml")
	data := `
audio:
  device: "USB Microphone"
  max_duration_secs: 15
model:
  size: small
transcribe:
  language: de
  performance_mode: accuracy
inject:
  typing_speed: 2.0
  timeout_ms: 10000
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.Device != "USB Microphone" {
		t.Errorf("device = %q", cfg.Audio.Device)
	}
	if cfg.Audio.MaxDurationSecs != 15 {
		t.Errorf("max duration = %d", cfg.Audio.MaxDurationSecs)
	}
	if cfg.Model.Size != "small" {
		t.Errorf("model size = %q", cfg.Model.Size)
	}
	if cfg.Transcribe.Language != "de" {
		t.Errorf("language = %q", cfg.Transcribe.Language)
	}
	if cfg.Inject.TypingSpeed != 2.0 {
		t.Errorf("typing speed = %g", cfg.Inject.TypingSpeed)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MURMUR_AUDIO_MAX_DURATION_SECS", "20")
	t.Setenv("MURMUR_MODEL_SIZE", "tiny")
	t.Setenv("MURMUR_LANGUAGE", "fr")
	t.Setenv("MURMUR_TYPING_SPEED", "0.5")
	t.Setenv("MURMUR_INJECT_TIMEOUT_MS", "5000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.MaxDurationSecs != 20 {
		t.Fatalf("expected max duration override, got %d", cfg.Audio.MaxDurationSecs)
	}
	if cfg.Model.Size != "tiny" {
		t.Fatalf("expected model override, got %q", cfg.Model.Size)
	}
	if cfg.Transcribe.Language != "fr" {
		t.Fatalf("expected language override, got %q", cfg.Transcribe.Language)
	}
	if cfg.Inject.TypingSpeed != 0.5 {
		t.Fatalf("expected typing speed override, got %g", cfg.Inject.TypingSpeed)
	}
	if cfg.Inject.TimeoutMS != 5000 {
		t.Fatalf("expected timeout override, got %d", cfg.Inject.TimeoutMS)
	}
}

func TestMaxDurationRejected(t *testing.T) {
	cfg := Default()
	cfg.Audio.MaxDurationSecs = 35
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for max_duration_secs=35")
	}
	if !strings.Contains(err.Error(), "max_duration_secs") {
		t.Errorf("error should name the field, got: %v", err)
	}

	cfg.Audio.MaxDurationSecs = 0
	if Validate(cfg) == nil {
		t.Fatal("expected validation error for max_duration_secs=0")
	}
}

func TestInvalidValuesRejected(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown model size", func(c *Config) { c.Model.Size = "gigantic" }},
		{"unknown mode", func(c *Config) { c.Transcribe.PerformanceMode = "turbo" }},
		{"typing speed too low", func(c *Config) { c.Inject.TypingSpeed = 0.1 }},
		{"typing speed too high", func(c *Config) { c.Inject.TypingSpeed = 8 }},
		{"negative timeout", func(c *Config) { c.Inject.TimeoutMS = -1 }},
		{"empty model dir", func(c *Config) { c.Model.Dir = "" }},
		{"empty history path", func(c *Config) { c.History.Path = "" }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if Validate(cfg) == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
