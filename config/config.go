// Package config loads and validates the dictation settings snapshot from a
// YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"murmur/model"
	"murmur/transcribe"
)

type AudioConfig struct {
	Device          string `yaml:"device"`
	MaxDurationSecs int    `yaml:"max_duration_secs"`
}

type ModelConfig struct {
	Size     string `yaml:"size"`
	Dir      string `yaml:"dir"`
	AutoPick bool   `yaml:"auto_pick"`
}

type TranscribeConfig struct {
	Language        string `yaml:"language"`
	PerformanceMode string `yaml:"performance_mode"`
}

type InjectConfig struct {
	TypingSpeed float64 `yaml:"typing_speed"`
	TimeoutMS   int     `yaml:"timeout_ms"`
}

type HistoryConfig struct {
	Path       string `yaml:"path"`
	MaxEntries int    `yaml:"max_entries"`
}

type LogConfig struct {
	Dir string `yaml:"dir"`
}

type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	Model      ModelConfig      `yaml:"model"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Inject     InjectConfig     `yaml:"inject"`
	History    HistoryConfig    `yaml:"history"`
	Log        LogConfig        `yaml:"log"`
}

func Default() Config {
	return Config{
		Audio: AudioConfig{
			MaxDurationSecs: 30,
		},
		Model: ModelConfig{
			Size:     string(model.SizeBase),
			Dir:      defaultModelDir(),
			AutoPick: false,
		},
		Transcribe: TranscribeConfig{
			Language:        "",
			PerformanceMode: string(transcribe.ModeBalanced),
		},
		Inject: InjectConfig{
			TypingSpeed: 1.0,
			TimeoutMS:   30000,
		},
		History: HistoryConfig{
			Path:       defaultHistoryPath(),
			MaxEntries: 1000,
		},
	}
}

// Load reads path (optional), applies environment overrides, and validates.
// A validation failure is returned before any session can start.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Audio.Device, "MURMUR_AUDIO_DEVICE")
	overrideInt(&cfg.Audio.MaxDurationSecs, "MURMUR_AUDIO_MAX_DURATION_SECS")
	overrideString(&cfg.Model.Size, "MURMUR_MODEL_SIZE")
	overrideString(&cfg.Model.Dir, "MURMUR_MODEL_DIR")
	overrideBool(&cfg.Model.AutoPick, "MURMUR_MODEL_AUTO_PICK")
	overrideString(&cfg.Transcribe.Language, "MURMUR_LANGUAGE")
	overrideString(&cfg.Transcribe.PerformanceMode, "MURMUR_PERFORMANCE_MODE")
	overrideFloat(&cfg.Inject.TypingSpeed, "MURMUR_TYPING_SPEED")
	overrideInt(&cfg.Inject.TimeoutMS, "MURMUR_INJECT_TIMEOUT_MS")
	overrideString(&cfg.History.Path, "MURMUR_HISTORY_PATH")
	overrideInt(&cfg.History.MaxEntries, "MURMUR_HISTORY_MAX_ENTRIES")
	overrideString(&cfg.Log.Dir, "MURMUR_LOG_PATH")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func Validate(cfg Config) error {
	if cfg.Audio.MaxDurationSecs < 1 || cfg.Audio.MaxDurationSecs > 30 {
		return fmt.Errorf("audio.max_duration_secs must be between 1 and 30, got %d", cfg.Audio.MaxDurationSecs)
	}
	if !model.ValidSize(model.Size(cfg.Model.Size)) {
		return fmt.Errorf("model.size %q is not a known size", cfg.Model.Size)
	}
	if cfg.Model.Dir == "" {
		return errors.New("model.dir must not be empty")
	}
	if !transcribe.ValidMode(transcribe.PerformanceMode(cfg.Transcribe.PerformanceMode)) {
		return fmt.Errorf("transcribe.performance_mode must be one of speed|balanced|accuracy, got %q", cfg.Transcribe.PerformanceMode)
	}
	if cfg.Inject.TypingSpeed < 0.25 || cfg.Inject.TypingSpeed > 4 {
		return fmt.Errorf("inject.typing_speed must be between 0.25 and 4, got %g", cfg.Inject.TypingSpeed)
	}
	if cfg.Inject.TimeoutMS < 0 {
		return errors.New("inject.timeout_ms must be >= 0")
	}
	if cfg.History.Path == "" {
		return errors.New("history.path must not be empty")
	}
	if cfg.History.MaxEntries < 1 {
		return errors.New("history.max_entries must be >= 1")
	}
	return nil
}

func defaultModelDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./models"
	}
	return filepath.Join(home, ".cache", "murmur", "models")
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./murmur-history.db"
	}
	return filepath.Join(home, ".local", "share", "murmur", "history.db")
}
