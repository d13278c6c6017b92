// Package config provides the configuration structure for the
// tts-orchestrator.
package config

import (
	"errors"
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Validation errors.
var (
	ErrStorageBackendEmpty = errors.New("storage backend cannot be empty")
	ErrDispatchModeEmpty   = errors.New("dispatch mode cannot be empty")
	ErrEngineKindEmpty     = errors.New("engine kind cannot be empty")
)

// Defaults applied by Validate when a field is unset.
const (
	DefaultMaxQueueDepth    = 64
	DefaultTimeoutSeconds   = 120
	DefaultMaxTextLength    = 5000
	DefaultDailyLimit       = 100
	DefaultRetentionDays    = 7
	DefaultWorkerQueueGroup = "synthesis-workers"
)

// StorageConfig selects and parameterizes the state store backend.
type StorageConfig struct {
	Backend  string `toml:"backend"`
	FilePath string `toml:"file_path"`
	Driver   string `toml:"driver"`
	DSN      string `toml:"dsn"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	TaskStreamName         string `toml:"task_stream_name"`
	TaskSubject            string `toml:"task_subject"`
	WorkerQueueGroup       string `toml:"worker_queue_group"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// DispatchConfig controls task admission.
type DispatchConfig struct {
	Mode          string `toml:"mode"`
	MaxQueueDepth uint64 `toml:"max_queue_depth"`
}

// EngineConfig selects and parameterizes the synthesis engine.
type EngineConfig struct {
	Kind           string `toml:"kind"`
	BaseURL        string `toml:"base_url"`
	BinaryPath     string `toml:"binary_path"`
	ModelPath      string `toml:"model_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LimitsConfig holds the global usage-limit defaults. Per-user overrides
// live in the state store. SynthesisEnabled is a pointer so an omitted key
// can be told apart from an explicit false; Validate defaults it to enabled.
type LimitsConfig struct {
	MaxTextLength    int   `toml:"max_text_length"`
	DailyLimit       int   `toml:"daily_limit"`
	PriorityLevel    int   `toml:"priority_level"`
	SynthesisEnabled *bool `toml:"synthesis_enabled"`
	RetentionDays    int   `toml:"retention_days"`
}

// SynthesisEnabledOrDefault reports whether synthesis is enabled, treating
// an omitted key as enabled.
func (l LimitsConfig) SynthesisEnabledOrDefault() bool {
	if l.SynthesisEnabled == nil {
		return true
	}

	return *l.SynthesisEnabled
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Storage  StorageConfig  `toml:"storage"`
	NATS     NATSConfig     `toml:"nats"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Engine   EngineConfig   `toml:"engine"`
	Limits   LimitsConfig   `toml:"limits"`
	Paths    PathsConfig    `toml:"paths"`
}

// Load loads and validates the configuration for the tts-orchestrator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate fills defaults and rejects configurations that cannot be wired.
func (c *Config) Validate() error {
	if c.Storage.Backend == "" {
		return ErrStorageBackendEmpty
	}

	if c.Dispatch.Mode == "" {
		return ErrDispatchModeEmpty
	}

	if c.Engine.Kind == "" {
		return ErrEngineKindEmpty
	}

	if c.Dispatch.MaxQueueDepth == 0 {
		c.Dispatch.MaxQueueDepth = DefaultMaxQueueDepth
	}

	if c.Engine.TimeoutSeconds <= 0 {
		c.Engine.TimeoutSeconds = DefaultTimeoutSeconds
	}

	if c.Limits.MaxTextLength <= 0 {
		c.Limits.MaxTextLength = DefaultMaxTextLength
	}

	if c.Limits.DailyLimit <= 0 {
		c.Limits.DailyLimit = DefaultDailyLimit
	}

	if c.Limits.RetentionDays <= 0 {
		c.Limits.RetentionDays = DefaultRetentionDays
	}

	if c.Limits.SynthesisEnabled == nil {
		enabled := true
		c.Limits.SynthesisEnabled = &enabled
	}

	if c.NATS.WorkerQueueGroup == "" {
		c.NATS.WorkerQueueGroup = DefaultWorkerQueueGroup
	}

	return nil
}
