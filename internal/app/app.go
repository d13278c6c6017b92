// Package app maps configuration onto constructed components. It keeps the
// command binaries thin and agreeing on how the same config is interpreted.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/tts-orchestrator/internal/config"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/engine"
	"github.com/book-expert/tts-orchestrator/internal/limits"
	"github.com/book-expert/tts-orchestrator/internal/statestore"
)

// ErrUnknownEngineKind indicates an unrecognized [engine] kind value.
var ErrUnknownEngineKind = errors.New("unknown engine kind")

// Engine kinds accepted in configuration.
const (
	EngineHTTP    = "http"
	EngineCommand = "command"
)

// NewStateStore opens the configured state store backend.
func NewStateStore(ctx context.Context, cfg *config.Config) (core.StateStore, error) {
	store, err := statestore.New(ctx, statestore.Options{
		Backend:          cfg.Storage.Backend,
		FileStatePath:    cfg.Storage.FilePath,
		RelationalDriver: cfg.Storage.Driver,
		RelationalDSN:    cfg.Storage.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	return store, nil
}

// NewEngine builds the configured synthesis engine.
func NewEngine(cfg *config.Config, log *logger.Logger) (core.Engine, error) {
	switch cfg.Engine.Kind {
	case EngineHTTP:
		return engine.NewHTTPEngine(cfg.Engine.BaseURL), nil
	case EngineCommand:
		commandEngine, err := engine.NewCommandEngine(
			cfg.Engine.BinaryPath, cfg.Engine.ModelPath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to build command engine: %w", err)
		}

		return commandEngine, nil
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownEngineKind, cfg.Engine.Kind)
	}
}

// LimitsDefaults projects the [limits] section onto tracker defaults.
func LimitsDefaults(cfg *config.Config) limits.Defaults {
	return limits.Defaults{
		MaxTextLength:    cfg.Limits.MaxTextLength,
		DailyLimit:       cfg.Limits.DailyLimit,
		PriorityLevel:    cfg.Limits.PriorityLevel,
		SynthesisEnabled: cfg.Limits.SynthesisEnabledOrDefault(),
		RetentionDays:    cfg.Limits.RetentionDays,
	}
}

// EngineTimeout returns the per-task synthesis deadline.
func EngineTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Engine.TimeoutSeconds) * time.Second
}
