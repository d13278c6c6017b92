package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/tts-orchestrator/internal/app"
	"github.com/book-expert/tts-orchestrator/internal/config"
)

func TestNewStateStore_FromConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Storage: config.StorageConfig{
			Backend:  "file",
			FilePath: filepath.Join(t.TempDir(), "state.json"),
		},
	}

	store, err := app.NewStateStore(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestNewEngine_Kinds(t *testing.T) {
	t.Parallel()

	httpCfg := &config.Config{Engine: config.EngineConfig{
		Kind:    app.EngineHTTP,
		BaseURL: "http://127.0.0.1:8000",
	}}
	eng, err := app.NewEngine(httpCfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, eng)

	commandCfg := &config.Config{Engine: config.EngineConfig{
		Kind:       app.EngineCommand,
		BinaryPath: "/usr/bin/f5-tts",
	}}
	eng, err = app.NewEngine(commandCfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, eng)

	badCfg := &config.Config{Engine: config.EngineConfig{Kind: "grpc"}}
	_, err = app.NewEngine(badCfg, nil)
	require.ErrorIs(t, err, app.ErrUnknownEngineKind)
}

func TestLimitsDefaults_Projection(t *testing.T) {
	t.Parallel()

	enabled := true
	cfg := &config.Config{Limits: config.LimitsConfig{
		MaxTextLength:    100,
		DailyLimit:       5,
		PriorityLevel:    2,
		SynthesisEnabled: &enabled,
		RetentionDays:    3,
	}}

	defaults := app.LimitsDefaults(cfg)
	assert.Equal(t, 100, defaults.MaxTextLength)
	assert.Equal(t, 5, defaults.DailyLimit)
	assert.Equal(t, 2, defaults.PriorityLevel)
	assert.True(t, defaults.SynthesisEnabled)
	assert.Equal(t, 3, defaults.RetentionDays)
}

func TestLimitsDefaults_OmittedSynthesisEnabled(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Limits: config.LimitsConfig{DailyLimit: 5}}

	defaults := app.LimitsDefaults(cfg)
	assert.True(t, defaults.SynthesisEnabled)
}
