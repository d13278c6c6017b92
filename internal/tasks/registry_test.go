// Package tasks_test tests the task state machine guards.
package tasks_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/statestore"
	"github.com/book-expert/tts-orchestrator/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *tasks.Registry {
	t.Helper()

	store, err := statestore.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	testLogger, err := logger.New(t.TempDir(), "registry-test.log")
	require.NoError(t, err)

	return tasks.NewRegistry(store, testLogger)
}

func sampleInput() core.SynthesisInput {
	return core.SynthesisInput{
		UserID:  "u1",
		Text:    "hello",
		VoiceID: "v1",
		Options: core.SynthesisOptions{Language: "en", Temperature: 0, Speed: 0, Seed: 0},
	}
}

func TestRegistry_CreateStartsPending(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t)
	ctx := context.Background()

	task, err := registry.Create(ctx, sampleInput(), "res-1")
	require.NoError(t, err)
	assert.Equal(t, core.TaskPending, task.State)
	assert.Equal(t, "res-1", task.ReservationID)

	loaded, err := registry.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskPending, loaded.State)
	assert.Nil(t, loaded.Result)
	assert.Nil(t, loaded.Error)
}

func TestRegistry_HappyPathTransitions(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t)
	ctx := context.Background()

	task, err := registry.Create(ctx, sampleInput(), "")
	require.NoError(t, err)

	require.NoError(t, registry.TransitionToRunning(ctx, task.ID))

	result := core.TaskResult{AudioKey: "audio.wav", DurationSeconds: 1.2}
	require.NoError(t, registry.Complete(ctx, task.ID, result))

	loaded, err := registry.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskSucceeded, loaded.State)
	require.NotNil(t, loaded.Result)
	assert.InEpsilon(t, 1.2, loaded.Result.DurationSeconds, 0.0001)

	status := loaded.Status()
	assert.Equal(t, task.ID, status.TaskID)
	assert.Equal(t, core.TaskSucceeded, status.State)
}

func TestRegistry_CompleteRequiresRunning(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t)
	ctx := context.Background()

	task, err := registry.Create(ctx, sampleInput(), "")
	require.NoError(t, err)

	err = registry.Complete(ctx, task.ID, core.TaskResult{AudioKey: "a.wav", DurationSeconds: 1})
	require.ErrorIs(t, err, core.ErrInvalidState)

	loaded, err := registry.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskPending, loaded.State, "a refused transition changes nothing")
}

func TestRegistry_TerminalStateHasExactlyOneWinner(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t)
	ctx := context.Background()

	task, err := registry.Create(ctx, sampleInput(), "")
	require.NoError(t, err)
	require.NoError(t, registry.TransitionToRunning(ctx, task.ID))

	winner := core.TaskResult{AudioKey: "winner.wav", DurationSeconds: 3.5}
	require.NoError(t, registry.Complete(ctx, task.ID, winner))

	// The loser of the race gets ErrInvalidState, whatever it attempts.
	err = registry.Complete(ctx, task.ID, core.TaskResult{AudioKey: "loser.wav", DurationSeconds: 9})
	require.ErrorIs(t, err, core.ErrInvalidState)

	err = registry.Fail(ctx, task.ID, core.TaskError{Code: core.TaskErrorEngine, Message: "late"})
	require.ErrorIs(t, err, core.ErrInvalidState)

	err = registry.TransitionToRunning(ctx, task.ID)
	require.ErrorIs(t, err, core.ErrInvalidState)

	loaded, err := registry.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskSucceeded, loaded.State)
	assert.Equal(t, "winner.wav", loaded.Result.AudioKey)
	assert.Nil(t, loaded.Error)
}

func TestRegistry_FailRecordsStructuredError(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t)
	ctx := context.Background()

	task, err := registry.Create(ctx, sampleInput(), "")
	require.NoError(t, err)
	require.NoError(t, registry.TransitionToRunning(ctx, task.ID))

	taskErr := core.TaskError{Code: core.TaskErrorTimeout, Message: "engine timed out"}
	require.NoError(t, registry.Fail(ctx, task.ID, taskErr))

	loaded, err := registry.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskFailed, loaded.State)
	require.NotNil(t, loaded.Error)
	assert.Equal(t, core.TaskErrorTimeout, loaded.Error.Code)
	assert.Nil(t, loaded.Result)
}

func TestRegistry_GetUnknownTask(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t)

	_, err := registry.Get(context.Background(), "no-such-task")
	require.ErrorIs(t, err, core.ErrNotFound)
}
