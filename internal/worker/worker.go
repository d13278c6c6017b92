// Package worker executes queued synthesis tasks: it claims a task, runs
// the engine, stores the audio, and settles the quota reservation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/limits"
	"github.com/book-expert/tts-orchestrator/internal/tasks"
	"github.com/book-expert/tts-orchestrator/internal/textnorm"
	"github.com/book-expert/tts-orchestrator/internal/voices"
)

const defaultSynthesisTimeout = 120 * time.Second

// Executor runs a single task end to end. It is shared by the inline
// dispatcher path and the NATS worker loop.
type Executor struct {
	tasks   *tasks.Registry
	catalog *voices.Catalog
	limits  *limits.Tracker
	engine  core.Engine
	audio   core.AudioStore
	text    *textnorm.Normalizer
	timeout time.Duration
	log     *logger.Logger
}

// NewExecutor creates an Executor. A non-positive timeout falls back to
// the default per-task synthesis deadline.
func NewExecutor(
	taskRegistry *tasks.Registry,
	catalog *voices.Catalog,
	limitTracker *limits.Tracker,
	engine core.Engine,
	audio core.AudioStore,
	timeout time.Duration,
	log *logger.Logger,
) *Executor {
	if timeout <= 0 {
		timeout = defaultSynthesisTimeout
	}

	return &Executor{
		tasks:   taskRegistry,
		catalog: catalog,
		limits:  limitTracker,
		engine:  engine,
		audio:   audio,
		text:    textnorm.NewNormalizer(),
		timeout: timeout,
		log:     log,
	}
}

// Execute claims the task and drives it to a terminal state. When another
// worker already claimed or settled the task, Execute is a no-op: the
// state machine admits exactly one winner per transition.
func (e *Executor) Execute(ctx context.Context, taskID string) error {
	task, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task '%s': %w", taskID, err)
	}

	err = e.tasks.TransitionToRunning(ctx, taskID)
	if err != nil {
		if errors.Is(err, core.ErrInvalidState) {
			e.log.Warn("Task %s already claimed, skipping", taskID)

			return nil
		}

		return fmt.Errorf("failed to claim task '%s': %w", taskID, err)
	}

	e.log.Info("Executing task %s for user '%s'", taskID, task.UserID)

	output, synthErr := e.synthesize(ctx, task)
	if synthErr != nil {
		return e.settleFailure(ctx, task, classifySynthesisError(synthErr))
	}

	audioKey := uuid.NewString() + ".wav"

	uploadErr := e.audio.Upload(ctx, audioKey, output.Audio)
	if uploadErr != nil {
		e.log.Error("Failed to upload audio for task %s: %v", taskID, uploadErr)

		return e.settleFailure(ctx, task, core.TaskError{
			Code:    core.TaskErrorStorage,
			Message: uploadErr.Error(),
		})
	}

	return e.settleSuccess(ctx, task, core.TaskResult{
		AudioKey:        audioKey,
		DurationSeconds: output.DurationSeconds,
	})
}

// synthesize resolves the voice, normalizes the text, and runs the engine
// under the per-task deadline.
func (e *Executor) synthesize(ctx context.Context, task *core.Task) (core.SynthesisOutput, error) {
	voice, err := e.catalog.Get(ctx, task.Input.VoiceID)
	if err != nil {
		return core.SynthesisOutput{}, fmt.Errorf(
			"failed to resolve voice '%s': %w", task.Input.VoiceID, err)
	}

	synthCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	text := e.text.Normalize(task.Input.Text)

	output, err := e.engine.Synthesize(synthCtx, text, voice.Reference(), task.Input.Options)
	if err != nil {
		return core.SynthesisOutput{}, fmt.Errorf("synthesis failed: %w", err)
	}

	return output, nil
}

func (e *Executor) settleSuccess(ctx context.Context, task *core.Task, result core.TaskResult) error {
	err := e.tasks.Complete(ctx, task.ID, result)
	if err != nil {
		if errors.Is(err, core.ErrInvalidState) {
			// Another worker settled the task first; its outcome stands.
			e.log.Warn("Task %s already settled, discarding result", task.ID)

			return nil
		}

		return fmt.Errorf("failed to complete task '%s': %w", task.ID, err)
	}

	commitErr := e.limits.Commit(ctx, task.ReservationID, result.DurationSeconds)
	if commitErr != nil {
		e.log.Error("Failed to commit reservation for task %s: %v", task.ID, commitErr)
	}

	e.log.Info("Task %s succeeded: %s (%.2fs)", task.ID, result.AudioKey, result.DurationSeconds)

	return nil
}

func (e *Executor) settleFailure(ctx context.Context, task *core.Task, taskErr core.TaskError) error {
	e.log.Error("Task %s failed (%s): %s", task.ID, taskErr.Code, taskErr.Message)

	err := e.tasks.Fail(ctx, task.ID, taskErr)
	if err != nil {
		if errors.Is(err, core.ErrInvalidState) {
			e.log.Warn("Task %s already settled, discarding failure", task.ID)

			return nil
		}

		return fmt.Errorf("failed to mark task '%s' as failed: %w", task.ID, err)
	}

	rollbackErr := e.limits.Rollback(ctx, task.ReservationID)
	if rollbackErr != nil {
		e.log.Error("Failed to roll back reservation for task %s: %v", task.ID, rollbackErr)
	}

	return nil
}

func classifySynthesisError(err error) core.TaskError {
	code := core.TaskErrorEngine
	if errors.Is(err, context.DeadlineExceeded) {
		code = core.TaskErrorTimeout
	}

	return core.TaskError{
		Code:    code,
		Message: err.Error(),
	}
}

// TaskConsumer is the queue subscription used by the worker loop. The
// NATS broker satisfies it.
type TaskConsumer interface {
	Consume(ctx context.Context, handler func(taskID string)) error
}

// NatsWorker pulls task IDs off the queue and executes them.
type NatsWorker struct {
	consumer TaskConsumer
	executor *Executor
	log      *logger.Logger
}

// NewNatsWorker creates a worker bound to the given consumer.
func NewNatsWorker(consumer TaskConsumer, executor *Executor, log *logger.Logger) *NatsWorker {
	return &NatsWorker{
		consumer: consumer,
		executor: executor,
		log:      log,
	}
}

// Run consumes tasks until ctx is cancelled.
func (w *NatsWorker) Run(ctx context.Context) error {
	err := w.consumer.Consume(ctx, func(taskID string) {
		execErr := w.executor.Execute(ctx, taskID)
		if execErr != nil {
			w.log.Error("Failed to execute task %s: %v", taskID, execErr)
		}
	})
	if err != nil {
		return fmt.Errorf("worker consume loop failed: %w", err)
	}

	return nil
}
