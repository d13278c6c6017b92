// Package tasks persists synthesis task records and guards their state
// machine: pending -> running -> {succeeded, failed}, each transition
// taken exactly once.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/google/uuid"
)

// Registry is the durable record of task identity, state, and results.
// It is the source of truth the broker payloads point into.
type Registry struct {
	store core.StateStore
	log   *logger.Logger
	now   func() time.Time
}

// NewRegistry creates a registry over the given state store.
func NewRegistry(store core.StateStore, log *logger.Logger) *Registry {
	return &Registry{store: store, log: log, now: time.Now}
}

// Create persists a new task in pending state and returns it.
func (r *Registry) Create(ctx context.Context, input core.SynthesisInput, reservationID string) (*core.Task, error) {
	now := r.now().UTC()
	task := &core.Task{
		ID:            uuid.NewString(),
		UserID:        input.UserID,
		State:         core.TaskPending,
		Input:         input,
		Result:        nil,
		Error:         nil,
		ReservationID: reservationID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := r.put(ctx, task)
	if err != nil {
		return nil, err
	}

	r.log.Info("Created task %s for user '%s'", task.ID, task.UserID)

	return task, nil
}

// Get returns the task with the given id.
func (r *Registry) Get(ctx context.Context, taskID string) (*core.Task, error) {
	doc, err := r.store.Get(ctx, core.CollectionTasks, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task '%s': %w", taskID, err)
	}

	return decodeTask(taskID, doc)
}

// TransitionToRunning moves a pending task to running. A task claimed by a
// second worker is no longer pending and yields ErrInvalidState.
func (r *Registry) TransitionToRunning(ctx context.Context, taskID string) error {
	return r.transition(ctx, taskID, core.TaskPending, func(task *core.Task) {
		task.State = core.TaskRunning
	})
}

// Complete moves a running task to succeeded and records its result.
// Completing a task that is not running yields ErrInvalidState and leaves
// the recorded state untouched.
func (r *Registry) Complete(ctx context.Context, taskID string, result core.TaskResult) error {
	return r.transition(ctx, taskID, core.TaskRunning, func(task *core.Task) {
		task.State = core.TaskSucceeded
		task.Result = &result
		task.Error = nil
	})
}

// Fail moves a running task to failed and records the structured cause.
func (r *Registry) Fail(ctx context.Context, taskID string, taskErr core.TaskError) error {
	return r.transition(ctx, taskID, core.TaskRunning, func(task *core.Task) {
		task.State = core.TaskFailed
		task.Error = &taskErr
		task.Result = nil
	})
}

// transition applies a guarded state change inside one transaction, so a
// racing transition sees either the old or the new state but never applies
// on top of a terminal one.
func (r *Registry) transition(
	ctx context.Context,
	taskID string,
	from core.TaskState,
	apply func(*core.Task),
) error {
	err := r.store.Transact(ctx, func(tx core.Tx) error {
		doc, getErr := tx.Get(core.CollectionTasks, taskID)
		if getErr != nil {
			return getErr
		}

		task, decodeErr := decodeTask(taskID, doc)
		if decodeErr != nil {
			return decodeErr
		}

		if task.State != from {
			return fmt.Errorf("task '%s' is %s, not %s: %w",
				taskID, task.State, from, core.ErrInvalidState)
		}

		apply(task)
		task.UpdatedAt = r.now().UTC()

		updated, marshalErr := json.Marshal(task)
		if marshalErr != nil {
			return fmt.Errorf("failed to encode task '%s': %w", taskID, marshalErr)
		}

		return tx.Put(core.CollectionTasks, taskID, updated)
	})
	if err != nil {
		return err
	}

	return nil
}

func (r *Registry) put(ctx context.Context, task *core.Task) error {
	doc, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task '%s': %w", task.ID, err)
	}

	putErr := r.store.Put(ctx, core.CollectionTasks, task.ID, doc)
	if putErr != nil {
		return fmt.Errorf("failed to store task '%s': %w", task.ID, putErr)
	}

	return nil
}

func decodeTask(taskID string, doc []byte) (*core.Task, error) {
	var task core.Task

	err := json.Unmarshal(doc, &task)
	if err != nil {
		return nil, fmt.Errorf("failed to decode task '%s': %w", taskID, err)
	}

	return &task, nil
}
