// Package dispatch admits synthesis requests: it validates input, reserves
// quota, creates the task record, and either executes inline or enqueues
// the task ID for the worker pool.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/book-expert/logger"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/limits"
	"github.com/book-expert/tts-orchestrator/internal/tasks"
	"github.com/book-expert/tts-orchestrator/internal/voices"
	"github.com/book-expert/tts-orchestrator/internal/worker"
)

// Mode selects the execution path for admitted tasks.
type Mode string

// Execution modes.
const (
	ModeInline      Mode = "inline"
	ModeDistributed Mode = "distributed"
)

var (
	// ErrBrokerRequired indicates distributed mode without a broker.
	ErrBrokerRequired = errors.New("distributed mode requires a broker")
	// ErrExecutorRequired indicates inline mode without an executor.
	ErrExecutorRequired = errors.New("inline mode requires an executor")
	// ErrUnknownMode indicates an unrecognized execution mode.
	ErrUnknownMode = errors.New("unknown execution mode")
)

// Dispatcher is the single entry point for synthesis submissions. A denied
// submission never creates a task and never charges quota.
type Dispatcher struct {
	mode          Mode
	catalog       *voices.Catalog
	limits        *limits.Tracker
	tasks         *tasks.Registry
	broker        core.Broker
	executor      *worker.Executor
	maxQueueDepth uint64
	log           *logger.Logger
}

// Options wires a Dispatcher. Broker is required in distributed mode,
// Executor in inline mode; MaxQueueDepth bounds the distributed backlog.
type Options struct {
	Mode          Mode
	Catalog       *voices.Catalog
	Limits        *limits.Tracker
	Tasks         *tasks.Registry
	Broker        core.Broker
	Executor      *worker.Executor
	MaxQueueDepth uint64
	Log           *logger.Logger
}

// New validates opts and creates a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	switch opts.Mode {
	case ModeInline:
		if opts.Executor == nil {
			return nil, ErrExecutorRequired
		}
	case ModeDistributed:
		if opts.Broker == nil {
			return nil, ErrBrokerRequired
		}
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownMode, opts.Mode)
	}

	return &Dispatcher{
		mode:          opts.Mode,
		catalog:       opts.Catalog,
		limits:        opts.Limits,
		tasks:         opts.Tasks,
		broker:        opts.Broker,
		executor:      opts.Executor,
		maxQueueDepth: opts.MaxQueueDepth,
		log:           opts.Log,
	}, nil
}

// Submit admits one synthesis request and returns its task. Inline mode
// executes the task before returning; distributed mode returns as soon as
// the task ID is enqueued.
func (d *Dispatcher) Submit(ctx context.Context, input core.SynthesisInput) (*core.Task, error) {
	textLength, err := d.validate(ctx, input)
	if err != nil {
		return nil, err
	}

	if d.mode == ModeDistributed {
		// Backpressure comes before the reservation so a denied
		// submission charges nothing.
		depth, depthErr := d.broker.QueueDepth(ctx)
		if depthErr != nil {
			return nil, fmt.Errorf("failed to read queue depth: %w", depthErr)
		}

		if depth >= d.maxQueueDepth {
			return nil, fmt.Errorf(
				"%w: queue depth %d at limit %d", core.ErrOverloaded, depth, d.maxQueueDepth)
		}
	}

	reservation, err := d.limits.CheckAndReserve(ctx, input.UserID, textLength)
	if err != nil {
		return nil, fmt.Errorf("submission denied for user '%s': %w", input.UserID, err)
	}

	task, err := d.tasks.Create(ctx, input, reservation.ID)
	if err != nil {
		rollbackErr := d.limits.Rollback(ctx, reservation.ID)
		if rollbackErr != nil {
			d.log.Error("Failed to roll back reservation %s: %v", reservation.ID, rollbackErr)
		}

		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if d.mode == ModeInline {
		return d.runInline(ctx, task)
	}

	return d.enqueue(ctx, task)
}

// validate rejects bad input before any state is touched and returns the
// billable text length.
func (d *Dispatcher) validate(ctx context.Context, input core.SynthesisInput) (int, error) {
	if strings.TrimSpace(input.Text) == "" {
		return 0, core.ErrTextEmpty
	}

	textLength := utf8.RuneCountInString(input.Text)

	userLimits, err := d.limits.LimitsFor(ctx, input.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to load limits for user '%s': %w", input.UserID, err)
	}

	if textLength > userLimits.MaxTextLength {
		return 0, fmt.Errorf(
			"%w: %d characters over limit %d",
			core.ErrTextTooLong, textLength, userLimits.MaxTextLength)
	}

	_, err = d.catalog.Get(ctx, input.VoiceID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve voice '%s': %w", input.VoiceID, err)
	}

	return textLength, nil
}

// runInline executes the task on the caller's goroutine and returns its
// settled record.
func (d *Dispatcher) runInline(ctx context.Context, task *core.Task) (*core.Task, error) {
	execErr := d.executor.Execute(ctx, task.ID)
	if execErr != nil {
		return nil, fmt.Errorf("inline execution of task '%s' failed: %w", task.ID, execErr)
	}

	settled, err := d.tasks.Get(ctx, task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload task '%s': %w", task.ID, err)
	}

	return settled, nil
}

// enqueue publishes the task ID. A publish failure settles the task as
// failed and returns the reserved quota, so the caller sees a clean denial
// rather than a stuck pending task.
func (d *Dispatcher) enqueue(ctx context.Context, task *core.Task) (*core.Task, error) {
	publishErr := d.broker.Publish(ctx, task.ID)
	if publishErr == nil {
		d.log.Info("Task %s enqueued for user '%s'", task.ID, task.UserID)

		return task, nil
	}

	d.log.Error("Failed to publish task %s: %v", task.ID, publishErr)

	claimErr := d.tasks.TransitionToRunning(ctx, task.ID)
	if claimErr == nil {
		failErr := d.tasks.Fail(ctx, task.ID, core.TaskError{
			Code:    core.TaskErrorPublish,
			Message: publishErr.Error(),
		})
		if failErr != nil {
			d.log.Error("Failed to settle unpublished task %s: %v", task.ID, failErr)
		}
	}

	rollbackErr := d.limits.Rollback(ctx, task.ReservationID)
	if rollbackErr != nil {
		d.log.Error("Failed to roll back reservation for task %s: %v", task.ID, rollbackErr)
	}

	return nil, fmt.Errorf("failed to enqueue task '%s': %w", task.ID, publishErr)
}

// Status returns the polling read model for a task.
func (d *Dispatcher) Status(ctx context.Context, taskID string) (*core.TaskStatus, error) {
	task, err := d.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task '%s': %w", taskID, err)
	}

	status := task.Status()

	return &status, nil
}
