package core

import "errors"

// Errors shared across the orchestration layers. Denial errors
// (quota, disabled, overload) and validation errors are returned
// before any state is mutated; ErrInvalidState marks a lost
// terminal-transition race and is handled as a no-op by workers.
var (
	// ErrNotFound indicates that a record does not exist in the state store.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidState indicates a task transition that violates the
	// pending -> running -> terminal state machine.
	ErrInvalidState = errors.New("invalid task state transition")
	// ErrTextEmpty indicates an empty synthesis text.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrTextTooLong indicates that the synthesis text exceeds the caller's limit.
	ErrTextTooLong = errors.New("text exceeds maximum length")
	// ErrQuotaExceeded indicates that the caller's daily request limit is spent.
	ErrQuotaExceeded = errors.New("daily request limit exceeded")
	// ErrSynthesisDisabled indicates that synthesis is switched off for the caller.
	ErrSynthesisDisabled = errors.New("synthesis is disabled for this user")
	// ErrOverloaded indicates that the distributed queue is above its depth threshold.
	ErrOverloaded = errors.New("synthesis queue is overloaded")
	// ErrTransactionAborted indicates that a state store transaction was rolled back.
	ErrTransactionAborted = errors.New("transaction aborted")
)

// IsDenial reports whether err is a denial that must leave no trace:
// no task created, no counters changed.
func IsDenial(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrSynthesisDisabled) ||
		errors.Is(err, ErrOverloaded)
}
