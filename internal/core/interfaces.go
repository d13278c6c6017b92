// Package core defines the domain model and the contracts between the
// orchestration layers: the state store abstraction, the synthesis engine
// boundary, and the task queue broker.
package core

import "context"

// Collection names used by every StateStore backend. Records are opaque
// JSON documents; the backends have no knowledge of their shape.
const (
	CollectionVoices       = "voices"
	CollectionVoicePools   = "voice_pools"
	CollectionUserLimits   = "user_limits"
	CollectionUsageDaily   = "usage_daily"
	CollectionTasks        = "tasks"
	CollectionReservations = "reservations"
)

// Collections lists every known collection, in migration order.
func Collections() []string {
	return []string{
		CollectionVoices,
		CollectionVoicePools,
		CollectionUserLimits,
		CollectionUsageDaily,
		CollectionTasks,
		CollectionReservations,
	}
}

// Tx is the view of a state store inside a transaction. All operations
// observe writes made earlier in the same transaction.
type Tx interface {
	// Get returns the document stored under (collection, key), or ErrNotFound.
	Get(collection, key string) ([]byte, error)
	// Put stores the document under (collection, key), overwriting any
	// previous value.
	Put(collection, key string, doc []byte) error
	// Delete removes the document under (collection, key), or returns
	// ErrNotFound when there is nothing to remove.
	Delete(collection, key string) error
	// List returns a snapshot of every document in the collection, keyed
	// by record key. An unknown collection yields an empty map.
	List(collection string) (map[string][]byte, error)
}

// StateStore is the persistence contract shared by the file-backed and the
// relational backends. A put followed by a get of the same key returns the
// written document; concurrent puts to different keys never corrupt each
// other; Transact applies all of the callback's writes or none of them.
type StateStore interface {
	Get(ctx context.Context, collection, key string) ([]byte, error)
	Put(ctx context.Context, collection, key string, doc []byte) error
	Delete(ctx context.Context, collection, key string) error
	List(ctx context.Context, collection string) (map[string][]byte, error)
	// Transact runs fn against a transactional view. Returning an error
	// from fn discards every write and surfaces the error wrapped in
	// ErrTransactionAborted.
	Transact(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Engine is the narrow contract to the external speech-synthesis model:
// text plus a voice reference in, audio bytes plus duration out. The caller
// bounds the invocation with the context deadline; the engine itself
// enforces no timeout.
type Engine interface {
	Synthesize(
		ctx context.Context,
		text string,
		voice VoiceReference,
		opts SynthesisOptions,
	) (SynthesisOutput, error)
}

// Broker is the task queue contract used by the dispatcher in distributed
// mode. Delivery is at-least-once; messages carry only the task id, the
// durable record stays in the state store.
type Broker interface {
	Publish(ctx context.Context, taskID string) error
	// QueueDepth returns the number of task messages currently queued.
	QueueDepth(ctx context.Context) (uint64, error)
}

// AudioStore holds synthesized audio results keyed by an opaque object key.
type AudioStore interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
}
