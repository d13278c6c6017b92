// Package broker provides the NATS JetStream queue that carries task IDs
// from the dispatcher to the synthesis workers.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
)

// ErrStreamNameEmpty indicates a broker configured without a stream name.
var ErrStreamNameEmpty = errors.New("stream name cannot be empty")

// NatsBroker publishes and consumes synthesis task IDs over a JetStream
// work-queue stream. Messages carry only the task ID; the task record in
// the state store is the source of truth for everything else.
type NatsBroker struct {
	jetstreamContext nats.JetStreamContext
	stream           string
	subject          string
	queueGroup       string
	log              *logger.Logger
}

// New creates a broker bound to the given stream and subject. The stream
// is created on first use; if it already exists the broker binds to it.
func New(
	jetstreamContext nats.JetStreamContext,
	stream, subject, queueGroup string,
	log *logger.Logger,
) (*NatsBroker, error) {
	if stream == "" {
		return nil, ErrStreamNameEmpty
	}

	// Use a "create-first" approach.
	_, err := jetstreamContext.AddStream(&nats.StreamConfig{
		Name:      stream,
		Subjects:  []string{subject},
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
		Replicas:  1,
	})
	if err != nil {
		// If the stream already exists, bind to it.
		if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create stream '%s': %w", stream, err)
		}

		_, infoErr := jetstreamContext.StreamInfo(stream)
		if infoErr != nil {
			return nil, fmt.Errorf(
				"failed to bind to existing stream '%s': %w", stream, infoErr)
		}
	}

	return &NatsBroker{
		jetstreamContext: jetstreamContext,
		stream:           stream,
		subject:          subject,
		queueGroup:       queueGroup,
		log:              log,
	}, nil
}

// Publish enqueues a task ID for the workers.
func (b *NatsBroker) Publish(ctx context.Context, taskID string) error {
	_, err := b.jetstreamContext.Publish(b.subject, []byte(taskID), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish task '%s': %w", taskID, err)
	}

	return nil
}

// QueueDepth reports how many task IDs are waiting in the stream.
func (b *NatsBroker) QueueDepth(_ context.Context) (uint64, error) {
	info, err := b.jetstreamContext.StreamInfo(b.stream)
	if err != nil {
		return 0, fmt.Errorf("failed to read stream '%s': %w", b.stream, err)
	}

	return info.State.Msgs, nil
}

// Consume subscribes to the stream as part of the broker's queue group and
// invokes handler for every task ID. Each message is acknowledged after the
// handler returns: a task that fails is recorded as failed in the state
// store, not redelivered. Consume blocks until ctx is cancelled, then drains
// the subscription.
func (b *NatsBroker) Consume(ctx context.Context, handler func(taskID string)) error {
	sub, err := b.jetstreamContext.QueueSubscribe(
		b.subject,
		b.queueGroup,
		func(msg *nats.Msg) {
			handler(string(msg.Data))

			ackErr := msg.Ack()
			if ackErr != nil {
				b.log.Warn("Failed to acknowledge task '%s': %v", string(msg.Data), ackErr)
			}
		},
		nats.ManualAck(),
		nats.Durable(b.queueGroup),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject '%s': %w", b.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}
