// Package objectstore stores synthesized audio in a NATS JetStream object
// store bucket. Task records reference audio by object key only; the bytes
// never pass through the state store.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/tts-orchestrator/internal/core"
)

// ErrObjectKeyEmpty indicates an upload or download with no object key.
var ErrObjectKeyEmpty = errors.New("object key cannot be empty")

// NatsAudioStore implements core.AudioStore on a JetStream object store
// bucket.
type NatsAudioStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates a NatsAudioStore bound to bucketName. The bucket is created
// on first use; if it already exists the store binds to it.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsAudioStore, error) {
	// Use a "create-first" approach.
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Synthesized audio for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})

	// If the bucket already exists, bind to it.
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketExists) {
			store, err = jetstreamContext.ObjectStore(bucketName)
			if err != nil {
				return nil, fmt.Errorf(
					"failed to bind to existing audio bucket '%s': %w", bucketName, err)
			}
		} else {
			// For any other error, fail.
			return nil, fmt.Errorf(
				"failed to create audio bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsAudioStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Upload saves synthesized audio under the given object key.
func (n *NatsAudioStore) Upload(_ context.Context, key string, data []byte) error {
	if key == "" {
		return ErrObjectKeyEmpty
	}

	reader := bytes.NewReader(data)

	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, reader)
	if err != nil {
		return fmt.Errorf(
			"failed to put audio '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// Download retrieves synthesized audio by object key. A missing object
// surfaces core.ErrNotFound.
func (n *NatsAudioStore) Download(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrObjectKeyEmpty
	}

	obj, err := n.store.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, fmt.Errorf("audio '%s': %w", key, core.ErrNotFound)
		}

		return nil, fmt.Errorf(
			"failed to get audio '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read audio '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close audio '%s': %w", key, closeErr)
	}

	return data, nil
}
