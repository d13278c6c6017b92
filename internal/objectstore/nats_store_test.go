// Package objectstore_test tests the JetStream audio store.
package objectstore_test

import (
	"context"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/objectstore"
)

// startTestServer starts an in-memory NATS server with JetStream enabled.
func startTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func newTestStore(t *testing.T) *objectstore.NatsAudioStore {
	t.Helper()

	natsServer, natsConnection := startTestServer(t)
	t.Cleanup(func() {
		natsConnection.Close()
		natsServer.Shutdown()
	})

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "synthesized-audio")
	require.NoError(t, err)

	return store
}

func TestNatsAudioStore_UploadDownload(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	audio := []byte("RIFF....WAVE fake audio payload")

	err := store.Upload(ctx, "0f2a-result.wav", audio)
	require.NoError(t, err)

	downloaded, err := store.Download(ctx, "0f2a-result.wav")
	require.NoError(t, err)
	require.Equal(t, audio, downloaded)
}

func TestNatsAudioStore_DownloadMissingKey(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Download(context.Background(), "no-such-object.wav")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestNatsAudioStore_RejectsEmptyKey(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	err := store.Upload(ctx, "", []byte("audio"))
	require.ErrorIs(t, err, objectstore.ErrObjectKeyEmpty)

	_, err = store.Download(ctx, "")
	require.ErrorIs(t, err, objectstore.ErrObjectKeyEmpty)
}
