package objectstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/objectstore"
)

func TestDirAudioStore_UploadDownload(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewDirAudioStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	audio := []byte("RIFF....WAVE local audio payload")

	require.NoError(t, store.Upload(ctx, "result.wav", audio))

	downloaded, err := store.Download(ctx, "result.wav")
	require.NoError(t, err)
	require.Equal(t, audio, downloaded)

	_, err = store.Download(ctx, "missing.wav")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestDirAudioStore_RejectsBadKeys(t *testing.T) {
	t.Parallel()

	store, err := objectstore.NewDirAudioStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	require.ErrorIs(t, store.Upload(ctx, "", []byte("x")), objectstore.ErrObjectKeyEmpty)
	require.ErrorIs(t,
		store.Upload(ctx, "../escape.wav", []byte("x")), objectstore.ErrObjectKeyInvalid)
}
