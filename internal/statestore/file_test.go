package statestore_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_InitializesDocumentOnFirstOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.json")

	_, err := statestore.NewFileStore(path)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(raw), "initial state file must be a complete JSON document")
}

func TestFileStore_ReopenSeesPriorWrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	first, err := statestore.NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, core.CollectionVoices, "v1", []byte(`{"name":"alto"}`)))

	second, err := statestore.NewFileStore(path)
	require.NoError(t, err)

	doc, err := second.Get(ctx, core.CollectionVoices, "v1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"alto"}`, string(doc))
}

// A reader racing with writers must always observe a complete document:
// the temp-file-and-rename protocol never exposes a partial write.
func TestFileStore_ReaderNeverSeesPartialDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	store, err := statestore.NewFileStore(path)
	require.NoError(t, err)

	const rounds = 50

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		for i := range rounds {
			doc := fmt.Sprintf(`{"round":%d,"padding":%q}`, i, string(make([]byte, 4096)))
			_ = store.Put(ctx, core.CollectionTasks, "t1", []byte(doc))
		}
	}()

	for range rounds {
		raw, readErr := os.ReadFile(path)
		require.NoError(t, readErr)
		assert.True(t, json.Valid(raw), "on-disk state must always be valid JSON")
	}

	wg.Wait()
}

func TestFileStore_AbortedTransactLeavesFileUntouched(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	store, err := statestore.NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, core.CollectionVoices, "v1", []byte(`{"v":1}`)))

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = store.Transact(ctx, func(tx core.Tx) error {
		putErr := tx.Put(core.CollectionVoices, "v2", []byte(`{"v":2}`))
		if putErr != nil {
			return putErr
		}

		return errContractBoom
	})
	require.ErrorIs(t, err, core.ErrTransactionAborted)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}
