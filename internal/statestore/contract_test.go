// Package statestore_test runs one shared contract suite against both
// backends to guarantee they are observably equivalent.
package statestore_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errContractBoom = fmt.Errorf("boom")

type backendFactory struct {
	name string
	open func(t *testing.T) core.StateStore
}

func newFileBackend(t *testing.T) core.StateStore {
	t.Helper()

	store, err := statestore.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)

	return store
}

func newSQLiteBackend(t *testing.T) core.StateStore {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "state.db")

	store, err := statestore.NewRelationalStore(context.Background(), statestore.DriverSQLite, dsn)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func backends() []backendFactory {
	return []backendFactory{
		{name: "file", open: newFileBackend},
		{name: "relational", open: newSQLiteBackend},
	}
}

func TestContract_PutGetRoundTrip(t *testing.T) {
	t.Parallel()

	for _, backend := range backends() {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()

			store := backend.open(t)
			ctx := context.Background()

			err := store.Put(ctx, core.CollectionVoices, "v1", []byte(`{"name":"alto"}`))
			require.NoError(t, err)

			doc, err := store.Get(ctx, core.CollectionVoices, "v1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"name":"alto"}`, string(doc))

			// Upsert semantics: a second put overwrites.
			err = store.Put(ctx, core.CollectionVoices, "v1", []byte(`{"name":"bass"}`))
			require.NoError(t, err)

			doc, err = store.Get(ctx, core.CollectionVoices, "v1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"name":"bass"}`, string(doc))
		})
	}
}

func TestContract_GetMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	for _, backend := range backends() {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()

			store := backend.open(t)

			_, err := store.Get(context.Background(), core.CollectionVoices, "absent")
			require.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestContract_DeleteRemovesAndReportsMissing(t *testing.T) {
	t.Parallel()

	for _, backend := range backends() {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()

			store := backend.open(t)
			ctx := context.Background()

			require.NoError(t, store.Put(ctx, core.CollectionTasks, "t1", []byte(`{}`)))
			require.NoError(t, store.Delete(ctx, core.CollectionTasks, "t1"))

			_, err := store.Get(ctx, core.CollectionTasks, "t1")
			require.ErrorIs(t, err, core.ErrNotFound)

			err = store.Delete(ctx, core.CollectionTasks, "t1")
			require.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestContract_ListReturnsSnapshot(t *testing.T) {
	t.Parallel()

	for _, backend := range backends() {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()

			store := backend.open(t)
			ctx := context.Background()

			for i := range 5 {
				key := fmt.Sprintf("v%d", i)
				require.NoError(t, store.Put(ctx, core.CollectionVoices, key, []byte(`{"n":true}`)))
			}

			require.NoError(t, store.Put(ctx, core.CollectionTasks, "t1", []byte(`{}`)))

			records, err := store.List(ctx, core.CollectionVoices)
			require.NoError(t, err)
			assert.Len(t, records, 5)

			empty, err := store.List(ctx, "no_such_collection")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestContract_TransactIsAtomic(t *testing.T) {
	t.Parallel()

	for _, backend := range backends() {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()

			store := backend.open(t)
			ctx := context.Background()

			require.NoError(t, store.Put(ctx, core.CollectionVoices, "keep", []byte(`{"v":1}`)))

			err := store.Transact(ctx, func(tx core.Tx) error {
				putErr := tx.Put(core.CollectionVoices, "discard", []byte(`{"v":2}`))
				if putErr != nil {
					return putErr
				}

				putErr = tx.Put(core.CollectionVoices, "keep", []byte(`{"v":3}`))
				if putErr != nil {
					return putErr
				}

				return errContractBoom
			})
			require.ErrorIs(t, err, core.ErrTransactionAborted)

			// Nothing from the aborted transaction is visible.
			_, err = store.Get(ctx, core.CollectionVoices, "discard")
			require.ErrorIs(t, err, core.ErrNotFound)

			doc, err := store.Get(ctx, core.CollectionVoices, "keep")
			require.NoError(t, err)
			assert.JSONEq(t, `{"v":1}`, string(doc))
		})
	}
}

func TestContract_TransactSeesOwnWrites(t *testing.T) {
	t.Parallel()

	for _, backend := range backends() {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()

			store := backend.open(t)

			err := store.Transact(context.Background(), func(tx core.Tx) error {
				putErr := tx.Put(core.CollectionVoices, "v1", []byte(`{"n":"x"}`))
				if putErr != nil {
					return putErr
				}

				doc, getErr := tx.Get(core.CollectionVoices, "v1")
				if getErr != nil {
					return getErr
				}

				assert.JSONEq(t, `{"n":"x"}`, string(doc))

				records, listErr := tx.List(core.CollectionVoices)
				if listErr != nil {
					return listErr
				}

				assert.Len(t, records, 1)

				return tx.Delete(core.CollectionVoices, "v1")
			})
			require.NoError(t, err)

			_, err = store.Get(context.Background(), core.CollectionVoices, "v1")
			require.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func TestContract_ConcurrentPutsToDistinctKeysLoseNothing(t *testing.T) {
	t.Parallel()

	for _, backend := range backends() {
		t.Run(backend.name, func(t *testing.T) {
			t.Parallel()

			store := backend.open(t)
			ctx := context.Background()

			const writers = 16

			var wg sync.WaitGroup

			errs := make([]error, writers)

			for i := range writers {
				wg.Add(1)

				go func() {
					defer wg.Done()

					key := fmt.Sprintf("key-%02d", i)
					errs[i] = store.Put(ctx, core.CollectionUsageDaily, key,
						[]byte(fmt.Sprintf(`{"writer":%d}`, i)))
				}()
			}

			wg.Wait()

			for i, err := range errs {
				require.NoError(t, err, "writer %d", i)
			}

			records, err := store.List(ctx, core.CollectionUsageDaily)
			require.NoError(t, err)
			require.Len(t, records, writers)

			for i := range writers {
				key := fmt.Sprintf("key-%02d", i)
				assert.JSONEq(t, fmt.Sprintf(`{"writer":%d}`, i), string(records[key]))
			}
		})
	}
}
