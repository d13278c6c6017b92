// Package statestore provides the two StateStore backends: a single-file
// JSON document store and a relational store over database/sql, plus the
// factory that selects one at construction time.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/book-expert/tts-orchestrator/internal/core"
)

const (
	stateFilePermissions = 0o600
	stateDirPermissions  = 0o750
)

// fileDocument is the full on-disk document. Every mutation rewrites it
// whole, through a temporary file renamed over the target, so a concurrent
// reader observes either the old or the new document, never a mix.
type fileDocument struct {
	UpdatedAt   string                                `json:"updated_at"`
	Collections map[string]map[string]json.RawMessage `json:"collections"`
}

func newFileDocument() *fileDocument {
	return &fileDocument{
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		Collections: make(map[string]map[string]json.RawMessage),
	}
}

// FileStore implements core.StateStore on a single JSON document.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore opens (or initializes) the document at path.
func NewFileStore(path string) (*FileStore, error) {
	err := os.MkdirAll(filepath.Dir(path), stateDirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	store := &FileStore{path: path, mu: sync.Mutex{}}

	_, statErr := os.Stat(path)
	if errors.Is(statErr, os.ErrNotExist) {
		writeErr := store.writeDocument(newFileDocument())
		if writeErr != nil {
			return nil, writeErr
		}
	}

	return store, nil
}

// Get returns the document stored under (collection, key).
func (s *FileStore) Get(_ context.Context, collection, key string) ([]byte, error) {
	doc, err := s.readDocument()
	if err != nil {
		return nil, err
	}

	record, ok := doc.Collections[collection][key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}

	return record, nil
}

// Put stores the document under (collection, key), overwriting any
// previous value.
func (s *FileStore) Put(ctx context.Context, collection, key string, doc []byte) error {
	return s.Transact(ctx, func(tx core.Tx) error {
		return tx.Put(collection, key, doc)
	})
}

// Delete removes the record under (collection, key).
func (s *FileStore) Delete(ctx context.Context, collection, key string) error {
	return s.Transact(ctx, func(tx core.Tx) error {
		return tx.Delete(collection, key)
	})
}

// List returns a point-in-time snapshot of the collection.
func (s *FileStore) List(_ context.Context, collection string) (map[string][]byte, error) {
	doc, err := s.readDocument()
	if err != nil {
		return nil, err
	}

	return copyCollection(doc.Collections[collection]), nil
}

// Transact serializes mutations behind the store mutex, applies fn to an
// in-memory copy of the document, and publishes the result with one atomic
// rename. An error from fn leaves the file untouched.
func (s *FileStore) Transact(_ context.Context, fn func(tx core.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}

	txView := &fileTx{doc: doc}

	fnErr := fn(txView)
	if fnErr != nil {
		if errors.Is(fnErr, core.ErrNotFound) {
			return fnErr
		}

		return fmt.Errorf("%w: %w", core.ErrTransactionAborted, fnErr)
	}

	doc.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)

	return s.writeDocument(doc)
}

// Close releases nothing for the file backend; the document is re-opened
// per operation.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) readDocument() (*fileDocument, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newFileDocument(), nil
		}

		return nil, fmt.Errorf("failed to read state file '%s': %w", s.path, err)
	}

	var doc fileDocument

	unmarshalErr := json.Unmarshal(raw, &doc)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to decode state file '%s': %w", s.path, unmarshalErr)
	}

	if doc.Collections == nil {
		doc.Collections = make(map[string]map[string]json.RawMessage)
	}

	return &doc, nil
}

func (s *FileStore) writeDocument(doc *fileDocument) error {
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}

	tmpName := tmp.Name()

	_, writeErr := tmp.Write(body)
	closeErr := tmp.Close()

	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)

		if writeErr != nil {
			return fmt.Errorf("failed to write temporary state file: %w", writeErr)
		}

		return fmt.Errorf("failed to close temporary state file: %w", closeErr)
	}

	chmodErr := os.Chmod(tmpName, stateFilePermissions)
	if chmodErr != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to set state file permissions: %w", chmodErr)
	}

	renameErr := os.Rename(tmpName, s.path)
	if renameErr != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to replace state file '%s': %w", s.path, renameErr)
	}

	return nil
}

// fileTx mutates the in-memory copy of the document. The copy becomes
// visible only when the enclosing Transact renames it into place.
type fileTx struct {
	doc *fileDocument
}

func (t *fileTx) Get(collection, key string) ([]byte, error) {
	record, ok := t.doc.Collections[collection][key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}

	return record, nil
}

func (t *fileTx) Put(collection, key string, doc []byte) error {
	if t.doc.Collections[collection] == nil {
		t.doc.Collections[collection] = make(map[string]json.RawMessage)
	}

	t.doc.Collections[collection][key] = append([]byte(nil), doc...)

	return nil
}

func (t *fileTx) Delete(collection, key string) error {
	_, ok := t.doc.Collections[collection][key]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, key, core.ErrNotFound)
	}

	delete(t.doc.Collections[collection], key)

	return nil
}

func (t *fileTx) List(collection string) (map[string][]byte, error) {
	return copyCollection(t.doc.Collections[collection]), nil
}

func copyCollection(records map[string]json.RawMessage) map[string][]byte {
	out := make(map[string][]byte, len(records))
	for key, doc := range records {
		out[key] = append([]byte(nil), doc...)
	}

	return out
}
