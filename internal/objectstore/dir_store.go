package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/tts-orchestrator/internal/core"
)

const dirStorePerm = 0o750

// ErrObjectKeyInvalid indicates a key that is not a plain file name.
var ErrObjectKeyInvalid = errors.New("object key must be a plain file name")

// DirAudioStore implements core.AudioStore on a local directory. It backs
// inline execution, where the synthesized audio stays on the machine that
// accepted the request and no broker infrastructure is running.
type DirAudioStore struct {
	root string
}

// NewDirAudioStore creates the directory if needed and returns a store
// rooted at it.
func NewDirAudioStore(root string) (*DirAudioStore, error) {
	err := os.MkdirAll(root, dirStorePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio directory '%s': %w", root, err)
	}

	return &DirAudioStore{root: root}, nil
}

// Upload writes the audio under root/key. Keys are opaque file names;
// path separators are rejected to keep writes inside the root.
func (d *DirAudioStore) Upload(_ context.Context, key string, data []byte) error {
	path, err := d.resolve(key)
	if err != nil {
		return err
	}

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write audio '%s': %w", key, err)
	}

	return nil
}

// Download reads the audio stored under root/key, or core.ErrNotFound.
func (d *DirAudioStore) Download(_ context.Context, key string) ([]byte, error) {
	path, err := d.resolve(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) // #nosec G304 -- resolve pins the path under root.
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("audio '%s': %w", key, core.ErrNotFound)
		}

		return nil, fmt.Errorf("failed to read audio '%s': %w", key, err)
	}

	return data, nil
}

func (d *DirAudioStore) resolve(key string) (string, error) {
	if key == "" {
		return "", ErrObjectKeyEmpty
	}

	if filepath.Base(key) != key {
		return "", fmt.Errorf("%w: '%s'", ErrObjectKeyInvalid, key)
	}

	return filepath.Join(d.root, key), nil
}
