package statestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/tts-orchestrator/internal/core"
)

// Backend names accepted by the factory.
const (
	BackendFile       = "file"
	BackendRelational = "relational"
)

var (
	// ErrUnknownBackend indicates an unrecognized storage backend name.
	ErrUnknownBackend = errors.New("unknown storage backend")
	// ErrUnknownDriver indicates an unrecognized relational driver name.
	ErrUnknownDriver = errors.New("unknown relational driver")
	// ErrStatePathEmpty indicates a file backend without a state path.
	ErrStatePathEmpty = errors.New("state file path cannot be empty")
	// ErrDSNEmpty indicates a relational backend without a DSN.
	ErrDSNEmpty = errors.New("relational DSN cannot be empty")
)

// Options selects and parameterizes one backend. The choice is made once,
// at construction time; a running process never switches backends.
type Options struct {
	Backend          string
	FileStatePath    string
	RelationalDriver string
	RelationalDSN    string
}

// New builds the StateStore selected by opts.
func New(ctx context.Context, opts Options) (core.StateStore, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendFile:
		if opts.FileStatePath == "" {
			return nil, ErrStatePathEmpty
		}

		return NewFileStore(opts.FileStatePath)
	case BackendRelational:
		driver, err := normalizeDriver(opts.RelationalDriver)
		if err != nil {
			return nil, err
		}

		if opts.RelationalDSN == "" {
			return nil, ErrDSNEmpty
		}

		return NewRelationalStore(ctx, driver, opts.RelationalDSN)
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownBackend, opts.Backend)
	}
}
