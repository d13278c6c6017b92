// Package migrate reconciles the contents of one state store into another.
// It exists for the one-way move from the file backend to the relational
// backend, but works across any two store implementations.
//
// The procedure is not safe to run concurrently with live writers of either
// store: the read phase is a point-in-time snapshot per collection, and a
// writer racing the copy can be lost.
package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"

	"github.com/book-expert/tts-orchestrator/internal/core"
)

// Mode selects how existing destination records are treated.
type Mode string

// Migration modes. Replace clears each destination collection before
// copying; Merge upserts source records and leaves destination-only records
// alone.
const (
	ModeReplace Mode = "replace"
	ModeMerge   Mode = "merge"
)

// ErrUnknownMode indicates an unrecognized migration mode.
var ErrUnknownMode = errors.New("unknown migration mode")

// CollectionSummary counts what happened to one collection.
type CollectionSummary struct {
	Read        int `json:"read"`
	Inserted    int `json:"inserted"`
	Overwritten int `json:"overwritten"`
	Cleared     int `json:"cleared"`
}

// Summary reports the outcome of one migration run.
type Summary struct {
	Mode        Mode                         `json:"mode"`
	Collections map[string]CollectionSummary `json:"collections"`
}

// Run copies the named collections from src into dst under the given mode.
// All destination writes happen in a single transaction: a failed run
// leaves dst exactly as it was. An empty collections slice migrates every
// known collection.
func Run(
	ctx context.Context,
	src, dst core.StateStore,
	mode Mode,
	collections []string,
	log *logger.Logger,
) (Summary, error) {
	if mode != ModeReplace && mode != ModeMerge {
		return Summary{}, fmt.Errorf("%w: '%s'", ErrUnknownMode, mode)
	}

	if len(collections) == 0 {
		collections = core.Collections()
	}

	// Snapshot phase: one list per collection.
	snapshots := make(map[string]map[string][]byte, len(collections))

	for _, collection := range collections {
		records, err := src.List(ctx, collection)
		if err != nil {
			return Summary{}, fmt.Errorf(
				"failed to snapshot collection '%s': %w", collection, err)
		}

		snapshots[collection] = records
	}

	summary := Summary{
		Mode:        mode,
		Collections: make(map[string]CollectionSummary, len(collections)),
	}

	err := dst.Transact(ctx, func(tx core.Tx) error {
		for _, collection := range collections {
			collectionSummary, copyErr := copyCollection(
				tx, collection, snapshots[collection], mode)
			if copyErr != nil {
				return copyErr
			}

			summary.Collections[collection] = collectionSummary
		}

		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("migration transaction failed: %w", err)
	}

	for _, collection := range collections {
		counts := summary.Collections[collection]
		log.Info("Migrated collection '%s': read=%d inserted=%d overwritten=%d cleared=%d",
			collection, counts.Read, counts.Inserted, counts.Overwritten, counts.Cleared)
	}

	return summary, nil
}

func copyCollection(
	tx core.Tx,
	collection string,
	records map[string][]byte,
	mode Mode,
) (CollectionSummary, error) {
	summary := CollectionSummary{Read: len(records)}

	existing, err := tx.List(collection)
	if err != nil {
		return CollectionSummary{}, fmt.Errorf(
			"failed to list destination collection '%s': %w", collection, err)
	}

	if mode == ModeReplace {
		for key := range existing {
			deleteErr := tx.Delete(collection, key)
			if deleteErr != nil {
				return CollectionSummary{}, fmt.Errorf(
					"failed to clear record '%s/%s': %w", collection, key, deleteErr)
			}

			summary.Cleared++
		}

		existing = nil
	}

	for key, doc := range records {
		if _, present := existing[key]; present {
			summary.Overwritten++
		} else {
			summary.Inserted++
		}

		putErr := tx.Put(collection, key, doc)
		if putErr != nil {
			return CollectionSummary{}, fmt.Errorf(
				"failed to copy record '%s/%s': %w", collection, key, putErr)
		}
	}

	return summary, nil
}
