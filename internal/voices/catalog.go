// Package voices implements the voice catalog and the per-user enabled
// voice pools on top of the state store contract.
package voices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/google/uuid"
)

// ErrNameEmpty indicates a voice registration or rename without a name.
var ErrNameEmpty = errors.New("voice name cannot be empty")

// ErrVoiceExists indicates a registration whose id is already taken.
var ErrVoiceExists = errors.New("voice id already registered")

// Catalog owns voice records and enabled-pool membership. Referential
// integrity between pools and records is enforced here, not by the state
// store: every mutation that must be atomic runs in a single transaction.
type Catalog struct {
	store core.StateStore
	log   *logger.Logger
}

// NewCatalog creates a catalog over the given state store.
func NewCatalog(store core.StateStore, log *logger.Logger) *Catalog {
	return &Catalog{store: store, log: log}
}

// Register stores a new voice record and returns its id. A missing id is
// generated; a missing created-at is stamped. A caller-supplied id that is
// already taken is rejected rather than overwritten.
func (c *Catalog) Register(ctx context.Context, record core.VoiceRecord) (string, error) {
	if strings.TrimSpace(record.Name) == "" {
		return "", ErrNameEmpty
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	err := c.store.Transact(ctx, func(tx core.Tx) error {
		_, getErr := tx.Get(core.CollectionVoices, record.ID)
		if getErr == nil {
			return ErrVoiceExists
		}

		if !errors.Is(getErr, core.ErrNotFound) {
			return getErr
		}

		doc, marshalErr := json.Marshal(record)
		if marshalErr != nil {
			return fmt.Errorf("failed to encode voice '%s': %w", record.ID, marshalErr)
		}

		return tx.Put(core.CollectionVoices, record.ID, doc)
	})
	if err != nil {
		return "", fmt.Errorf("failed to register voice '%s': %w", record.ID, err)
	}

	c.log.Info("Registered voice '%s' (%s)", record.Name, record.ID)

	return record.ID, nil
}

// Get returns the voice record with the given id.
func (c *Catalog) Get(ctx context.Context, id string) (*core.VoiceRecord, error) {
	doc, err := c.store.Get(ctx, core.CollectionVoices, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load voice '%s': %w", id, err)
	}

	return decodeVoice(id, doc)
}

// Rename updates the display name of a voice.
func (c *Catalog) Rename(ctx context.Context, id, name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrNameEmpty
	}

	return c.updateVoice(ctx, id, func(record *core.VoiceRecord) {
		record.Name = name
	})
}

// UpdateSettings replaces the stored engine settings of a voice.
func (c *Catalog) UpdateSettings(ctx context.Context, id string, settings core.VoiceSettings) error {
	return c.updateVoice(ctx, id, func(record *core.VoiceRecord) {
		record.Settings = settings
	})
}

// SetEnabled flips the enabled flag of a voice.
func (c *Catalog) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return c.updateVoice(ctx, id, func(record *core.VoiceRecord) {
		record.Enabled = enabled
	})
}

// Delete removes a voice and purges its id from every user's pool, all in
// one transaction.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	err := c.store.Transact(ctx, func(tx core.Tx) error {
		deleteErr := tx.Delete(core.CollectionVoices, id)
		if deleteErr != nil {
			return deleteErr
		}

		pools, listErr := tx.List(core.CollectionVoicePools)
		if listErr != nil {
			return listErr
		}

		for userID, doc := range pools {
			pool, decodeErr := decodePool(doc)
			if decodeErr != nil {
				return decodeErr
			}

			if !slices.Contains(pool, id) {
				continue
			}

			pool = slices.DeleteFunc(pool, func(member string) bool { return member == id })

			putErr := putPool(tx, userID, pool)
			if putErr != nil {
				return putErr
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete voice '%s': %w", id, err)
	}

	c.log.Info("Deleted voice '%s' and purged pool memberships", id)

	return nil
}

// ListGlobal returns every global voice, sorted by name.
func (c *Catalog) ListGlobal(ctx context.Context) ([]core.VoiceRecord, error) {
	return c.list(ctx, func(record *core.VoiceRecord) bool {
		return record.Global()
	}, nil)
}

// ListForUser returns the union of global and user-owned voices. With
// usableOnly set, the result is narrowed to enabled voices present in the
// user's pool.
func (c *Catalog) ListForUser(ctx context.Context, userID string, usableOnly bool) ([]core.VoiceRecord, error) {
	var pool []string

	if usableOnly {
		members, err := c.PoolList(ctx, userID)
		if err != nil {
			return nil, err
		}

		pool = members
	}

	return c.list(ctx, func(record *core.VoiceRecord) bool {
		if !record.Global() && record.OwnerID != userID {
			return false
		}

		if usableOnly {
			return record.Enabled && slices.Contains(pool, record.ID)
		}

		return true
	}, nil)
}

// PoolAdd marks a voice usable for a user. The voice must exist.
func (c *Catalog) PoolAdd(ctx context.Context, userID, voiceID string) error {
	err := c.store.Transact(ctx, func(tx core.Tx) error {
		_, getErr := tx.Get(core.CollectionVoices, voiceID)
		if getErr != nil {
			return getErr
		}

		pool, poolErr := readPool(tx, userID)
		if poolErr != nil {
			return poolErr
		}

		if slices.Contains(pool, voiceID) {
			return nil
		}

		pool = append(pool, voiceID)
		sort.Strings(pool)

		return putPool(tx, userID, pool)
	})
	if err != nil {
		return fmt.Errorf("failed to add voice '%s' to pool of user '%s': %w", voiceID, userID, err)
	}

	return nil
}

// PoolRemove drops a voice from a user's pool. Removing an absent member
// is not an error.
func (c *Catalog) PoolRemove(ctx context.Context, userID, voiceID string) error {
	err := c.store.Transact(ctx, func(tx core.Tx) error {
		pool, poolErr := readPool(tx, userID)
		if poolErr != nil {
			return poolErr
		}

		if !slices.Contains(pool, voiceID) {
			return nil
		}

		pool = slices.DeleteFunc(pool, func(member string) bool { return member == voiceID })

		return putPool(tx, userID, pool)
	})
	if err != nil {
		return fmt.Errorf("failed to remove voice '%s' from pool of user '%s': %w", voiceID, userID, err)
	}

	return nil
}

// PoolList returns the sorted voice ids in a user's pool.
func (c *Catalog) PoolList(ctx context.Context, userID string) ([]string, error) {
	doc, err := c.store.Get(ctx, core.CollectionVoicePools, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load pool of user '%s': %w", userID, err)
	}

	return decodePool(doc)
}

// Stats summarizes the catalog.
func (c *Catalog) Stats(ctx context.Context) (core.VoiceStats, error) {
	records, err := c.list(ctx, func(*core.VoiceRecord) bool { return true }, nil)
	if err != nil {
		return core.VoiceStats{}, err
	}

	stats := core.VoiceStats{
		TotalVoices:   len(records),
		GlobalVoices:  0,
		UserVoices:    0,
		EnabledVoices: 0,
	}

	for i := range records {
		if records[i].Global() {
			stats.GlobalVoices++
		} else {
			stats.UserVoices++
		}

		if records[i].Enabled {
			stats.EnabledVoices++
		}
	}

	return stats, nil
}

func (c *Catalog) list(
	ctx context.Context,
	keep func(*core.VoiceRecord) bool,
	out []core.VoiceRecord,
) ([]core.VoiceRecord, error) {
	docs, err := c.store.List(ctx, core.CollectionVoices)
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}

	for id, doc := range docs {
		record, decodeErr := decodeVoice(id, doc)
		if decodeErr != nil {
			return nil, decodeErr
		}

		if keep(record) {
			out = append(out, *record)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (c *Catalog) updateVoice(ctx context.Context, id string, apply func(*core.VoiceRecord)) error {
	err := c.store.Transact(ctx, func(tx core.Tx) error {
		doc, getErr := tx.Get(core.CollectionVoices, id)
		if getErr != nil {
			return getErr
		}

		record, decodeErr := decodeVoice(id, doc)
		if decodeErr != nil {
			return decodeErr
		}

		apply(record)

		updated, marshalErr := json.Marshal(record)
		if marshalErr != nil {
			return fmt.Errorf("failed to encode voice '%s': %w", id, marshalErr)
		}

		return tx.Put(core.CollectionVoices, id, updated)
	})
	if err != nil {
		return fmt.Errorf("failed to update voice '%s': %w", id, err)
	}

	return nil
}

func decodeVoice(id string, doc []byte) (*core.VoiceRecord, error) {
	var record core.VoiceRecord

	err := json.Unmarshal(doc, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to decode voice '%s': %w", id, err)
	}

	return &record, nil
}

func readPool(tx core.Tx, userID string) ([]string, error) {
	doc, err := tx.Get(core.CollectionVoicePools, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return decodePool(doc)
}

func decodePool(doc []byte) ([]string, error) {
	var pool []string

	err := json.Unmarshal(doc, &pool)
	if err != nil {
		return nil, fmt.Errorf("failed to decode voice pool: %w", err)
	}

	return pool, nil
}

func putPool(tx core.Tx, userID string, pool []string) error {
	doc, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("failed to encode voice pool: %w", err)
	}

	return tx.Put(core.CollectionVoicePools, userID, doc)
}
