// Package limits enforces per-user usage limits with a two-phase quota
// reservation: CheckAndReserve debits the daily counter and records a
// reservation, which exactly one later Commit or Rollback consumes.
package limits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/google/uuid"
)

const dayFormat = "2006-01-02"

// Defaults are the configured global limits, overridable per user.
type Defaults struct {
	MaxTextLength    int
	DailyLimit       int
	PriorityLevel    int
	SynthesisEnabled bool
	RetentionDays    int
}

// Tracker reads and writes usage state through the state store.
type Tracker struct {
	store    core.StateStore
	defaults Defaults
	log      *logger.Logger
	now      func() time.Time
}

// NewTracker creates a tracker with the given defaults.
func NewTracker(store core.StateStore, defaults Defaults, log *logger.Logger) *Tracker {
	if defaults.RetentionDays < 2 {
		defaults.RetentionDays = 2
	}

	return &Tracker{
		store:    store,
		defaults: defaults,
		log:      log,
		now:      time.Now,
	}
}

// LimitsFor returns the effective limits for a user: the stored per-user
// override merged over the defaults.
func (t *Tracker) LimitsFor(ctx context.Context, userID string) (core.UserLimits, error) {
	limits := core.UserLimits{
		MaxTextLength:    t.defaults.MaxTextLength,
		DailyLimit:       t.defaults.DailyLimit,
		PriorityLevel:    t.defaults.PriorityLevel,
		SynthesisEnabled: t.defaults.SynthesisEnabled,
	}

	doc, err := t.store.Get(ctx, core.CollectionUserLimits, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return limits, nil
		}

		return core.UserLimits{}, fmt.Errorf("failed to load limits for user '%s': %w", userID, err)
	}

	patch, err := decodePatch(doc)
	if err != nil {
		return core.UserLimits{}, err
	}

	applyPatch(&limits, patch)

	return limits, nil
}

// SetUserLimits merges a partial override into the stored per-user patch.
func (t *Tracker) SetUserLimits(ctx context.Context, userID string, patch core.LimitsPatch) error {
	err := t.store.Transact(ctx, func(tx core.Tx) error {
		stored := core.LimitsPatch{
			MaxTextLength:    nil,
			DailyLimit:       nil,
			PriorityLevel:    nil,
			SynthesisEnabled: nil,
		}

		doc, getErr := tx.Get(core.CollectionUserLimits, userID)
		if getErr == nil {
			decoded, decodeErr := decodePatch(doc)
			if decodeErr != nil {
				return decodeErr
			}

			stored = decoded
		} else if !errors.Is(getErr, core.ErrNotFound) {
			return getErr
		}

		mergePatch(&stored, patch)

		updated, marshalErr := json.Marshal(stored)
		if marshalErr != nil {
			return fmt.Errorf("failed to encode limits patch: %w", marshalErr)
		}

		return tx.Put(core.CollectionUserLimits, userID, updated)
	})
	if err != nil {
		return fmt.Errorf("failed to update limits for user '%s': %w", userID, err)
	}

	return nil
}

// CheckAndReserve admits one request of textLength characters, debiting
// today's counter and persisting an open reservation. Denials mutate no
// state.
func (t *Tracker) CheckAndReserve(ctx context.Context, userID string, textLength int) (*core.Reservation, error) {
	limits, err := t.LimitsFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !limits.SynthesisEnabled {
		return nil, fmt.Errorf("user '%s': %w", userID, core.ErrSynthesisDisabled)
	}

	day := t.now().UTC().Format(dayFormat)
	reservation := &core.Reservation{
		ID:         uuid.NewString(),
		UserID:     userID,
		Day:        day,
		TextLength: textLength,
		CreatedAt:  t.now().UTC(),
	}

	err = t.store.Transact(ctx, func(tx core.Tx) error {
		usage, usageErr := readUsage(tx, day, userID)
		if usageErr != nil {
			return usageErr
		}

		if usage.RequestsCount >= limits.DailyLimit {
			return fmt.Errorf("limit %d, used %d: %w",
				limits.DailyLimit, usage.RequestsCount, core.ErrQuotaExceeded)
		}

		usage.RequestsCount++
		usage.TotalCharacters += textLength

		writeErr := writeUsage(tx, day, userID, usage)
		if writeErr != nil {
			return writeErr
		}

		reservationDoc, marshalErr := json.Marshal(reservation)
		if marshalErr != nil {
			return fmt.Errorf("failed to encode reservation: %w", marshalErr)
		}

		putErr := tx.Put(core.CollectionReservations, reservation.ID, reservationDoc)
		if putErr != nil {
			return putErr
		}

		return t.pruneUsage(tx)
	})
	if err != nil {
		if errors.Is(err, core.ErrQuotaExceeded) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to reserve quota for user '%s': %w", userID, err)
	}

	return reservation, nil
}

// Commit finalizes a reservation after a successful synthesis, recording
// the produced duration. Committing a consumed or unknown reservation is a
// no-op.
func (t *Tracker) Commit(ctx context.Context, reservationID string, durationSeconds float64) error {
	return t.consume(ctx, reservationID, func(usage *core.UsageCounter) {
		usage.SuccessfulRequests++

		if durationSeconds > 0 {
			usage.TotalDurationSec += durationSeconds
		}
	})
}

// Rollback returns a reservation's debit to the counter, restoring it to
// its pre-reservation value. A second rollback finds no reservation and
// credits nothing.
func (t *Tracker) Rollback(ctx context.Context, reservationID string) error {
	return t.consume(ctx, reservationID, nil)
}

// UsageFor returns the user's counter for the given day.
func (t *Tracker) UsageFor(ctx context.Context, userID string, day time.Time) (core.UsageCounter, error) {
	var usage core.UsageCounter

	err := t.store.Transact(ctx, func(tx core.Tx) error {
		read, readErr := readUsage(tx, day.UTC().Format(dayFormat), userID)
		if readErr != nil {
			return readErr
		}

		usage = read

		return nil
	})
	if err != nil {
		return core.UsageCounter{}, fmt.Errorf("failed to load usage for user '%s': %w", userID, err)
	}

	return usage, nil
}

// UserStats aggregates a user's counters over the trailing window of days.
func (t *Tracker) UserStats(ctx context.Context, userID string, days int) (core.UsageCounter, error) {
	if days < 1 {
		days = 1
	}

	records, err := t.store.List(ctx, core.CollectionUsageDaily)
	if err != nil {
		return core.UsageCounter{}, fmt.Errorf("failed to list usage: %w", err)
	}

	today := t.now().UTC()
	total := core.UsageCounter{
		RequestsCount:      0,
		TotalCharacters:    0,
		TotalDurationSec:   0,
		SuccessfulRequests: 0,
		FailedRequests:     0,
	}

	for offset := range days {
		day := today.AddDate(0, 0, -offset).Format(dayFormat)

		doc, ok := records[core.UsageDayKey(day, userID)]
		if !ok {
			continue
		}

		var usage core.UsageCounter

		decodeErr := json.Unmarshal(doc, &usage)
		if decodeErr != nil {
			return core.UsageCounter{}, fmt.Errorf("failed to decode usage record: %w", decodeErr)
		}

		total.RequestsCount += usage.RequestsCount
		total.TotalCharacters += usage.TotalCharacters
		total.TotalDurationSec += usage.TotalDurationSec
		total.SuccessfulRequests += usage.SuccessfulRequests
		total.FailedRequests += usage.FailedRequests
	}

	return total, nil
}

// consume loads a reservation, applies the optional success bookkeeping or
// reverses the debit, and deletes the reservation, all in one transaction.
func (t *Tracker) consume(ctx context.Context, reservationID string, onCommit func(*core.UsageCounter)) error {
	err := t.store.Transact(ctx, func(tx core.Tx) error {
		doc, getErr := tx.Get(core.CollectionReservations, reservationID)
		if getErr != nil {
			if errors.Is(getErr, core.ErrNotFound) {
				t.log.Warn("Reservation '%s' already consumed or unknown", reservationID)

				return nil
			}

			return getErr
		}

		var reservation core.Reservation

		decodeErr := json.Unmarshal(doc, &reservation)
		if decodeErr != nil {
			return fmt.Errorf("failed to decode reservation: %w", decodeErr)
		}

		usage, usageErr := readUsage(tx, reservation.Day, reservation.UserID)
		if usageErr != nil {
			return usageErr
		}

		if onCommit != nil {
			onCommit(&usage)
		} else {
			usage.RequestsCount = max(0, usage.RequestsCount-1)
			usage.TotalCharacters = max(0, usage.TotalCharacters-reservation.TextLength)
			usage.FailedRequests++
		}

		writeErr := writeUsage(tx, reservation.Day, reservation.UserID, usage)
		if writeErr != nil {
			return writeErr
		}

		return tx.Delete(core.CollectionReservations, reservationID)
	})
	if err != nil {
		return fmt.Errorf("failed to consume reservation '%s': %w", reservationID, err)
	}

	return nil
}

// pruneUsage drops closed days older than the retention window. Stale days
// are removed whole, never zeroed in place.
func (t *Tracker) pruneUsage(tx core.Tx) error {
	records, err := tx.List(core.CollectionUsageDaily)
	if err != nil {
		return err
	}

	threshold := t.now().UTC().AddDate(0, 0, -t.defaults.RetentionDays).Format(dayFormat)

	for key := range records {
		day, _, found := strings.Cut(key, "|")
		if !found || day >= threshold {
			continue
		}

		deleteErr := tx.Delete(core.CollectionUsageDaily, key)
		if deleteErr != nil {
			return deleteErr
		}
	}

	return nil
}

func readUsage(tx core.Tx, day, userID string) (core.UsageCounter, error) {
	usage := core.UsageCounter{
		RequestsCount:      0,
		TotalCharacters:    0,
		TotalDurationSec:   0,
		SuccessfulRequests: 0,
		FailedRequests:     0,
	}

	doc, err := tx.Get(core.CollectionUsageDaily, core.UsageDayKey(day, userID))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return usage, nil
		}

		return usage, err
	}

	decodeErr := json.Unmarshal(doc, &usage)
	if decodeErr != nil {
		return usage, fmt.Errorf("failed to decode usage record: %w", decodeErr)
	}

	return usage, nil
}

func writeUsage(tx core.Tx, day, userID string, usage core.UsageCounter) error {
	doc, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("failed to encode usage record: %w", err)
	}

	return tx.Put(core.CollectionUsageDaily, core.UsageDayKey(day, userID), doc)
}

func decodePatch(doc []byte) (core.LimitsPatch, error) {
	var patch core.LimitsPatch

	err := json.Unmarshal(doc, &patch)
	if err != nil {
		return patch, fmt.Errorf("failed to decode limits patch: %w", err)
	}

	return patch, nil
}

func applyPatch(limits *core.UserLimits, patch core.LimitsPatch) {
	if patch.MaxTextLength != nil {
		limits.MaxTextLength = *patch.MaxTextLength
	}

	if patch.DailyLimit != nil {
		limits.DailyLimit = *patch.DailyLimit
	}

	if patch.PriorityLevel != nil {
		limits.PriorityLevel = *patch.PriorityLevel
	}

	if patch.SynthesisEnabled != nil {
		limits.SynthesisEnabled = *patch.SynthesisEnabled
	}
}

func mergePatch(stored *core.LimitsPatch, incoming core.LimitsPatch) {
	if incoming.MaxTextLength != nil {
		stored.MaxTextLength = incoming.MaxTextLength
	}

	if incoming.DailyLimit != nil {
		stored.DailyLimit = incoming.DailyLimit
	}

	if incoming.PriorityLevel != nil {
		stored.PriorityLevel = incoming.PriorityLevel
	}

	if incoming.SynthesisEnabled != nil {
		stored.SynthesisEnabled = incoming.SynthesisEnabled
	}
}
