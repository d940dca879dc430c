// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package wal

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/cids/internal/logging"
)

// Publisher delivers a WAL entry downstream. Implementations decode
// Entry.Payload according to Entry.Kind.
type Publisher interface {
	PublishEntry(ctx context.Context, entry *Entry) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, entry *Entry) error

// PublishEntry calls f.
func (f PublisherFunc) PublishEntry(ctx context.Context, entry *Entry) error {
	return f(ctx, entry)
}

// RecoveryResult summarizes a startup recovery pass.
type RecoveryResult struct {
	TotalPending int
	Recovered    int
	Failed       int
	Expired      int
	Skipped      int
	Duration     time.Duration
}

// RecoverPending redelivers every pending entry once, ignoring backoff.
// It runs at startup before the retry loop, so results written before a
// crash reach the sink ahead of new ones.
func (w *BadgerWAL) RecoverPending(ctx context.Context, publisher Publisher) (*RecoveryResult, error) {
	start := time.Now()
	entries, err := w.GetPending(ctx)
	if err != nil {
		return nil, err
	}

	result := &RecoveryResult{TotalPending: len(entries)}
	if len(entries) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}
	logging.Info().Int("pending_entries", len(entries)).Msg("WAL recovery found pending entries")

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		if !w.TryClaimEntry(entry.ID) {
			result.Skipped++
			continue
		}
		w.recoverEntry(ctx, entry, publisher, result)
		w.ReleaseEntry(entry.ID)
	}

	result.Duration = time.Since(start)
	logging.Info().
		Int("recovered", result.Recovered).
		Int("failed", result.Failed).
		Int("expired", result.Expired).
		Dur("duration", result.Duration).
		Msg("WAL recovery complete")
	return result, nil
}

func (w *BadgerWAL) recoverEntry(ctx context.Context, entry *Entry, publisher Publisher, result *RecoveryResult) {
	if w.config.EntryTTL > 0 && time.Since(entry.CreatedAt) > w.config.EntryTTL {
		if err := w.DeleteEntry(ctx, entry.ID); err != nil && !errors.Is(err, ErrEntryNotFound) {
			logging.Error().Err(err).Str("entry_id", entry.ID).Msg("WAL recovery: failed to delete expired entry")
		}
		result.Expired++
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, w.config.DeliveryTimeout)
	err := publisher.PublishEntry(pubCtx, entry)
	cancel()
	if err != nil {
		logging.Warn().Err(err).Str("entry_id", entry.ID).Msg("WAL recovery: delivery failed")
		if updateErr := w.UpdateAttempt(ctx, entry.ID, err.Error()); updateErr != nil {
			logging.Error().Err(updateErr).Str("entry_id", entry.ID).Msg("WAL recovery: failed to update attempt")
		}
		result.Failed++
		return
	}

	if err := w.Confirm(ctx, entry.ID); err != nil && !errors.Is(err, ErrEntryNotFound) {
		logging.Error().Err(err).Str("entry_id", entry.ID).Msg("WAL recovery: failed to confirm entry")
		result.Failed++
		return
	}
	result.Recovered++
}
