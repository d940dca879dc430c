// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package wal

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/tomtom215/cids/internal/logging"
	"github.com/tomtom215/cids/internal/metrics"
)

// RetryLoop periodically redelivers pending entries with exponential backoff.
type RetryLoop struct {
	wal       *BadgerWAL
	publisher Publisher
	config    Config
	now       func() time.Time
}

// RetryCounts summarizes one retry pass.
type RetryCounts struct {
	Succeeded  int
	Failed     int
	Expired    int
	MaxRetried int
	Skipped    int
}

// NewRetryLoop creates a retry loop delivering through publisher.
func NewRetryLoop(w *BadgerWAL, publisher Publisher) *RetryLoop {
	return &RetryLoop{
		wal:       w,
		publisher: publisher,
		config:    w.Config(),
		now:       time.Now,
	}
}

// Serve runs the loop until ctx is canceled. It implements suture.Service.
func (r *RetryLoop) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", r.config.RetryInterval).
		Int("max_retries", r.config.MaxRetries).
		Msg("WAL retry loop started")

	ticker := time.NewTicker(r.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("WAL retry loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.RetryOnce(ctx)
		}
	}
}

// String names the service for the supervisor.
func (r *RetryLoop) String() string {
	return "wal-retry-loop"
}

// RetryOnce runs a single retry pass over the pending entries.
func (r *RetryLoop) RetryOnce(ctx context.Context) RetryCounts {
	var counts RetryCounts

	entries, err := r.wal.GetPending(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("WAL retry: failed to get pending entries")
		return counts
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		switch r.processEntry(ctx, entry) {
		case retrySucceeded:
			counts.Succeeded++
		case retryFailed:
			counts.Failed++
		case retryExpired:
			counts.Expired++
		case retryMaxRetried:
			counts.MaxRetried++
		case retrySkipped:
			counts.Skipped++
		}
	}

	if counts.Succeeded+counts.Failed+counts.Expired+counts.MaxRetried > 0 {
		logging.Info().
			Int("succeeded", counts.Succeeded).
			Int("failed", counts.Failed).
			Int("expired", counts.Expired).
			Int("max_retried", counts.MaxRetried).
			Msg("WAL retry complete")
	}
	return counts
}

type retryOutcome int

const (
	retrySucceeded retryOutcome = iota
	retryFailed
	retryExpired
	retryMaxRetried
	retrySkipped
)

func (r *RetryLoop) processEntry(ctx context.Context, entry *Entry) retryOutcome {
	if !r.wal.TryClaimEntry(entry.ID) {
		return retrySkipped
	}
	defer r.wal.ReleaseEntry(entry.ID)

	if r.now().Sub(entry.CreatedAt) > r.config.EntryTTL {
		logging.Info().Str("entry_id", entry.ID).Msg("WAL retry: entry expired, removing")
		r.drop(ctx, entry)
		return retryExpired
	}

	if entry.Attempts >= r.config.MaxRetries {
		logging.Warn().
			Str("entry_id", entry.ID).
			Str("kind", entry.Kind).
			Int("attempts", entry.Attempts).
			Msg("WAL retry: entry exceeded max retries, removing")
		r.drop(ctx, entry)
		return retryMaxRetried
	}

	if !entry.LastAttemptAt.IsZero() && r.now().Sub(entry.LastAttemptAt) < r.Backoff(entry.Attempts) {
		return retrySkipped
	}

	pubCtx, cancel := context.WithTimeout(ctx, r.config.DeliveryTimeout)
	err := r.publisher.PublishEntry(pubCtx, entry)
	cancel()
	if err != nil {
		logging.Warn().
			Err(err).
			Str("entry_id", entry.ID).
			Int("attempt", entry.Attempts+1).
			Msg("WAL retry: delivery failed")
		if updateErr := r.wal.UpdateAttempt(ctx, entry.ID, err.Error()); updateErr != nil {
			logging.Error().Err(updateErr).Str("entry_id", entry.ID).Msg("WAL retry: failed to update attempt")
		}
		metrics.RecordWALRetry(false)
		return retryFailed
	}

	if err := r.wal.Confirm(ctx, entry.ID); err != nil && !errors.Is(err, ErrEntryNotFound) {
		logging.Error().Err(err).Str("entry_id", entry.ID).Msg("WAL retry: failed to confirm entry")
		return retryFailed
	}
	metrics.RecordWALRetry(true)
	return retrySucceeded
}

func (r *RetryLoop) drop(ctx context.Context, entry *Entry) {
	if err := r.wal.DeleteEntry(ctx, entry.ID); err != nil && !errors.Is(err, ErrEntryNotFound) {
		logging.Error().Err(err).Str("entry_id", entry.ID).Msg("WAL retry: failed to delete entry")
		return
	}
	metrics.SetWALPending(int(r.wal.countPrefix(prefixPending)))
}

// Backoff returns the wait before attempt number attempts+1:
// RetryBackoff * 2^attempts, capped at MaxBackoff.
func (r *RetryLoop) Backoff(attempts int) time.Duration {
	maxBackoff := r.config.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Minute
	}
	if attempts > 50 {
		return maxBackoff
	}
	backoff := time.Duration(float64(r.config.RetryBackoff) * math.Pow(2, float64(attempts)))
	if backoff <= 0 || backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}
