// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package wal

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/cids/internal/logging"
)

// Compactor removes confirmed and expired entries and reclaims value log space.
type Compactor struct {
	wal    *BadgerWAL
	config Config
}

// CompactionResult reports what one compaction pass removed.
type CompactionResult struct {
	Confirmed int64
	Expired   int64
	Duration  time.Duration
}

// NewCompactor creates a compactor for w.
func NewCompactor(w *BadgerWAL) *Compactor {
	return &Compactor{wal: w, config: w.Config()}
}

// Serve compacts every CompactInterval until ctx is canceled.
func (c *Compactor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.config.CompactInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.CompactOnce()
		}
	}
}

// String names the service for the supervisor.
func (c *Compactor) String() string {
	return "wal-compactor"
}

// CompactOnce runs one compaction pass.
func (c *Compactor) CompactOnce() CompactionResult {
	start := time.Now()
	var result CompactionResult

	confirmed, err := c.deleteMatching(prefixConfirmed, func(*Entry) bool { return true })
	if err != nil {
		logging.Error().Err(err).Msg("WAL compaction failed to delete confirmed entries")
	}
	result.Confirmed = confirmed

	cutoff := time.Now().Add(-c.config.EntryTTL)
	expired, err := c.deleteMatching(prefixPending, func(e *Entry) bool { return e.CreatedAt.Before(cutoff) })
	if err != nil {
		logging.Error().Err(err).Msg("WAL compaction failed to delete expired entries")
	}
	result.Expired = expired

	if err := c.wal.RunGC(); err != nil {
		logging.Error().Err(err).Msg("WAL compaction GC error")
	}

	c.wal.mu.Lock()
	c.wal.lastCompaction = time.Now()
	c.wal.mu.Unlock()

	result.Duration = time.Since(start)
	if confirmed+expired > 0 {
		logging.Info().
			Int64("confirmed", confirmed).
			Int64("expired", expired).
			Dur("duration", result.Duration).
			Msg("WAL compaction removed entries")
	}
	return result
}

func (c *Compactor) deleteMatching(prefix string, match func(*Entry) bool) (int64, error) {
	var count int64
	err := c.wal.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		var keys [][]byte
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			var entry Entry
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &entry) }); err != nil {
				continue
			}
			if match(&entry) {
				keys = append(keys, item.KeyCopy(nil))
			}
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}
