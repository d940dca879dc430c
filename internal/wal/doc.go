// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

// Package wal provides a durable write-ahead log for detection output using
// BadgerDB.
//
// Batch and correlation results are persisted before delivery to a
// downstream sink (usually the NATS result publisher), so a broker outage
// or a crash does not lose the series an analyst needs to reconstruct an
// attack.
//
//	BatchResult -> WAL Write -> sink.WriteResult -> WAL Confirm
//	                                   | (on failure)
//	                            entry stays pending, RetryLoop redelivers
//
// # Components
//
//   - BadgerWAL: pending/confirmed entries keyed by UUID
//   - Sink: a detection.ResultSink that makes any other sink durable
//   - RetryLoop: redelivers pending entries with exponential backoff
//   - Compactor: removes confirmed and expired entries, runs value log GC
//
// RetryLoop and Compactor implement suture.Service through Serve, so the
// supervisor restarts them on panic.
//
// # Configuration
//
//	WAL_ENABLED          enable the durable outbox (default: false)
//	WAL_PATH             BadgerDB directory (default: /data/wal)
//	WAL_IN_MEMORY        keep the log in memory only (default: false)
//	WAL_SYNC_WRITES      fsync every write (default: true)
//	WAL_RETRY_INTERVAL   retry loop period (default: 30s)
//	WAL_MAX_RETRIES      attempts before an entry is dropped (default: 100)
//	WAL_RETRY_BACKOFF    initial per-entry backoff (default: 5s)
//	WAL_ENTRY_TTL        age at which pending entries are dropped (default: 168h)
package wal
