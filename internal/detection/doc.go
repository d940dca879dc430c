// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

// Package detection implements clock-skew based intrusion detection for
// periodic broadcast-bus identifiers such as CAN arbitration IDs.
//
// Detection Architecture:
//
//	Frame -> Engine -> DetectorState (per identifier) -> BatchResult -> Sinks
//	           |            |                                |
//	           |            v                                v
//	           |   BatchAccumulator -> OffsetEstimator   Alert -> Store/Notifiers
//	           |            -> SkewTracker (RLS) -> ChangeDetector (CUSUM)
//	           |
//	           +-> SuspensionGuard (forced closure under silence)
//	           +-> PairwiseCorrelator (two co-clocked identifiers)
//
// Each monitored identifier owns exactly one DetectorState. Timestamps are
// buffered into fixed-size, non-overlapping batches; every closed batch is
// turned into an average timing offset against a reference interval, the
// magnitude of that offset is integrated into the accumulated offset O_acc,
// and a scalar recursive least squares filter fits O_acc against elapsed
// time. The identification error between O_acc and the fitted line drives a
// dual-sided CUSUM:
//
//   - L+ over threshold raises a fabrication alarm (injected traffic)
//   - L- over threshold raises a masquerade alarm (replacement clock)
//
// A suspension attack produces no batches at all, so the SuspensionGuard
// closes the pending batch on a wall-clock deadline by padding it with
// widely spaced synthetic timestamps. The padded batch drives L+ sharply up
// through the same pipeline.
//
// Alarms are evaluated per batch and do not latch unless Params.Latch is set.
//
// Supported Offset Reference Policies:
//   - previous-batch: expected arrivals use the previous batch's mean
//     interval (default)
//   - same-batch: expected arrivals use the batch's own mean interval; a rate
//     step inside the batch is masked, kept for compatibility testing and for
//     the pairwise correlator
//   - adaptive-baseline: running mean over a learning window, then frozen at
//     a nominal interval
package detection
