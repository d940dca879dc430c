// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

/*
Package metrics provides Prometheus metrics collection and export for observability.

Collectors are registered with the default registry through promauto at
package initialization and updated through the Record* helpers, so callers
never touch label plumbing directly.

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8757/metrics

# Available Metrics

Detection Metrics:
  - cids_frames_total: Frames accepted by the engine (counter)
    Labels: identifier
  - cids_frames_filtered_total: Frames outside the monitored set (counter)
  - cids_batches_processed_total: Closed batches (counter)
    Labels: identifier, forced
  - cids_accumulated_offset_seconds: O_acc per identifier (gauge)
  - cids_identification_error_seconds: Last identification error (gauge)
  - cids_skew: Last RLS skew estimate (gauge)
  - cids_cusum_limit: CUSUM limits (gauge)
    Labels: identifier, side ("plus", "minus")
  - cids_alarms_total: Alarms by class (counter)
    Labels: identifier, class
  - cids_suspension_deferred_total: Deadlines fired before any baseline (counter)
  - cids_dropped_timestamps_total: Partial-batch timestamps dropped at flush (counter)
  - cids_correlation_coefficient: Pairwise Pearson coefficient (gauge)
    Labels: pair
  - cids_detectors_active: Number of DetectorStates (gauge)

Pipeline Metrics:
  - cids_sink_errors_total: Failed result deliveries (counter)
    Labels: sink
  - cids_nats_messages_published_total, cids_nats_messages_consumed_total,
    cids_nats_messages_parse_failed_total (counters)
  - cids_wal_entries_pending (gauge), cids_wal_writes_total,
    cids_wal_confirms_total, cids_wal_retries_total (counters)
  - cids_notifications_total: Notifier deliveries (counter)
    Labels: notifier, status

HTTP Metrics:
  - cids_http_requests_total, cids_http_request_duration_seconds
  - cids_websocket_clients (gauge)
*/
package metrics
