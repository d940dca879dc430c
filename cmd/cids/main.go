// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

// Package main is the entry point of the cids detector daemon.
//
// cids watches the arrival times of periodic frames on a broadcast bus,
// estimates each transmitter's clock skew and raises alarms when the
// accumulated clock offset drifts away from the learned behavior.
//
// # Application Architecture
//
// The daemon initializes components in the following order:
//
//  1. Configuration: defaults, optional YAML file and environment (koanf v2)
//  2. Logging: zerolog with the configured level and format
//  3. Storage: DuckDB alert and result store (optional)
//  4. Engine: per-identifier detectors, suspension guard, pairwise correlator
//  5. Sinks: CSV log, WebSocket hub, NATS publisher (optionally behind a WAL)
//  6. NATS: embedded server and frame subscriber (optional)
//  7. HTTP server: REST API, Prometheus metrics and the /ws stream
//
// Long-running components run under a suture supervisor tree.
//
// # Replay Mode
//
// With --replay the daemon reads a candump or CSV log, runs it through the
// engine in virtual time, prints a JSON summary and exits:
//
//	cids --replay capture.log
//	cids --replay frames.csv --replay-format csv --trailing 1
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the supervisor tree. The engine flushes its
// partial batches, reporting dropped timestamps to the flush hook, and the
// sinks are closed in reverse order of creation.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
