// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

// Package logging provides the process-wide zerolog logger for CIDS.
//
// One global logger is configured at startup and shared by the detection
// engine, the bus transports and the HTTP surface. Hot paths (per-frame and
// per-batch events) log at debug level with typed fields, so a production
// deployment at info level pays only for alarms, forced closures and
// lifecycle events.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("identifier", id.String()).Msg("detector state created")
//	logging.Warn().Float64("l_plus", lp).Msg("intrusion detected")
//
//	// Request-scoped fields
//	logging.Ctx(ctx).Info().Msg("alert acknowledged")
//
// # Configuration
//
// Environment Variables (read by internal/config):
//
//	LOG_LEVEL   - trace, debug, info, warn, error (default: info)
//	LOG_FORMAT  - json, console (default: json)
//	LOG_CALLER  - include caller file:line (default: false)
//
// # Supervision
//
// The suture supervisor tree takes an slog.Logger. NewSlogLogger returns one
// backed by the same zerolog output, so supervisor restarts and panics land
// in the same stream as everything else:
//
//	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg)
//
// # Testing
//
// NewTestLogger writes JSON lines to any io.Writer; swap it in with
// SetLogger and restore the previous logger afterwards.
//
//	var buf bytes.Buffer
//	prev := logging.Logger()
//	logging.SetLogger(logging.NewTestLogger(&buf))
//	defer logging.SetLogger(prev)
package logging
