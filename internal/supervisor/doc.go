// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

/*
Package supervisor provides process supervision for the detector daemon
using suture v4.

# Overview

Services are organized into three layers for failure isolation:

	RootSupervisor ("cids")
	├── DataSupervisor ("data-layer")
	│   ├── wal.RetryLoop (if wal.enabled)
	│   └── wal.Compactor (if wal.enabled)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── eventprocessor.EmbeddedServer (if nats.embedded_server.enabled)
	│   ├── eventprocessor.FrameSubscriber (if nats.enabled)
	│   ├── services.EngineService
	│   └── websocket.Hub
	└── APISupervisor ("api-layer")
	    └── services.HTTPServerService (if server.enabled)

A subscriber that loses its broker is restarted without dropping API
clients, and a WAL failure never stops frame processing.

# Usage Example

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}

	tree.AddMessagingService(services.NewEngineService(engine))
	tree.AddMessagingService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("supervisor stopped")
	}

# Configuration

	config := supervisor.TreeConfig{
	    FailureThreshold: 5.0,              // Failures before backoff
	    FailureDecay:     30.0,             // Seconds for failures to decay
	    FailureBackoff:   15 * time.Second, // Backoff duration
	    ShutdownTimeout:  10 * time.Second, // Per-service shutdown timeout
	}

Zero fields take these defaults, which are suture's own.

# Failure Handling

Each failure increments a counter that decays exponentially over
FailureDecay seconds. Once it exceeds FailureThreshold the supervisor waits
FailureBackoff before the next restart.

# What Is NOT Supervised

DuckDB and BadgerDB are embedded libraries opened once by the binary and
closed after the tree returns.

# Debugging Shutdown Issues

	report, err := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    logging.Warn().Str("service", svc.Name).Msg("service did not stop")
	}
*/
package supervisor
