// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

/*
Package services provides suture.Service wrappers for components whose
lifecycle is not already a Serve(ctx) method.

# Available Services

Detection Engine (EngineService):
  - Wraps detection.Engine.RunWithContext
  - Drains the Submit queue and fires suspension deadlines
  - Partial batches reach the flush hooks when the service stops

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts the blocking ListenAndServe into Serve
  - Configurable shutdown timeout for draining connections

The WebSocket hub, the embedded NATS server, the frame subscriber, the WAL
retry loop and the WAL compactor implement suture.Service themselves and
are added to the tree directly.

# Error Handling

Return values drive the supervisor:
  - ctx.Err(): normal shutdown
  - other error: the service crashed and is restarted with backoff
  - suture.ErrDoNotRestart: finished for good
*/
package services
