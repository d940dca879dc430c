// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

/*
Package api provides the HTTP interface of the CIDS daemon.

Routing uses chi with the go-chi/cors and go-chi/httprate middleware.
Every JSON response uses the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}

Endpoints:

Health and monitoring:
  - GET /health: status, uptime and component checks
  - GET /health/live: liveness probe
  - GET /health/ready: readiness probe, 503 while a component check fails
  - GET /metrics: Prometheus exposition

Detectors:
  - GET /api/v1/detectors: snapshot of every DetectorState
  - GET /api/v1/detectors/{id}: snapshot of one identifier (hex, e.g. 0x011)
  - POST /api/v1/detectors/{id}/reset: clear a latched alarm
  - GET /api/v1/correlation: last pairwise correlation result
  - GET /api/v1/stats: engine counters

Alerts:
  - GET /api/v1/alerts?limit=&offset=&class=&identifier=&acknowledged=
  - GET /api/v1/alerts/{id}
  - POST /api/v1/alerts/{id}/acknowledge

Results:
  - GET /api/v1/results/{id}?limit=: recent batch results of one identifier

Realtime:
  - GET /ws: live batch result, correlation and alert stream

Stores are optional. Endpoints whose backing store is not configured
answer 503 SERVICE_UNAVAILABLE.
*/
package api
