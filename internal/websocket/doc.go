// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

/*
Package websocket streams detection output to live clients.

The Hub is registered with the detection engine as a result sink and as
the alert broadcaster, so every closed batch, correlation result and alert
reaches connected clients as it is produced.

Architecture:

	engine ──WriteResult/BroadcastAlert──> Hub ──send──> Client ──> conn

Each client has two goroutines:
  - readPump: reads client messages (ping, subscribe) and handles pongs
  - writePump: writes queued messages and periodic pings

Message Types:

Server to client:
  - batch_result: one BatchResult
  - correlation: one CorrelationResult
  - alert: one Alert
  - pong: reply to ping

Client to server:
  - ping
  - subscribe: {"type":"subscribe","data":{"identifiers":["0x011","7DF"]}}
    restricts batch_result messages to the listed identifiers; an empty
    list restores the full stream. Alerts and correlations are always sent.

Slow clients whose send buffer is full are disconnected rather than
allowed to stall the broadcast loop.
*/
package websocket
