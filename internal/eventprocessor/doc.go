// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

/*
Package eventprocessor moves frames into the detection engine and results
out of it over NATS, using Watermill as the messaging abstraction.

# Topics

	cids.frames          frame arrival events consumed by FrameSubscriber
	cids.results.<id>    one BatchResult per closed batch, per identifier
	cids.correlations    pairwise correlation results
	cids.alerts          alerts raised by the engine

# Wire format

Frames are JSON objects with the identifier as a number and the arrival
time as seconds:

	{"id": 17, "ts": 1700000000.123456, "bus": "can0"}

Payload bytes are not carried. Frames that fail to decode are acked and
counted, since redelivery cannot repair them.

# Components

  - FrameSubscriber: consumes cids.frames and submits frames to the engine
  - ResultPublisher: a detection.ResultSink, detection.CorrelationSink and
    detection.Notifier that publishes through a gobreaker circuit breaker
  - EmbeddedServer: optional in-process NATS server, with JetStream when
    configured
  - WatermillLogger: routes Watermill logging to zerolog

Both FrameSubscriber and ResultPublisher accept any Watermill
message.Subscriber or message.Publisher; NewNATSSubscriber and
NewNATSPublisher build the NATS-backed ones. Tests use the gochannel
Pub/Sub.
*/
package eventprocessor
