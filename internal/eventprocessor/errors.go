// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package eventprocessor

import "errors"

// Sentinel errors returned by the event processor.
var (
	// ErrPublisherClosed is returned when publishing after Close.
	ErrPublisherClosed = errors.New("eventprocessor: publisher is closed")

	// ErrMalformedFrame wraps frame decoding and validation failures.
	ErrMalformedFrame = errors.New("eventprocessor: malformed frame")

	// ErrServerNotReady is returned when the embedded server does not
	// accept connections within the startup timeout.
	ErrServerNotReady = errors.New("eventprocessor: NATS server not ready")

	// ErrNilDependency is returned when a required collaborator is nil.
	ErrNilDependency = errors.New("eventprocessor: required dependency is nil")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("eventprocessor: invalid configuration")
)
