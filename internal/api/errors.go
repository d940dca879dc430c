// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package api

import "errors"

// Common API errors
var (
	// ErrStoreNotConfigured indicates persistence is disabled in config
	ErrStoreNotConfigured = errors.New("storage is not enabled")

	// ErrInvalidIdentifier indicates a malformed {id} path parameter
	ErrInvalidIdentifier = errors.New("invalid CAN identifier")
)
