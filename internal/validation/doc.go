// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

// Package validation wraps go-playground/validator v10 with a shared
// validator instance and the CIDS-specific tags used by configuration and
// API request structs.
//
// Custom tags:
//
//	canid         string holding a hex CAN identifier ("0x011", "7DF"),
//	              at most 29 bits
//	canidlist     comma-separated list of canid values; empty is allowed
//	forgetting    float in the half-open interval (0, 1]
//
// Example:
//
//	type ResultsRequest struct {
//	    Identifier string `validate:"required,canid"`
//	    Limit      int    `validate:"min=0,max=10000"`
//	}
//
//	if err := validation.ValidateStruct(&req); err != nil {
//	    apiErr := err.ToAPIError()
//	    ...
//	}
package validation
