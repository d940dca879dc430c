// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

// Command cidssim runs the reference attack experiments against a fresh
// detector in virtual time.
//
//	cidssim fabrication --csv fabrication.csv
//	cidssim masquerade --seed 7 --attack-duration 600
//	cidssim pairwise --json > pairwise.json
//
// Every run prints a JSON summary on stdout. With --csv the batch series
// is also written in the Time_Sec, Accumulated_Offset_ms, Ident_Error_e,
// L_Plus, L_Minus layout.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
