// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

/*
Package replay reads recorded bus traffic and drives it through the
detection engine in virtual time.

Two log formats are understood:

	(1700000000.123456) can0 011#DEADBEEF    candump -l
	1700000000.123456,0x011                  timestamp,id CSV

CSV files may start with a header row. Identifiers are hexadecimal with an
optional 0x prefix in both formats. Payload bytes are ignored.

Malformed lines are skipped and counted unless the reader is strict, in which
case the first one stops the replay with a *ParseError.
*/
package replay
