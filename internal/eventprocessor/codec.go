// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package eventprocessor

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/validation"
)

// Metadata keys set on published messages.
const (
	MetadataIdentifier = "identifier"
	MetadataKind       = "kind"
	MetadataSequence   = "sequence"
)

// Message kinds carried in MetadataKind.
const (
	KindFrame       = "frame"
	KindResult      = "batch_result"
	KindCorrelation = "correlation"
	KindAlert       = "alert"
)

// frameMessage is the frame wire representation.
type frameMessage struct {
	ID  *uint32  `json:"id"`
	TS  *float64 `json:"ts"`
	Bus string   `json:"bus,omitempty"`
}

// EncodeFrame serializes a frame for cids.frames.
func EncodeFrame(f detection.Frame) ([]byte, error) {
	id := uint32(f.ID)
	ts := f.Timestamp
	return json.Marshal(frameMessage{ID: &id, TS: &ts, Bus: f.Bus})
}

// DecodeFrame parses and validates a frame message. Every failure wraps
// ErrMalformedFrame.
func DecodeFrame(data []byte) (detection.Frame, error) {
	var m frameMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return detection.Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if m.ID == nil {
		return detection.Frame{}, fmt.Errorf("%w: missing id", ErrMalformedFrame)
	}
	if *m.ID > validation.MaxIdentifier {
		return detection.Frame{}, fmt.Errorf("%w: identifier %#x exceeds 29 bits", ErrMalformedFrame, *m.ID)
	}
	if m.TS == nil {
		return detection.Frame{}, fmt.Errorf("%w: missing ts", ErrMalformedFrame)
	}
	if math.IsNaN(*m.TS) || math.IsInf(*m.TS, 0) {
		return detection.Frame{}, fmt.Errorf("%w: timestamp is not finite", ErrMalformedFrame)
	}
	return detection.Frame{ID: detection.Identifier(*m.ID), Timestamp: *m.TS, Bus: m.Bus}, nil
}
