// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package detection

// BatchAccumulator buffers the arrival timestamps of one identifier into
// fixed-size, non-overlapping batches. It is not safe for concurrent use;
// the owning DetectorState serializes access.
type BatchAccumulator struct {
	size   int
	buffer []float64
}

// NewBatchAccumulator creates an accumulator emitting batches of size timestamps.
func NewBatchAccumulator(size int) *BatchAccumulator {
	if size < 1 {
		size = 1
	}
	return &BatchAccumulator{
		size:   size,
		buffer: make([]float64, 0, size),
	}
}

// Add appends a timestamp. When the buffer reaches the batch size the full
// batch is returned and the buffer starts over empty.
func (a *BatchAccumulator) Add(ts float64) ([]float64, bool) {
	a.buffer = append(a.buffer, ts)
	if len(a.buffer) < a.size {
		return nil, false
	}
	return a.Drain(), true
}

// Drain returns the buffered timestamps and clears the buffer. The returned
// slice is owned by the caller.
func (a *BatchAccumulator) Drain() []float64 {
	out := a.buffer
	a.buffer = make([]float64, 0, a.size)
	return out
}

// Pending returns a copy of the buffered, not yet closed, timestamps.
func (a *BatchAccumulator) Pending() []float64 {
	out := make([]float64, len(a.buffer))
	copy(out, a.buffer)
	return out
}

// Len returns the number of buffered timestamps.
func (a *BatchAccumulator) Len() int {
	return len(a.buffer)
}

// Size returns the configured batch size.
func (a *BatchAccumulator) Size() int {
	return a.size
}

// Pad appends synthetic timestamps spaced interval apart, starting after
// from, until the buffer holds a full batch. The padded batch is drained and
// returned. A buffer that is already full is returned as is.
func (a *BatchAccumulator) Pad(from, interval float64) []float64 {
	fake := from
	for len(a.buffer) < a.size {
		fake += interval
		a.buffer = append(a.buffer, fake)
	}
	return a.Drain()
}
