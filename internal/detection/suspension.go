// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package detection

import (
	"context"
	"math"
	"sort"
	"time"
)

// FireFunc is invoked when an identifier's silence deadline elapses. now is
// the guard clock reading, in the same unit as frame timestamps (seconds).
type FireFunc func(id Identifier, now float64)

// SuspensionGuard tracks a silence deadline per identifier. It is driven
// either live, through Watch, or in virtual time through Due and Advance.
//
// SuspensionGuard is not safe for concurrent use.
type SuspensionGuard struct {
	timeout float64
	pad     float64
	last    map[Identifier]float64
}

// NewSuspensionGuard creates a guard from suspension parameters.
func NewSuspensionGuard(p SuspensionParams) *SuspensionGuard {
	if p.Timeout <= 0 {
		p.Timeout = DefaultSuspensionParams().Timeout
	}
	if p.PadInterval <= 0 {
		p.PadInterval = DefaultSuspensionParams().PadInterval
	}
	return &SuspensionGuard{
		timeout: p.Timeout.Seconds(),
		pad:     p.PadInterval,
		last:    make(map[Identifier]float64),
	}
}

// Timeout returns the silence deadline in seconds.
func (g *SuspensionGuard) Timeout() float64 {
	return g.timeout
}

// PadInterval returns the spacing of synthetic timestamps.
func (g *SuspensionGuard) PadInterval() float64 {
	return g.pad
}

// Touch records an arrival (or a firing) for id at now and re-arms its deadline.
func (g *SuspensionGuard) Touch(id Identifier, now float64) {
	g.last[id] = now
}

// Forget stops watching id.
func (g *SuspensionGuard) Forget(id Identifier) {
	delete(g.last, id)
}

// Watching returns the number of identifiers with an armed deadline.
func (g *SuspensionGuard) Watching() int {
	return len(g.last)
}

// Due returns, in ascending order, the identifiers whose silence exceeds
// the timeout at now.
func (g *SuspensionGuard) Due(now float64) []Identifier {
	var due []Identifier
	for id, last := range g.last {
		if now-last > g.timeout {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
	return due
}

// NextDeadline returns the earliest armed deadline.
func (g *SuspensionGuard) NextDeadline() (float64, bool) {
	next := math.Inf(1)
	for _, last := range g.last {
		if d := last + g.timeout; d < next {
			next = d
		}
	}
	return next, !math.IsInf(next, 1)
}

// Advance fires, in virtual time, every deadline that elapsed before now.
// A long silence fires repeatedly, once per timeout, each firing re-arming
// the deadline at its own instant.
func (g *SuspensionGuard) Advance(now float64, fire FireFunc) {
	for {
		at, ok := g.NextDeadline()
		if !ok || at >= now {
			return
		}
		var due []Identifier
		for id, last := range g.last {
			if last+g.timeout <= at {
				due = append(due, id)
			}
		}
		sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
		for _, id := range due {
			fire(id, at)
			g.Touch(id, at)
		}
	}
}

// Watch runs the live watchdog loop. It waits on either the next frame or
// the earliest deadline, whichever comes first, so that deadlines fire under
// total input silence. handle is called for every received frame and is
// responsible for calling Touch on the identifiers it accepts. Every fired
// identifier is re-armed at the firing instant, whether or not fire could
// act on it.
//
// Watch returns nil when frames is closed and ctx.Err() on cancellation.
func (g *SuspensionGuard) Watch(ctx context.Context, frames <-chan Frame, clock func() float64, handle func(Frame), fire FireFunc) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		g.arm(timer, clock())

		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			handle(frame)

		case <-timer.C:
			now := clock()
			for _, id := range g.Due(now) {
				fire(id, now)
				g.Touch(id, now)
			}
		}
	}
}

// arm resets the timer to the earliest deadline, or parks it for an hour
// when nothing is watched.
func (g *SuspensionGuard) arm(timer *time.Timer, now float64) {
	wait := time.Hour
	if next, ok := g.NextDeadline(); ok {
		// Deadlines are strict, fire just past them.
		wait = time.Duration((next-now)*float64(time.Second)) + time.Millisecond
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
	}
	timer.Reset(wait)
}

// WallClock returns the current wall-clock time as Unix seconds, the clock
// used for live frame timestamps.
func WallClock() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
