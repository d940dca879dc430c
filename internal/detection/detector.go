// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package detection

import (
	"fmt"
	"math"
)

// DetectorState is the persistent detection state of one identifier. It is
// created on the identifier's first timestamp and mutated exactly once per
// closed batch, in arrival order.
//
// DetectorState is not safe for concurrent use. The Engine serializes
// access; standalone users must feed it from a single goroutine.
type DetectorState struct {
	id     Identifier
	params Params

	estimator OffsetEstimator
	acc       *BatchAccumulator
	ref       ReferenceState
	skew      *SkewTracker
	change    *ChangeDetector

	accumulated   float64
	baselineStart float64
	hasBaseline   bool
	lastArrival   float64

	batches uint64
	forced  uint64
	last    *BatchResult
}

// NewDetectorState creates the state for id. The parameters are validated
// and copied.
func NewDetectorState(id Identifier, params Params) (*DetectorState, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("detector %s: %w", id, err)
	}
	return &DetectorState{
		id:        id,
		params:    params,
		estimator: NewOffsetEstimator(params),
		acc:       NewBatchAccumulator(params.BatchSize),
		skew:      NewSkewTracker(params.InitialCovariance, params.InitialSkew, params.Lambda),
		change:    NewChangeDetector(params),
	}, nil
}

// ID returns the identifier this state tracks.
func (d *DetectorState) ID() Identifier {
	return d.id
}

// Params returns the detector parameters.
func (d *DetectorState) Params() Params {
	return d.params
}

// Observe records one arrival timestamp. The first timestamp ever observed
// becomes the baseline start. When the timestamp completes a batch the batch
// is processed and its result returned.
func (d *DetectorState) Observe(ts float64) (*BatchResult, bool) {
	if !d.hasBaseline {
		d.baselineStart = ts
		d.hasBaseline = true
	}
	d.lastArrival = ts

	batch, closed := d.acc.Add(ts)
	if !closed {
		return nil, false
	}
	return d.process(batch, false)
}

// ForceClose closes the pending, possibly empty, batch by padding it with
// synthetic timestamps spaced pad seconds apart, starting after now, and
// processes it. Without a baseline nothing happens and false is returned.
// An L+ alarm raised by the padded batch is reported as AlarmSuspension.
func (d *DetectorState) ForceClose(now, pad float64) (*BatchResult, bool) {
	if !d.hasBaseline {
		return nil, false
	}
	from := now
	if pending := d.acc.Len(); pending > 0 {
		if last := d.acc.buffer[pending-1]; last > from {
			from = last
		}
	}
	batch := d.acc.Pad(from, pad)
	result, ok := d.process(batch, true)
	if !ok {
		return nil, false
	}
	d.forced++
	// A forced closure raising L+ is silence, not injected traffic.
	if result.Alarm == AlarmFabrication {
		result.Alarm = AlarmSuspension
		d.last.Alarm = AlarmSuspension
	}
	return result, true
}

// Flush drains the partial batch without processing it and returns the
// dropped timestamps.
func (d *DetectorState) Flush() []float64 {
	return d.acc.Drain()
}

// HasBaseline reports whether any timestamp has been observed.
func (d *DetectorState) HasBaseline() bool {
	return d.hasBaseline
}

// LastArrival returns the most recent real arrival timestamp.
func (d *DetectorState) LastArrival() float64 {
	return d.lastArrival
}

// Pending returns the number of buffered timestamps.
func (d *DetectorState) Pending() int {
	return d.acc.Len()
}

// Phase returns the lifecycle phase.
func (d *DetectorState) Phase() Phase {
	switch {
	case !d.hasBaseline:
		return PhaseUninitialized
	case d.params.OffsetPolicy == PolicyAdaptiveBaseline && !d.ref.LearningClosed:
		return PhaseLearning
	default:
		return PhaseActive
	}
}

// AccumulatedOffset returns O_acc.
func (d *DetectorState) AccumulatedOffset() float64 {
	return d.accumulated
}

// ResetAlarm clears the CUSUM limits and any latched alarm.
func (d *DetectorState) ResetAlarm() {
	d.change.Reset()
}

// process runs one batch through offset estimation, accumulation, change
// detection and the RLS update, in that order.
func (d *DetectorState) process(batch []float64, forced bool) (*BatchResult, bool) {
	est, ok := d.estimator.Estimate(batch, &d.ref)
	if !ok {
		return nil, false
	}

	d.accumulated += math.Abs(est.AverageOffset)

	tk := batch[len(batch)-1] - d.baselineStart
	e := d.skew.Residual(d.accumulated, tk)

	decision := d.change.Observe(e)
	d.skew.Update(tk, e)
	d.batches++

	phase := PhaseActive
	if est.Learning {
		phase = PhaseLearning
	}

	result := &BatchResult{
		Identifier:          d.id,
		Sequence:            d.batches,
		ElapsedTime:         tk,
		AverageOffset:       est.AverageOffset,
		MeanInterval:        est.MeanInterval,
		ReferenceInterval:   est.ReferenceInterval,
		AccumulatedOffset:   d.accumulated,
		IdentificationError: e,
		Skew:                d.skew.Skew(),
		LPlus:               decision.LPlus,
		LMinus:              decision.LMinus,
		MuE:                 decision.MuE,
		SigmaE:              decision.SigmaE,
		Alarm:               decision.Alarm,
		Forced:              forced,
		Phase:               phase,
	}
	last := *result
	d.last = &last
	return result, true
}

// DetectorSnapshot is a point-in-time copy of a DetectorState for the API.
type DetectorSnapshot struct {
	Identifier        Identifier            `json:"identifier"`
	Phase             Phase                 `json:"phase"`
	OffsetPolicy      OffsetReferencePolicy `json:"offset_policy"`
	Statistics        StatisticsPolicy      `json:"statistics"`
	Batches           uint64                `json:"batches"`
	ForcedClosures    uint64                `json:"forced_closures"`
	Pending           int                   `json:"pending"`
	BaselineStart     float64               `json:"baseline_start"`
	LastArrival       float64               `json:"last_arrival"`
	AccumulatedOffset float64               `json:"accumulated_offset"`
	Skew              float64               `json:"skew"`
	Covariance        float64               `json:"covariance"`
	LPlus             float64               `json:"l_plus"`
	LMinus            float64               `json:"l_minus"`
	MuE               float64               `json:"mu_e"`
	SigmaE            float64               `json:"sigma_e"`
	Latched           AlarmClass            `json:"latched,omitempty"`
	Reference         ReferenceState        `json:"reference"`
	Last              *BatchResult          `json:"last,omitempty"`
}

// Snapshot returns a deep copy of the observable state.
func (d *DetectorState) Snapshot() DetectorSnapshot {
	lPlus, lMinus := d.change.Limits()
	muE, sigmaE := d.change.Statistics()
	snap := DetectorSnapshot{
		Identifier:        d.id,
		Phase:             d.Phase(),
		OffsetPolicy:      d.params.OffsetPolicy,
		Statistics:        d.params.Statistics,
		Batches:           d.batches,
		ForcedClosures:    d.forced,
		Pending:           d.acc.Len(),
		BaselineStart:     d.baselineStart,
		LastArrival:       d.lastArrival,
		AccumulatedOffset: d.accumulated,
		Skew:              d.skew.Skew(),
		Covariance:        d.skew.Covariance(),
		LPlus:             lPlus,
		LMinus:            lMinus,
		MuE:               muE,
		SigmaE:            sigmaE,
		Latched:           d.change.Latched(),
		Reference:         d.ref,
	}
	if d.last != nil {
		last := *d.last
		snap.Last = &last
	}
	return snap
}
