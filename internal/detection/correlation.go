// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package detection

import (
	"fmt"
	"math"
)

// Pearson returns the Pearson correlation coefficient of x and y. Series of
// unequal length, fewer than two samples, or zero variance yield 0.
func Pearson(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 2 {
		return 0
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var num, sqX, sqY float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		num += dx * dy
		sqX += dx * dx
		sqY += dy * dy
	}

	den := math.Sqrt(sqX * sqY)
	if den == 0 || math.IsNaN(den) {
		return 0
	}
	return num / den
}

// correlationLeg is one identifier of a correlated pair.
type correlationLeg struct {
	id      Identifier
	acc     *BatchAccumulator
	ref     ReferenceState
	offsets []float64
}

// PairwiseCorrelator tracks the per-batch average offsets of two identifiers
// presumed to share one physical clock and checks their correlation. Each
// leg uses the same-batch offset policy. Series are aligned by batch index
// from the start of the run.
//
// PairwiseCorrelator is not safe for concurrent use.
type PairwiseCorrelator struct {
	params    CorrelationParams
	estimator OffsetEstimator
	a         *correlationLeg
	b         *correlationLeg
	last      *CorrelationResult
}

// NewPairwiseCorrelator creates a correlator for identifiers a and b.
func NewPairwiseCorrelator(a, b Identifier, params CorrelationParams) (*PairwiseCorrelator, error) {
	if a == b {
		return nil, fmt.Errorf("%w: correlated identifiers must differ (%s)", ErrInvalidParams, a)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &PairwiseCorrelator{
		params:    params,
		estimator: OffsetEstimator{Policy: PolicySameBatch},
		a:         &correlationLeg{id: a, acc: NewBatchAccumulator(params.BatchSize)},
		b:         &correlationLeg{id: b, acc: NewBatchAccumulator(params.BatchSize)},
	}, nil
}

// Pair returns the two correlated identifiers.
func (c *PairwiseCorrelator) Pair() (Identifier, Identifier) {
	return c.a.id, c.b.id
}

// Tracks reports whether id is one of the correlated identifiers.
func (c *PairwiseCorrelator) Tracks(id Identifier) bool {
	return id == c.a.id || id == c.b.id
}

// Observe records a timestamp for id. When the timestamp closes a batch and
// both series hold at least MinSamples offsets, the correlation over the
// first min(len_a, len_b) samples is computed and returned.
func (c *PairwiseCorrelator) Observe(id Identifier, ts float64) (*CorrelationResult, bool) {
	leg := c.leg(id)
	if leg == nil {
		return nil, false
	}

	batch, closed := leg.acc.Add(ts)
	if !closed {
		return nil, false
	}
	est, ok := c.estimator.Estimate(batch, &leg.ref)
	if !ok {
		return nil, false
	}
	leg.offsets = append(leg.offsets, est.AverageOffset)

	return c.Evaluate()
}

// Evaluate computes the correlation of the current series, if enough
// aligned samples exist.
func (c *PairwiseCorrelator) Evaluate() (*CorrelationResult, bool) {
	n := len(c.a.offsets)
	if len(c.b.offsets) < n {
		n = len(c.b.offsets)
	}
	if n < c.params.MinSamples {
		return nil, false
	}

	rho := Pearson(c.a.offsets[:n], c.b.offsets[:n])
	result := &CorrelationResult{
		A:           c.a.id,
		B:           c.b.id,
		Samples:     n,
		Coefficient: rho,
		Verdict:     c.verdict(rho),
	}
	last := *result
	c.last = &last
	return result, true
}

// Series returns copies of both offset series.
func (c *PairwiseCorrelator) Series() (a, b []float64) {
	a = append([]float64(nil), c.a.offsets...)
	b = append([]float64(nil), c.b.offsets...)
	return a, b
}

// Last returns the most recent correlation result.
func (c *PairwiseCorrelator) Last() (CorrelationResult, bool) {
	if c.last == nil {
		return CorrelationResult{}, false
	}
	return *c.last, true
}

// Flush drains both partial batches and returns the dropped timestamps.
func (c *PairwiseCorrelator) Flush() (a, b []float64) {
	return c.a.acc.Drain(), c.b.acc.Drain()
}

func (c *PairwiseCorrelator) verdict(rho float64) Verdict {
	switch {
	case rho < c.params.LowBound:
		return VerdictDecorrelated
	case rho > c.params.HighBound:
		return VerdictSynchronized
	default:
		return VerdictInconclusive
	}
}

func (c *PairwiseCorrelator) leg(id Identifier) *correlationLeg {
	switch id {
	case c.a.id:
		return c.a
	case c.b.id:
		return c.b
	default:
		return nil
	}
}
