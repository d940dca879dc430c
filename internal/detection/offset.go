// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package detection

// OffsetEstimate is the outcome of estimating one batch.
type OffsetEstimate struct {
	// AverageOffset is the mean of offset[1..N-1].
	AverageOffset float64

	// MeanInterval is current_mu_T, the batch's mean inter-arrival time.
	MeanInterval float64

	// ReferenceInterval is the interval the expected schedule was built from.
	ReferenceInterval float64

	// Learning is true when the batch fell inside the adaptive learning window.
	Learning bool
}

// ReferenceState is the policy-dependent memory carried between batches.
// It is owned by the caller (one per identifier) so that the estimator itself
// stays stateless per call.
type ReferenceState struct {
	PrevInterval    float64 `json:"prev_interval"`
	HasPrev         bool    `json:"has_prev"`
	Baseline        float64 `json:"baseline"`
	LearnedBatches  int     `json:"learned_batches"`
	LearningClosed  bool    `json:"learning_closed"`
	FrozenReference float64 `json:"frozen_reference,omitempty"`
}

// OffsetEstimator converts a batch into a signed timing offset relative to a
// reference inter-arrival interval.
type OffsetEstimator struct {
	Policy          OffsetReferencePolicy
	LearningBatches int
	NominalInterval float64
}

// NewOffsetEstimator creates an estimator from detector parameters.
func NewOffsetEstimator(p Params) OffsetEstimator {
	return OffsetEstimator{
		Policy:          p.OffsetPolicy,
		LearningBatches: p.LearningBatches,
		NominalInterval: p.NominalInterval,
	}
}

// MeanInterval returns the mean of the N-1 consecutive differences of ts.
// It returns false for fewer than two timestamps.
func MeanInterval(ts []float64) (float64, bool) {
	n := len(ts)
	if n < 2 {
		return 0, false
	}
	sum := 0.0
	for i := 1; i < n; i++ {
		sum += ts[i] - ts[i-1]
	}
	return sum / float64(n-1), true
}

// AverageOffset returns the mean of t[i] - (t[0] + i*reference) over i in [1, N-1].
func AverageOffset(ts []float64, reference float64) float64 {
	n := len(ts)
	if n < 2 {
		return 0
	}
	t0 := ts[0]
	sum := 0.0
	for i := 1; i < n; i++ {
		sum += ts[i] - (t0 + float64(i)*reference)
	}
	return sum / float64(n-1)
}

// Estimate computes the offset of a batch and advances state. It returns
// false for batches with fewer than two timestamps, leaving state untouched.
func (e OffsetEstimator) Estimate(ts []float64, state *ReferenceState) (OffsetEstimate, bool) {
	current, ok := MeanInterval(ts)
	if !ok {
		return OffsetEstimate{}, false
	}

	est := OffsetEstimate{MeanInterval: current}

	switch e.Policy {
	case PolicySameBatch:
		est.ReferenceInterval = current

	case PolicyAdaptiveBaseline:
		if state.LearningClosed {
			est.ReferenceInterval = state.FrozenReference
			break
		}
		state.Baseline = (state.Baseline*float64(state.LearnedBatches) + current) / float64(state.LearnedBatches+1)
		state.LearnedBatches++
		est.ReferenceInterval = state.Baseline
		est.Learning = true
		if state.LearnedBatches >= e.LearningBatches {
			state.LearningClosed = true
			state.FrozenReference = e.NominalInterval
			if state.FrozenReference == 0 {
				state.FrozenReference = state.Baseline
			}
		}

	default:
		if state.HasPrev {
			est.ReferenceInterval = state.PrevInterval
		} else {
			est.ReferenceInterval = current
		}
	}

	state.PrevInterval = current
	state.HasPrev = true

	est.AverageOffset = AverageOffset(ts, est.ReferenceInterval)
	return est, true
}

// GhostOffset computes the offset a reference stream (the same identifier
// without an attacker present) produces against the interval an attacked
// batch was evaluated with. It is the side-by-side comparison used when
// replaying masquerade experiments.
func GhostOffset(ghost []float64, reference float64) float64 {
	return AverageOffset(ghost, reference)
}
