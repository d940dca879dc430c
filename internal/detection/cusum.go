// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package detection

import "math"

// Decision is the outcome of feeding one identification error to the
// ChangeDetector.
type Decision struct {
	Normalized float64
	LPlus      float64
	LMinus     float64
	MuE        float64
	SigmaE     float64
	Alarm      AlarmClass

	// StatisticsUpdated is false when the adaptive update was skipped by the
	// z-score guard, or when statistics are fixed.
	StatisticsUpdated bool
}

// ChangeDetector is a dual-sided CUSUM over the identification error.
// L+ accumulates sustained positive shifts (fabrication), L- sustained
// negative shifts (masquerade).
type ChangeDetector struct {
	kParam    float64
	threshold float64

	adaptive   bool
	alpha      float64
	zGuard     float64
	sigmaFloor float64

	latch   bool
	latched AlarmClass

	muE    float64
	sigmaE float64
	lPlus  float64
	lMinus float64
}

// NewChangeDetector creates a detector from detector parameters.
func NewChangeDetector(p Params) *ChangeDetector {
	return &ChangeDetector{
		kParam:     p.KParam,
		threshold:  p.Threshold,
		adaptive:   p.Statistics == StatisticsAdaptive,
		alpha:      p.Alpha,
		zGuard:     p.ZGuard,
		sigmaFloor: p.SigmaFloor,
		latch:      p.Latch,
		sigmaE:     p.SigmaE,
	}
}

// UpdateStatistics applies the exponential update of mu_e and sigma_e:
//
//	mu'  = (1-alpha)*mu + alpha*e
//	var' = (1-alpha)*sigma^2 + alpha*(e-mu')^2
//	sigma' = max(sqrt(var'), floor)
//
// The update is skipped when |e-mu|/sigma, computed against the pre-update
// statistics, reaches the z guard. It reports whether the update happened.
func (d *ChangeDetector) UpdateStatistics(e float64) bool {
	if d.sigmaE > 0 && math.Abs(e-d.muE)/d.sigmaE >= d.zGuard {
		return false
	}
	d.muE = (1-d.alpha)*d.muE + d.alpha*e
	variance := (1-d.alpha)*d.sigmaE*d.sigmaE + d.alpha*(e-d.muE)*(e-d.muE)
	d.sigmaE = math.Max(math.Sqrt(variance), d.sigmaFloor)
	return true
}

// Observe feeds one identification error and returns the per-batch decision.
func (d *ChangeDetector) Observe(e float64) Decision {
	updated := false
	if d.adaptive {
		updated = d.UpdateStatistics(e)
	}

	normalized := (e - d.muE) / d.sigmaE
	d.lPlus = math.Max(0, d.lPlus+normalized-d.kParam)
	d.lMinus = math.Max(0, d.lMinus-normalized-d.kParam)

	alarm := d.classify()
	if d.latch {
		if d.latched != AlarmNone {
			alarm = d.latched
		} else {
			d.latched = alarm
		}
	}

	return Decision{
		Normalized:        normalized,
		LPlus:             d.lPlus,
		LMinus:            d.lMinus,
		MuE:               d.muE,
		SigmaE:            d.sigmaE,
		Alarm:             alarm,
		StatisticsUpdated: updated,
	}
}

// classify maps the current limits to an alarm class. Fabrication wins
// when both limits are over threshold.
func (d *ChangeDetector) classify() AlarmClass {
	switch {
	case d.lPlus > d.threshold:
		return AlarmFabrication
	case d.lMinus > d.threshold:
		return AlarmMasquerade
	default:
		return AlarmNone
	}
}

// Reset clears both limits and any latched alarm. Statistics are kept.
func (d *ChangeDetector) Reset() {
	d.lPlus = 0
	d.lMinus = 0
	d.latched = AlarmNone
}

// Limits returns the current L+ and L-.
func (d *ChangeDetector) Limits() (lPlus, lMinus float64) {
	return d.lPlus, d.lMinus
}

// Statistics returns the current mu_e and sigma_e.
func (d *ChangeDetector) Statistics() (muE, sigmaE float64) {
	return d.muE, d.sigmaE
}

// Latched returns the latched alarm class, if latching is enabled.
func (d *ChangeDetector) Latched() AlarmClass {
	return d.latched
}
