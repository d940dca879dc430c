// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package detection

// SkewTracker is a scalar recursive least squares estimator with exponential
// forgetting. It fits the model O_acc ~= S * t, where t is elapsed time since
// the baseline start and S is the clock skew.
type SkewTracker struct {
	p      float64
	s      float64
	lambda float64
}

// NewSkewTracker creates a tracker with initial covariance p, skew s and
// forgetting factor lambda.
func NewSkewTracker(p, s, lambda float64) *SkewTracker {
	return &SkewTracker{p: p, s: s, lambda: lambda}
}

// Residual returns the identification error e = O_acc - S*t.
func (k *SkewTracker) Residual(accumulated, t float64) float64 {
	return accumulated - k.s*t
}

// Update runs one recursion step with regressor t and residual e:
//
//	G  = (P*t) / (lambda + t*P*t)
//	P' = (P - G*t*P) / lambda
//	S' = S + G*e
func (k *SkewTracker) Update(t, e float64) {
	g := (k.p * t) / (k.lambda + t*k.p*t)
	k.p = (k.p - g*t*k.p) / k.lambda
	k.s += g * e
}

// Skew returns the current skew estimate S.
func (k *SkewTracker) Skew() float64 {
	return k.s
}

// Covariance returns the current covariance P.
func (k *SkewTracker) Covariance() float64 {
	return k.p
}
