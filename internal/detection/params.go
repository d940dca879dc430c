// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package detection

import (
	"fmt"
	"time"
)

// Params is the immutable configuration of a DetectorState. A copy is taken
// at construction; changing a Params value afterwards has no effect on
// existing detectors.
type Params struct {
	// BatchSize is the number of timestamps per batch (default: 20).
	BatchSize int `json:"batch_size"`

	// Lambda is the RLS forgetting factor in (0, 1] (default: 0.9995).
	Lambda float64 `json:"lambda"`

	// Threshold is the CUSUM alarm level (default: 5.0).
	Threshold float64 `json:"threshold"`

	// KParam is the CUSUM drift allowance (default: 0.5).
	KParam float64 `json:"k_param"`

	// SigmaE is the initial, or fixed, error normalization scale (default: 0.005).
	SigmaE float64 `json:"sigma_e"`

	// InitialCovariance seeds the RLS covariance P (default: 100.0).
	InitialCovariance float64 `json:"initial_covariance"`

	// InitialSkew seeds the RLS skew estimate S (default: 0.0).
	InitialSkew float64 `json:"initial_skew"`

	// OffsetPolicy selects the reference interval (default: previous-batch).
	OffsetPolicy OffsetReferencePolicy `json:"offset_policy"`

	// LearningBatches is the adaptive-baseline learning window (default: 200).
	LearningBatches int `json:"learning_batches"`

	// NominalInterval is the reference frozen after learning (default: 50ms).
	// Zero freezes the learned running mean instead.
	NominalInterval float64 `json:"nominal_interval"`

	// Statistics selects fixed or adaptive mu_e/sigma_e (default: fixed).
	Statistics StatisticsPolicy `json:"statistics"`

	// Alpha is the adaptive statistics smoothing constant (default: 0.01).
	Alpha float64 `json:"alpha"`

	// ZGuard skips the adaptive update when |e-mu_e|/sigma_e reaches it (default: 3.0).
	ZGuard float64 `json:"z_guard"`

	// SigmaFloor bounds sigma_e from below in adaptive mode (default: 1e-6).
	SigmaFloor float64 `json:"sigma_floor"`

	// Latch keeps the first alarm class raised until Reset (default: false).
	Latch bool `json:"latch"`
}

// DefaultParams returns the reference configuration.
func DefaultParams() Params {
	return Params{
		BatchSize:         20,
		Lambda:            0.9995,
		Threshold:         5.0,
		KParam:            0.5,
		SigmaE:            0.005,
		InitialCovariance: 100.0,
		InitialSkew:       0.0,
		OffsetPolicy:      PolicyPreviousBatch,
		LearningBatches:   200,
		NominalInterval:   0.05,
		Statistics:        StatisticsFixed,
		Alpha:             0.01,
		ZGuard:            3.0,
		SigmaFloor:        1e-6,
		Latch:             false,
	}
}

// Validate checks the parameters for values the filters cannot run with.
// Policy names are canonicalized in place.
func (p *Params) Validate() error {
	if p.BatchSize < 2 {
		return fmt.Errorf("%w: batch size %d must be at least 2", ErrInvalidParams, p.BatchSize)
	}
	if p.Lambda <= 0 || p.Lambda > 1 {
		return fmt.Errorf("%w: lambda %v must be in (0, 1]", ErrInvalidParams, p.Lambda)
	}
	if p.Threshold <= 0 {
		return fmt.Errorf("%w: threshold %v must be positive", ErrInvalidParams, p.Threshold)
	}
	if p.KParam < 0 {
		return fmt.Errorf("%w: k_param %v must not be negative", ErrInvalidParams, p.KParam)
	}
	if p.SigmaE <= 0 {
		return fmt.Errorf("%w: sigma_e %v must be positive", ErrInvalidParams, p.SigmaE)
	}
	if p.InitialCovariance <= 0 {
		return fmt.Errorf("%w: initial covariance %v must be positive", ErrInvalidParams, p.InitialCovariance)
	}
	policy, err := ParseOffsetPolicy(string(p.OffsetPolicy))
	if err != nil {
		return err
	}
	p.OffsetPolicy = policy
	stats, err := ParseStatisticsPolicy(string(p.Statistics))
	if err != nil {
		return err
	}
	p.Statistics = stats
	if p.OffsetPolicy == PolicyAdaptiveBaseline {
		if p.LearningBatches < 1 {
			return fmt.Errorf("%w: learning batches %d must be at least 1", ErrInvalidParams, p.LearningBatches)
		}
		if p.NominalInterval < 0 {
			return fmt.Errorf("%w: nominal interval %v must not be negative", ErrInvalidParams, p.NominalInterval)
		}
	}
	if p.Statistics == StatisticsAdaptive {
		if p.Alpha <= 0 || p.Alpha > 1 {
			return fmt.Errorf("%w: alpha %v must be in (0, 1]", ErrInvalidParams, p.Alpha)
		}
		if p.ZGuard <= 0 {
			return fmt.Errorf("%w: z guard %v must be positive", ErrInvalidParams, p.ZGuard)
		}
		if p.SigmaFloor <= 0 {
			return fmt.Errorf("%w: sigma floor %v must be positive", ErrInvalidParams, p.SigmaFloor)
		}
	}
	return nil
}

// SuspensionParams configures the SuspensionGuard.
type SuspensionParams struct {
	// Timeout is the silence deadline per identifier (default: 500ms).
	Timeout time.Duration `json:"timeout"`

	// PadInterval spaces the synthetic timestamps of a forced closure (default: 10s).
	PadInterval float64 `json:"pad_interval"`
}

// DefaultSuspensionParams returns the reference suspension configuration.
func DefaultSuspensionParams() SuspensionParams {
	return SuspensionParams{
		Timeout:     500 * time.Millisecond,
		PadInterval: 10.0,
	}
}

// CorrelationParams configures the PairwiseCorrelator.
type CorrelationParams struct {
	// BatchSize is the per-leg batch size (default: 20).
	BatchSize int `json:"batch_size"`

	// MinSamples is the number of aligned batch offsets required (default: 5).
	MinSamples int `json:"min_samples"`

	// LowBound is the coefficient below which a leg is decorrelated (default: 0.2).
	LowBound float64 `json:"low_bound"`

	// HighBound is the coefficient above which the pair is synchronized (default: 0.8).
	HighBound float64 `json:"high_bound"`
}

// DefaultCorrelationParams returns the reference correlation configuration.
func DefaultCorrelationParams() CorrelationParams {
	return CorrelationParams{
		BatchSize:  20,
		MinSamples: 5,
		LowBound:   0.2,
		HighBound:  0.8,
	}
}

// Validate checks the correlation parameters.
func (p *CorrelationParams) Validate() error {
	if p.BatchSize < 2 {
		return fmt.Errorf("%w: correlation batch size %d must be at least 2", ErrInvalidParams, p.BatchSize)
	}
	if p.MinSamples < 2 {
		return fmt.Errorf("%w: min samples %d must be at least 2", ErrInvalidParams, p.MinSamples)
	}
	if p.LowBound >= p.HighBound {
		return fmt.Errorf("%w: low bound %v must be below high bound %v", ErrInvalidParams, p.LowBound, p.HighBound)
	}
	return nil
}
