// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package simulation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/cids/internal/detection"
)

// Scenario names a traffic generator.
type Scenario string

const (
	ScenarioFabrication Scenario = "fabrication"
	ScenarioSuspension  Scenario = "suspension"
	ScenarioMasquerade  Scenario = "masquerade"
	ScenarioPairwise    Scenario = "pairwise"
)

// Scenarios lists every scenario in a stable order.
var Scenarios = []Scenario{ScenarioFabrication, ScenarioSuspension, ScenarioMasquerade, ScenarioPairwise}

// ErrInvalidConfig is returned for configurations the generators cannot run.
var ErrInvalidConfig = errors.New("simulation: invalid configuration")

// ErrUnknownScenario is returned by ParseScenario and Run for unknown names.
var ErrUnknownScenario = errors.New("simulation: unknown scenario")

// ParseScenario parses a scenario name, case-insensitively.
func ParseScenario(s string) (Scenario, error) {
	sc := Scenario(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Scenarios {
		if sc == known {
			return sc, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScenario, s)
}

// Config parameterizes a simulation run. All times are in seconds.
type Config struct {
	// Identifier is the victim identifier (default: 0x011).
	Identifier detection.Identifier

	// PairIdentifier is the second identifier of the pairwise scenario (default: 0x012).
	PairIdentifier detection.Identifier

	// Params configures the detector under test.
	Params detection.Params

	// Correlation configures the pairwise correlator.
	Correlation detection.CorrelationParams

	// BaseInterval is the nominal transmission period (default: 0.05).
	BaseInterval float64

	// Jitter is the half-width of the uniform per-interval jitter (default: 50us).
	Jitter float64

	// BaseDuration is the length of the attack-free phase.
	BaseDuration float64

	// AttackDuration is the length of the attack phase.
	AttackDuration float64

	// FloodInterval is the fabrication attack period (default: 0.002).
	FloodInterval float64

	// BaseSkew and AttackSkew scale the interval as BaseInterval*(1+skew)
	// before and during the attack, for the masquerade and pairwise
	// scenarios.
	BaseSkew   float64
	AttackSkew float64

	// SilenceStep, Timeout and PadInterval drive the suspension scenario
	// (defaults: 0.1, 0.5 and 10).
	SilenceStep float64
	Timeout     float64
	PadInterval float64

	// PairPhase shifts the second identifier's transmissions (default: 1ms).
	PairPhase float64

	// Takeover replaces the first pairwise identifier with an independent
	// attacker clock after the base phase (default: true).
	Takeover bool

	// Seed makes a run reproducible.
	Seed int64
}

// DefaultConfig returns the reference experiment for a scenario.
func DefaultConfig(s Scenario) Config {
	cfg := Config{
		Identifier:     0x11,
		PairIdentifier: 0x12,
		Params:         detection.DefaultParams(),
		Correlation:    detection.DefaultCorrelationParams(),
		BaseInterval:   0.05,
		Jitter:         50e-6,
		BaseDuration:   400,
		AttackDuration: 50,
		FloodInterval:  0.002,
		SilenceStep:    0.1,
		Timeout:        0.5,
		PadInterval:    10,
		PairPhase:      0.001,
		Takeover:       true,
		Seed:           1,
	}

	switch s {
	case ScenarioMasquerade:
		// The victim runs 200ppm slow against the frozen nominal interval;
		// the attacker's clock is much closer to nominal, which flattens
		// the accumulated offset.
		cfg.AttackDuration = 400
		cfg.BaseSkew = 0.0002
		cfg.AttackSkew = 0.00001
		cfg.Params.OffsetPolicy = detection.PolicyAdaptiveBaseline
		cfg.Params.Statistics = detection.StatisticsAdaptive
		cfg.Params.SigmaE = 0.001
	case ScenarioPairwise:
		cfg.BaseDuration = 10
		cfg.AttackDuration = 400
		cfg.AttackSkew = 0.001
	}
	return cfg
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := c.Params.Validate(); err != nil {
		return err
	}
	if err := c.Correlation.Validate(); err != nil {
		return err
	}
	switch {
	case c.BaseInterval <= 0:
		return fmt.Errorf("%w: base interval %v must be positive", ErrInvalidConfig, c.BaseInterval)
	case c.Jitter < 0 || c.Jitter >= c.BaseInterval/2:
		return fmt.Errorf("%w: jitter %v must be in [0, %v)", ErrInvalidConfig, c.Jitter, c.BaseInterval/2)
	case c.BaseDuration <= 0:
		return fmt.Errorf("%w: base duration %v must be positive", ErrInvalidConfig, c.BaseDuration)
	case c.AttackDuration < 0:
		return fmt.Errorf("%w: attack duration %v must not be negative", ErrInvalidConfig, c.AttackDuration)
	case c.FloodInterval <= 0:
		return fmt.Errorf("%w: flood interval %v must be positive", ErrInvalidConfig, c.FloodInterval)
	case c.BaseSkew <= -1 || c.AttackSkew <= -1:
		return fmt.Errorf("%w: skew must be above -1", ErrInvalidConfig)
	case c.SilenceStep <= 0 || c.Timeout <= 0 || c.PadInterval <= 0:
		return fmt.Errorf("%w: suspension timing values must be positive", ErrInvalidConfig)
	case c.Identifier == c.PairIdentifier:
		return fmt.Errorf("%w: pair identifiers must differ", ErrInvalidConfig)
	}
	return nil
}
