// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package simulation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/logging"
)

// ctxCheckEvery is how many generated timestamps pass between context checks.
const ctxCheckEvery = 1024

// Run is the outcome of one scenario.
type Run struct {
	Scenario Scenario `json:"scenario"`
	Seed     int64    `json:"seed"`

	// Results is the batch series of the detector under test.
	Results []detection.BatchResult `json:"results"`

	// Ghost holds, per result, the accumulated offset the unattacked victim
	// would have produced. Only the masquerade scenario fills it.
	Ghost []float64 `json:"ghost,omitempty"`

	// Correlations is the pairwise series. Only the pairwise scenario fills it.
	Correlations []detection.CorrelationResult `json:"correlations,omitempty"`

	// AttackBatch is the index of the first result whose batch contains
	// attack-phase traffic, or -1.
	AttackBatch int `json:"attack_batch"`

	// AttackStart is the virtual time the attack phase began.
	AttackStart float64 `json:"attack_start"`

	// Frames counts real (not padded) timestamps generated.
	Frames int `json:"frames"`
}

// FirstAlarm returns the first alarmed result.
func (r *Run) FirstAlarm() (detection.BatchResult, bool) {
	for _, res := range r.Results {
		if res.Alarmed() {
			return res, true
		}
	}
	return detection.BatchResult{}, false
}

// AlarmCounts counts alarmed results by class.
func (r *Run) AlarmCounts() map[detection.AlarmClass]int {
	counts := make(map[detection.AlarmClass]int)
	for _, res := range r.Results {
		if res.Alarmed() {
			counts[res.Alarm]++
		}
	}
	return counts
}

// Runner executes scenarios against a fresh detector and forwards every
// result to its sinks. A Runner is not safe for concurrent use.
type Runner struct {
	cfg   Config
	sinks []detection.ResultSink

	rng  *rand.Rand
	run  *Run
	det  *detection.DetectorState
	corr *detection.PairwiseCorrelator
}

// NewRunner validates cfg and creates a Runner. Sinks that also implement
// detection.CorrelationSink receive the pairwise series.
func NewRunner(cfg Config, sinks ...detection.ResultSink) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, sinks: sinks}, nil
}

// Config returns the runner configuration.
func (r *Runner) Config() Config {
	return r.cfg
}

// Run executes one scenario from a clean state.
func (r *Runner) Run(ctx context.Context, s Scenario) (*Run, error) {
	var gen func(context.Context) error
	switch s {
	case ScenarioFabrication:
		gen = r.fabrication
	case ScenarioSuspension:
		gen = r.suspension
	case ScenarioMasquerade:
		gen = r.masquerade
	case ScenarioPairwise:
		gen = r.pairwise
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, s)
	}

	if err := r.reset(s); err != nil {
		return nil, err
	}

	start := time.Now()
	logger := logging.WithComponent("simulation").With().Str("scenario", string(s)).Int64("seed", r.cfg.Seed).Logger()
	logger.Info().Float64("base_duration", r.cfg.BaseDuration).Float64("attack_duration", r.cfg.AttackDuration).Msg("simulation started")

	if err := gen(ctx); err != nil {
		return r.run, err
	}

	counts := r.run.AlarmCounts()
	event := logger.Info().
		Int("frames", r.run.Frames).
		Int("batches", len(r.run.Results)).
		Int("correlations", len(r.run.Correlations)).
		Dur("duration", time.Since(start))
	for class, n := range counts {
		event = event.Int("alarms_"+string(class), n)
	}
	if first, ok := r.run.FirstAlarm(); ok {
		event = event.Str("first_alarm", string(first.Alarm)).Float64("first_alarm_at", first.ElapsedTime)
	}
	event.Msg("simulation complete")
	return r.run, nil
}

func (r *Runner) reset(s Scenario) error {
	det, err := detection.NewDetectorState(r.cfg.Identifier, r.cfg.Params)
	if err != nil {
		return err
	}
	r.det = det
	r.corr = nil
	r.rng = rand.New(rand.NewSource(r.cfg.Seed))
	r.run = &Run{Scenario: s, Seed: r.cfg.Seed, AttackBatch: -1}
	return nil
}

// jitter draws one uniform sample in [-Jitter, +Jitter].
func (r *Runner) jitter(rng *rand.Rand) float64 {
	if r.cfg.Jitter == 0 {
		return 0
	}
	return (rng.Float64()*2 - 1) * r.cfg.Jitter
}

// beginAttack marks the start of the attack phase at virtual time now.
func (r *Runner) beginAttack(now float64) {
	r.run.AttackStart = now
	r.run.AttackBatch = len(r.run.Results)
	logging.Debug().Str("component", "simulation").Float64("at", now).Msg("attack phase started")
}

// observe feeds one real timestamp to the detector.
func (r *Runner) observe(ctx context.Context, ts float64) (*detection.BatchResult, error) {
	r.run.Frames++
	if r.run.Frames%ctxCheckEvery == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	res, ok := r.det.Observe(ts)
	if !ok {
		return nil, nil
	}
	return res, r.emit(ctx, res)
}

func (r *Runner) emit(ctx context.Context, res *detection.BatchResult) error {
	r.run.Results = append(r.run.Results, *res)
	for _, sink := range r.sinks {
		out := *res
		if err := sink.WriteResult(ctx, &out); err != nil {
			return fmt.Errorf("sink write failed: %w", err)
		}
	}
	return nil
}

func (r *Runner) emitCorrelation(ctx context.Context, c *detection.CorrelationResult) error {
	r.run.Correlations = append(r.run.Correlations, *c)
	for _, sink := range r.sinks {
		cs, ok := sink.(detection.CorrelationSink)
		if !ok {
			continue
		}
		out := *c
		if err := cs.WriteCorrelation(ctx, &out); err != nil {
			return fmt.Errorf("correlation sink write failed: %w", err)
		}
	}
	return nil
}

// baseline generates BaseDuration of jittered periodic traffic and returns
// the virtual time it ended at.
func (r *Runner) baseline(ctx context.Context, interval float64) (float64, error) {
	now := 0.0
	for now < r.cfg.BaseDuration {
		now += interval + r.jitter(r.rng)
		if _, err := r.observe(ctx, now); err != nil {
			return now, err
		}
	}
	return now, nil
}

func (r *Runner) fabrication(ctx context.Context) error {
	now, err := r.baseline(ctx, r.cfg.BaseInterval)
	if err != nil {
		return err
	}
	r.beginAttack(now)

	end := r.cfg.BaseDuration + r.cfg.AttackDuration
	for now < end {
		now += r.cfg.FloodInterval
		if _, err := r.observe(ctx, now); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) suspension(ctx context.Context) error {
	now, err := r.baseline(ctx, r.cfg.BaseInterval)
	if err != nil {
		return err
	}
	r.beginAttack(now)

	end := r.cfg.BaseDuration + r.cfg.AttackDuration
	lastCheck := now
	for now < end {
		now += r.cfg.SilenceStep
		if now-lastCheck <= r.cfg.Timeout {
			continue
		}
		lastCheck = now
		if err := ctx.Err(); err != nil {
			return err
		}
		res, ok := r.det.ForceClose(now, r.cfg.PadInterval)
		if !ok {
			continue
		}
		if err := r.emit(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) masquerade(ctx context.Context) error {
	victim := r.cfg.BaseInterval * (1 + r.cfg.BaseSkew)
	attacker := r.cfg.BaseInterval * (1 + r.cfg.AttackSkew)

	// The ghost replays the victim clock with the same jitter sequence and
	// is batched in lockstep with the detector.
	var (
		now, ghostNow float64
		ghostBatch    = make([]float64, 0, r.cfg.Params.BatchSize)
		ghostAcc      float64
	)
	step := func(interval float64) error {
		j := r.jitter(r.rng)
		now += interval + j
		ghostNow += victim + j
		ghostBatch = append(ghostBatch, ghostNow)

		res, err := r.observe(ctx, now)
		if err != nil || res == nil {
			return err
		}
		ghostAcc += math.Abs(detection.GhostOffset(ghostBatch, res.ReferenceInterval))
		r.run.Ghost = append(r.run.Ghost, ghostAcc)
		ghostBatch = ghostBatch[:0]
		return nil
	}

	for now < r.cfg.BaseDuration {
		if err := step(victim); err != nil {
			return err
		}
	}
	r.beginAttack(now)

	end := r.cfg.BaseDuration + r.cfg.AttackDuration
	for now < end {
		if err := step(attacker); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) pairwise(ctx context.Context) error {
	corr, err := detection.NewPairwiseCorrelator(r.cfg.Identifier, r.cfg.PairIdentifier, r.cfg.Correlation)
	if err != nil {
		return err
	}
	r.corr = corr

	// The attacker clock draws its jitter from an independent source.
	attackRNG := rand.New(rand.NewSource(r.cfg.Seed + 1))
	attacker := r.cfg.BaseInterval * (1 + r.cfg.AttackSkew)
	victim := r.cfg.BaseInterval * (1 + r.cfg.BaseSkew)

	var victimNow, attackerNow float64
	send := func(id detection.Identifier, ts float64) error {
		if id == r.cfg.Identifier {
			if _, err := r.observe(ctx, ts); err != nil {
				return err
			}
		} else {
			r.run.Frames++
		}
		c, ok := r.corr.Observe(id, ts)
		if !ok {
			return nil
		}
		return r.emitCorrelation(ctx, c)
	}

	for victimNow < r.cfg.BaseDuration {
		victimNow += victim + r.jitter(r.rng)
		if err := send(r.cfg.Identifier, victimNow); err != nil {
			return err
		}
		if err := send(r.cfg.PairIdentifier, victimNow+r.cfg.PairPhase); err != nil {
			return err
		}
	}
	r.beginAttack(victimNow)
	attackerNow = victimNow

	end := r.cfg.BaseDuration + r.cfg.AttackDuration
	for victimNow < end {
		victimNow += victim + r.jitter(r.rng)
		first := victimNow
		if r.cfg.Takeover {
			// The victim's first identifier is bused off; the attacker
			// transmits it on its own clock.
			attackerNow += attacker + r.jitter(attackRNG)
			first = attackerNow
		}
		if err := send(r.cfg.Identifier, first); err != nil {
			return err
		}
		if err := send(r.cfg.PairIdentifier, victimNow+r.cfg.PairPhase); err != nil {
			return err
		}
	}
	return nil
}
