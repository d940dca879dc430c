// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/export"
	"github.com/tomtom215/cids/internal/logging"
	"github.com/tomtom215/cids/internal/simulation"
	"github.com/tomtom215/cids/internal/validation"
)

// scenarioOptions collects the flags of one scenario subcommand. Values
// start from the scenario defaults; only flags the user set are applied.
type scenarioOptions struct {
	cfg        simulation.Config
	identifier string
	pairID     string
	policy     string
	statistics string
	noTakeover bool
	csvPath    string
	full       bool
}

// Summary is the JSON printed after a run.
type Summary struct {
	Scenario     simulation.Scenario          `json:"scenario"`
	Seed         int64                        `json:"seed"`
	Frames       int                          `json:"frames"`
	Batches      int                          `json:"batches"`
	Correlations int                          `json:"correlations,omitempty"`
	AttackBatch  int                          `json:"attack_batch"`
	AttackStart  float64                      `json:"attack_start"`
	Alarms       map[detection.AlarmClass]int `json:"alarms"`
	FirstAlarm   *AlarmSummary                `json:"first_alarm,omitempty"`
	CSVRows      int                          `json:"csv_rows,omitempty"`
}

// AlarmSummary locates the first alarmed batch.
type AlarmSummary struct {
	Batch       int                  `json:"batch"`
	Class       detection.AlarmClass `json:"class"`
	ElapsedTime float64              `json:"elapsed_time"`
	// Delay counts batches between the attack start and the alarm.
	Delay int `json:"delay"`
}

var scenarioShort = map[simulation.Scenario]string{
	simulation.ScenarioFabrication: "Flood the bus with a spoofed identifier",
	simulation.ScenarioSuspension:  "Silence the sender and let the guard pad its batch",
	simulation.ScenarioMasquerade:  "Replace the sender with a differently skewed clock",
	simulation.ScenarioPairwise:    "Break the offset correlation of two identifiers",
}

func newScenarioCmd(s simulation.Scenario) *cobra.Command {
	opts := &scenarioOptions{cfg: simulation.DefaultConfig(s)}

	cmd := &cobra.Command{
		Use:   string(s),
		Short: scenarioShort[s],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScenario(ctx, s, opts, cmd.Flags(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.csvPath, "csv", "", "Write the batch series to this CSV file")
	f.BoolVar(&opts.full, "json", false, "Print the full run instead of the summary")
	f.Int64Var(&opts.cfg.Seed, "seed", opts.cfg.Seed, "Random seed")
	f.StringVar(&opts.identifier, "identifier", opts.cfg.Identifier.String(), "Identifier under test (hex)")
	f.Float64Var(&opts.cfg.BaseInterval, "interval", opts.cfg.BaseInterval, "Nominal sender period in seconds")
	f.Float64Var(&opts.cfg.Jitter, "jitter", opts.cfg.Jitter, "Half-width of the uniform period jitter in seconds")
	f.Float64Var(&opts.cfg.BaseDuration, "base-duration", opts.cfg.BaseDuration, "Baseline phase length in seconds")
	f.Float64Var(&opts.cfg.AttackDuration, "attack-duration", opts.cfg.AttackDuration, "Attack phase length in seconds")

	p := &opts.cfg.Params
	f.IntVar(&p.BatchSize, "batch-size", p.BatchSize, "Timestamps per batch")
	f.Float64Var(&p.Lambda, "lambda", p.Lambda, "RLS forgetting factor")
	f.Float64Var(&p.Threshold, "threshold", p.Threshold, "CUSUM alarm threshold")
	f.Float64Var(&p.KParam, "k", p.KParam, "CUSUM drift allowance")
	f.Float64Var(&p.SigmaE, "sigma-e", p.SigmaE, "Error normalization scale")
	f.StringVar(&opts.policy, "offset-policy", string(p.OffsetPolicy), "Offset reference (same-batch, previous-batch, adaptive-baseline)")
	f.StringVar(&opts.statistics, "statistics", string(p.Statistics), "Error statistics (fixed, adaptive)")
	f.BoolVar(&p.Latch, "latch", p.Latch, "Hold an alarm until reset")

	switch s {
	case simulation.ScenarioFabrication:
		f.Float64Var(&opts.cfg.FloodInterval, "flood-interval", opts.cfg.FloodInterval, "Attacker injection period in seconds")
	case simulation.ScenarioSuspension:
		f.Float64Var(&opts.cfg.SilenceStep, "silence-step", opts.cfg.SilenceStep, "Clock step while the sender is silent, in seconds")
		f.Float64Var(&opts.cfg.Timeout, "timeout", opts.cfg.Timeout, "Silence deadline in seconds")
		f.Float64Var(&opts.cfg.PadInterval, "pad-interval", opts.cfg.PadInterval, "Spacing of padded timestamps in seconds")
	case simulation.ScenarioMasquerade:
		f.Float64Var(&opts.cfg.BaseSkew, "base-skew", opts.cfg.BaseSkew, "Victim clock skew")
		f.Float64Var(&opts.cfg.AttackSkew, "attack-skew", opts.cfg.AttackSkew, "Attacker clock skew")
	case simulation.ScenarioPairwise:
		f.StringVar(&opts.pairID, "pair-identifier", opts.cfg.PairIdentifier.String(), "Second identifier of the pair (hex)")
		f.Float64Var(&opts.cfg.AttackSkew, "attack-skew", opts.cfg.AttackSkew, "Attacker clock skew")
		f.Float64Var(&opts.cfg.PairPhase, "pair-phase", opts.cfg.PairPhase, "Phase offset of the second identifier in seconds")
		f.BoolVar(&opts.noTakeover, "no-takeover", false, "Keep both senders honest")
		f.IntVar(&opts.cfg.Correlation.BatchSize, "corr-batch-size", opts.cfg.Correlation.BatchSize, "Timestamps per correlation batch")
	}
	return cmd
}

// resolve applies the string-typed flags to the configuration.
func (o *scenarioOptions) resolve(flags *pflag.FlagSet) (simulation.Config, error) {
	cfg := o.cfg
	if flags.Changed("identifier") {
		v, err := validation.ParseIdentifier(o.identifier)
		if err != nil {
			return cfg, fmt.Errorf("--identifier: %w", err)
		}
		cfg.Identifier = detection.Identifier(v)
	}
	if flags.Changed("pair-identifier") {
		v, err := validation.ParseIdentifier(o.pairID)
		if err != nil {
			return cfg, fmt.Errorf("--pair-identifier: %w", err)
		}
		cfg.PairIdentifier = detection.Identifier(v)
	}
	cfg.Params.OffsetPolicy = detection.OffsetReferencePolicy(o.policy)
	cfg.Params.Statistics = detection.StatisticsPolicy(o.statistics)
	if o.noTakeover {
		cfg.Takeover = false
	}
	return cfg, nil
}

func runScenario(ctx context.Context, s simulation.Scenario, opts *scenarioOptions, flags *pflag.FlagSet, out io.Writer) error {
	cfg, err := opts.resolve(flags)
	if err != nil {
		return err
	}

	var sinks []detection.ResultSink
	var csvSink *export.CSVSink
	if opts.csvPath != "" {
		csvSink, err = export.CreateCSVSink(opts.csvPath, export.CSVOptions{})
		if err != nil {
			return err
		}
		defer func() {
			if err := csvSink.Close(); err != nil {
				logging.Error().Err(err).Str("path", opts.csvPath).Msg("failed to close CSV")
			}
		}()
		sinks = append(sinks, csvSink)
	}

	runner, err := simulation.NewRunner(cfg, sinks...)
	if err != nil {
		return err
	}

	run, err := runner.Run(ctx, s)
	if err != nil {
		return fmt.Errorf("%s: %w", s, err)
	}
	if csvSink != nil {
		if err := csvSink.Flush(); err != nil {
			return fmt.Errorf("flush csv: %w", err)
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if opts.full {
		return enc.Encode(run)
	}

	sum := summarize(run)
	if csvSink != nil {
		sum.CSVRows = csvSink.Rows()
	}
	return enc.Encode(sum)
}

func summarize(run *simulation.Run) Summary {
	sum := Summary{
		Scenario:     run.Scenario,
		Seed:         run.Seed,
		Frames:       run.Frames,
		Batches:      len(run.Results),
		Correlations: len(run.Correlations),
		AttackBatch:  run.AttackBatch,
		AttackStart:  run.AttackStart,
		Alarms:       run.AlarmCounts(),
	}
	for i, res := range run.Results {
		if !res.Alarmed() {
			continue
		}
		a := &AlarmSummary{Batch: i, Class: res.Alarm, ElapsedTime: res.ElapsedTime, Delay: -1}
		if run.AttackBatch >= 0 {
			a.Delay = i - run.AttackBatch
		}
		sum.FirstAlarm = a
		break
	}
	return sum
}
