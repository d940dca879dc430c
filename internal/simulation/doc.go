// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

/*
Package simulation generates victim and attacker traffic in virtual time and
runs it through the detection core.

Four scenarios are available:

  - fabrication: periodic traffic, then a flood at a much shorter interval
  - suspension: periodic traffic, then silence; the pending batch is padded
    and forced closed whenever the timeout elapses
  - masquerade: a skewed victim clock replaced by an attacker clock with a
    different skew, with a ghost tracker replaying the victim alongside
  - pairwise: two identifiers sharing one clock, with an optional takeover
    of the first by an independent clock

Every scenario is seeded and fully deterministic. Timestamps are produced by
accumulating intervals with uniform jitter, so the stream drifts the way a
free-running ECU oscillator does.

Usage:

	runner, err := simulation.NewRunner(simulation.DefaultConfig(simulation.ScenarioFabrication), csvSink)
	if err != nil {
		return err
	}
	run, err := runner.Run(ctx, simulation.ScenarioFabrication)
	if alarm, ok := run.FirstAlarm(); ok {
		fmt.Printf("detected %s at t=%.1fs\n", alarm.Alarm, alarm.ElapsedTime)
	}
*/
package simulation
