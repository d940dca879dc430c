// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package detection

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func newTestEngine(t *testing.T, mutate func(*EngineConfig)) (*Engine, *mockAlertStore) {
	t.Helper()
	cfg := DefaultEngineConfig()
	cfg.SuspensionEnabled = false
	if mutate != nil {
		mutate(&cfg)
	}
	store := &mockAlertStore{}
	e, err := NewEngine(cfg, store)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e, store
}

func TestNewEngine_InvalidParams(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Params.Lambda = 2
	if _, err := NewEngine(cfg, nil); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("NewEngine() error = %v, want ErrInvalidParams", err)
	}

	cfg = DefaultEngineConfig()
	cfg.Pair = &[2]Identifier{0x10, 0x10}
	if _, err := NewEngine(cfg, nil); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("NewEngine() with identical pair error = %v, want ErrInvalidParams", err)
	}
}

func TestEngine_FiltersUnmonitored(t *testing.T) {
	e, _ := newTestEngine(t, func(c *EngineConfig) {
		c.Monitored = []Identifier{0x11}
	})
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		out, err := e.Process(ctx, Frame{ID: 0x22, Timestamp: float64(i) * 0.05})
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if out.Result != nil {
			t.Fatal("unmonitored identifier produced a result")
		}
	}

	m := e.Metrics()
	if m.FramesFiltered != 40 || m.FramesProcessed != 0 {
		t.Errorf("metrics = %+v, want 40 filtered and 0 processed", m)
	}
	if len(e.Snapshots()) != 0 {
		t.Error("no detector state should exist for a filtered identifier")
	}
}

func TestEngine_FabricationRaisesOneAlert(t *testing.T) {
	e, store := newTestEngine(t, nil)
	sink := &mockSink{}
	e.RegisterSink(sink)
	notifier := newMockNotifier("mock")
	e.RegisterNotifier(notifier)
	broadcaster := &mockBroadcaster{}
	e.SetBroadcaster(broadcaster)

	stream, attackAt := fabricationStream(42, 20)
	ctx := context.Background()
	for _, ts := range stream {
		if _, err := e.Process(ctx, Frame{ID: 0x11, Timestamp: ts}); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
	}

	results := sink.snapshot()
	if len(results) != 450 {
		t.Fatalf("sink received %d results, want 450", len(results))
	}
	alarmed := 0
	for _, r := range results[attackAt/20:] {
		if r.Alarm == AlarmFabrication {
			alarmed++
		}
	}
	if alarmed < 2 {
		t.Fatalf("only %d attack batches alarmed, test needs a sustained alarm", alarmed)
	}

	alerts := store.byClass(AlarmFabrication)
	if len(alerts) != 1 {
		t.Fatalf("got %d fabrication alerts, want exactly 1 (rising edge)", len(alerts))
	}
	if alerts[0].Identifier != 0x11 || alerts[0].UUID == "" || len(alerts[0].Metadata) == 0 {
		t.Errorf("alert not populated: %+v", alerts[0])
	}
	if broadcaster.count() != 1 {
		t.Errorf("broadcaster received %d alerts, want 1", broadcaster.count())
	}

	select {
	case a := <-notifier.sent:
		if a.Class != AlarmFabrication {
			t.Errorf("notified class = %q, want fabrication", a.Class)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not called")
	}

	if m := e.Metrics(); m.AlertsGenerated != 1 || m.BatchesProcessed != 450 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestEngine_SinkErrorsDoNotStopProcessing(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	failing := &mockSink{err: errors.New("disk full")}
	healthy := &mockSink{}
	e.RegisterSink(failing)
	e.RegisterSink(healthy)

	ctx := context.Background()
	var lastErr error
	for _, ts := range periodicStream(nil, 0, 0.05, 0, 40) {
		if _, err := e.Process(ctx, Frame{ID: 0x11, Timestamp: ts}); err != nil {
			lastErr = err
		}
	}

	if lastErr == nil {
		t.Error("sink failure should be reported")
	}
	if got := len(healthy.snapshot()); got != 2 {
		t.Errorf("healthy sink received %d results, want 2", got)
	}
	if m := e.Metrics(); m.SinkErrors != 2 {
		t.Errorf("SinkErrors = %d, want 2", m.SinkErrors)
	}
}

func TestEngine_SinkReceivesCopy(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mutating := &mutatingSink{}
	e.RegisterSink(mutating)

	ctx := context.Background()
	var out Outcome
	for _, ts := range periodicStream(nil, 0, 0.05, 0, 20) {
		o, err := e.Process(ctx, Frame{ID: 0x11, Timestamp: ts})
		if err != nil {
			t.Fatal(err)
		}
		if o.Result != nil {
			out = o
		}
	}
	if out.Result == nil || out.Result.Sequence != 1 {
		t.Fatalf("result = %+v, want sequence 1 unaffected by the sink", out.Result)
	}
}

type mutatingSink struct{}

func (mutatingSink) WriteResult(ctx context.Context, r *BatchResult) error {
	r.Sequence = 999
	return nil
}

func TestEngine_ForceCloseDefersWithoutBaseline(t *testing.T) {
	e, _ := newTestEngine(t, func(c *EngineConfig) {
		c.SuspensionEnabled = true
	})

	out, err := e.ForceClose(context.Background(), 0x11, 5)
	if err != nil {
		t.Fatalf("ForceClose() error = %v", err)
	}
	if out.Result != nil {
		t.Error("deferred closure should not produce a result")
	}
	if m := e.Metrics(); m.DeferredClosures != 1 || m.ForcedClosures != 0 {
		t.Errorf("metrics = %+v, want 1 deferred", m)
	}
}

func TestEngine_ReplaySuspensionScenario(t *testing.T) {
	e, store := newTestEngine(t, func(c *EngineConfig) {
		c.SuspensionEnabled = true
		c.Suspension = SuspensionParams{Timeout: 500 * time.Millisecond, PadInterval: 10}
	})
	ctx := context.Background()

	// 10s of normal traffic.
	stream := periodicStream(nil, 0, 0.05, 0, 200)
	for _, ts := range stream {
		outs, err := e.Replay(ctx, Frame{ID: 0x11, Timestamp: ts})
		if err != nil {
			t.Fatalf("Replay() error = %v", err)
		}
		for _, o := range outs {
			if o.Result != nil && o.Result.Forced {
				t.Fatalf("forced closure during normal traffic at %v", ts)
			}
		}
	}

	// 2s of total silence.
	outs, err := e.Tick(ctx, stream[len(stream)-1]+2)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(outs) < 1 {
		t.Fatal("silence should force at least one batch closure")
	}
	first := outs[0].Result
	if !first.Forced || first.LPlus <= 5 {
		t.Errorf("first forced result = %+v, want forced with L+ > 5", first)
	}
	if first.Alarm != AlarmSuspension {
		t.Errorf("alarm = %q, want suspension", first.Alarm)
	}
	if len(outs) < 3 {
		t.Errorf("got %d forced closures in 2s at a 0.5s timeout, want at least 3", len(outs))
	}
	if got := len(store.byClass(AlarmSuspension)); got != 1 {
		t.Errorf("got %d suspension alerts, want 1", got)
	}
	if m := e.Metrics(); m.ForcedClosures != int64(len(outs)) {
		t.Errorf("ForcedClosures = %d, want %d", m.ForcedClosures, len(outs))
	}
}

func TestEngine_RunForcesClosureUnderSilence(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Suspension = SuspensionParams{Timeout: 50 * time.Millisecond, PadInterval: 10}
	e, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	sink := &mockSink{forced: make(chan BatchResult, 4)}
	e.RegisterSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan Frame)
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, frames) }()

	base := WallClock()
	for i := 0; i < 25; i++ {
		frames <- Frame{ID: 0x11, Timestamp: base + float64(i)*0.001}
	}

	select {
	case r := <-sink.forced:
		if r.Identifier != 0x11 || r.Alarm != AlarmSuspension {
			t.Errorf("forced result = %+v, want suspension on 0x011", r)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("guard did not force a closure under silence")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestEngine_RunReturnsWhenFramesClose(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	var flushed []int
	e.RegisterFlushHook(func(id Identifier, partial []float64) {
		flushed = append(flushed, len(partial))
	})

	frames := make(chan Frame, 32)
	for _, ts := range periodicStream(nil, 0, 0.05, 0, 25) {
		frames <- Frame{ID: 0x11, Timestamp: ts}
	}
	close(frames)

	if err := e.Run(context.Background(), frames); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(flushed) != 1 || flushed[0] != 5 {
		t.Errorf("flush hook saw %v, want one partial batch of 5", flushed)
	}
}

func TestEngine_Flush(t *testing.T) {
	e, _ := newTestEngine(t, func(c *EngineConfig) {
		c.Pair = &[2]Identifier{0x11, 0x22}
		c.Monitored = []Identifier{0x11}
	})
	type call struct {
		id Identifier
		n  int
	}
	var calls []call
	e.RegisterFlushHook(func(id Identifier, partial []float64) {
		calls = append(calls, call{id, len(partial)})
	})

	ctx := context.Background()
	for _, ts := range periodicStream(nil, 0, 0.05, 0, 27) {
		if _, err := e.Process(ctx, Frame{ID: 0x11, Timestamp: ts}); err != nil {
			t.Fatal(err)
		}
	}
	for _, ts := range periodicStream(nil, 0, 0.05, 0, 3) {
		if _, err := e.Process(ctx, Frame{ID: 0x22, Timestamp: ts}); err != nil {
			t.Fatal(err)
		}
	}

	report := e.Flush(ctx)
	if report[0x11] != 7 || report[0x22] != 3 {
		t.Errorf("report = %v, want 0x011:7 0x022:3", report)
	}
	if len(calls) != 2 {
		t.Errorf("hook called %d times, want 2: %v", len(calls), calls)
	}
	if m := e.Metrics(); m.DroppedTimestamps != 10 {
		t.Errorf("DroppedTimestamps = %d, want 10", m.DroppedTimestamps)
	}

	if again := e.Flush(ctx); len(again) != 0 {
		t.Errorf("second Flush() = %v, want empty", again)
	}
}

func TestEngine_DecorrelationAlert(t *testing.T) {
	e, store := newTestEngine(t, func(c *EngineConfig) {
		c.Pair = &[2]Identifier{0x10, 0x20}
		c.Monitored = []Identifier{0x10}
	})
	sink := &mockSink{}
	e.RegisterSink(sink)

	const batches = 500
	a := periodicStream(rand.New(rand.NewSource(21)), 0, 0.05, 50e-6, 20*batches)
	b := periodicStream(rand.New(rand.NewSource(22)), 0.01, 0.05, 50e-6, 20*batches)

	ctx := context.Background()
	for i := range a {
		if _, err := e.Process(ctx, Frame{ID: 0x10, Timestamp: a[i]}); err != nil {
			t.Fatal(err)
		}
		if _, err := e.Process(ctx, Frame{ID: 0x20, Timestamp: b[i]}); err != nil {
			t.Fatal(err)
		}
	}

	corr, ok := e.Correlation()
	if !ok || corr.Verdict != VerdictDecorrelated {
		t.Fatalf("Correlation() = %+v, %v; want decorrelated", corr, ok)
	}
	alerts := store.byClass(AlarmDecorrelation)
	if len(alerts) < 1 {
		t.Fatal("decorrelation should raise an alert")
	}
	if alerts[0].Identifier != 0x20 {
		t.Errorf("alert identifier = %s, want 0x020", alerts[0].Identifier)
	}
	if len(sink.correlations) == 0 {
		t.Error("correlation sink received no results")
	}
	if _, ok := e.Snapshot(0x20); ok {
		t.Error("correlator-only leg should not get a detector state")
	}
}

func TestEngine_ResetAlarm(t *testing.T) {
	e, _ := newTestEngine(t, func(c *EngineConfig) {
		c.Params.Latch = true
	})
	stream, _ := fabricationStream(5, 20)
	ctx := context.Background()
	for _, ts := range stream {
		if _, err := e.Process(ctx, Frame{ID: 0x11, Timestamp: ts}); err != nil {
			t.Fatal(err)
		}
	}

	snap, ok := e.Snapshot(0x11)
	if !ok || snap.Latched != AlarmFabrication {
		t.Fatalf("snapshot = %+v, want latched fabrication", snap)
	}
	if !e.ResetAlarm(0x11) {
		t.Fatal("ResetAlarm() = false")
	}
	snap, _ = e.Snapshot(0x11)
	if snap.Latched != AlarmNone || snap.LPlus != 0 || snap.LMinus != 0 {
		t.Errorf("snapshot after reset = %+v", snap)
	}
	if e.ResetAlarm(0x99) {
		t.Error("ResetAlarm() of an unknown identifier should fail")
	}
}

func TestEngine_Submit(t *testing.T) {
	e, _ := newTestEngine(t, func(c *EngineConfig) { c.QueueSize = 1 })

	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Submit(ctx, Frame{ID: 0x11}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	cancel()
	if err := e.Submit(ctx, Frame{ID: 0x11}); !errors.Is(err, context.Canceled) {
		t.Errorf("Submit() on a full queue after cancel = %v, want context.Canceled", err)
	}
}

func TestEngine_AlertMetadata(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	t.Run("encodes batch statistics", func(t *testing.T) {
		alert := e.evaluateAlarmLocked(&BatchResult{Identifier: 0x100, Sequence: 7, LPlus: 6, Alarm: AlarmFabrication})
		if alert == nil {
			t.Fatal("expected an alert")
		}
		var meta AlarmMetadata
		if err := json.Unmarshal(alert.Metadata, &meta); err != nil {
			t.Fatalf("metadata %q: %v", alert.Metadata, err)
		}
		if meta.Sequence != 7 || meta.LPlus != 6 {
			t.Errorf("metadata = %+v", meta)
		}
	})

	t.Run("non-finite statistic leaves metadata empty", func(t *testing.T) {
		alert := e.evaluateAlarmLocked(&BatchResult{Identifier: 0x101, LPlus: math.Inf(1), Alarm: AlarmFabrication})
		if alert == nil {
			t.Fatal("the alert must still be raised")
		}
		if alert.Metadata != nil {
			t.Errorf("Metadata = %q, want nil", alert.Metadata)
		}
	})

	t.Run("non-finite coefficient leaves metadata empty", func(t *testing.T) {
		alert := e.evaluateCorrelationLocked(&CorrelationResult{A: 0x11, B: 0x12, Samples: 10, Coefficient: math.NaN(), Verdict: VerdictDecorrelated})
		if alert == nil {
			t.Fatal("expected a decorrelation alert")
		}
		if alert.Metadata != nil {
			t.Errorf("Metadata = %q, want nil", alert.Metadata)
		}
	})
}
