// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package wal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tomtom215/cids/internal/detection"
)

type recordingSink struct {
	mu           sync.Mutex
	fail         bool
	results      []detection.BatchResult
	correlations []detection.CorrelationResult
}

func (s *recordingSink) WriteResult(ctx context.Context, r *detection.BatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("downstream unavailable")
	}
	s.results = append(s.results, *r)
	return nil
}

func (s *recordingSink) WriteCorrelation(ctx context.Context, c *detection.CorrelationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("downstream unavailable")
	}
	s.correlations = append(s.correlations, *c)
	return nil
}

func (s *recordingSink) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

type resultOnlySink struct{ n int }

func (s *resultOnlySink) WriteResult(ctx context.Context, r *detection.BatchResult) error {
	s.n++
	return nil
}

func TestSink_DeliversAndConfirms(t *testing.T) {
	w := openTestWAL(t, testConfig())
	inner := &recordingSink{}
	sink := NewSink(w, inner, "nats")
	ctx := context.Background()

	r := &detection.BatchResult{Identifier: 0x11, Sequence: 7, LPlus: 1.5, Phase: detection.PhaseActive}
	if err := sink.WriteResult(ctx, r); err != nil {
		t.Fatal(err)
	}
	c := &detection.CorrelationResult{A: 0x10, B: 0x20, Samples: 5, Coefficient: 0.9, Verdict: detection.VerdictSynchronized}
	if err := sink.WriteCorrelation(ctx, c); err != nil {
		t.Fatal(err)
	}

	if len(inner.results) != 1 || len(inner.correlations) != 1 {
		t.Fatalf("inner got %d results, %d correlations", len(inner.results), len(inner.correlations))
	}
	if stats := w.Stats(); stats.PendingCount != 0 || stats.ConfirmedCount != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
	if sink.Name() != "wal:nats" {
		t.Errorf("Name() = %q", sink.Name())
	}
}

func TestSink_FailedDeliveryIsRetried(t *testing.T) {
	w := openTestWAL(t, testConfig())
	inner := &recordingSink{fail: true}
	sink := NewSink(w, inner, "nats")
	ctx := context.Background()

	for seq := uint64(1); seq <= 3; seq++ {
		r := &detection.BatchResult{Identifier: 0x22, Sequence: seq, Alarm: detection.AlarmMasquerade}
		if err := sink.WriteResult(ctx, r); err != nil {
			t.Fatalf("WriteResult() should hide delivery failures, got %v", err)
		}
	}
	if pending, _ := w.GetPending(ctx); len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}

	inner.setFail(false)
	result, err := w.RecoverPending(ctx, sink)
	if err != nil {
		t.Fatal(err)
	}
	if result.Recovered != 3 {
		t.Fatalf("RecoverPending() = %+v", result)
	}

	for i, r := range inner.results {
		if r.Sequence != uint64(i+1) || r.Identifier != 0x22 || r.Alarm != detection.AlarmMasquerade {
			t.Errorf("redelivered[%d] = %+v", i, r)
		}
	}
}

func TestSink_CorrelationSkippedForResultOnlySink(t *testing.T) {
	w := openTestWAL(t, testConfig())
	inner := &resultOnlySink{}
	sink := NewSink(w, inner, "csv")
	ctx := context.Background()

	if err := sink.WriteCorrelation(ctx, &detection.CorrelationResult{}); err != nil {
		t.Fatal(err)
	}
	if stats := w.Stats(); stats.TotalWrites != 0 {
		t.Errorf("correlation should not be logged for a result-only sink: %+v", stats)
	}
}

func TestSink_PublishEntryUnknownKind(t *testing.T) {
	w := openTestWAL(t, testConfig())
	sink := NewSink(w, &recordingSink{}, "x")
	if err := sink.PublishEntry(context.Background(), &Entry{Kind: "bogus"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}
