// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package detection

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	_ "github.com/duckdb/duckdb-go/v2"
)

// setupTestStore creates a DuckDBStore with initialized schema.
func setupTestStore(t *testing.T) *DuckDBStore {
	t.Helper()
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	// A single connection keeps every statement on the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := NewDuckDBStore(db)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	return store
}

func testAlert(class AlarmClass, id Identifier, created time.Time) *Alert {
	meta, _ := json.Marshal(AlarmMetadata{Sequence: 3, LPlus: 12.5, Threshold: 5})
	return &Alert{
		UUID:       "alert-" + string(class) + "-" + id.String(),
		Class:      class,
		Identifier: id,
		Severity:   SeverityCritical,
		Title:      alarmTitle(class),
		Message:    "test",
		Metadata:   meta,
		CreatedAt:  created,
	}
}

func TestDuckDBStore_InitSchema_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	if err := store.InitSchema(context.Background()); err != nil {
		t.Errorf("second InitSchema() error = %v", err)
	}
}

func TestDuckDBStore_InitSchema_NilDB(t *testing.T) {
	store := NewDuckDBStore(nil)
	if err := store.InitSchema(context.Background()); !errors.Is(err, ErrStoreNotReady) {
		t.Errorf("InitSchema() error = %v, want ErrStoreNotReady", err)
	}
}

func TestDuckDBStore_SaveAndGetAlert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alert := testAlert(AlarmFabrication, 0x11, time.Now().UTC())
	if err := store.SaveAlert(ctx, alert); err != nil {
		t.Fatalf("SaveAlert() error = %v", err)
	}
	if alert.ID == 0 {
		t.Fatal("SaveAlert() should assign an ID")
	}

	got, err := store.GetAlert(ctx, alert.ID)
	if err != nil {
		t.Fatalf("GetAlert() error = %v", err)
	}
	if got.Class != AlarmFabrication || got.Identifier != 0x11 || got.UUID != alert.UUID {
		t.Errorf("GetAlert() = %+v", got)
	}
	var meta AlarmMetadata
	if err := json.Unmarshal(got.Metadata, &meta); err != nil {
		t.Fatalf("metadata not valid JSON: %v (%s)", err, got.Metadata)
	}
	if meta.LPlus != 12.5 {
		t.Errorf("metadata l_plus = %v, want 12.5", meta.LPlus)
	}

	if _, err := store.GetAlert(ctx, 9999); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("GetAlert(9999) error = %v, want ErrAlertNotFound", err)
	}
}

func TestDuckDBStore_ListAlerts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, a := range []*Alert{
		testAlert(AlarmFabrication, 0x11, base),
		testAlert(AlarmSuspension, 0x11, base.Add(time.Minute)),
		testAlert(AlarmMasquerade, 0x22, base.Add(2*time.Minute)),
	} {
		if err := store.SaveAlert(ctx, a); err != nil {
			t.Fatalf("SaveAlert(%d) error = %v", i, err)
		}
	}

	id := Identifier(0x11)
	since := base.Add(30 * time.Second)
	tests := []struct {
		name   string
		filter AlertFilter
		want   []AlarmClass
	}{
		{"all newest first", AlertFilter{}, []AlarmClass{AlarmMasquerade, AlarmSuspension, AlarmFabrication}},
		{"by class", AlertFilter{Classes: []AlarmClass{AlarmFabrication, AlarmMasquerade}}, []AlarmClass{AlarmMasquerade, AlarmFabrication}},
		{"by identifier", AlertFilter{Identifier: &id}, []AlarmClass{AlarmSuspension, AlarmFabrication}},
		{"since", AlertFilter{StartDate: &since}, []AlarmClass{AlarmMasquerade, AlarmSuspension}},
		{"limit and offset", AlertFilter{Limit: 1, Offset: 1}, []AlarmClass{AlarmSuspension}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts, err := store.ListAlerts(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListAlerts() error = %v", err)
			}
			if len(alerts) != len(tt.want) {
				t.Fatalf("got %d alerts, want %d", len(alerts), len(tt.want))
			}
			for i, a := range alerts {
				if a.Class != tt.want[i] {
					t.Errorf("alerts[%d].Class = %q, want %q", i, a.Class, tt.want[i])
				}
			}

			count, err := store.GetAlertCount(ctx, AlertFilter{Classes: tt.filter.Classes, Identifier: tt.filter.Identifier, StartDate: tt.filter.StartDate})
			if err != nil {
				t.Fatalf("GetAlertCount() error = %v", err)
			}
			if tt.filter.Limit == 0 && count != len(tt.want) {
				t.Errorf("GetAlertCount() = %d, want %d", count, len(tt.want))
			}
		})
	}
}

func TestDuckDBStore_AcknowledgeAlert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alert := testAlert(AlarmMasquerade, 0x22, time.Now().UTC())
	if err := store.SaveAlert(ctx, alert); err != nil {
		t.Fatal(err)
	}
	if err := store.AcknowledgeAlert(ctx, alert.ID, "operator"); err != nil {
		t.Fatalf("AcknowledgeAlert() error = %v", err)
	}

	got, err := store.GetAlert(ctx, alert.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Acknowledged || got.AcknowledgedBy != "operator" || got.AcknowledgedAt == nil {
		t.Errorf("alert not acknowledged: %+v", got)
	}

	unacked := false
	count, err := store.GetAlertCount(ctx, AlertFilter{Acknowledged: &unacked})
	if err != nil || count != 0 {
		t.Errorf("GetAlertCount(unacknowledged) = %d, %v; want 0", count, err)
	}

	if err := store.AcknowledgeAlert(ctx, 9999, "operator"); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("AcknowledgeAlert(9999) error = %v, want ErrAlertNotFound", err)
	}
}

func TestDuckDBStore_Results(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for seq := uint64(1); seq <= 5; seq++ {
		r := &BatchResult{
			Identifier:        0x11,
			Sequence:          seq,
			ElapsedTime:       float64(seq),
			AccumulatedOffset: float64(seq) * 1e-4,
			SigmaE:            0.005,
			Phase:             PhaseActive,
		}
		if seq == 5 {
			r.Alarm = AlarmSuspension
			r.Forced = true
		}
		if err := store.WriteResult(ctx, r); err != nil {
			t.Fatalf("WriteResult(%d) error = %v", seq, err)
		}
	}
	// A rewritten sequence replaces the earlier row.
	if err := store.WriteResult(ctx, &BatchResult{Identifier: 0x11, Sequence: 5, Phase: PhaseActive, Alarm: AlarmSuspension, Forced: true}); err != nil {
		t.Fatalf("WriteResult(replace) error = %v", err)
	}

	results, err := store.ListResults(ctx, 0x11, 3)
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, want := range []uint64{3, 4, 5} {
		if results[i].Sequence != want {
			t.Errorf("results[%d].Sequence = %d, want %d", i, results[i].Sequence, want)
		}
	}
	last := results[2]
	if last.Alarm != AlarmSuspension || !last.Forced || last.Identifier != 0x11 {
		t.Errorf("last result = %+v", last)
	}

	if other, err := store.ListResults(ctx, 0x22, 0); err != nil || len(other) != 0 {
		t.Errorf("ListResults(0x22) = %v, %v; want empty", other, err)
	}
}

func TestDuckDBStore_WriteCorrelation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	c := &CorrelationResult{A: 0x10, B: 0x20, Samples: 7, Coefficient: 0.93, Verdict: VerdictSynchronized}
	if err := store.WriteCorrelation(ctx, c); err != nil {
		t.Fatalf("WriteCorrelation() error = %v", err)
	}

	var n int
	if err := store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM correlation_results WHERE verdict = ?`, "synchronized").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("correlation rows = %d, want 1", n)
	}
}

func TestDuckDBStore_AsEngineStore(t *testing.T) {
	store := setupTestStore(t)
	cfg := DefaultEngineConfig()
	cfg.SuspensionEnabled = false
	e, err := NewEngine(cfg, store)
	if err != nil {
		t.Fatal(err)
	}
	e.RegisterSink(store)

	ctx := context.Background()
	stream, _ := fabricationStream(1, 20)
	for _, ts := range stream[:20*410] {
		if _, err := e.Process(ctx, Frame{ID: 0x11, Timestamp: ts}); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
	}

	count, err := store.GetAlertCount(ctx, AlertFilter{Classes: []AlarmClass{AlarmFabrication}})
	if err != nil || count != 1 {
		t.Errorf("fabrication alerts = %d, %v; want 1", count, err)
	}
	results, err := store.ListResults(ctx, 0x11, 1000)
	if err != nil || len(results) != 410 {
		t.Errorf("stored results = %d, %v; want 410", len(results), err)
	}
}

func TestBuildPlaceholders(t *testing.T) {
	tests := map[int]string{0: "", 1: "?", 3: "?, ?, ?"}
	for n, want := range tests {
		if got := buildPlaceholders(n); got != want {
			t.Errorf("buildPlaceholders(%d) = %q, want %q", n, got, want)
		}
	}
}
