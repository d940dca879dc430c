// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordFrame(t *testing.T) {
	before := testutil.ToFloat64(FramesTotal.WithLabelValues("0x011"))
	RecordFrame("0x011")
	RecordFrame("0x011")
	if got := testutil.ToFloat64(FramesTotal.WithLabelValues("0x011")) - before; got != 2 {
		t.Errorf("FramesTotal delta = %v, want 2", got)
	}

	filtered := testutil.ToFloat64(FramesFiltered)
	RecordFrameFiltered()
	if got := testutil.ToFloat64(FramesFiltered) - filtered; got != 1 {
		t.Errorf("FramesFiltered delta = %v, want 1", got)
	}
}

func TestRecordBatch(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		forced bool
		acc    float64
		lPlus  float64
		lMinus float64
	}{
		{"regular batch", "0x0A1", false, 0.0125, 0.3, 0},
		{"forced batch", "0x0A2", true, 99.5, 12.0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forced := "false"
			if tt.forced {
				forced = "true"
			}
			before := testutil.ToFloat64(BatchesProcessed.WithLabelValues(tt.id, forced))

			RecordBatch(tt.id, tt.forced, tt.acc, 1e-4, 2e-5, tt.lPlus, tt.lMinus)

			if got := testutil.ToFloat64(BatchesProcessed.WithLabelValues(tt.id, forced)) - before; got != 1 {
				t.Errorf("BatchesProcessed delta = %v, want 1", got)
			}
			if got := testutil.ToFloat64(AccumulatedOffset.WithLabelValues(tt.id)); got != tt.acc {
				t.Errorf("AccumulatedOffset = %v, want %v", got, tt.acc)
			}
			if got := testutil.ToFloat64(CUSUMLimit.WithLabelValues(tt.id, "plus")); got != tt.lPlus {
				t.Errorf("CUSUMLimit plus = %v, want %v", got, tt.lPlus)
			}
			if got := testutil.ToFloat64(CUSUMLimit.WithLabelValues(tt.id, "minus")); got != tt.lMinus {
				t.Errorf("CUSUMLimit minus = %v, want %v", got, tt.lMinus)
			}
			if got := testutil.ToFloat64(Skew.WithLabelValues(tt.id)); got != 2e-5 {
				t.Errorf("Skew = %v, want 2e-5", got)
			}
		})
	}
}

func TestRecordAlarm(t *testing.T) {
	before := testutil.ToFloat64(AlarmsTotal.WithLabelValues("0x0B1", "fabrication"))
	RecordAlarm("0x0B1", "fabrication")
	if got := testutil.ToFloat64(AlarmsTotal.WithLabelValues("0x0B1", "fabrication")) - before; got != 1 {
		t.Errorf("AlarmsTotal delta = %v, want 1", got)
	}
}

func TestRecordDroppedTimestamps(t *testing.T) {
	before := testutil.ToFloat64(DroppedTimestamps.WithLabelValues("0x0C1"))
	RecordDroppedTimestamps("0x0C1", 7)
	RecordDroppedTimestamps("0x0C1", 0)
	RecordDroppedTimestamps("0x0C1", -3)
	if got := testutil.ToFloat64(DroppedTimestamps.WithLabelValues("0x0C1")) - before; got != 7 {
		t.Errorf("DroppedTimestamps delta = %v, want 7", got)
	}
}

func TestGauges(t *testing.T) {
	SetDetectorsActive(4)
	if got := testutil.ToFloat64(DetectorsActive); got != 4 {
		t.Errorf("DetectorsActive = %v, want 4", got)
	}

	RecordCorrelation("0x010-0x020", 0.93)
	if got := testutil.ToFloat64(CorrelationCoefficient.WithLabelValues("0x010-0x020")); got != 0.93 {
		t.Errorf("CorrelationCoefficient = %v, want 0.93", got)
	}

	SetCircuitBreakerState("nats-publisher", 2)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("nats-publisher")); got != 2 {
		t.Errorf("CircuitBreakerState = %v, want 2", got)
	}
}

func TestWALMetrics(t *testing.T) {
	SetWALPending(0)
	writes := testutil.ToFloat64(WALWrites)
	confirms := testutil.ToFloat64(WALConfirms)

	RecordWALWrite()
	RecordWALWrite()
	RecordWALConfirm()

	if got := testutil.ToFloat64(WALWrites) - writes; got != 2 {
		t.Errorf("WALWrites delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(WALConfirms) - confirms; got != 1 {
		t.Errorf("WALConfirms delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(WALEntriesPending); got != 1 {
		t.Errorf("WALEntriesPending = %v, want 1", got)
	}

	ok := testutil.ToFloat64(WALRetries.WithLabelValues("success"))
	failed := testutil.ToFloat64(WALRetries.WithLabelValues("failure"))
	RecordWALRetry(true)
	RecordWALRetry(false)
	RecordWALRetry(false)
	if got := testutil.ToFloat64(WALRetries.WithLabelValues("success")) - ok; got != 1 {
		t.Errorf("WALRetries success delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(WALRetries.WithLabelValues("failure")) - failed; got != 2 {
		t.Errorf("WALRetries failure delta = %v, want 2", got)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/alerts", "200"))
	RecordAPIRequest("GET", "/api/v1/alerts", "200", 15*time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/alerts", "200")) - before; got != 1 {
		t.Errorf("APIRequestsTotal delta = %v, want 1", got)
	}

	observer, ok := APIRequestDuration.WithLabelValues("GET", "/api/v1/alerts").(prometheus.Metric)
	if !ok {
		t.Fatal("histogram observer is not a prometheus.Metric")
	}
	var m dto.Metric
	if err := observer.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if m.GetHistogram().GetSampleCount() == 0 {
		t.Error("APIRequestDuration recorded no samples")
	}
}

func TestTrackWebSocketClient_Concurrent(t *testing.T) {
	before := testutil.ToFloat64(WebSocketClients)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			TrackWebSocketClient(true)
			TrackWebSocketClient(false)
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(WebSocketClients); got != before {
		t.Errorf("WebSocketClients = %v, want %v", got, before)
	}
}

func TestRegisteredNames(t *testing.T) {
	names := []string{
		"cids_frames_total",
		"cids_batches_processed_total",
		"cids_alarms_total",
		"cids_wal_entries_pending",
	}
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := make(map[string]bool, len(families))
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, n := range names {
		if !found[n] {
			t.Errorf("metric %s is not registered", n)
		}
	}
}
