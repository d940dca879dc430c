// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package detection

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// mockAlertStore implements AlertStore for testing
type mockAlertStore struct {
	alerts []Alert
	mu     sync.Mutex
}

func (m *mockAlertStore) SaveAlert(ctx context.Context, alert *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert.ID = int64(len(m.alerts) + 1)
	m.alerts = append(m.alerts, *alert)
	return nil
}

func (m *mockAlertStore) GetAlert(ctx context.Context, id int64) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, ErrAlertNotFound
}

func (m *mockAlertStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out, nil
}

func (m *mockAlertStore) AcknowledgeAlert(ctx context.Context, id int64, acknowledgedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Acknowledged = true
			m.alerts[i].AcknowledgedBy = acknowledgedBy
			now := time.Now()
			m.alerts[i].AcknowledgedAt = &now
			return nil
		}
	}
	return ErrAlertNotFound
}

func (m *mockAlertStore) GetAlertCount(ctx context.Context, filter AlertFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts), nil
}

func (m *mockAlertStore) byClass(class AlarmClass) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Alert
	for _, a := range m.alerts {
		if a.Class == class {
			out = append(out, a)
		}
	}
	return out
}

// mockSink records every result it receives.
type mockSink struct {
	results      []BatchResult
	correlations []CorrelationResult
	err          error
	forced       chan BatchResult
	mu           sync.Mutex
}

func (m *mockSink) Name() string { return "mock" }

func (m *mockSink) WriteResult(ctx context.Context, r *BatchResult) error {
	m.mu.Lock()
	m.results = append(m.results, *r)
	ch := m.forced
	m.mu.Unlock()
	if ch != nil && r.Forced {
		select {
		case ch <- *r:
		default:
		}
	}
	return m.err
}

func (m *mockSink) WriteCorrelation(ctx context.Context, c *CorrelationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.correlations = append(m.correlations, *c)
	return m.err
}

func (m *mockSink) snapshot() []BatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]BatchResult, len(m.results))
	copy(out, m.results)
	return out
}

// mockNotifier implements Notifier for testing
type mockNotifier struct {
	name    string
	enabled bool
	sent    chan *Alert
}

func newMockNotifier(name string) *mockNotifier {
	return &mockNotifier{name: name, enabled: true, sent: make(chan *Alert, 16)}
}

func (m *mockNotifier) Send(ctx context.Context, alert *Alert) error {
	m.sent <- alert
	return nil
}

func (m *mockNotifier) Name() string  { return m.name }
func (m *mockNotifier) Enabled() bool { return m.enabled }

// mockBroadcaster records broadcast alerts.
type mockBroadcaster struct {
	alerts []*Alert
	mu     sync.Mutex
}

func (m *mockBroadcaster) BroadcastAlert(alert *Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
}

func (m *mockBroadcaster) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

// periodicStream returns n arrival timestamps starting at start and spaced
// interval apart, each perturbed by uniform jitter in [-jitter, +jitter].
func periodicStream(rng *rand.Rand, start, interval, jitter float64, n int) []float64 {
	ts := make([]float64, n)
	for i := range ts {
		ts[i] = start + float64(i)*interval
		if jitter > 0 {
			ts[i] += (rng.Float64()*2 - 1) * jitter
		}
	}
	return ts
}

// fabricationStream is 400 batches of 50ms traffic followed by 50 batches
// at 2ms, both with 50us of jitter. It returns the stream and the index of
// the first attack timestamp.
func fabricationStream(seed int64, batchSize int) ([]float64, int) {
	rng := rand.New(rand.NewSource(seed))
	normal := periodicStream(rng, 0, 0.05, 50e-6, 400*batchSize)
	start := normal[len(normal)-1] + 0.002
	attack := periodicStream(rng, start, 0.002, 50e-6, 50*batchSize)
	return append(normal, attack...), len(normal)
}

func observeAll(d *DetectorState, ts []float64) []BatchResult {
	var out []BatchResult
	for _, t := range ts {
		if r, ok := d.Observe(t); ok {
			out = append(out, *r)
		}
	}
	return out
}

func mustDetector(id Identifier, p Params) *DetectorState {
	d, err := NewDetectorState(id, p)
	if err != nil {
		panic(err)
	}
	return d
}
