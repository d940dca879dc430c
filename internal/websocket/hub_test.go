// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// setupHub creates and starts a new hub that stops with the test.
func setupHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

// createTestClient creates a client without a connection.
func createTestClient(hub *Hub) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, 256)}
}

// registerClient registers a client and waits for registration to complete
func registerClient(t *testing.T, hub *Hub, client *Client) {
	t.Helper()
	before := hub.GetClientCount()
	hub.Register <- client
	waitFor(t, func() bool { return hub.GetClientCount() == before+1 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func expectMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case m := <-c.send:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
		return Message{}
	}
}

func expectNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case m := <-c.send:
		t.Fatalf("unexpected message %q", m.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	checks := []struct {
		name   string
		check  bool
		errMsg string
	}{
		{"clients map", hub.clients != nil, "clients map not initialized"},
		{"broadcast channel", hub.broadcast != nil, "broadcast channel not initialized"},
		{"Register channel", hub.Register != nil, "Register channel not initialized"},
		{"Unregister channel", hub.Unregister != nil, "Unregister channel not initialized"},
		{"empty clients", len(hub.clients) == 0, "clients map should be empty"},
	}
	for _, c := range checks {
		if !c.check {
			t.Error(c.errMsg)
		}
	}
	if hub.String() != "websocket-hub" || hub.Name() != "websocket" {
		t.Errorf("String() = %q, Name() = %q", hub.String(), hub.Name())
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := setupHub(t)
	client := createTestClient(hub)

	registerClient(t, hub, client)
	hub.Unregister <- client
	waitFor(t, func() bool { return hub.GetClientCount() == 0 })

	if _, ok := <-client.send; ok {
		t.Error("send channel should be closed after unregister")
	}

	// A second unregister of the same client is a no-op.
	hub.Unregister <- client
	if hub.GetClientCount() != 0 {
		t.Error("client count changed on duplicate unregister")
	}
}

func TestHub_WriteResult(t *testing.T) {
	hub := setupHub(t)
	client := createTestClient(hub)
	registerClient(t, hub, client)

	r := &detection.BatchResult{Identifier: 0x11, Sequence: 7, LPlus: 1.25}
	if err := hub.WriteResult(context.Background(), r); err != nil {
		t.Fatalf("WriteResult() error = %v", err)
	}
	r.Sequence = 99 // the hub keeps its own copy

	msg := expectMessage(t, client)
	if msg.Type != MessageTypeBatchResult {
		t.Fatalf("Type = %q, want %q", msg.Type, MessageTypeBatchResult)
	}
	got, ok := msg.Data.(*detection.BatchResult)
	if !ok || got.Sequence != 7 || got.Identifier != 0x11 {
		t.Errorf("Data = %#v", msg.Data)
	}
}

func TestHub_SubscriptionFilter(t *testing.T) {
	hub := setupHub(t)
	all := createTestClient(hub)
	only22 := createTestClient(hub)
	only22.Subscribe([]detection.Identifier{0x22})
	registerClient(t, hub, all)
	registerClient(t, hub, only22)

	ctx := context.Background()
	_ = hub.WriteResult(ctx, &detection.BatchResult{Identifier: 0x11, Sequence: 1})
	_ = hub.WriteResult(ctx, &detection.BatchResult{Identifier: 0x22, Sequence: 1})

	for i := 0; i < 2; i++ {
		expectMessage(t, all)
	}
	msg := expectMessage(t, only22)
	if r := msg.Data.(*detection.BatchResult); r.Identifier != 0x22 {
		t.Errorf("filtered client got identifier %s", r.Identifier)
	}
	expectNoMessage(t, only22)

	// Alerts and correlations bypass the filter.
	hub.BroadcastAlert(&detection.Alert{Class: detection.AlarmFabrication, Identifier: 0x11})
	_ = hub.WriteCorrelation(ctx, &detection.CorrelationResult{A: 0x11, B: 0x22})
	if m := expectMessage(t, only22); m.Type != MessageTypeAlert {
		t.Errorf("Type = %q, want alert", m.Type)
	}
	if m := expectMessage(t, only22); m.Type != MessageTypeCorrelation {
		t.Errorf("Type = %q, want correlation", m.Type)
	}

	only22.Subscribe(nil)
	_ = hub.WriteResult(ctx, &detection.BatchResult{Identifier: 0x33})
	if m := expectMessage(t, only22); m.Data.(*detection.BatchResult).Identifier != 0x33 {
		t.Error("cleared filter should deliver every identifier")
	}
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	hub := setupHub(t)
	slow := &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message)}
	fast := createTestClient(hub)
	registerClient(t, hub, slow)
	registerClient(t, hub, fast)

	hub.BroadcastJSON("test", map[string]int{"n": 1})
	expectMessage(t, fast)
	waitFor(t, func() bool { return hub.GetClientCount() == 1 })

	if _, ok := <-slow.send; ok {
		t.Error("slow client's channel should be closed")
	}
}

func TestHub_BroadcastQueueFullDoesNotBlock(t *testing.T) {
	hub := NewHub() // not running

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(hub.broadcast)+10; i++ {
			_ = hub.WriteResult(context.Background(), &detection.BatchResult{Identifier: 1})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WriteResult blocked on a full queue")
	}
	if len(hub.broadcast) != cap(hub.broadcast) {
		t.Errorf("queued = %d, want %d", len(hub.broadcast), cap(hub.broadcast))
	}
}

func TestHub_RunWithContextClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()

	client := createTestClient(hub)
	registerClient(t, hub, client)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	if hub.GetClientCount() != 0 {
		t.Error("clients should be closed on shutdown")
	}
	if _, ok := <-client.send; ok {
		t.Error("client channel should be closed on shutdown")
	}
}

func TestGetShutdownReason(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if got := getShutdownReason(canceled); got != ShutdownReasonContextCanceled {
		t.Errorf("canceled: got %q", got)
	}

	expired, cancel2 := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel2()
	<-expired.Done()
	if got := getShutdownReason(expired); got != ShutdownReasonContextDeadline {
		t.Errorf("deadline: got %q", got)
	}
}

func TestHub_AsEngineSink(t *testing.T) {
	hub := setupHub(t)
	client := createTestClient(hub)
	registerClient(t, hub, client)

	cfg := detection.DefaultEngineConfig()
	cfg.SuspensionEnabled = false
	cfg.Params.BatchSize = 3
	engine, err := detection.NewEngine(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	engine.RegisterSink(hub)
	engine.SetBroadcaster(hub)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := engine.Process(ctx, detection.Frame{ID: 0x44, Timestamp: float64(i) * 0.05}); err != nil {
			t.Fatal(err)
		}
	}
	msg := expectMessage(t, client)
	if r, ok := msg.Data.(*detection.BatchResult); !ok || r.Identifier != 0x44 || r.Sequence != 1 {
		t.Errorf("engine result not streamed: %#v", msg.Data)
	}
}
