// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package eventprocessor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/cids/internal/detection"
)

func startTestServer(t *testing.T, jetStream bool) *EmbeddedServer {
	t.Helper()
	cfg := DefaultServerConfig()
	cfg.Port = -1
	cfg.JetStream = jetStream
	cfg.StoreDir = t.TempDir()
	cfg.ReadyTimeout = 10 * time.Second

	srv, err := NewEmbeddedServer(cfg)
	if err != nil {
		t.Fatalf("NewEmbeddedServer() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func TestEmbeddedServer_Lifecycle(t *testing.T) {
	srv := startTestServer(t, false)
	if !srv.IsRunning() {
		t.Fatal("server should be running")
	}
	if srv.JetStreamEnabled() {
		t.Error("JetStream should be disabled")
	}
	if srv.ClientURL() == "" {
		t.Error("ClientURL() is empty")
	}

	nc, err := natsgo.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	nc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return")
	}
	if srv.IsRunning() {
		t.Error("server still running after Serve returned")
	}
}

func TestEnsureStream(t *testing.T) {
	srv := startTestServer(t, true)
	if !srv.JetStreamEnabled() {
		t.Fatal("JetStream should be enabled")
	}

	ctx := context.Background()
	cfg := DefaultStreamConfig()
	cfg.InMemory = true

	// Create, then update in place.
	for i := 0; i < 2; i++ {
		if err := ProvisionStream(ctx, srv.ClientURL(), cfg); err != nil {
			t.Fatalf("ProvisionStream() #%d error = %v", i+1, err)
		}
	}

	nc, err := natsgo.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()
	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatal(err)
	}
	stream, err := js.Stream(ctx, cfg.Name)
	if err != nil {
		t.Fatalf("stream not found: %v", err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Config.Subjects) != 1 || info.Config.Subjects[0] != "cids.>" {
		t.Errorf("subjects = %v", info.Config.Subjects)
	}

	if _, err := EnsureStream(ctx, nil, cfg); !errors.Is(err, ErrNilDependency) {
		t.Errorf("EnsureStream(nil) error = %v", err)
	}
}

func TestNATSRoundTrip(t *testing.T) {
	srv := startTestServer(t, false)

	cfg := DefaultConfig()
	cfg.URL = srv.ClientURL()
	cfg.CloseTimeout = time.Second

	pub, err := NewNATSPublisher(cfg, nil)
	if err != nil {
		t.Fatalf("NewNATSPublisher() error = %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(cfg, "", nil)
	if err != nil {
		t.Fatalf("NewNATSSubscriber() error = %v", err)
	}

	sink := newMockFrameSink()
	fs, err := NewFrameSubscriber(sub, cfg.FramesTopic, sink)
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = fs.Serve(ctx) }()

	data, err := EncodeFrame(detection.Frame{ID: 0x123, Timestamp: 1700000000.5, Bus: "can0"})
	if err != nil {
		t.Fatal(err)
	}

	// Core NATS does not buffer for absent subscribers; publish until the
	// subscription is live.
	deadline := time.After(5 * time.Second)
	for len(sink.snapshot()) == 0 {
		if err := pub.Publish(cfg.FramesTopic, message.NewMessage(uuid.NewString(), data)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		select {
		case <-sink.got:
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("frame never arrived over NATS")
		}
	}

	f := sink.snapshot()[0]
	if f.ID != 0x123 || f.Timestamp != 1700000000.5 || f.Bus != "can0" {
		t.Errorf("received frame = %+v", f)
	}
}
