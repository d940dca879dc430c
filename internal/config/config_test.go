// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/cids/internal/detection"
)

// isolate runs the test from an empty directory with every mapped
// environment variable cleared.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for name := range envMappings {
		upper := strings.ToUpper(name)
		if _, ok := os.LookupEnv(upper); ok {
			t.Setenv(upper, "")
			os.Unsetenv(upper)
		}
	}
	t.Setenv(ConfigPathEnvVar, "")
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	d := cfg.Detection
	if d.BatchSize != 20 || d.Lambda != 0.9995 || d.Threshold != 5 || d.KParam != 0.5 || d.SigmaE != 0.005 {
		t.Errorf("detection defaults = %+v", d)
	}
	if d.OffsetPolicy != "previous-batch" || d.StatisticsPolicy != "fixed" || d.LearningBatches != 200 {
		t.Errorf("policy defaults = %q %q %d", d.OffsetPolicy, d.StatisticsPolicy, d.LearningBatches)
	}
	if cfg.Suspension.Timeout != 500*time.Millisecond || cfg.Suspension.PadInterval != 10 {
		t.Errorf("suspension defaults = %+v", cfg.Suspension)
	}
	if cfg.Correlation.MinSamples != 5 || cfg.Correlation.LowBound != 0.2 || cfg.Correlation.HighBound != 0.8 {
		t.Errorf("correlation defaults = %+v", cfg.Correlation)
	}
	if cfg.NATS.FramesTopic != "cids.frames" || cfg.NATS.AlertsTopic != "cids.alerts" {
		t.Errorf("nats topics = %q %q", cfg.NATS.FramesTopic, cfg.NATS.AlertsTopic)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"CIDS_BATCH_SIZE":    "detection.batch_size",
		"CIDS_MONITORED_IDS": "detection.monitored_ids",
		"SUSPENSION_TIMEOUT": "suspension.timeout",
		"CORRELATION_PAIR":   "correlation.pair",
		"NATS_URL":           "nats.url",
		"LOG_LEVEL":          "logging.level",
		"HOME":               "",
		"UNRELATED_VARIABLE": "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("CIDS_BATCH_SIZE", "25")
	t.Setenv("CIDS_LAMBDA", "0.999")
	t.Setenv("CIDS_OFFSET_POLICY", "adaptive-baseline")
	t.Setenv("CIDS_STATISTICS_POLICY", "adaptive")
	t.Setenv("CIDS_MONITORED_IDS", "0x011, 0x022")
	t.Setenv("SUSPENSION_TIMEOUT", "750ms")
	t.Setenv("CORRELATION_PAIR", "0x010,0x020")
	t.Setenv("WEBHOOK_ENABLED", "true")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/cids")
	t.Setenv("WEBHOOK_HEADERS", "Authorization=Bearer abc, X-Env=lab")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Detection.BatchSize != 25 || cfg.Detection.Lambda != 0.999 {
		t.Errorf("detection = %+v", cfg.Detection)
	}
	if got := cfg.Detection.MonitoredIDs; len(got) != 2 || got[0] != "0x011" || got[1] != "0x022" {
		t.Errorf("MonitoredIDs = %v", got)
	}
	if cfg.Suspension.Timeout != 750*time.Millisecond {
		t.Errorf("Suspension.Timeout = %v", cfg.Suspension.Timeout)
	}
	if cfg.Webhook.Headers["Authorization"] != "Bearer abc" || cfg.Webhook.Headers["X-Env"] != "lab" {
		t.Errorf("Webhook.Headers = %v", cfg.Webhook.Headers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}

	engine, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("EngineConfig() error = %v", err)
	}
	if engine.Params.OffsetPolicy != detection.PolicyAdaptiveBaseline || engine.Params.Statistics != detection.StatisticsAdaptive {
		t.Errorf("engine policies = %q %q", engine.Params.OffsetPolicy, engine.Params.Statistics)
	}
	if len(engine.Monitored) != 2 || engine.Monitored[0] != 0x11 || engine.Monitored[1] != 0x22 {
		t.Errorf("engine.Monitored = %v", engine.Monitored)
	}
	if engine.Pair == nil || engine.Pair[0] != 0x10 || engine.Pair[1] != 0x20 {
		t.Errorf("engine.Pair = %v", engine.Pair)
	}
	if engine.Suspension.Timeout != 750*time.Millisecond || !engine.SuspensionEnabled {
		t.Errorf("engine suspension = %+v", engine.Suspension)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "cids.yaml")
	yaml := `
detection:
  batch_size: 40
  threshold: 7.5
  monitored_ids: ["0x0A0", "0x0B0"]
correlation:
  pair: ["0x0A0", "0x0B0"]
webhook:
  enabled: true
  url: https://hooks.example.com/x
  headers:
    X-Token: secret
logging:
  format: console
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("CIDS_THRESHOLD", "6")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Detection.BatchSize != 40 {
		t.Errorf("BatchSize = %d, want 40 from file", cfg.Detection.BatchSize)
	}
	if cfg.Detection.Threshold != 6 {
		t.Errorf("Threshold = %v, want env override 6", cfg.Detection.Threshold)
	}
	if len(cfg.Correlation.Pair) != 2 || cfg.Webhook.Headers["X-Token"] != "secret" {
		t.Errorf("file values = %+v %+v", cfg.Correlation, cfg.Webhook)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Logging.Format = %q", cfg.Logging.Format)
	}
	if cfg.Detection.SigmaE != 0.005 {
		t.Errorf("unset values keep defaults, SigmaE = %v", cfg.Detection.SigmaE)
	}
}

func TestLoad_MissingFileIsError(t *testing.T) {
	isolate(t)
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadFile(absent) should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"batch size too small", func(c *Config) { c.Detection.BatchSize = 1 }, "BatchSize"},
		{"lambda zero", func(c *Config) { c.Detection.Lambda = 0 }, "Lambda"},
		{"threshold zero", func(c *Config) { c.Detection.Threshold = 0 }, "Threshold"},
		{"sigma zero", func(c *Config) { c.Detection.SigmaE = 0 }, "SigmaE"},
		{"unknown policy", func(c *Config) { c.Detection.OffsetPolicy = "latest" }, "OffsetPolicy"},
		{"bad monitored id", func(c *Config) { c.Detection.MonitoredIDs = []string{"0x011", "zz"} }, "MonitoredIDs"},
		{"pair of one", func(c *Config) { c.Correlation.Pair = []string{"0x010"} }, "Pair"},
		{"pair of the same id", func(c *Config) { c.Correlation.Pair = []string{"0x010", "0x10"} }, "two different"},
		{"inverted bounds", func(c *Config) { c.Correlation.LowBound = 0.9 }, "low bound"},
		{"nats without url", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" }, "NATS_URL"},
		{"wal without path", func(c *Config) { c.WAL.Enabled = true; c.WAL.Path = "" }, "Path"},
		{"webhook without url", func(c *Config) { c.Webhook.Enabled = true }, "WEBHOOK_URL"},
		{"webhook bad url", func(c *Config) { c.Webhook.URL = "not a url" }, "URL"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "Level"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "Port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParseHeaders(t *testing.T) {
	h, err := parseHeaders("A=1, B = two ,C=")
	if err != nil {
		t.Fatal(err)
	}
	if h["A"] != "1" || h["B"] != "two" || h["C"] != "" || len(h) != 3 {
		t.Errorf("parseHeaders() = %v", h)
	}
	if _, err := parseHeaders("novalue"); err == nil {
		t.Error("expected error for a header without '='")
	}
}

func TestConverters(t *testing.T) {
	cfg := defaultConfig()
	cfg.WAL.Enabled = true
	cfg.WAL.InMemory = true
	cfg.Webhook.Timeout = 0
	cfg.Logging.Format = "console"

	w := cfg.WALConfig()
	if !w.Enabled || !w.InMemory || w.GCRatio != 0.5 || w.MaxRetries != 100 {
		t.Errorf("WALConfig() = %+v", w)
	}
	if err := w.Validate(); err != nil {
		t.Errorf("converted WAL config invalid: %v", err)
	}

	wh := cfg.WebhookNotifierConfig()
	if wh.Timeout != 10*time.Second || wh.RateLimitMs != 500 {
		t.Errorf("WebhookNotifierConfig() = %+v", wh)
	}

	l := cfg.LoggingConfig()
	if l.Format != "console" || l.Level != "info" || !l.Timestamp {
		t.Errorf("LoggingConfig() = %+v", l)
	}

	p, err := cfg.DetectorParams()
	if err != nil {
		t.Fatal(err)
	}
	if p != detection.DefaultParams() {
		t.Errorf("DetectorParams() = %+v, want defaults", p)
	}

	engine, err := cfg.EngineConfig()
	if err != nil {
		t.Fatal(err)
	}
	if engine.Pair != nil || len(engine.Monitored) != 0 {
		t.Errorf("default engine config should monitor all without a pair: %+v", engine)
	}

	ep := cfg.EventProcessorConfig()
	if ep.FramesTopic != "cids.frames" || ep.QueueGroup != "cids-detectors" || ep.Breaker.FailureThreshold != 5 {
		t.Errorf("EventProcessorConfig() = %+v", ep)
	}
	if err := ep.Validate(); err != nil {
		t.Errorf("converted event processor config invalid: %v", err)
	}

	cfg.NATS.URL = "nats://127.0.0.1:4333"
	srv, err := cfg.EmbeddedServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if srv.Host != "127.0.0.1" || srv.Port != 4333 || srv.StoreDir != "/data/nats" {
		t.Errorf("EmbeddedServerConfig() = %+v", srv)
	}
}
