// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations, first match wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cids/config.yaml",
	"/etc/cids/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. The detection values are the
// reference parameter set.
func defaultConfig() *Config {
	return &Config{
		Detection: DetectionConfig{
			BatchSize:         20,
			Lambda:            0.9995,
			Threshold:         5.0,
			KParam:            0.5,
			SigmaE:            0.005,
			InitialCovariance: 100.0,
			InitialSkew:       0.0,
			OffsetPolicy:      "previous-batch",
			LearningBatches:   200,
			NominalInterval:   0.05,
			StatisticsPolicy:  "fixed",
			Alpha:             0.01,
			ZGuard:            3.0,
			SigmaFloor:        1e-6,
			Latch:             false,
			QueueSize:         1024,
			NotifyTimeout:     10 * time.Second,
		},
		Suspension: SuspensionConfig{
			Enabled:     true,
			Timeout:     500 * time.Millisecond,
			PadInterval: 10.0,
		},
		Correlation: CorrelationConfig{
			BatchSize:  20,
			MinSamples: 5,
			LowBound:   0.2,
			HighBound:  0.8,
		},
		NATS: NATSConfig{
			Enabled:            false,
			URL:                "nats://127.0.0.1:4222",
			EmbeddedServer:     false,
			JetStream:          false,
			StoreDir:           "/data/nats",
			FramesTopic:        "cids.frames",
			ResultsTopic:       "cids.results",
			AlertsTopic:        "cids.alerts",
			QueueGroup:         "cids-detectors",
			PublishResults:     true,
			PublishAlerts:      true,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		WAL: WALConfig{
			Enabled:         false,
			Path:            "/data/wal",
			SyncWrites:      true,
			RetryInterval:   30 * time.Second,
			MaxRetries:      100,
			RetryBackoff:    5 * time.Second,
			MaxBackoff:      5 * time.Minute,
			CompactInterval: time.Hour,
			EntryTTL:        168 * time.Hour,
		},
		Storage: StorageConfig{
			Enabled:        true,
			Path:           "/data/cids.duckdb",
			PersistResults: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            8215,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Webhook: WebhookConfig{
			Enabled:     false,
			RateLimitMs: 500,
			Timeout:     10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from defaults, the optional config file and
// the environment, then validates it.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file. An empty path skips the
// file layer.
func LoadFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}
	if err := processHeaderField(k); err != nil {
		return nil, fmt.Errorf("failed to process webhook headers: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are the keys that accept a comma-separated string from
// the environment.
var sliceConfigPaths = []string{
	"detection.monitored_ids",
	"correlation.pair",
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := splitTrim(strVal, ",")
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// processHeaderField turns WEBHOOK_HEADERS ("K=V,K2=V2") into a map.
func processHeaderField(k *koanf.Koanf) error {
	strVal, ok := k.Get("webhook.headers").(string)
	if !ok {
		return nil
	}
	headers, err := parseHeaders(strVal)
	if err != nil {
		return err
	}
	k.Delete("webhook.headers")
	for name, value := range headers {
		if err := k.Set("webhook.headers."+name, value); err != nil {
			return err
		}
	}
	return nil
}

func parseHeaders(s string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, pair := range splitTrim(s, ",") {
		name, value, found := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			return nil, fmt.Errorf("invalid header %q, want Name=Value", pair)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

func splitTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envMappings maps environment variable names (lowercased) to koanf keys.
var envMappings = map[string]string{
	"cids_batch_size":         "detection.batch_size",
	"cids_lambda":             "detection.lambda",
	"cids_threshold":          "detection.threshold",
	"cids_k_param":            "detection.k_param",
	"cids_sigma_e":            "detection.sigma_e",
	"cids_initial_covariance": "detection.initial_covariance",
	"cids_initial_skew":       "detection.initial_skew",
	"cids_offset_policy":      "detection.offset_policy",
	"cids_learning_batches":   "detection.learning_batches",
	"cids_nominal_interval":   "detection.nominal_interval",
	"cids_statistics_policy":  "detection.statistics_policy",
	"cids_alpha":              "detection.alpha",
	"cids_z_guard":            "detection.z_guard",
	"cids_sigma_floor":        "detection.sigma_floor",
	"cids_latch":              "detection.latch",
	"cids_monitored_ids":      "detection.monitored_ids",
	"cids_queue_size":         "detection.queue_size",
	"cids_notify_timeout":     "detection.notify_timeout",

	"suspension_enabled":      "suspension.enabled",
	"suspension_timeout":      "suspension.timeout",
	"suspension_pad_interval": "suspension.pad_interval",

	"correlation_pair":        "correlation.pair",
	"correlation_batch_size":  "correlation.batch_size",
	"correlation_min_samples": "correlation.min_samples",
	"correlation_low_bound":   "correlation.low_bound",
	"correlation_high_bound":  "correlation.high_bound",

	"nats_enabled":              "nats.enabled",
	"nats_url":                  "nats.url",
	"nats_embedded":             "nats.embedded_server",
	"nats_jetstream":            "nats.jetstream",
	"nats_store_dir":            "nats.store_dir",
	"nats_frames_topic":         "nats.frames_topic",
	"nats_results_topic":        "nats.results_topic",
	"nats_alerts_topic":         "nats.alerts_topic",
	"nats_queue_group":          "nats.queue_group",
	"nats_publish_results":      "nats.publish_results",
	"nats_publish_alerts":       "nats.publish_alerts",
	"nats_breaker_max_failures": "nats.breaker_max_failures",
	"nats_breaker_timeout":      "nats.breaker_timeout",

	"wal_enabled":          "wal.enabled",
	"wal_path":             "wal.path",
	"wal_in_memory":        "wal.in_memory",
	"wal_sync_writes":      "wal.sync_writes",
	"wal_retry_interval":   "wal.retry_interval",
	"wal_max_retries":      "wal.max_retries",
	"wal_retry_backoff":    "wal.retry_backoff",
	"wal_max_backoff":      "wal.max_backoff",
	"wal_compact_interval": "wal.compact_interval",
	"wal_entry_ttl":        "wal.entry_ttl",

	"storage_enabled":         "storage.enabled",
	"duckdb_path":             "storage.path",
	"storage_persist_results": "storage.persist_results",

	"http_enabled":        "server.enabled",
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_timeout":        "server.timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",

	"webhook_enabled":       "webhook.enabled",
	"webhook_url":           "webhook.url",
	"webhook_rate_limit_ms": "webhook.rate_limit_ms",
	"webhook_timeout":       "webhook.timeout",
	"webhook_headers":       "webhook.headers",

	"csv_log_path":         "export.csv_path",
	"csv_multi_identifier": "export.multi_identifier",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable to its koanf key. Unmapped
// variables return "" and are ignored.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
