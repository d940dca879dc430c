// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package config

import "time"

// Config is the complete daemon configuration. It is immutable after Load.
type Config struct {
	Detection   DetectionConfig   `koanf:"detection"`
	Suspension  SuspensionConfig  `koanf:"suspension"`
	Correlation CorrelationConfig `koanf:"correlation"`
	NATS        NATSConfig        `koanf:"nats"`
	WAL         WALConfig         `koanf:"wal"`
	Storage     StorageConfig     `koanf:"storage"`
	Server      ServerConfig      `koanf:"server"`
	Webhook     WebhookConfig     `koanf:"webhook"`
	Export      ExportConfig      `koanf:"export"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// DetectionConfig holds the per-identifier detector parameters.
type DetectionConfig struct {
	BatchSize         int     `koanf:"batch_size" validate:"min=2"`
	Lambda            float64 `koanf:"lambda" validate:"forgetting"`
	Threshold         float64 `koanf:"threshold" validate:"gt=0"`
	KParam            float64 `koanf:"k_param" validate:"gte=0"`
	SigmaE            float64 `koanf:"sigma_e" validate:"gt=0"`
	InitialCovariance float64 `koanf:"initial_covariance" validate:"gt=0"`
	InitialSkew       float64 `koanf:"initial_skew"`

	// OffsetPolicy: same-batch, previous-batch or adaptive-baseline.
	OffsetPolicy    string  `koanf:"offset_policy" validate:"oneof=same-batch previous-batch adaptive-baseline"`
	LearningBatches int     `koanf:"learning_batches" validate:"min=1"`
	NominalInterval float64 `koanf:"nominal_interval" validate:"gte=0"`

	// StatisticsPolicy: fixed or adaptive.
	StatisticsPolicy string  `koanf:"statistics_policy" validate:"oneof=fixed adaptive"`
	Alpha            float64 `koanf:"alpha" validate:"gt=0,lte=1"`
	ZGuard           float64 `koanf:"z_guard" validate:"gt=0"`
	SigmaFloor       float64 `koanf:"sigma_floor" validate:"gt=0"`
	Latch            bool    `koanf:"latch"`

	// MonitoredIDs restricts detection to these identifiers. Empty monitors all.
	MonitoredIDs []string `koanf:"monitored_ids" validate:"dive,canid"`

	QueueSize     int           `koanf:"queue_size" validate:"min=1"`
	NotifyTimeout time.Duration `koanf:"notify_timeout" validate:"gt=0"`
}

// SuspensionConfig configures the silence watchdog.
type SuspensionConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
	PadInterval float64       `koanf:"pad_interval" validate:"gt=0"`
}

// CorrelationConfig configures the pairwise correlator. An empty Pair
// disables it.
type CorrelationConfig struct {
	Pair       []string `koanf:"pair" validate:"omitempty,len=2,dive,canid"`
	BatchSize  int      `koanf:"batch_size" validate:"min=2"`
	MinSamples int      `koanf:"min_samples" validate:"min=2"`
	LowBound   float64  `koanf:"low_bound" validate:"gte=-1,lte=1"`
	HighBound  float64  `koanf:"high_bound" validate:"gte=-1,lte=1"`
}

// NATSConfig configures frame ingestion and result publishing over NATS.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`

	// EmbeddedServer starts an in-process NATS server listening on URL's port.
	EmbeddedServer bool   `koanf:"embedded_server"`
	JetStream      bool   `koanf:"jetstream"`
	StoreDir       string `koanf:"store_dir"`

	FramesTopic  string `koanf:"frames_topic" validate:"required"`
	ResultsTopic string `koanf:"results_topic" validate:"required"`
	AlertsTopic  string `koanf:"alerts_topic" validate:"required"`
	QueueGroup   string `koanf:"queue_group"`

	PublishResults bool `koanf:"publish_results"`
	PublishAlerts  bool `koanf:"publish_alerts"`

	BreakerMaxFailures uint32        `koanf:"breaker_max_failures" validate:"min=1"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// WALConfig configures the durable result outbox.
type WALConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Path            string        `koanf:"path"`
	InMemory        bool          `koanf:"in_memory"`
	SyncWrites      bool          `koanf:"sync_writes"`
	RetryInterval   time.Duration `koanf:"retry_interval"`
	MaxRetries      int           `koanf:"max_retries"`
	RetryBackoff    time.Duration `koanf:"retry_backoff"`
	MaxBackoff      time.Duration `koanf:"max_backoff"`
	CompactInterval time.Duration `koanf:"compact_interval"`
	EntryTTL        time.Duration `koanf:"entry_ttl"`
}

// StorageConfig configures the DuckDB alert and result store.
type StorageConfig struct {
	Enabled bool `koanf:"enabled"`

	// Path is the DuckDB file. ":memory:" keeps everything in memory.
	Path           string `koanf:"path"`
	PersistResults bool   `koanf:"persist_results"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// WebhookConfig configures the generic webhook notifier.
type WebhookConfig struct {
	Enabled     bool              `koanf:"enabled"`
	URL         string            `koanf:"url" validate:"omitempty,url"`
	RateLimitMs int               `koanf:"rate_limit_ms" validate:"min=0"`
	Timeout     time.Duration     `koanf:"timeout"`
	Headers     map[string]string `koanf:"headers"`
}

// ExportConfig configures the CSV result log.
type ExportConfig struct {
	// CSVPath enables the CSV log when non-empty.
	CSVPath string `koanf:"csv_path"`

	// MultiIdentifier adds an identifier column.
	MultiIdentifier bool `koanf:"multi_identifier"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}
