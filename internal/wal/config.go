// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package wal

import (
	"fmt"
	"time"
)

// Config holds WAL configuration.
type Config struct {
	// Enabled controls whether results pass through the WAL.
	Enabled bool

	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps the log in memory only. Intended for tests and replay.
	InMemory bool

	// SyncWrites forces fsync after every write.
	SyncWrites bool

	// RetryInterval is the time between retry loop passes.
	RetryInterval time.Duration

	// MaxRetries is the number of failed deliveries after which an entry is dropped.
	MaxRetries int

	// RetryBackoff is the initial per-entry backoff, doubled per attempt.
	RetryBackoff time.Duration

	// MaxBackoff caps the per-entry backoff.
	MaxBackoff time.Duration

	// CompactInterval is the time between compaction runs.
	CompactInterval time.Duration

	// EntryTTL is the age after which unconfirmed entries are dropped.
	EntryTTL time.Duration

	// Compression enables Snappy compression of values.
	Compression bool

	// GCRatio is the value log garbage collection discard ratio.
	GCRatio float64

	// CloseTimeout bounds Close.
	CloseTimeout time.Duration

	// DeliveryTimeout bounds a single redelivery attempt.
	DeliveryTimeout time.Duration
}

// DefaultConfig returns production defaults. The WAL is disabled by default.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		Path:            "/data/wal",
		SyncWrites:      true,
		RetryInterval:   30 * time.Second,
		MaxRetries:      100,
		RetryBackoff:    5 * time.Second,
		MaxBackoff:      5 * time.Minute,
		CompactInterval: time.Hour,
		EntryTTL:        168 * time.Hour,
		Compression:     true,
		GCRatio:         0.5,
		CloseTimeout:    30 * time.Second,
		DeliveryTimeout: 10 * time.Second,
	}
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("wal config %s: %s", e.Field, e.Message)
}

// Validate checks the configuration. A disabled WAL is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if !c.InMemory && c.Path == "" {
		return &ConfigError{Field: "Path", Message: "required unless InMemory is set"}
	}
	if c.RetryInterval <= 0 {
		return &ConfigError{Field: "RetryInterval", Message: "must be positive"}
	}
	if c.MaxRetries < 1 {
		return &ConfigError{Field: "MaxRetries", Message: "must be at least 1"}
	}
	if c.RetryBackoff <= 0 {
		return &ConfigError{Field: "RetryBackoff", Message: "must be positive"}
	}
	if c.MaxBackoff < c.RetryBackoff {
		return &ConfigError{Field: "MaxBackoff", Message: "must be at least RetryBackoff"}
	}
	if c.CompactInterval <= 0 {
		return &ConfigError{Field: "CompactInterval", Message: "must be positive"}
	}
	if c.EntryTTL <= 0 {
		return &ConfigError{Field: "EntryTTL", Message: "must be positive"}
	}
	if c.GCRatio <= 0 || c.GCRatio >= 1 {
		return &ConfigError{Field: "GCRatio", Message: "must be in (0, 1)"}
	}
	return nil
}
