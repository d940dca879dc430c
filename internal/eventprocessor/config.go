// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package eventprocessor

import (
	"fmt"
	"strings"
	"time"
)

// Default topics.
const (
	DefaultFramesTopic       = "cids.frames"
	DefaultResultsTopic      = "cids.results"
	DefaultCorrelationsTopic = "cids.correlations"
	DefaultAlertsTopic       = "cids.alerts"
)

// Config holds the NATS connection and topic settings shared by the
// subscriber and the publisher.
type Config struct {
	URL string

	// Reconnection behavior
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectBuffer int

	// JetStream switches from core NATS to durable JetStream streams.
	JetStream bool

	FramesTopic       string
	ResultsTopic      string
	CorrelationsTopic string
	AlertsTopic       string

	// Subscriber settings
	QueueGroup       string
	DurableName      string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	CloseTimeout     time.Duration

	// Publisher settings
	PublishResults bool
	PublishAlerts  bool

	Breaker CircuitBreakerConfig
}

// DefaultConfig returns production defaults. A single subscriber keeps
// frames of one identifier in arrival order.
func DefaultConfig() Config {
	return Config{
		URL:               "nats://127.0.0.1:4222",
		MaxReconnects:     -1,
		ReconnectWait:     2 * time.Second,
		ReconnectBuffer:   8 * 1024 * 1024,
		FramesTopic:       DefaultFramesTopic,
		ResultsTopic:      DefaultResultsTopic,
		CorrelationsTopic: DefaultCorrelationsTopic,
		AlertsTopic:       DefaultAlertsTopic,
		QueueGroup:        "cids",
		DurableName:       "cids-engine",
		SubscribersCount:  1,
		AckWaitTimeout:    30 * time.Second,
		CloseTimeout:      30 * time.Second,
		PublishResults:    true,
		PublishAlerts:     true,
		Breaker:           DefaultCircuitBreakerConfig("nats-publisher"),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	if c.FramesTopic == "" || c.ResultsTopic == "" || c.AlertsTopic == "" {
		return fmt.Errorf("%w: topics must not be empty", ErrInvalidConfig)
	}
	if c.SubscribersCount < 1 {
		return fmt.Errorf("%w: subscribers count must be at least 1", ErrInvalidConfig)
	}
	if c.Breaker.FailureThreshold == 0 {
		return fmt.Errorf("%w: breaker failure threshold must be positive", ErrInvalidConfig)
	}
	return nil
}

// ResultTopic returns the per-identifier result topic, e.g. cids.results.0x011.
func (c *Config) ResultTopic(id string) string {
	return c.ResultsTopic + "." + id
}

// ServerConfig holds embedded NATS server settings.
type ServerConfig struct {
	Host string

	// Port -1 picks a random free port.
	Port int

	JetStream         bool
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64

	ReadyTimeout time.Duration
}

// DefaultServerConfig returns defaults for a local single-node server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		JetStream:         true,
		StoreDir:          "/data/nats/jetstream",
		JetStreamMaxMem:   256 * 1024 * 1024,
		JetStreamMaxStore: 2 * 1024 * 1024 * 1024,
		ReadyTimeout:      30 * time.Second,
	}
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // Allowed in half-open state
	Interval         time.Duration // Reset interval for counts
	Timeout          time.Duration // Time to stay open
	FailureThreshold uint32        // Failures before opening
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}
