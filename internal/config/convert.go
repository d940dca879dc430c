// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/eventprocessor"
	"github.com/tomtom215/cids/internal/logging"
	"github.com/tomtom215/cids/internal/validation"
	"github.com/tomtom215/cids/internal/wal"
)

// DetectorParams converts the detection section into detector parameters.
func (c *Config) DetectorParams() (detection.Params, error) {
	d := c.Detection
	offset, err := detection.ParseOffsetPolicy(d.OffsetPolicy)
	if err != nil {
		return detection.Params{}, err
	}
	stats, err := detection.ParseStatisticsPolicy(d.StatisticsPolicy)
	if err != nil {
		return detection.Params{}, err
	}

	p := detection.Params{
		BatchSize:         d.BatchSize,
		Lambda:            d.Lambda,
		Threshold:         d.Threshold,
		KParam:            d.KParam,
		SigmaE:            d.SigmaE,
		InitialCovariance: d.InitialCovariance,
		InitialSkew:       d.InitialSkew,
		OffsetPolicy:      offset,
		LearningBatches:   d.LearningBatches,
		NominalInterval:   d.NominalInterval,
		Statistics:        stats,
		Alpha:             d.Alpha,
		ZGuard:            d.ZGuard,
		SigmaFloor:        d.SigmaFloor,
		Latch:             d.Latch,
	}
	return p, p.Validate()
}

// EngineConfig builds the detection engine configuration.
func (c *Config) EngineConfig() (detection.EngineConfig, error) {
	cfg := detection.DefaultEngineConfig()

	params, err := c.DetectorParams()
	if err != nil {
		return cfg, err
	}
	cfg.Params = params

	for _, s := range c.Detection.MonitoredIDs {
		id, err := validation.ParseIdentifier(s)
		if err != nil {
			return cfg, fmt.Errorf("monitored ids: %w", err)
		}
		cfg.Monitored = append(cfg.Monitored, detection.Identifier(id))
	}

	cfg.SuspensionEnabled = c.Suspension.Enabled
	cfg.Suspension = detection.SuspensionParams{
		Timeout:     c.Suspension.Timeout,
		PadInterval: c.Suspension.PadInterval,
	}

	if len(c.Correlation.Pair) == 2 {
		var pair [2]detection.Identifier
		for i, s := range c.Correlation.Pair {
			id, err := validation.ParseIdentifier(s)
			if err != nil {
				return cfg, fmt.Errorf("correlation pair: %w", err)
			}
			pair[i] = detection.Identifier(id)
		}
		cfg.Pair = &pair
	}
	cfg.Correlation = detection.CorrelationParams{
		BatchSize:  c.Correlation.BatchSize,
		MinSamples: c.Correlation.MinSamples,
		LowBound:   c.Correlation.LowBound,
		HighBound:  c.Correlation.HighBound,
	}

	cfg.QueueSize = c.Detection.QueueSize
	cfg.NotifyTimeout = c.Detection.NotifyTimeout
	return cfg, nil
}

// WALConfig converts the wal section, keeping the package defaults for
// tuning knobs that are not exposed.
func (c *Config) WALConfig() wal.Config {
	cfg := wal.DefaultConfig()
	cfg.Enabled = c.WAL.Enabled
	cfg.Path = c.WAL.Path
	cfg.InMemory = c.WAL.InMemory
	cfg.SyncWrites = c.WAL.SyncWrites
	cfg.RetryInterval = c.WAL.RetryInterval
	cfg.MaxRetries = c.WAL.MaxRetries
	cfg.RetryBackoff = c.WAL.RetryBackoff
	cfg.MaxBackoff = c.WAL.MaxBackoff
	cfg.CompactInterval = c.WAL.CompactInterval
	cfg.EntryTTL = c.WAL.EntryTTL
	return cfg
}

// WebhookNotifierConfig converts the webhook section.
func (c *Config) WebhookNotifierConfig() detection.WebhookConfig {
	timeout := c.Webhook.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return detection.WebhookConfig{
		WebhookURL:  c.Webhook.URL,
		Headers:     c.Webhook.Headers,
		Enabled:     c.Webhook.Enabled,
		RateLimitMs: c.Webhook.RateLimitMs,
		Timeout:     timeout,
	}
}

// LoggingConfig converts the logging section.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Format = c.Logging.Format
	cfg.Caller = c.Logging.Caller
	return cfg
}

// EventProcessorConfig converts the nats section.
func (c *Config) EventProcessorConfig() eventprocessor.Config {
	cfg := eventprocessor.DefaultConfig()
	n := c.NATS
	cfg.URL = n.URL
	cfg.JetStream = n.JetStream
	cfg.FramesTopic = n.FramesTopic
	cfg.ResultsTopic = n.ResultsTopic
	cfg.AlertsTopic = n.AlertsTopic
	if n.QueueGroup != "" {
		cfg.QueueGroup = n.QueueGroup
	}
	cfg.PublishResults = n.PublishResults
	cfg.PublishAlerts = n.PublishAlerts
	cfg.Breaker.FailureThreshold = n.BreakerMaxFailures
	cfg.Breaker.Timeout = n.BreakerTimeout
	return cfg
}

// EmbeddedServerConfig converts the nats section into embedded server
// settings. The listen port is taken from URL.
func (c *Config) EmbeddedServerConfig() (eventprocessor.ServerConfig, error) {
	cfg := eventprocessor.DefaultServerConfig()
	cfg.JetStream = c.NATS.JetStream
	cfg.StoreDir = c.NATS.StoreDir

	u, err := url.Parse(c.NATS.URL)
	if err != nil {
		return cfg, fmt.Errorf("nats url: %w", err)
	}
	if host := u.Hostname(); host != "" {
		cfg.Host = host
	}
	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return cfg, fmt.Errorf("nats url port: %w", err)
		}
		cfg.Port = p
	}
	return cfg, nil
}
