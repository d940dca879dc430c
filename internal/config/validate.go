// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package config

import (
	"errors"
	"fmt"

	"github.com/tomtom215/cids/internal/validation"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Validate checks struct tags, then the cross-field rules.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, err.Error())
	}

	validators := []func() error{
		c.validateCorrelation,
		c.validateNATS,
		c.validateWAL,
		c.validateStorage,
		c.validateWebhook,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, err.Error())
		}
	}
	return nil
}

func (c *Config) validateCorrelation() error {
	if c.Correlation.LowBound >= c.Correlation.HighBound {
		return fmt.Errorf("correlation low bound %v must be below high bound %v",
			c.Correlation.LowBound, c.Correlation.HighBound)
	}
	if len(c.Correlation.Pair) == 2 {
		a, _ := validation.ParseIdentifier(c.Correlation.Pair[0])
		b, _ := validation.ParseIdentifier(c.Correlation.Pair[1])
		if a == b {
			return fmt.Errorf("CORRELATION_PAIR must name two different identifiers")
		}
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true")
	}
	if c.NATS.JetStream && c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required for embedded JetStream")
	}
	return nil
}

func (c *Config) validateWAL() error {
	cfg := c.WALConfig()
	return cfg.Validate()
}

func (c *Config) validateStorage() error {
	if c.Storage.Enabled && c.Storage.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required when storage is enabled")
	}
	return nil
}

func (c *Config) validateWebhook() error {
	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_ENABLED=true")
	}
	return nil
}
