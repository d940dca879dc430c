// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

/*
Package config loads and validates the CIDS daemon configuration.

Configuration is layered with koanf, later layers overriding earlier ones:

 1. Struct defaults (defaultConfig)
 2. Optional YAML file: CONFIG_PATH, ./config.yaml, ./config.yml,
    /etc/cids/config.yaml
 3. Environment variables, mapped through an explicit table

Struct tags are checked with go-playground/validator (see internal/validation
for the CIDS tags); Validate adds the cross-field rules.

# Environment Variables

Detection:
  - CIDS_BATCH_SIZE: timestamps per batch (default: 20)
  - CIDS_LAMBDA: RLS forgetting factor in (0, 1] (default: 0.9995)
  - CIDS_THRESHOLD: CUSUM alarm level (default: 5)
  - CIDS_K_PARAM: CUSUM drift allowance (default: 0.5)
  - CIDS_SIGMA_E: error normalization scale (default: 0.005)
  - CIDS_OFFSET_POLICY: same-batch, previous-batch, adaptive-baseline
  - CIDS_STATISTICS_POLICY: fixed, adaptive
  - CIDS_MONITORED_IDS: comma-separated hex identifiers (default: all)

Suspension and correlation:
  - SUSPENSION_ENABLED, SUSPENSION_TIMEOUT (default: 500ms), SUSPENSION_PAD_INTERVAL
  - CORRELATION_PAIR: two identifiers, e.g. "0x010,0x020"

Transport, storage and surfaces:
  - NATS_ENABLED, NATS_URL, NATS_EMBEDDED, NATS_FRAMES_TOPIC
  - WAL_ENABLED, WAL_PATH, WAL_IN_MEMORY
  - DUCKDB_PATH, STORAGE_PERSIST_RESULTS
  - HTTP_HOST, HTTP_PORT, CORS_ORIGINS
  - WEBHOOK_ENABLED, WEBHOOK_URL, WEBHOOK_HEADERS ("Authorization=Bearer x,X-Env=lab")
  - CSV_LOG_PATH
  - LOG_LEVEL, LOG_FORMAT, LOG_CALLER

# Example

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}
	engineCfg, err := cfg.EngineConfig()
*/
package config
