// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2" // registers the duckdb driver

	"github.com/tomtom215/cids/internal/config"
	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/eventprocessor"
	"github.com/tomtom215/cids/internal/export"
	"github.com/tomtom215/cids/internal/logging"
	"github.com/tomtom215/cids/internal/wal"
	ws "github.com/tomtom215/cids/internal/websocket"
)

// closer is a named cleanup step.
type closer struct {
	name string
	fn   func() error
}

// components holds everything built from the configuration. Cleanup steps
// are recorded in creation order and run in reverse by Close.
type components struct {
	cfg *config.Config

	db     *sql.DB
	store  *detection.DuckDBStore
	engine *detection.Engine
	hub    *ws.Hub
	csv    *export.CSVSink

	natsServer *eventprocessor.EmbeddedServer
	publisher  *eventprocessor.ResultPublisher
	subscriber *eventprocessor.FrameSubscriber

	wal       *wal.BadgerWAL
	walSink   *wal.Sink
	walInner  string
	retryLoop *wal.RetryLoop
	compactor *wal.Compactor

	closers []closer
}

func (c *components) onClose(name string, fn func() error) {
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

// Close releases every component in reverse order of creation.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		cl := c.closers[i]
		if err := cl.fn(); err != nil {
			logging.Error().Err(err).Str("component", cl.name).Msg("Error closing component")
			errs = append(errs, fmt.Errorf("%s: %w", cl.name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// buildMode selects the components a run needs.
type buildMode int

const (
	modeDaemon buildMode = iota
	modeReplay
)

// buildComponents wires storage, the engine and its sinks. In replay mode
// only the store and the CSV log are attached; transport, the hub and the
// WAL are daemon concerns. On error everything built so far is closed.
func buildComponents(ctx context.Context, cfg *config.Config, mode buildMode) (c *components, err error) {
	c = &components{cfg: cfg}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	if err := c.openStore(ctx); err != nil {
		return nil, err
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	// A nil *DuckDBStore must not become a non-nil interface.
	var alerts detection.AlertStore
	if c.store != nil {
		alerts = c.store
	}
	c.engine, err = detection.NewEngine(engineCfg, alerts)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	c.engine.RegisterFlushHook(logFlushedBatch)

	if err := c.openCSV(); err != nil {
		return nil, err
	}

	if mode == modeReplay {
		if c.persistResults() {
			c.engine.RegisterSink(c.store)
		}
		return c, nil
	}

	c.hub = ws.NewHub()
	c.engine.RegisterSink(c.hub)
	c.engine.SetBroadcaster(c.hub)

	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		c.engine.RegisterNotifier(detection.NewWebhookNotifier(cfg.WebhookNotifierConfig()))
		logging.Info().
			Str("url", cfg.Webhook.URL).
			Int("rate_limit_ms", cfg.Webhook.RateLimitMs).
			Msg("Webhook notifier registered")
	}

	if err := c.initNATS(ctx); err != nil {
		return nil, err
	}
	if err := c.initWAL(ctx); err != nil {
		return nil, err
	}

	// Remote sinks come last, directly or through the WAL. A sink wrapped
	// by the WAL is not registered on its own.
	if c.persistResults() && c.walInner != "duckdb" {
		c.engine.RegisterSink(c.store)
	}
	if c.publisher != nil && c.walInner != "nats" {
		c.engine.RegisterSink(c.publisher)
	}
	if c.walSink != nil {
		c.engine.RegisterSink(c.walSink)
	}
	if c.publisher != nil {
		c.engine.RegisterNotifier(c.publisher)
	}
	return c, nil
}

func (c *components) persistResults() bool {
	return c.store != nil && c.cfg.Storage.PersistResults
}

// logFlushedBatch is the flush hook: it reports every partial batch the
// engine drops at shutdown.
func logFlushedBatch(id detection.Identifier, partial []float64) {
	logging.Info().
		Str("identifier", id.String()).
		Int("timestamps", len(partial)).
		Float64("first", partial[0]).
		Float64("last", partial[len(partial)-1]).
		Msg("Dropped partial batch at shutdown")
}

func (c *components) openStore(ctx context.Context) error {
	if !c.cfg.Storage.Enabled {
		logging.Info().Msg("Storage disabled, alerts are not persisted")
		return nil
	}

	db, err := sql.Open("duckdb", c.cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open duckdb %s: %w", c.cfg.Storage.Path, err)
	}
	c.db = db
	c.onClose("duckdb", db.Close)

	c.store = detection.NewDuckDBStore(db)
	if err := c.store.InitSchema(ctx); err != nil {
		return fmt.Errorf("init detection schema: %w", err)
	}
	logging.Info().
		Str("path", c.cfg.Storage.Path).
		Bool("persist_results", c.cfg.Storage.PersistResults).
		Msg("DuckDB store initialized")
	return nil
}

func (c *components) openCSV() error {
	path := c.cfg.Export.CSVPath
	if path == "" {
		return nil
	}
	sink, err := export.CreateCSVSink(path, export.CSVOptions{MultiIdentifier: c.cfg.Export.MultiIdentifier})
	if err != nil {
		return fmt.Errorf("create csv log: %w", err)
	}
	c.csv = sink
	c.onClose("csv", sink.Close)
	c.engine.RegisterSink(sink)
	return nil
}

func (c *components) initNATS(ctx context.Context) error {
	if !c.cfg.NATS.Enabled {
		logging.Info().Msg("NATS disabled, frames are not consumed from a broker")
		return nil
	}
	epCfg := c.cfg.EventProcessorConfig()

	if c.cfg.NATS.EmbeddedServer {
		serverCfg, err := c.cfg.EmbeddedServerConfig()
		if err != nil {
			return err
		}
		c.natsServer, err = eventprocessor.NewEmbeddedServer(serverCfg)
		if err != nil {
			return fmt.Errorf("start embedded nats: %w", err)
		}
		c.onClose("embedded-nats", func() error {
			if !c.natsServer.IsRunning() {
				return nil
			}
			return c.natsServer.Shutdown(context.Background())
		})
		epCfg.URL = c.natsServer.ClientURL()
	}

	streamName := ""
	if epCfg.JetStream {
		streamCfg := eventprocessor.DefaultStreamConfig()
		if err := eventprocessor.ProvisionStream(ctx, epCfg.URL, streamCfg); err != nil {
			return fmt.Errorf("provision stream: %w", err)
		}
		streamName = streamCfg.Name
	}

	logger := eventprocessor.NewWatermillLogger()

	pub, err := eventprocessor.NewNATSPublisher(epCfg, logger)
	if err != nil {
		return err
	}
	c.publisher, err = eventprocessor.NewResultPublisher(pub, epCfg)
	if err != nil {
		_ = pub.Close()
		return err
	}
	c.onClose("nats-publisher", c.publisher.Close)

	sub, err := eventprocessor.NewNATSSubscriber(epCfg, streamName, logger)
	if err != nil {
		return err
	}
	c.subscriber, err = eventprocessor.NewFrameSubscriber(sub, epCfg.FramesTopic, c.engine)
	if err != nil {
		_ = sub.Close()
		return err
	}
	c.onClose("frame-subscriber", c.subscriber.Close)

	logging.Info().
		Str("url", epCfg.URL).
		Bool("jetstream", epCfg.JetStream).
		Str("frames_topic", epCfg.FramesTopic).
		Msg("NATS transport initialized")
	return nil
}

// initWAL makes delivery to the remote sink durable: the NATS publisher if
// configured, otherwise the DuckDB store.
func (c *components) initWAL(ctx context.Context) error {
	if !c.cfg.WAL.Enabled {
		return nil
	}

	var inner detection.ResultSink
	name := ""
	switch {
	case c.publisher != nil:
		inner, name = c.publisher, "nats"
	case c.persistResults():
		inner, name = c.store, "duckdb"
	default:
		logging.Warn().Msg("WAL enabled without a remote sink to protect, skipping")
		return nil
	}

	w, err := wal.Open(c.cfg.WALConfig())
	if err != nil {
		return err
	}
	c.wal = w
	c.onClose("wal", w.Close)

	c.walSink = wal.NewSink(w, inner, name)
	c.walInner = name
	c.retryLoop = wal.NewRetryLoop(w, c.walSink)
	c.compactor = wal.NewCompactor(w)

	// Recovery is best effort; the retry loop picks up what is left.
	if _, err := w.RecoverPending(ctx, c.walSink); err != nil {
		logging.Warn().Err(err).Msg("WAL recovery error")
	}
	return nil
}
