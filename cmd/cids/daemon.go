// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/cids/internal/api"
	"github.com/tomtom215/cids/internal/config"
	"github.com/tomtom215/cids/internal/logging"
	"github.com/tomtom215/cids/internal/supervisor"
	"github.com/tomtom215/cids/internal/supervisor/services"
)

// errBreakerOpen is reported by the publisher health check.
var errBreakerOpen = errors.New("publisher circuit breaker is open")

// walBacklogLimit is the pending entry count above which the WAL is
// reported unhealthy.
const walBacklogLimit = 100_000

// runDaemon builds every component, runs the supervisor tree until ctx is
// canceled and then releases everything.
func runDaemon(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Int("batch_size", cfg.Detection.BatchSize).
		Str("offset_policy", cfg.Detection.OffsetPolicy).
		Str("statistics_policy", cfg.Detection.StatisticsPolicy).
		Int("monitored_ids", len(cfg.Detection.MonitoredIDs)).
		Bool("suspension", cfg.Suspension.Enabled).
		Strs("pair", cfg.Correlation.Pair).
		Msg("Starting cids with supervisor tree")

	c, err := buildComponents(ctx, cfg, modeDaemon)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logging.Error().Err(err).Msg("Errors while closing components")
		}
	}()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}
	addServices(tree, c, newHTTPServer(cfg, c))

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
		treeErr = <-errCh
	case treeErr = <-errCh:
	}
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		logging.Error().Err(treeErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	// The engine service flushes when it stops; this covers a tree that
	// never started it. Only the first flush has effect.
	c.engine.Flush(context.Background())

	logging.Info().Msg("Application stopped gracefully")
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		return treeErr
	}
	return nil
}

// addServices places every long-running component in its layer.
func addServices(tree *supervisor.SupervisorTree, c *components, server *http.Server) {
	if c.retryLoop != nil {
		tree.AddDataService(c.retryLoop)
		tree.AddDataService(c.compactor)
	}

	if c.natsServer != nil {
		tree.AddMessagingService(c.natsServer)
	}
	tree.AddMessagingService(services.NewEngineService(c.engine))
	tree.AddMessagingService(c.hub)
	if c.subscriber != nil {
		tree.AddMessagingService(c.subscriber)
	}

	if server != nil {
		tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
		logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")
	}
}

// newHTTPServer builds the API server, or returns nil when it is disabled.
func newHTTPServer(cfg *config.Config, c *components) *http.Server {
	if !cfg.Server.Enabled {
		return nil
	}

	// Typed nils must stay out of the handler's interfaces.
	var handler *api.Handler
	if c.store != nil {
		handler = api.NewHandler(c.engine, c.store, c.store, c.hub, cfg.Server.CORSOrigins)
	} else {
		handler = api.NewHandler(c.engine, nil, nil, c.hub, cfg.Server.CORSOrigins)
	}
	registerHealthChecks(handler, c)

	mwCfg := api.DefaultChiMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.Server.CORSOrigins
	mwCfg.RateLimitRequests = cfg.Server.RateLimitReqs
	mwCfg.RateLimitWindow = cfg.Server.RateLimitWindow
	mwCfg.RateLimitDisabled = cfg.Server.RateLimitDisabled
	if cfg.Server.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (server.rate_limit_disabled=true)")
	}

	router := api.NewRouter(handler, api.NewChiMiddleware(mwCfg))
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}
}

// registerHealthChecks adds a readiness probe per optional component.
func registerHealthChecks(h *api.Handler, c *components) {
	if c.db != nil {
		h.AddHealthCheck("duckdb", func(ctx context.Context) error {
			return c.db.PingContext(ctx)
		})
	}
	if c.natsServer != nil {
		h.AddHealthCheck("embedded-nats", func(context.Context) error {
			if !c.natsServer.IsRunning() {
				return errors.New("embedded NATS server is not running")
			}
			return nil
		})
	}
	if c.publisher != nil {
		h.AddHealthCheck("nats-publisher", func(context.Context) error {
			if c.publisher.BreakerState() == "open" {
				return errBreakerOpen
			}
			return nil
		})
	}
	if c.wal != nil {
		h.AddHealthCheck("wal", func(context.Context) error {
			if pending := c.wal.Stats().PendingCount; pending > walBacklogLimit {
				return fmt.Errorf("wal backlog of %d entries", pending)
			}
			return nil
		})
	}
}
