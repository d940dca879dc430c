// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/logging"
	"github.com/tomtom215/cids/internal/validation"
	ws "github.com/tomtom215/cids/internal/websocket"
)

// Engine is the read and operator surface of detection.Engine used by the API.
type Engine interface {
	Snapshots() []detection.DetectorSnapshot
	Snapshot(id detection.Identifier) (detection.DetectorSnapshot, bool)
	ResetAlarm(id detection.Identifier) bool
	Correlation() (detection.CorrelationResult, bool)
	Metrics() detection.EngineMetrics
}

// ResultReader reads persisted batch results.
type ResultReader interface {
	ListResults(ctx context.Context, id detection.Identifier, limit int) ([]detection.BatchResult, error)
}

// HealthCheck probes one component. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Handler contains dependencies for API handlers
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, websocket upgrade
//   - handlers_health.go: health and stats endpoints
//   - handlers_detectors.go: detector snapshots, alarm reset, correlation
//   - handlers_alerts.go: alert listing and acknowledgement
//   - handlers_results.go: persisted batch results
type Handler struct {
	engine      Engine
	alerts      detection.AlertStore
	results     ResultReader
	wsHub       *ws.Hub
	corsOrigins []string
	startTime   time.Time

	mu     sync.RWMutex
	checks map[string]HealthCheck
}

// NewHandler creates a new API handler. alerts, results and hub may be nil;
// the endpoints they back then answer 503.
//
// Example:
//
//	handler := api.NewHandler(engine, store, store, hub, cfg.Server.CORSOrigins)
//	router := api.NewRouter(handler, nil)
//	http.ListenAndServe(":8080", router.SetupChi())
func NewHandler(engine Engine, alerts detection.AlertStore, results ResultReader, hub *ws.Hub, corsOrigins []string) *Handler {
	return &Handler{
		engine:      engine,
		alerts:      alerts,
		results:     results,
		wsHub:       hub,
		corsOrigins: corsOrigins,
		startTime:   time.Now(),
		checks:      make(map[string]HealthCheck),
	}
}

// AddHealthCheck registers a component probe reported by /health and
// gating /health/ready.
func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// identifierParam parses the {id} path parameter as a CAN identifier.
func identifierParam(r *http.Request) (detection.Identifier, error) {
	raw := chi.URLParam(r, "id")
	id, err := validation.ParseIdentifier(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidIdentifier, sanitizeLogValue(raw))
	}
	return detection.Identifier(id), nil
}

// sanitizeLogValue removes control characters from strings to prevent log injection attacks.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins. Requests
// without an Origin header come from non-browser clients such as bus
// gateways and are allowed.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range h.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("websocket connection rejected from unauthorized origin")
	return false
}

// WebSocket handles GET /ws
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		logging.Warn().Msg("websocket connection rejected: hub not initialized")
		NewResponseWriter(w, r).ServiceUnavailable("WebSocket service unavailable")
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("websocket upgrade error")
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	h.wsHub.Register <- client
	client.Start()
}
