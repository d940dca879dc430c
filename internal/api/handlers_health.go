// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// healthCheckTimeout bounds each component probe.
const healthCheckTimeout = 2 * time.Second

// ComponentHealth is the result of one HealthCheck.
type ComponentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status           string            `json:"status"` // healthy or degraded
	Version          string            `json:"version,omitempty"`
	UptimeSeconds    float64           `json:"uptime_seconds"`
	Detectors        int               `json:"detectors"`
	WebSocketClients int               `json:"websocket_clients"`
	LastFrameAt      *time.Time        `json:"last_frame_at,omitempty"`
	Components       []ComponentHealth `json:"components"`
}

// EngineStats is the body of GET /api/v1/stats.
type EngineStats struct {
	FramesProcessed   int64      `json:"frames_processed"`
	FramesFiltered    int64      `json:"frames_filtered"`
	BatchesProcessed  int64      `json:"batches_processed"`
	ForcedClosures    int64      `json:"forced_closures"`
	DeferredClosures  int64      `json:"deferred_closures"`
	AlertsGenerated   int64      `json:"alerts_generated"`
	SinkErrors        int64      `json:"sink_errors"`
	DroppedTimestamps int64      `json:"dropped_timestamps"`
	LastProcessedAt   *time.Time `json:"last_processed_at,omitempty"`
}

// Version is reported by /health. It is set by the binary at startup.
var Version = "dev"

// runChecks probes every registered component in name order.
func (h *Handler) runChecks(ctx context.Context) []ComponentHealth {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheck, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	out := make([]ComponentHealth, 0, len(names))
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := checks[name](checkCtx)
		cancel()

		c := ComponentHealth{Name: name, Healthy: err == nil}
		if err != nil {
			c.Error = err.Error()
		}
		out = append(out, c)
	}
	return out
}

func allHealthy(components []ComponentHealth) bool {
	for _, c := range components {
		if !c.Healthy {
			return false
		}
	}
	return true
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	components := h.runChecks(r.Context())

	status := HealthStatus{
		Status:        "healthy",
		Version:       Version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Components:    components,
	}
	if !allHealthy(components) {
		status.Status = "degraded"
	}
	if h.engine != nil {
		status.Detectors = len(h.engine.Snapshots())
		if last := h.engine.Metrics().LastProcessedAt; !last.IsZero() {
			status.LastFrameAt = &last
		}
	}
	if h.wsHub != nil {
		status.WebSocketClients = h.wsHub.GetClientCount()
	}

	WriteSuccess(w, r, status)
}

// HealthLive handles GET /health/live. It only reports that the process
// serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]string{"status": "alive"})
}

// HealthReady handles GET /health/ready
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	components := h.runChecks(r.Context())
	if h.engine == nil || !allHealthy(components) {
		NewResponseWriter(w, r).ErrorWithDetails(http.StatusServiceUnavailable,
			ErrCodeServiceUnavailable, "Service not ready", components)
		return
	}
	WriteSuccess(w, r, map[string]interface{}{"status": "ready", "components": components})
}

// Stats handles GET /api/v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		NewResponseWriter(w, r).ServiceUnavailable("Detection engine unavailable")
		return
	}

	m := h.engine.Metrics()
	stats := EngineStats{
		FramesProcessed:   m.FramesProcessed,
		FramesFiltered:    m.FramesFiltered,
		BatchesProcessed:  m.BatchesProcessed,
		ForcedClosures:    m.ForcedClosures,
		DeferredClosures:  m.DeferredClosures,
		AlertsGenerated:   m.AlertsGenerated,
		SinkErrors:        m.SinkErrors,
		DroppedTimestamps: m.DroppedTimestamps,
	}
	if !m.LastProcessedAt.IsZero() {
		last := m.LastProcessedAt
		stats.LastProcessedAt = &last
	}
	WriteSuccess(w, r, stats)
}
