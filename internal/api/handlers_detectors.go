// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package api

import (
	"net/http"

	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/logging"
)

// ListDetectors handles GET /api/v1/detectors
func (h *Handler) ListDetectors(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.engine == nil {
		rw.ServiceUnavailable("Detection engine unavailable")
		return
	}

	snapshots := h.engine.Snapshots()
	rw.SuccessWithPagination(snapshots, &PaginationMeta{
		Total: int64(len(snapshots)),
		Count: len(snapshots),
	})
}

// GetDetector handles GET /api/v1/detectors/{id}
func (h *Handler) GetDetector(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.engine == nil {
		rw.ServiceUnavailable("Detection engine unavailable")
		return
	}

	id, err := identifierParam(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	snapshot, ok := h.engine.Snapshot(id)
	if !ok {
		rw.NotFound("No detector for identifier " + id.String())
		return
	}
	rw.Success(snapshot)
}

// ResetDetector handles POST /api/v1/detectors/{id}/reset. It clears the
// CUSUM limits and releases a latched alarm.
func (h *Handler) ResetDetector(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.engine == nil {
		rw.ServiceUnavailable("Detection engine unavailable")
		return
	}

	id, err := identifierParam(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	if !h.engine.ResetAlarm(id) {
		rw.NotFound("No detector for identifier " + id.String())
		return
	}
	logging.Ctx(r.Context()).Info().Str("identifier", id.String()).Msg("alarm reset via API")
	rw.Success(map[string]string{"status": "reset", "identifier": id.String()})
}

// GetCorrelation handles GET /api/v1/correlation
func (h *Handler) GetCorrelation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.engine == nil {
		rw.ServiceUnavailable("Detection engine unavailable")
		return
	}

	result, ok := h.engine.Correlation()
	if !ok {
		rw.NotFound("No correlation result available")
		return
	}
	rw.Success(result)
}

var _ Engine = (*detection.Engine)(nil)
