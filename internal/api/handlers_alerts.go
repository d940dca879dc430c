// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/logging"
	"github.com/tomtom215/cids/internal/validation"
)

const defaultAlertLimit = 100

// AlertsRequest holds the validated query of GET /api/v1/alerts.
type AlertsRequest struct {
	Limit        int    `validate:"min=1,max=1000"`
	Offset       int    `validate:"min=0"`
	Class        string `validate:"omitempty,oneof=fabrication masquerade suspension decorrelation"`
	Identifier   string `validate:"omitempty,canid"`
	Acknowledged string `validate:"omitempty,oneof=true false"`
	StartDate    string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	EndDate      string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// AcknowledgeRequest is the optional body of the acknowledge endpoint.
type AcknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by" validate:"max=128"`
}

// getIntParam extracts an integer query parameter with a default value.
// A malformed value is kept as -1 so validation rejects it.
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}
	return n
}

// writeValidationError answers 400 with the validator's field details.
func writeValidationError(rw *ResponseWriter, verr *validation.RequestValidationError) {
	apiErr := verr.ToAPIError()
	rw.ErrorWithDetails(http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
}

// parseAlertFilter builds an AlertFilter from the query string.
func parseAlertFilter(r *http.Request) (detection.AlertFilter, *validation.RequestValidationError) {
	q := r.URL.Query()
	req := AlertsRequest{
		Limit:        getIntParam(r, "limit", defaultAlertLimit),
		Offset:       getIntParam(r, "offset", 0),
		Class:        q.Get("class"),
		Identifier:   q.Get("identifier"),
		Acknowledged: q.Get("acknowledged"),
		StartDate:    q.Get("start_date"),
		EndDate:      q.Get("end_date"),
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		return detection.AlertFilter{}, verr
	}

	filter := detection.AlertFilter{Limit: req.Limit, Offset: req.Offset}
	if req.Class != "" {
		filter.Classes = []detection.AlarmClass{detection.AlarmClass(req.Class)}
	}
	if req.Identifier != "" {
		// Already validated by the canid tag.
		v, _ := validation.ParseIdentifier(req.Identifier)
		id := detection.Identifier(v)
		filter.Identifier = &id
	}
	if req.Acknowledged != "" {
		ack := req.Acknowledged == "true"
		filter.Acknowledged = &ack
	}
	if req.StartDate != "" {
		if t, err := time.Parse(time.RFC3339, req.StartDate); err == nil {
			filter.StartDate = &t
		}
	}
	if req.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, req.EndDate); err == nil {
			filter.EndDate = &t
		}
	}
	return filter, nil
}

// ListAlerts handles GET /api/v1/alerts
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.alerts == nil {
		rw.ServiceUnavailable(ErrStoreNotConfigured.Error())
		return
	}

	filter, verr := parseAlertFilter(r)
	if verr != nil {
		writeValidationError(rw, verr)
		return
	}

	alerts, err := h.alerts.ListAlerts(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if alerts == nil {
		alerts = []detection.Alert{}
	}

	// The total is best effort; fall back to the page size.
	total, err := h.alerts.GetAlertCount(r.Context(), filter)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("failed to count alerts")
		total = filter.Offset + len(alerts)
	}

	rw.SuccessWithPagination(alerts, &PaginationMeta{
		Total:   int64(total),
		Count:   len(alerts),
		Offset:  filter.Offset,
		Limit:   filter.Limit,
		HasMore: filter.Offset+len(alerts) < total,
	})
}

// alertIDParam parses the numeric {id} of an alert route.
func alertIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid alert ID")
	}
	return id, nil
}

// GetAlert handles GET /api/v1/alerts/{id}
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.alerts == nil {
		rw.ServiceUnavailable(ErrStoreNotConfigured.Error())
		return
	}

	id, err := alertIDParam(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	alert, err := h.alerts.GetAlert(r.Context(), id)
	if errors.Is(err, detection.ErrAlertNotFound) {
		rw.NotFound("Alert not found")
		return
	}
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(alert)
}

// AcknowledgeAlert handles POST /api/v1/alerts/{id}/acknowledge. The body
// is optional; without acknowledged_by the acknowledger is "operator".
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.alerts == nil {
		rw.ServiceUnavailable(ErrStoreNotConfigured.Error())
		return
	}

	id, err := alertIDParam(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	var req AcknowledgeRequest
	if r.Body != nil {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			rw.BadRequest("Invalid request body")
			return
		}
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeValidationError(rw, verr)
		return
	}
	if req.AcknowledgedBy == "" {
		req.AcknowledgedBy = "operator"
	}

	err = h.alerts.AcknowledgeAlert(r.Context(), id, req.AcknowledgedBy)
	if errors.Is(err, detection.ErrAlertNotFound) {
		rw.NotFound("Alert not found")
		return
	}
	if err != nil {
		rw.DatabaseError(err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Int64("alert_id", id).
		Str("acknowledged_by", sanitizeLogValue(req.AcknowledgedBy)).
		Msg("alert acknowledged")
	rw.Success(map[string]interface{}{"status": "acknowledged", "id": id})
}
