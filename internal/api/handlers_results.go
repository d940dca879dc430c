// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package api

import (
	"net/http"

	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/validation"
)

const defaultResultLimit = 100

// ResultsRequest holds the validated query of GET /api/v1/results/{id}.
type ResultsRequest struct {
	Limit int `validate:"min=1,max=10000"`
}

// ListResults handles GET /api/v1/results/{id}
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.results == nil {
		rw.ServiceUnavailable(ErrStoreNotConfigured.Error())
		return
	}

	id, err := identifierParam(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	req := ResultsRequest{Limit: getIntParam(r, "limit", defaultResultLimit)}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeValidationError(rw, verr)
		return
	}

	results, err := h.results.ListResults(r.Context(), id, req.Limit)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if results == nil {
		results = []detection.BatchResult{}
	}

	rw.SuccessWithPagination(results, &PaginationMeta{
		Count: len(results),
		Limit: req.Limit,
	})
}
