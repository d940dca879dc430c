// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

/*
Package middleware provides HTTP middleware for the CIDS API.

All middleware uses the func(http.Handler) http.Handler shape so it can be
installed with chi's r.Use().

Key Components:

  - RequestID: UUID-based request tracking, propagated into the logging
    context as request_id and correlation_id
  - PrometheusMetrics: request count, latency and in-flight gauge, labelled
    by the chi route pattern so path parameters do not explode cardinality

Usage:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
