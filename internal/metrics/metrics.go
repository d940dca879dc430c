// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Detection Metrics
var (
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cids_frames_total",
			Help: "Total number of frames accepted by the detection engine",
		},
		[]string{"identifier"},
	)

	FramesFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cids_frames_filtered_total",
			Help: "Total number of frames outside the monitored identifier set",
		},
	)

	BatchesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cids_batches_processed_total",
			Help: "Total number of closed batches",
		},
		[]string{"identifier", "forced"},
	)

	AccumulatedOffset = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cids_accumulated_offset_seconds",
			Help: "Accumulated absolute timing offset per identifier",
		},
		[]string{"identifier"},
	)

	IdentificationError = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cids_identification_error_seconds",
			Help: "Last identification error between the accumulated offset and the skew model",
		},
		[]string{"identifier"},
	)

	Skew = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cids_skew",
			Help: "Last recursive least squares clock skew estimate",
		},
		[]string{"identifier"},
	)

	CUSUMLimit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cids_cusum_limit",
			Help: "Dual-sided CUSUM statistics",
		},
		[]string{"identifier", "side"}, // "plus", "minus"
	)

	AlarmsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cids_alarms_total",
			Help: "Total number of raised alarms by class",
		},
		[]string{"identifier", "class"},
	)

	SuspensionDeferred = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cids_suspension_deferred_total",
			Help: "Silence deadlines that fired before any baseline existed",
		},
		[]string{"identifier"},
	)

	DroppedTimestamps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cids_dropped_timestamps_total",
			Help: "Timestamps of partial batches dropped at shutdown",
		},
		[]string{"identifier"},
	)

	CorrelationCoefficient = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cids_correlation_coefficient",
			Help: "Pearson correlation of per-batch offsets of a co-clocked pair",
		},
		[]string{"pair"},
	)

	DetectorsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cids_detectors_active",
			Help: "Current number of per-identifier detector states",
		},
	)
)

// Pipeline Metrics
var (
	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cids_sink_errors_total",
			Help: "Total number of failed result deliveries",
		},
		[]string{"sink"},
	)

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cids_nats_messages_published_total",
			Help: "Total number of messages published to NATS",
		},
		[]string{"topic"},
	)

	NATSPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cids_nats_publish_failures_total",
			Help: "Total number of failed NATS publishes, including circuit breaker rejections",
		},
		[]string{"topic"},
	)

	NATSMessagesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cids_nats_messages_consumed_total",
			Help: "Total number of frame messages consumed from NATS",
		},
	)

	NATSMessagesParseFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cids_nats_messages_parse_failed_total",
			Help: "Total number of frame messages that failed to parse",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cids_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	WALEntriesPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cids_wal_entries_pending",
			Help: "Current number of unconfirmed WAL entries",
		},
	)

	WALWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cids_wal_writes_total",
			Help: "Total number of WAL entries written",
		},
	)

	WALConfirms = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cids_wal_confirms_total",
			Help: "Total number of WAL entries confirmed as delivered",
		},
	)

	WALRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cids_wal_retries_total",
			Help: "Total number of WAL redelivery attempts",
		},
		[]string{"result"}, // "success", "failure"
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cids_notifications_total",
			Help: "Total number of alert notifications by outcome",
		},
		[]string{"notifier", "status"}, // "sent", "failed", "rate_limited"
	)
)

// HTTP Metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cids_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cids_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cids_http_active_requests",
			Help: "Number of HTTP requests in flight",
		},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cids_websocket_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)
)

// RecordFrame records a frame accepted by the engine
func RecordFrame(identifier string) {
	FramesTotal.WithLabelValues(identifier).Inc()
}

// RecordFrameFiltered records a frame outside the monitored set
func RecordFrameFiltered() {
	FramesFiltered.Inc()
}

// RecordBatch records a closed batch and its filter state
func RecordBatch(identifier string, forced bool, accumulated, identErr, skew, lPlus, lMinus float64) {
	BatchesProcessed.WithLabelValues(identifier, strconv.FormatBool(forced)).Inc()
	AccumulatedOffset.WithLabelValues(identifier).Set(accumulated)
	IdentificationError.WithLabelValues(identifier).Set(identErr)
	Skew.WithLabelValues(identifier).Set(skew)
	CUSUMLimit.WithLabelValues(identifier, "plus").Set(lPlus)
	CUSUMLimit.WithLabelValues(identifier, "minus").Set(lMinus)
}

// RecordAlarm records a raised alarm
func RecordAlarm(identifier, class string) {
	AlarmsTotal.WithLabelValues(identifier, class).Inc()
}

// RecordSuspensionDeferred records a deadline fired before any baseline
func RecordSuspensionDeferred(identifier string) {
	SuspensionDeferred.WithLabelValues(identifier).Inc()
}

// RecordDroppedTimestamps records partial-batch timestamps dropped at flush
func RecordDroppedTimestamps(identifier string, n int) {
	if n <= 0 {
		return
	}
	DroppedTimestamps.WithLabelValues(identifier).Add(float64(n))
}

// RecordCorrelation records the last pairwise correlation coefficient
func RecordCorrelation(pair string, coefficient float64) {
	CorrelationCoefficient.WithLabelValues(pair).Set(coefficient)
}

// SetDetectorsActive updates the detector state gauge
func SetDetectorsActive(n int) {
	DetectorsActive.Set(float64(n))
}

// RecordSinkError records a failed result delivery
func RecordSinkError(sink string) {
	SinkErrors.WithLabelValues(sink).Inc()
}

// RecordNATSPublish records a message being published to NATS
func RecordNATSPublish(topic string) {
	NATSMessagesPublished.WithLabelValues(topic).Inc()
}

// RecordNATSPublishFailure records a failed or rejected NATS publish
func RecordNATSPublishFailure(topic string) {
	NATSPublishFailures.WithLabelValues(topic).Inc()
}

// RecordNATSConsume records a frame message being consumed from NATS
func RecordNATSConsume() {
	NATSMessagesConsumed.Inc()
}

// RecordNATSParseFailed records a frame message that failed to parse
func RecordNATSParseFailed() {
	NATSMessagesParseFailed.Inc()
}

// SetCircuitBreakerState records a circuit breaker state transition
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordWALWrite records a WAL entry being written
func RecordWALWrite() {
	WALWrites.Inc()
	WALEntriesPending.Inc()
}

// RecordWALConfirm records a WAL entry being confirmed
func RecordWALConfirm() {
	WALConfirms.Inc()
	WALEntriesPending.Dec()
}

// RecordWALRetry records a WAL redelivery attempt and its outcome
func RecordWALRetry(success bool) {
	if success {
		WALRetries.WithLabelValues("success").Inc()
	} else {
		WALRetries.WithLabelValues("failure").Inc()
	}
}

// SetWALPending sets the pending WAL entry gauge, used after recovery
func SetWALPending(n int) {
	WALEntriesPending.Set(float64(n))
}

// RecordNotification records a notifier delivery outcome
func RecordNotification(notifier, status string) {
	NotificationsTotal.WithLabelValues(notifier, status).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight HTTP requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// TrackWebSocketClient tracks connected WebSocket clients
func TrackWebSocketClient(inc bool) {
	if inc {
		WebSocketClients.Inc()
	} else {
		WebSocketClients.Dec()
	}
}
