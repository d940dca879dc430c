// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package detection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Identifier is a bus message identifier (CAN arbitration ID).
type Identifier uint32

// String formats the identifier the way candump does (hex, at least 3 digits).
func (id Identifier) String() string {
	return fmt.Sprintf("0x%03X", uint32(id))
}

// Frame is a single arrival event observed on the bus.
type Frame struct {
	ID        Identifier `json:"id"`
	Timestamp float64    `json:"ts"`
	Bus       string     `json:"bus,omitempty"`
}

// OffsetReferencePolicy selects the reference interval used to build the
// expected-arrival schedule of a batch.
type OffsetReferencePolicy string

const (
	// PolicyPreviousBatch uses the mean interval of the preceding batch.
	PolicyPreviousBatch OffsetReferencePolicy = "previous-batch"

	// PolicySameBatch uses the batch's own mean interval.
	PolicySameBatch OffsetReferencePolicy = "same-batch"

	// PolicyAdaptiveBaseline learns a running mean, then freezes at nominal.
	PolicyAdaptiveBaseline OffsetReferencePolicy = "adaptive-baseline"
)

// StatisticsPolicy selects how the CUSUM normalization statistics evolve.
type StatisticsPolicy string

const (
	// StatisticsFixed keeps mu_e at 0 and sigma_e at its configured value.
	StatisticsFixed StatisticsPolicy = "fixed"

	// StatisticsAdaptive tracks mu_e and sigma_e with exponential smoothing.
	StatisticsAdaptive StatisticsPolicy = "adaptive"
)

// ParseOffsetPolicy parses a policy name. The empty string maps to the default.
func ParseOffsetPolicy(s string) (OffsetReferencePolicy, error) {
	switch OffsetReferencePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyPreviousBatch:
		return PolicyPreviousBatch, nil
	case PolicySameBatch:
		return PolicySameBatch, nil
	case PolicyAdaptiveBaseline:
		return PolicyAdaptiveBaseline, nil
	default:
		return "", fmt.Errorf("%w: offset policy %q", ErrInvalidPolicy, s)
	}
}

// ParseStatisticsPolicy parses a statistics policy name.
func ParseStatisticsPolicy(s string) (StatisticsPolicy, error) {
	switch StatisticsPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatisticsFixed:
		return StatisticsFixed, nil
	case StatisticsAdaptive:
		return StatisticsAdaptive, nil
	default:
		return "", fmt.Errorf("%w: statistics policy %q", ErrInvalidPolicy, s)
	}
}

// AlarmClass classifies a raised alarm.
type AlarmClass string

const (
	AlarmNone          AlarmClass = ""
	AlarmFabrication   AlarmClass = "fabrication"
	AlarmMasquerade    AlarmClass = "masquerade"
	AlarmSuspension    AlarmClass = "suspension"
	AlarmDecorrelation AlarmClass = "decorrelation"
)

// Phase is the lifecycle phase of a DetectorState.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseLearning      Phase = "learning"
	PhaseActive        Phase = "active"
)

// Severity indicates the severity level of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Errors returned by the detection package.
var (
	ErrInvalidParams  = errors.New("detection: invalid parameters")
	ErrInvalidPolicy  = errors.New("detection: unknown policy")
	ErrAlertNotFound  = errors.New("detection: alert not found")
	ErrEngineStopped  = errors.New("detection: engine stopped")
	ErrStoreNotReady  = errors.New("detection: store not initialized")
	ErrNotifierFailed = errors.New("detection: notifier failed")
)

// BatchResult is emitted once per processed batch. It is immutable once
// produced; sinks receive a copy.
type BatchResult struct {
	Identifier Identifier `json:"identifier"`
	Sequence   uint64     `json:"sequence"`

	// ElapsedTime is t_k: last batch timestamp minus the baseline start.
	ElapsedTime float64 `json:"elapsed_time"`

	AverageOffset       float64 `json:"average_offset"`
	MeanInterval        float64 `json:"mean_interval"`
	ReferenceInterval   float64 `json:"reference_interval"`
	AccumulatedOffset   float64 `json:"accumulated_offset"`
	IdentificationError float64 `json:"identification_error"`
	Skew                float64 `json:"skew"`

	LPlus  float64 `json:"l_plus"`
	LMinus float64 `json:"l_minus"`
	MuE    float64 `json:"mu_e"`
	SigmaE float64 `json:"sigma_e"`

	Alarm  AlarmClass `json:"alarm,omitempty"`
	Forced bool       `json:"forced,omitempty"`
	Phase  Phase      `json:"phase"`
}

// Alarmed reports whether the batch raised any alarm.
func (r *BatchResult) Alarmed() bool {
	return r.Alarm != AlarmNone
}

// Verdict is the outcome of a pairwise correlation check.
type Verdict string

const (
	VerdictInconclusive Verdict = "inconclusive"
	VerdictSynchronized Verdict = "synchronized"
	VerdictDecorrelated Verdict = "decorrelated"
)

// CorrelationResult is emitted by the PairwiseCorrelator each time a batch
// closes on either leg and enough aligned samples exist.
type CorrelationResult struct {
	A           Identifier `json:"a"`
	B           Identifier `json:"b"`
	Samples     int        `json:"samples"`
	Coefficient float64    `json:"correlation_coefficient"`
	Verdict     Verdict    `json:"verdict"`
}

// Alert represents a raised alarm enriched for persistence and notification.
type Alert struct {
	ID             int64           `json:"id"`
	UUID           string          `json:"uuid"`
	Class          AlarmClass      `json:"class"`
	Identifier     Identifier      `json:"identifier"`
	Severity       Severity        `json:"severity"`
	Title          string          `json:"title"`
	Message        string          `json:"message"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Acknowledged   bool            `json:"acknowledged"`
	AcknowledgedBy string          `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AlarmMetadata is the metadata attached to CUSUM alarms.
type AlarmMetadata struct {
	Sequence            uint64  `json:"sequence"`
	ElapsedTime         float64 `json:"elapsed_time"`
	AccumulatedOffset   float64 `json:"accumulated_offset"`
	IdentificationError float64 `json:"identification_error"`
	LPlus               float64 `json:"l_plus"`
	LMinus              float64 `json:"l_minus"`
	Threshold           float64 `json:"threshold"`
	Forced              bool    `json:"forced,omitempty"`
}

// CorrelationMetadata is the metadata attached to decorrelation alarms.
type CorrelationMetadata struct {
	Partner     Identifier `json:"partner"`
	Samples     int        `json:"samples"`
	Coefficient float64    `json:"correlation_coefficient"`
	LowBound    float64    `json:"low_bound"`
}

// ResultSink consumes batch results (CSV writers, publishers, stores, hubs).
type ResultSink interface {
	WriteResult(ctx context.Context, result *BatchResult) error
}

// CorrelationSink optionally receives correlation results. Sinks that also
// implement it get correlation output from the engine.
type CorrelationSink interface {
	WriteCorrelation(ctx context.Context, result *CorrelationResult) error
}

// FlushHook observes partial batches dropped at shutdown.
type FlushHook func(id Identifier, partial []float64)

// AlertStore defines the interface for alert persistence.
type AlertStore interface {
	// SaveAlert persists a new alert and assigns its ID.
	SaveAlert(ctx context.Context, alert *Alert) error

	// GetAlert retrieves an alert by ID.
	GetAlert(ctx context.Context, id int64) (*Alert, error)

	// ListAlerts retrieves alerts with optional filtering.
	ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error)

	// AcknowledgeAlert marks an alert as acknowledged.
	AcknowledgeAlert(ctx context.Context, id int64, acknowledgedBy string) error

	// GetAlertCount returns the count of alerts matching the filter.
	GetAlertCount(ctx context.Context, filter AlertFilter) (int, error)
}

// AlertFilter defines filtering options for alert queries.
type AlertFilter struct {
	Classes      []AlarmClass `json:"classes,omitempty"`
	Identifier   *Identifier  `json:"identifier,omitempty"`
	Acknowledged *bool        `json:"acknowledged,omitempty"`
	StartDate    *time.Time   `json:"start_date,omitempty"`
	EndDate      *time.Time   `json:"end_date,omitempty"`
	Limit        int          `json:"limit,omitempty"`
	Offset       int          `json:"offset,omitempty"`
}

// Notifier defines the interface for alert notification channels.
type Notifier interface {
	// Send delivers an alert notification.
	Send(ctx context.Context, alert *Alert) error

	// Name returns the notifier name for logging.
	Name() string

	// Enabled returns whether this notifier is active.
	Enabled() bool
}

// AlertBroadcaster pushes alerts to live clients (WebSocket).
type AlertBroadcaster interface {
	BroadcastAlert(alert *Alert)
}
