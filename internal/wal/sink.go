// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package wal

import (
	"context"
	"fmt"

	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/logging"
)

// Sink makes delivery to another detection.ResultSink durable. Every result
// is written to the WAL first; a failed delivery leaves the entry pending
// for the RetryLoop and is not reported to the engine as an error.
type Sink struct {
	wal   *BadgerWAL
	inner detection.ResultSink
	name  string
}

// NewSink wraps inner. name is used in logs and metrics.
func NewSink(w *BadgerWAL, inner detection.ResultSink, name string) *Sink {
	return &Sink{wal: w, inner: inner, name: name}
}

// Name returns the wrapped sink name with a wal prefix.
func (s *Sink) Name() string {
	return "wal:" + s.name
}

// WriteResult persists r and attempts delivery.
func (s *Sink) WriteResult(ctx context.Context, r *detection.BatchResult) error {
	id, err := s.wal.Write(ctx, KindBatchResult, r)
	if err != nil {
		return fmt.Errorf("wal write: %w", err)
	}
	if err := s.inner.WriteResult(ctx, r); err != nil {
		s.deferDelivery(ctx, id, err)
		return nil
	}
	return s.wal.Confirm(ctx, id)
}

// WriteCorrelation persists c and attempts delivery when the wrapped sink
// accepts correlation results.
func (s *Sink) WriteCorrelation(ctx context.Context, c *detection.CorrelationResult) error {
	cs, ok := s.inner.(detection.CorrelationSink)
	if !ok {
		return nil
	}
	id, err := s.wal.Write(ctx, KindCorrelation, c)
	if err != nil {
		return fmt.Errorf("wal write: %w", err)
	}
	if err := cs.WriteCorrelation(ctx, c); err != nil {
		s.deferDelivery(ctx, id, err)
		return nil
	}
	return s.wal.Confirm(ctx, id)
}

func (s *Sink) deferDelivery(ctx context.Context, id string, cause error) {
	logging.Warn().
		Err(cause).
		Str("sink", s.name).
		Str("entry_id", id).
		Msg("Delivery failed, entry kept for retry")
	if err := s.wal.UpdateAttempt(ctx, id, cause.Error()); err != nil {
		logging.Error().Err(err).Str("entry_id", id).Msg("WAL failed to record attempt")
	}
}

// PublishEntry redelivers a WAL entry to the wrapped sink. It lets the Sink
// serve as the RetryLoop publisher.
func (s *Sink) PublishEntry(ctx context.Context, entry *Entry) error {
	switch entry.Kind {
	case KindBatchResult:
		var r detection.BatchResult
		if err := entry.UnmarshalPayload(&r); err != nil {
			return fmt.Errorf("decode batch result: %w", err)
		}
		return s.inner.WriteResult(ctx, &r)
	case KindCorrelation:
		cs, ok := s.inner.(detection.CorrelationSink)
		if !ok {
			return nil
		}
		var c detection.CorrelationResult
		if err := entry.UnmarshalPayload(&c); err != nil {
			return fmt.Errorf("decode correlation result: %w", err)
		}
		return cs.WriteCorrelation(ctx, &c)
	default:
		return fmt.Errorf("unknown WAL entry kind %q", entry.Kind)
	}
}
