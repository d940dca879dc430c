// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package services

import (
	"context"
)

// DetectionEngine matches detection.Engine's RunWithContext method.
//
// Satisfied by *detection.Engine from internal/detection/engine.go.
type DetectionEngine interface {
	// RunWithContext drains the engine's frame queue, firing suspension
	// deadlines, until ctx is canceled. Partial batches are flushed on return.
	RunWithContext(ctx context.Context) error
}

// EngineService wraps the detection engine as a supervised service.
//
// Example usage:
//
//	engine, _ := detection.NewEngine(cfg, store)
//	tree.AddMessagingService(services.NewEngineService(engine))
type EngineService struct {
	engine DetectionEngine
	name   string
}

// NewEngineService creates a new detection engine service wrapper.
func NewEngineService(engine DetectionEngine) *EngineService {
	return &EngineService{
		engine: engine,
		name:   "detection-engine",
	}
}

// Serve implements suture.Service. It returns ctx.Err() on normal shutdown.
func (d *EngineService) Serve(ctx context.Context) error {
	return d.engine.RunWithContext(ctx)
}

// String implements fmt.Stringer for logging.
func (d *EngineService) String() string {
	return d.name
}
