// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/cids/internal/logging"
	"github.com/tomtom215/cids/internal/metrics"
)

// EngineConfig configures the detection engine.
type EngineConfig struct {
	// Params is applied to every DetectorState the engine creates.
	Params Params

	// Monitored restricts detection to these identifiers. Empty monitors all.
	Monitored []Identifier

	// SuspensionEnabled turns on the silence watchdog.
	SuspensionEnabled bool
	Suspension        SuspensionParams

	// Pair enables the PairwiseCorrelator for two co-clocked identifiers.
	Pair        *[2]Identifier
	Correlation CorrelationParams

	// QueueSize is the capacity of the Submit channel (default: 1024).
	QueueSize int

	// NotifyTimeout bounds each asynchronous notifier call (default: 10s).
	NotifyTimeout time.Duration

	// Clock returns the live time in frame timestamp units. Default: WallClock.
	Clock func() float64
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Params:            DefaultParams(),
		SuspensionEnabled: true,
		Suspension:        DefaultSuspensionParams(),
		Correlation:       DefaultCorrelationParams(),
		QueueSize:         1024,
		NotifyTimeout:     10 * time.Second,
	}
}

// Outcome is everything a single frame or forced closure produced.
type Outcome struct {
	Result      *BatchResult
	Correlation *CorrelationResult
	Alerts      []*Alert
}

// EngineMetrics tracks detection engine activity.
type EngineMetrics struct {
	FramesProcessed   int64
	FramesFiltered    int64
	BatchesProcessed  int64
	ForcedClosures    int64
	DeferredClosures  int64
	AlertsGenerated   int64
	SinkErrors        int64
	DroppedTimestamps int64
	LastProcessedAt   time.Time
	mu                sync.RWMutex
}

// Engine routes frames to per-identifier detector states, runs the
// suspension guard and the pairwise correlator, and fans results and alerts
// out to sinks, the alert store and notifiers.
type Engine struct {
	cfg        EngineConfig
	monitorAll bool
	monitored  map[Identifier]struct{}
	clock      func() float64
	in         chan Frame

	// procMu serializes all detector mutation and sink delivery so that
	// every identifier sees its batches strictly in arrival order.
	procMu     sync.Mutex
	detectors  map[Identifier]*DetectorState
	alarmState map[Identifier]AlarmClass
	correlator *PairwiseCorrelator
	decorrel   bool
	guard      *SuspensionGuard

	mu          sync.RWMutex
	alertStore  AlertStore
	sinks       []ResultSink
	notifiers   []Notifier
	flushHooks  []FlushHook
	broadcaster AlertBroadcaster

	metricsStore *EngineMetrics
	flushOnce    sync.Once
}

// NewEngine creates a new detection engine. alertStore may be nil.
func NewEngine(cfg EngineConfig, alertStore AlertStore) (*Engine, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 10 * time.Second
	}
	clock := cfg.Clock
	if clock == nil {
		clock = WallClock
	}

	e := &Engine{
		cfg:          cfg,
		monitorAll:   len(cfg.Monitored) == 0,
		monitored:    make(map[Identifier]struct{}, len(cfg.Monitored)),
		clock:        clock,
		in:           make(chan Frame, cfg.QueueSize),
		detectors:    make(map[Identifier]*DetectorState),
		alarmState:   make(map[Identifier]AlarmClass),
		alertStore:   alertStore,
		metricsStore: &EngineMetrics{},
	}
	for _, id := range cfg.Monitored {
		e.monitored[id] = struct{}{}
	}
	if cfg.SuspensionEnabled {
		e.guard = NewSuspensionGuard(cfg.Suspension)
	}
	if cfg.Pair != nil {
		c, err := NewPairwiseCorrelator(cfg.Pair[0], cfg.Pair[1], cfg.Correlation)
		if err != nil {
			return nil, err
		}
		e.correlator = c
	}
	return e, nil
}

// RegisterSink adds a result sink.
func (e *Engine) RegisterSink(sink ResultSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
	logging.Info().Str("sink", sinkName(sink)).Msg("registered result sink")
}

// RegisterNotifier adds a notifier to the engine.
func (e *Engine) RegisterNotifier(notifier Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifiers = append(e.notifiers, notifier)
	logging.Info().Str("notifier", notifier.Name()).Msg("registered notifier")
}

// RegisterFlushHook adds a hook observing partial batches dropped at shutdown.
func (e *Engine) RegisterFlushHook(hook FlushHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushHooks = append(e.flushHooks, hook)
}

// SetBroadcaster sets the live alert broadcaster.
func (e *Engine) SetBroadcaster(b AlertBroadcaster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcaster = b
}

// Submit queues a frame for the Run loop. It blocks until the frame is
// queued or ctx is done.
func (e *Engine) Submit(ctx context.Context, frame Frame) error {
	select {
	case e.in <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Accepts reports whether frames of id are processed.
func (e *Engine) Accepts(id Identifier) bool {
	if e.monitorAll {
		return true
	}
	if _, ok := e.monitored[id]; ok {
		return true
	}
	return e.correlator != nil && e.correlator.Tracks(id)
}

// detects reports whether id gets a DetectorState.
func (e *Engine) detects(id Identifier) bool {
	if e.monitorAll {
		return true
	}
	_, ok := e.monitored[id]
	return ok
}

// Process runs one frame through the engine synchronously.
func (e *Engine) Process(ctx context.Context, frame Frame) (Outcome, error) {
	if !e.Accepts(frame.ID) {
		e.metricsStore.mu.Lock()
		e.metricsStore.FramesFiltered++
		e.metricsStore.mu.Unlock()
		metrics.RecordFrameFiltered()
		return Outcome{}, nil
	}

	e.procMu.Lock()
	defer e.procMu.Unlock()

	id := frame.ID
	metrics.RecordFrame(id.String())

	var out Outcome
	if e.detects(id) {
		d, err := e.detectorLocked(id)
		if err != nil {
			return out, err
		}
		if result, ok := d.Observe(frame.Timestamp); ok {
			out.Result = result
			if alert := e.evaluateAlarmLocked(result); alert != nil {
				out.Alerts = append(out.Alerts, alert)
			}
		}
	}
	if e.correlator != nil && e.correlator.Tracks(id) {
		if corr, ok := e.correlator.Observe(id, frame.Timestamp); ok {
			out.Correlation = corr
			if alert := e.evaluateCorrelationLocked(corr); alert != nil {
				out.Alerts = append(out.Alerts, alert)
			}
		}
	}

	e.metricsStore.mu.Lock()
	e.metricsStore.FramesProcessed++
	e.metricsStore.LastProcessedAt = time.Now()
	e.metricsStore.mu.Unlock()

	return out, e.deliverLocked(ctx, out)
}

// ForceClose is the suspension guard action for id at now. Without a
// baseline the closure is deferred: it is logged and counted, never an error.
func (e *Engine) ForceClose(ctx context.Context, id Identifier, now float64) (Outcome, error) {
	e.procMu.Lock()
	defer e.procMu.Unlock()

	var out Outcome
	d, ok := e.detectors[id]
	if !ok || !d.HasBaseline() {
		logging.Debug().Str("identifier", id.String()).Msg("silence deadline elapsed before any traffic, deferring")
		metrics.RecordSuspensionDeferred(id.String())
		e.metricsStore.mu.Lock()
		e.metricsStore.DeferredClosures++
		e.metricsStore.mu.Unlock()
		return out, nil
	}

	pending := d.Pending()
	result, ok := d.ForceClose(now, e.padInterval())
	if !ok {
		return out, nil
	}
	out.Result = result

	logging.Warn().
		Str("identifier", id.String()).
		Int("real_timestamps", pending).
		Float64("l_plus", result.LPlus).
		Msg("silence deadline elapsed, forced batch closure")

	e.metricsStore.mu.Lock()
	e.metricsStore.ForcedClosures++
	e.metricsStore.mu.Unlock()

	if alert := e.evaluateAlarmLocked(result); alert != nil {
		out.Alerts = append(out.Alerts, alert)
	}
	return out, e.deliverLocked(ctx, out)
}

func (e *Engine) padInterval() float64 {
	if e.guard != nil {
		return e.guard.PadInterval()
	}
	if e.cfg.Suspension.PadInterval > 0 {
		return e.cfg.Suspension.PadInterval
	}
	return DefaultSuspensionParams().PadInterval
}

func (e *Engine) detectorLocked(id Identifier) (*DetectorState, error) {
	if d, ok := e.detectors[id]; ok {
		return d, nil
	}
	d, err := NewDetectorState(id, e.cfg.Params)
	if err != nil {
		return nil, err
	}
	e.detectors[id] = d
	metrics.SetDetectorsActive(len(e.detectors))
	logging.Info().
		Str("identifier", id.String()).
		Str("phase", string(d.Phase())).
		Str("offset_policy", string(e.cfg.Params.OffsetPolicy)).
		Msg("detector state created")
	return d, nil
}

// evaluateAlarmLocked records batch metrics and returns an alert on the
// rising edge of an alarm class. The per-batch Alarm field itself is never
// suppressed; only alert generation is edge triggered.
func (e *Engine) evaluateAlarmLocked(r *BatchResult) *Alert {
	label := r.Identifier.String()
	metrics.RecordBatch(label, r.Forced, r.AccumulatedOffset, r.IdentificationError, r.Skew, r.LPlus, r.LMinus)

	e.metricsStore.mu.Lock()
	e.metricsStore.BatchesProcessed++
	e.metricsStore.mu.Unlock()

	logging.Debug().
		Str("identifier", label).
		Uint64("sequence", r.Sequence).
		Float64("elapsed", r.ElapsedTime).
		Float64("o_acc", r.AccumulatedOffset).
		Float64("e", r.IdentificationError).
		Float64("l_plus", r.LPlus).
		Float64("l_minus", r.LMinus).
		Msg("batch processed")

	prev := e.alarmState[r.Identifier]
	e.alarmState[r.Identifier] = r.Alarm
	if r.Alarm == AlarmNone {
		return nil
	}

	metrics.RecordAlarm(label, string(r.Alarm))
	if r.Alarm == prev {
		return nil
	}

	logging.Warn().
		Str("identifier", label).
		Str("class", string(r.Alarm)).
		Float64("l_plus", r.LPlus).
		Float64("l_minus", r.LMinus).
		Bool("forced", r.Forced).
		Msg("intrusion detected")

	meta := marshalMetadata(r.Identifier, r.Alarm, AlarmMetadata{
		Sequence:            r.Sequence,
		ElapsedTime:         r.ElapsedTime,
		AccumulatedOffset:   r.AccumulatedOffset,
		IdentificationError: r.IdentificationError,
		LPlus:               r.LPlus,
		LMinus:              r.LMinus,
		Threshold:           e.cfg.Params.Threshold,
		Forced:              r.Forced,
	})
	return &Alert{
		UUID:       uuid.New().String(),
		Class:      r.Alarm,
		Identifier: r.Identifier,
		Severity:   SeverityCritical,
		Title:      alarmTitle(r.Alarm),
		Message:    alarmMessage(r),
		Metadata:   meta,
		CreatedAt:  time.Now().UTC(),
	}
}

// marshalMetadata encodes alert metadata. An encoding failure, such as a
// non-finite statistic, is logged and leaves the alert without metadata.
func marshalMetadata(id Identifier, class AlarmClass, v interface{}) json.RawMessage {
	meta, err := json.Marshal(v)
	if err != nil {
		logging.Error().
			Err(err).
			Str("identifier", id.String()).
			Str("class", string(class)).
			Msg("failed to marshal alert metadata")
		return nil
	}
	return meta
}

// evaluateCorrelationLocked returns an alert when the pair becomes decorrelated.
func (e *Engine) evaluateCorrelationLocked(c *CorrelationResult) *Alert {
	metrics.RecordCorrelation(c.A.String()+"-"+c.B.String(), c.Coefficient)

	logging.Debug().
		Str("a", c.A.String()).
		Str("b", c.B.String()).
		Int("samples", c.Samples).
		Float64("rho", c.Coefficient).
		Str("verdict", string(c.Verdict)).
		Msg("pairwise correlation")

	was := e.decorrel
	e.decorrel = c.Verdict == VerdictDecorrelated
	if !e.decorrel || was {
		return nil
	}

	metrics.RecordAlarm(c.B.String(), string(AlarmDecorrelation))
	logging.Warn().
		Str("a", c.A.String()).
		Str("b", c.B.String()).
		Float64("rho", c.Coefficient).
		Msg("pairwise alarm, identifiers no longer share a clock")

	meta := marshalMetadata(c.B, AlarmDecorrelation, CorrelationMetadata{
		Partner:     c.A,
		Samples:     c.Samples,
		Coefficient: c.Coefficient,
		LowBound:    e.cfg.Correlation.LowBound,
	})
	return &Alert{
		UUID:       uuid.New().String(),
		Class:      AlarmDecorrelation,
		Identifier: c.B,
		Severity:   SeverityWarning,
		Title:      alarmTitle(AlarmDecorrelation),
		Message: fmt.Sprintf("Clock offsets of %s and %s decorrelated (rho=%.4f over %d batches, likely masquerade)",
			c.A, c.B, c.Coefficient, c.Samples),
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
}

// deliverLocked fans an outcome out to sinks, the store, notifiers and the
// broadcaster. Sink errors are joined and returned; the outcome stays valid.
func (e *Engine) deliverLocked(ctx context.Context, out Outcome) error {
	e.mu.RLock()
	sinks := e.sinks
	store := e.alertStore
	broadcaster := e.broadcaster
	e.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if out.Result != nil {
			result := *out.Result
			if err := s.WriteResult(ctx, &result); err != nil {
				errs = append(errs, e.sinkFailed(s, err))
			}
		}
		if out.Correlation != nil {
			if cs, ok := s.(CorrelationSink); ok {
				corr := *out.Correlation
				if err := cs.WriteCorrelation(ctx, &corr); err != nil {
					errs = append(errs, e.sinkFailed(s, err))
				}
			}
		}
	}

	for _, alert := range out.Alerts {
		e.metricsStore.mu.Lock()
		e.metricsStore.AlertsGenerated++
		e.metricsStore.mu.Unlock()

		if store != nil {
			if err := store.SaveAlert(ctx, alert); err != nil {
				logging.Error().Err(err).Str("class", string(alert.Class)).Msg("failed to save alert")
			}
		}
		if broadcaster != nil {
			broadcaster.BroadcastAlert(alert)
		}
	}
	e.notify(ctx, out.Alerts)

	return errors.Join(errs...)
}

func (e *Engine) sinkFailed(s ResultSink, err error) error {
	name := sinkName(s)
	metrics.RecordSinkError(name)
	e.metricsStore.mu.Lock()
	e.metricsStore.SinkErrors++
	e.metricsStore.mu.Unlock()
	logging.Error().Err(err).Str("sink", name).Msg("failed to deliver result")
	return fmt.Errorf("%s: %w", name, err)
}

// notify sends alerts to all enabled notifiers, each in its own goroutine.
func (e *Engine) notify(ctx context.Context, alerts []*Alert) {
	if len(alerts) == 0 {
		return
	}

	e.mu.RLock()
	notifiers := make([]Notifier, 0, len(e.notifiers))
	for _, n := range e.notifiers {
		if n.Enabled() {
			notifiers = append(notifiers, n)
		}
	}
	e.mu.RUnlock()

	base := context.WithoutCancel(ctx)
	for _, alert := range alerts {
		for _, notifier := range notifiers {
			go func(n Notifier, a *Alert) {
				nctx, cancel := context.WithTimeout(base, e.cfg.NotifyTimeout)
				defer cancel()
				if err := n.Send(nctx, a); err != nil {
					logging.Error().Err(err).Str("notifier", n.Name()).Msg("failed to send alert")
				}
			}(notifier, alert)
		}
	}
}

// Run consumes frames until the channel closes or ctx is canceled, firing
// suspension deadlines in between, and flushes partial batches on return.
func (e *Engine) Run(ctx context.Context, frames <-chan Frame) error {
	defer e.Flush(context.WithoutCancel(ctx))

	handle := func(f Frame) {
		if _, err := e.Process(ctx, f); err != nil {
			logging.Warn().Err(err).Str("identifier", f.ID.String()).Msg("frame processing reported errors")
		}
	}

	if e.guard == nil {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case f, ok := <-frames:
				if !ok {
					return nil
				}
				handle(f)
			}
		}
	}

	// Configured identifiers are armed up front so that a bus that never
	// speaks is noticed, and deferred, from the start.
	now := e.clock()
	for id := range e.monitored {
		e.guard.Touch(id, now)
	}

	return e.guard.Watch(ctx, frames, e.clock,
		func(f Frame) {
			if e.detects(f.ID) {
				e.guard.Touch(f.ID, e.clock())
			}
			handle(f)
		},
		func(id Identifier, at float64) {
			if _, err := e.ForceClose(ctx, id, at); err != nil {
				logging.Warn().Err(err).Str("identifier", id.String()).Msg("forced closure reported errors")
			}
		},
	)
}

// RunWithContext runs the engine on its Submit queue and blocks until the
// context is canceled. This method is designed to work with suture supervision.
func (e *Engine) RunWithContext(ctx context.Context) error {
	logging.Info().
		Int("monitored", len(e.monitored)).
		Bool("suspension_guard", e.guard != nil).
		Bool("pairwise", e.correlator != nil).
		Msg("detection engine started")

	err := e.Run(ctx, e.in)

	logging.Info().Msg("detection engine shutting down")
	return err
}

// Replay runs one frame in virtual time: suspension deadlines that elapsed
// before the frame's timestamp fire first, at their own instants.
func (e *Engine) Replay(ctx context.Context, frame Frame) ([]Outcome, error) {
	outs, err := e.Tick(ctx, frame.Timestamp)
	errs := []error{err}
	if e.guard != nil && e.detects(frame.ID) {
		e.guard.Touch(frame.ID, frame.Timestamp)
	}
	out, err := e.Process(ctx, frame)
	errs = append(errs, err)
	if out.Result != nil || out.Correlation != nil {
		outs = append(outs, out)
	}
	return outs, errors.Join(errs...)
}

// Tick advances virtual time to now without a frame, firing every
// suspension deadline that elapsed before it.
func (e *Engine) Tick(ctx context.Context, now float64) ([]Outcome, error) {
	if e.guard == nil {
		return nil, nil
	}
	var outs []Outcome
	var errs []error
	e.guard.Advance(now, func(id Identifier, at float64) {
		out, err := e.ForceClose(ctx, id, at)
		if err != nil {
			errs = append(errs, err)
		}
		if out.Result != nil {
			outs = append(outs, out)
		}
	})
	return outs, errors.Join(errs...)
}

// FlushReport lists the timestamps dropped per identifier at shutdown.
type FlushReport map[Identifier]int

// Flush is the shutdown hook: every partial batch is reported to the flush
// hooks, logged and counted, then dropped. Only the first call has effect.
func (e *Engine) Flush(_ context.Context) FlushReport {
	report := FlushReport{}
	e.flushOnce.Do(func() {
		e.procMu.Lock()
		defer e.procMu.Unlock()

		e.mu.RLock()
		hooks := e.flushHooks
		e.mu.RUnlock()

		drop := func(id Identifier, partial []float64) {
			if len(partial) == 0 {
				return
			}
			report[id] += len(partial)
			metrics.RecordDroppedTimestamps(id.String(), len(partial))
			e.metricsStore.mu.Lock()
			e.metricsStore.DroppedTimestamps += int64(len(partial))
			e.metricsStore.mu.Unlock()
			for _, h := range hooks {
				h(id, partial)
			}
		}

		for _, id := range e.sortedIDsLocked() {
			drop(id, e.detectors[id].Flush())
		}
		if e.correlator != nil {
			a, b := e.correlator.Pair()
			pa, pb := e.correlator.Flush()
			// Correlator legs that are also detected were already reported.
			if !e.detects(a) {
				drop(a, pa)
			}
			if !e.detects(b) {
				drop(b, pb)
			}
		}

		total := 0
		for _, n := range report {
			total += n
		}
		logging.Info().
			Int("identifiers", len(report)).
			Int("timestamps", total).
			Msg("flushed partial batches at shutdown")
	})
	return report
}

func (e *Engine) sortedIDsLocked() []Identifier {
	ids := make([]Identifier, 0, len(e.detectors))
	for id := range e.detectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshots returns a snapshot of every detector state, ordered by identifier.
func (e *Engine) Snapshots() []DetectorSnapshot {
	e.procMu.Lock()
	defer e.procMu.Unlock()

	out := make([]DetectorSnapshot, 0, len(e.detectors))
	for _, id := range e.sortedIDsLocked() {
		out = append(out, e.detectors[id].Snapshot())
	}
	return out
}

// Snapshot returns the snapshot of one detector state.
func (e *Engine) Snapshot(id Identifier) (DetectorSnapshot, bool) {
	e.procMu.Lock()
	defer e.procMu.Unlock()

	d, ok := e.detectors[id]
	if !ok {
		return DetectorSnapshot{}, false
	}
	return d.Snapshot(), true
}

// ResetAlarm clears the CUSUM limits of id. It is the operator action that
// releases a latched alarm.
func (e *Engine) ResetAlarm(id Identifier) bool {
	e.procMu.Lock()
	defer e.procMu.Unlock()

	d, ok := e.detectors[id]
	if !ok {
		return false
	}
	d.ResetAlarm()
	e.alarmState[id] = AlarmNone
	logging.Info().Str("identifier", id.String()).Msg("alarm reset")
	return true
}

// Correlation returns the last pairwise correlation result.
func (e *Engine) Correlation() (CorrelationResult, bool) {
	e.procMu.Lock()
	defer e.procMu.Unlock()

	if e.correlator == nil {
		return CorrelationResult{}, false
	}
	return e.correlator.Last()
}

// Metrics returns a copy of the engine metrics.
func (e *Engine) Metrics() EngineMetrics {
	e.metricsStore.mu.RLock()
	defer e.metricsStore.mu.RUnlock()

	return EngineMetrics{
		FramesProcessed:   e.metricsStore.FramesProcessed,
		FramesFiltered:    e.metricsStore.FramesFiltered,
		BatchesProcessed:  e.metricsStore.BatchesProcessed,
		ForcedClosures:    e.metricsStore.ForcedClosures,
		DeferredClosures:  e.metricsStore.DeferredClosures,
		AlertsGenerated:   e.metricsStore.AlertsGenerated,
		SinkErrors:        e.metricsStore.SinkErrors,
		DroppedTimestamps: e.metricsStore.DroppedTimestamps,
		LastProcessedAt:   e.metricsStore.LastProcessedAt,
	}
}

// Config returns the engine configuration.
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

func sinkName(s ResultSink) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

func alarmTitle(class AlarmClass) string {
	switch class {
	case AlarmFabrication:
		return "Fabrication attack detected"
	case AlarmMasquerade:
		return "Masquerade attack detected"
	case AlarmSuspension:
		return "Suspension attack detected"
	case AlarmDecorrelation:
		return "Pairwise clock decorrelation detected"
	default:
		return "Intrusion detected"
	}
}

func alarmMessage(r *BatchResult) string {
	switch r.Alarm {
	case AlarmFabrication:
		return fmt.Sprintf("%s: positive shift, L+=%.2f after batch %d (injected traffic)", r.Identifier, r.LPlus, r.Sequence)
	case AlarmMasquerade:
		return fmt.Sprintf("%s: negative shift, L-=%.2f after batch %d (clock takeover)", r.Identifier, r.LMinus, r.Sequence)
	case AlarmSuspension:
		return fmt.Sprintf("%s: silence forced batch %d closed, L+=%.2f", r.Identifier, r.Sequence, r.LPlus)
	default:
		return fmt.Sprintf("%s: alarm after batch %d", r.Identifier, r.Sequence)
	}
}
