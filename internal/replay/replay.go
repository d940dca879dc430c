// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package replay

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/logging"
)

// Engine is the part of detection.Engine a replay drives.
type Engine interface {
	Replay(ctx context.Context, frame detection.Frame) ([]detection.Outcome, error)
	Tick(ctx context.Context, now float64) ([]detection.Outcome, error)
	Flush(ctx context.Context) detection.FlushReport
}

// RunOptions configures Run.
type RunOptions struct {
	// Trailing advances virtual time this many seconds past the last frame
	// before flushing, so silence at the end of a log is detected.
	Trailing float64
}

// Summary describes a finished replay.
type Summary struct {
	Frames       int                          `json:"frames"`
	Skipped      int                          `json:"skipped"`
	OutOfOrder   int                          `json:"out_of_order"`
	Batches      int                          `json:"batches"`
	Forced       int                          `json:"forced"`
	Correlations int                          `json:"correlations"`
	Alerts       int                          `json:"alerts"`
	Alarms       map[detection.AlarmClass]int `json:"alarms"`
	Dropped      int                          `json:"dropped"`
	First        float64                      `json:"first"`
	Last         float64                      `json:"last"`
	Elapsed      time.Duration                `json:"elapsed"`
}

func (s *Summary) add(outs []detection.Outcome) {
	for _, o := range outs {
		if o.Result != nil {
			s.Batches++
			if o.Result.Forced {
				s.Forced++
			}
			if o.Result.Alarmed() {
				s.Alarms[o.Result.Alarm]++
			}
		}
		if o.Correlation != nil {
			s.Correlations++
		}
		s.Alerts += len(o.Alerts)
	}
}

// Run feeds every frame of r through engine in virtual time, then flushes
// the engine. Engine delivery errors are logged and do not stop the replay;
// read errors and cancellation do. The summary is returned in every case.
func Run(ctx context.Context, engine Engine, r *Reader, opts RunOptions) (*Summary, error) {
	start := time.Now()
	sum := &Summary{Alarms: make(map[detection.AlarmClass]int)}
	logger := logging.WithComponent("replay")

	finish := func() {
		for _, n := range engine.Flush(context.WithoutCancel(ctx)) {
			sum.Dropped += n
		}
		sum.Skipped = r.Skipped()
		sum.Elapsed = time.Since(start)
	}

	for {
		if err := ctx.Err(); err != nil {
			finish()
			return sum, err
		}
		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			finish()
			return sum, err
		}

		if sum.Frames == 0 {
			sum.First = frame.Timestamp
		} else if frame.Timestamp < sum.Last {
			sum.OutOfOrder++
		}
		if frame.Timestamp > sum.Last || sum.Frames == 0 {
			sum.Last = frame.Timestamp
		}
		sum.Frames++

		outs, err := engine.Replay(ctx, frame)
		if err != nil {
			logger.Warn().Err(err).Str("identifier", frame.ID.String()).Float64("ts", frame.Timestamp).Msg("replayed frame reported errors")
		}
		sum.add(outs)
	}

	if opts.Trailing > 0 && sum.Frames > 0 {
		outs, err := engine.Tick(ctx, sum.Last+opts.Trailing)
		if err != nil {
			logger.Warn().Err(err).Msg("trailing silence reported errors")
		}
		sum.add(outs)
	}

	finish()
	logger.Info().
		Str("format", string(r.Format())).
		Int("frames", sum.Frames).
		Int("skipped", sum.Skipped).
		Int("batches", sum.Batches).
		Int("forced", sum.Forced).
		Int("alerts", sum.Alerts).
		Int("dropped", sum.Dropped).
		Float64("span", sum.Last-sum.First).
		Dur("elapsed", sum.Elapsed).
		Msg("replay complete")
	return sum, nil
}
