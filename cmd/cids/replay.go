// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cids/internal/config"
	"github.com/tomtom215/cids/internal/logging"
	"github.com/tomtom215/cids/internal/replay"
)

// runReplay runs a log file through a fresh engine in virtual time and
// writes the JSON summary to out.
func runReplay(ctx context.Context, cfg *config.Config, opts options, out io.Writer) error {
	format, err := replay.ParseFormat(opts.replayFormat)
	if err != nil {
		return err
	}

	c, err := buildComponents(ctx, cfg, modeReplay)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logging.Error().Err(err).Msg("Errors while closing components")
		}
	}()

	f, err := replay.Open(opts.replayPath, replay.Options{Format: format, Strict: opts.replayStrict})
	if err != nil {
		return err
	}
	defer f.Close()

	logging.Info().
		Str("file", opts.replayPath).
		Str("format", string(format)).
		Float64("trailing", opts.trailing).
		Msg("Replaying log")

	summary, runErr := replay.Run(ctx, c.engine, f.Reader, replay.RunOptions{Trailing: opts.trailing})

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return runErr
}
