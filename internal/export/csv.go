// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

// Package export writes detector results to CSV logs for offline plotting.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/logging"
)

// ErrSinkClosed is returned by writes after Close.
var ErrSinkClosed = errors.New("export: csv sink closed")

// Column headers. Offsets and errors are written in milliseconds.
var (
	singleHeader = []string{"Time_Sec", "Accumulated_Offset_ms", "Ident_Error_e", "L_Plus", "L_Minus"}
	multiHeader  = append([]string{"Identifier"}, singleHeader...)
)

// DefaultFlushEvery is the number of rows buffered between flushes.
const DefaultFlushEvery = 100

// CSVOptions configures a CSVSink.
type CSVOptions struct {
	// MultiIdentifier prepends an identifier column, for logs that mix
	// several identifiers.
	MultiIdentifier bool

	// FlushEvery flushes the writer after this many rows (default: 100).
	FlushEvery int
}

// CSVSink writes one row per BatchResult. It implements detection.ResultSink
// and is safe for concurrent use.
type CSVSink struct {
	w       *csv.Writer
	closer  io.Closer
	opts    CSVOptions
	name    string
	pending int
	rows    int
	closed  bool
	mu      sync.Mutex
}

// NewCSVSink writes to w. The header row is written immediately. If w is
// an io.Closer it is closed by Close.
func NewCSVSink(w io.Writer, opts CSVOptions) (*CSVSink, error) {
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = DefaultFlushEvery
	}
	s := &CSVSink{
		w:    csv.NewWriter(w),
		opts: opts,
		name: "csv",
	}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}

	header := singleHeader
	if opts.MultiIdentifier {
		header = multiHeader
	}
	if err := s.w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	return s, nil
}

// CreateCSVSink creates (or truncates) the file at path, creating parent
// directories as needed.
func CreateCSVSink(path string, opts CSVOptions) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create csv directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to create csv log: %w", err)
	}
	s, err := NewCSVSink(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.name = "csv:" + path
	logging.Info().Str("path", path).Bool("multi_identifier", opts.MultiIdentifier).Msg("csv result log opened")
	return s, nil
}

// Name identifies the sink in logs and metrics.
func (s *CSVSink) Name() string {
	return s.name
}

// WriteResult appends one row.
func (s *CSVSink) WriteResult(_ context.Context, r *detection.BatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if err := s.w.Write(s.record(r)); err != nil {
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	s.rows++
	s.pending++
	if s.pending >= s.opts.FlushEvery {
		return s.flushLocked()
	}
	return nil
}

// Flush writes buffered rows to the underlying writer.
func (s *CSVSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	return s.flushLocked()
}

// Rows returns the number of data rows written.
func (s *CSVSink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Close flushes and, when the writer is closable, closes it. Close is
// idempotent.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.flushLocked()
	if s.closer != nil {
		if cerr := s.closer.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close csv log: %w", cerr)
		}
	}
	logging.Debug().Str("sink", s.name).Int("rows", s.rows).Msg("csv result log closed")
	return err
}

func (s *CSVSink) flushLocked() error {
	s.pending = 0
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv log: %w", err)
	}
	return nil
}

func (s *CSVSink) record(r *detection.BatchResult) []string {
	row := make([]string, 0, len(multiHeader))
	if s.opts.MultiIdentifier {
		row = append(row, r.Identifier.String())
	}
	return append(row,
		formatFloat(r.ElapsedTime),
		formatFloat(r.AccumulatedOffset*1000),
		formatFloat(r.IdentificationError*1000),
		formatFloat(r.LPlus),
		formatFloat(r.LMinus),
	)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
