// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package replay

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tomtom215/cids/internal/detection"
	"github.com/tomtom215/cids/internal/logging"
	"github.com/tomtom215/cids/internal/validation"
)

// Format is a log file format.
type Format string

const (
	FormatAuto    Format = "auto"
	FormatCandump Format = "candump"
	FormatCSV     Format = "csv"
)

// ParseFormat parses a format name. The empty string is FormatAuto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatCandump, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

var (
	// ErrUnknownFormat is returned for unsupported format names.
	ErrUnknownFormat = errors.New("replay: unknown log format")

	// ErrMalformedLine is wrapped by every ParseError.
	ErrMalformedLine = errors.New("replay: malformed line")
)

// ParseError reports a line that could not be parsed.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// Unwrap lets errors.Is match ErrMalformedLine.
func (e *ParseError) Unwrap() error {
	return ErrMalformedLine
}

// Options configures a Reader.
type Options struct {
	Format Format

	// Strict stops at the first malformed line instead of skipping it.
	Strict bool

	// Bus overrides the bus name of every frame. Candump frames otherwise
	// carry their interface name.
	Bus string
}

// Reader yields frames from a log. It is not safe for concurrent use.
type Reader struct {
	opts      Options
	br        *bufio.Reader
	lines     *bufio.Scanner
	records   *csv.Reader
	line      int
	skipped   int
	started   bool
	sawRecord bool
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader, opts Options) *Reader {
	if opts.Format == "" {
		opts.Format = FormatAuto
	}
	return &Reader{opts: opts, br: bufio.NewReader(r)}
}

// Format returns the resolved format. Before the first Next call on an auto
// reader it is FormatAuto.
func (r *Reader) Format() Format {
	return r.opts.Format
}

// Skipped returns the number of malformed lines skipped so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Next returns the next frame, or io.EOF at the end of the log.
func (r *Reader) Next() (detection.Frame, error) {
	if !r.started {
		if err := r.start(); err != nil {
			return detection.Frame{}, err
		}
	}
	for {
		frame, err := r.next()
		if err == nil {
			if r.opts.Bus != "" {
				frame.Bus = r.opts.Bus
			}
			return frame, nil
		}
		var perr *ParseError
		if !errors.As(err, &perr) || r.opts.Strict {
			return detection.Frame{}, err
		}
		r.skipped++
		logging.Debug().Str("component", "replay").Int("line", perr.Line).Str("reason", perr.Reason).Msg("skipping malformed line")
	}
}

// start resolves FormatAuto by peeking at the first non-blank line.
func (r *Reader) start() error {
	r.started = true
	if r.opts.Format == FormatAuto {
		f, err := sniff(r.br)
		if err != nil {
			return err
		}
		r.opts.Format = f
	}

	switch r.opts.Format {
	case FormatCandump:
		r.lines = bufio.NewScanner(r.br)
	case FormatCSV:
		r.records = csv.NewReader(r.br)
		r.records.FieldsPerRecord = -1
		r.records.TrimLeadingSpace = true
		r.records.Comment = '#'
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, r.opts.Format)
	}
	return nil
}

// sniff picks candump when the first non-blank line opens with '('.
func sniff(br *bufio.Reader) (Format, error) {
	for n := 64; ; n *= 2 {
		peek, err := br.Peek(n)
		trimmed := strings.TrimLeft(string(peek), " \t\r\n")
		if trimmed != "" {
			if trimmed[0] == '(' {
				return FormatCandump, nil
			}
			return FormatCSV, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, bufio.ErrBufferFull) {
				return FormatCSV, nil
			}
			return "", err
		}
	}
}

func (r *Reader) next() (detection.Frame, error) {
	if r.opts.Format == FormatCandump {
		return r.nextCandump()
	}
	return r.nextCSV()
}

func (r *Reader) nextCandump() (detection.Frame, error) {
	for r.lines.Scan() {
		r.line++
		text := strings.TrimSpace(r.lines.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		frame, reason := parseCandump(text)
		if reason != "" {
			return detection.Frame{}, &ParseError{Line: r.line, Text: text, Reason: reason}
		}
		return frame, nil
	}
	if err := r.lines.Err(); err != nil {
		return detection.Frame{}, fmt.Errorf("failed to read log: %w", err)
	}
	return detection.Frame{}, io.EOF
}

// parseCandump parses "(ts) iface ID#DATA". A non-empty reason means the
// line is malformed.
func parseCandump(text string) (detection.Frame, string) {
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return detection.Frame{}, "want (timestamp) interface id#data"
	}
	stamp := fields[0]
	if len(stamp) < 3 || stamp[0] != '(' || stamp[len(stamp)-1] != ')' {
		return detection.Frame{}, "timestamp must be parenthesized"
	}
	ts, err := parseTimestamp(stamp[1 : len(stamp)-1])
	if err != nil {
		return detection.Frame{}, "invalid timestamp"
	}

	rawID, _, found := strings.Cut(fields[2], "#")
	if !found {
		return detection.Frame{}, "missing '#' separator"
	}
	id, err := validation.ParseIdentifier(rawID)
	if err != nil {
		return detection.Frame{}, "invalid identifier"
	}
	return detection.Frame{ID: detection.Identifier(id), Timestamp: ts, Bus: fields[1]}, ""
}

var errNonFinite = errors.New("non-finite timestamp")

// parseTimestamp parses seconds since the epoch. NaN and infinities parse
// as floats but are rejected.
func parseTimestamp(s string) (float64, error) {
	ts, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(ts) || math.IsInf(ts, 0) {
		return 0, errNonFinite
	}
	return ts, nil
}

func (r *Reader) nextCSV() (detection.Frame, error) {
	for {
		record, err := r.records.Read()
		if errors.Is(err, io.EOF) {
			return detection.Frame{}, io.EOF
		}
		// csv errors carry their own line numbers and are always malformed input.
		var csvErr *csv.ParseError
		if errors.As(err, &csvErr) {
			r.line = csvErr.Line
			return detection.Frame{}, &ParseError{Line: csvErr.Line, Reason: csvErr.Err.Error()}
		}
		if err != nil {
			return detection.Frame{}, fmt.Errorf("failed to read log: %w", err)
		}
		r.line, _ = r.records.FieldPos(0)

		if len(record) < 2 {
			return detection.Frame{}, &ParseError{Line: r.line, Text: strings.Join(record, ","), Reason: "want timestamp,id"}
		}
		first := !r.sawRecord
		r.sawRecord = true
		ts, tsErr := parseTimestamp(strings.TrimSpace(record[0]))
		if tsErr != nil {
			if first && !errors.Is(tsErr, errNonFinite) {
				// Header row.
				continue
			}
			return detection.Frame{}, &ParseError{Line: r.line, Text: strings.Join(record, ","), Reason: "invalid timestamp"}
		}
		id, idErr := validation.ParseIdentifier(strings.TrimSpace(record[1]))
		if idErr != nil {
			return detection.Frame{}, &ParseError{Line: r.line, Text: strings.Join(record, ","), Reason: "invalid identifier"}
		}
		return detection.Frame{ID: detection.Identifier(id), Timestamp: ts}, nil
	}
}

// ReadAll reads every frame of a log.
func ReadAll(r io.Reader, opts Options) ([]detection.Frame, error) {
	reader := NewReader(r, opts)
	var frames []detection.Frame
	for {
		f, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}

// File is a Reader over an opened log file.
type File struct {
	*Reader
	f *os.File
}

// Open opens a log file. With FormatAuto, a ".log" extension selects
// candump and ".csv" selects CSV before falling back to sniffing.
func Open(path string, opts Options) (*File, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	if opts.Format == "" || opts.Format == FormatAuto {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".log":
			opts.Format = FormatCandump
		case ".csv":
			opts.Format = FormatCSV
		}
	}
	return &File{Reader: NewReader(f, opts), f: f}, nil
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.f.Close()
}
