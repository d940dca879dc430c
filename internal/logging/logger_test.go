// CIDS - Clock-based Intrusion Detection for Broadcast Buses
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cids

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// withGlobal swaps in a JSON logger writing to a buffer and restores the
// previous logger and level on cleanup.
func withGlobal(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	prevLogger := Logger()
	prevLevel := GetLevel()
	t.Cleanup(func() {
		SetLogger(prevLogger)
		SetLevel(prevLevel)
	})

	var buf bytes.Buffer
	Init(Config{Level: level, Format: "json", Output: &buf})
	return &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"off", zerolog.Disabled},
		{"disabled", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInit_LevelFiltering(t *testing.T) {
	buf := withGlobal(t, "warn")

	Debug().Msg("hidden")
	Info().Msg("hidden")
	Warn().Msg("shown")
	Error().Str("identifier", "0x011").Msg("also shown")

	lines := decodeLines(t, buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(lines), buf.String())
	}
	if lines[0]["level"] != "warn" || lines[0]["message"] != "shown" {
		t.Errorf("first line = %v", lines[0])
	}
	if lines[1]["identifier"] != "0x011" {
		t.Errorf("second line = %v", lines[1])
	}
}

func TestInit_Timestamp(t *testing.T) {
	prevLogger := Logger()
	prevLevel := GetLevel()
	t.Cleanup(func() {
		SetLogger(prevLogger)
		SetLevel(prevLevel)
	})

	var buf bytes.Buffer
	Init(Config{Level: "info", Timestamp: true, Output: &buf})
	Info().Msg("stamped")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if _, ok := lines[0]["time"]; !ok {
		t.Errorf("timestamp field missing: %v", lines[0])
	}
}

func TestInit_ConsoleFormat(t *testing.T) {
	prevLogger := Logger()
	prevLevel := GetLevel()
	t.Cleanup(func() {
		SetLogger(prevLogger)
		SetLevel(prevLevel)
	})

	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "console", Output: &buf})
	Info().Msg("console line")

	out := buf.String()
	if !strings.Contains(out, "console line") {
		t.Errorf("console output missing message: %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("console output should not be JSON: %q", out)
	}
}

func TestErr(t *testing.T) {
	buf := withGlobal(t, "info")
	Err(errTest("boom")).Msg("failed")

	lines := decodeLines(t, buf)
	if len(lines) != 1 || lines[0]["error"] != "boom" || lines[0]["level"] != "error" {
		t.Errorf("Err() line = %v", lines)
	}
}

func TestWithComponent(t *testing.T) {
	buf := withGlobal(t, "info")
	l := WithComponent("detector")
	l.Info().Msg("batch closed")

	lines := decodeLines(t, buf)
	if len(lines) != 1 || lines[0]["component"] != "detector" {
		t.Errorf("WithComponent() line = %v", lines)
	}
}

func TestSetLevelString(t *testing.T) {
	prev := GetLevel()
	t.Cleanup(func() { SetLevel(prev) })

	SetLevelString("error")
	if GetLevel() != zerolog.ErrorLevel {
		t.Errorf("GetLevel() = %v, want error", GetLevel())
	}
	SetLevel(zerolog.DebugLevel)
	if GetLevel() != zerolog.DebugLevel {
		t.Errorf("GetLevel() = %v, want debug", GetLevel())
	}
}

func TestNewTestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewTestLogger(&buf)
	l.Warn().Int("n", 3).Msg("x")
	if !strings.Contains(buf.String(), `"n":3`) {
		t.Errorf("NewTestLogger output = %q", buf.String())
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
