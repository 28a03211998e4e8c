package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_Debug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(LevelDebug, FormatJSON, &buf)

	logger.Debug("test message", map[string]any{"key": "value"})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["level"] != "DEBUG" {
		t.Errorf("expected DEBUG level, got %v", lines[0]["level"])
	}
	if lines[0]["msg"] != "test message" {
		t.Errorf("expected message, got %v", lines[0]["msg"])
	}
	if lines[0]["key"] != "value" {
		t.Errorf("expected key field, got %v", lines[0]["key"])
	}
}

func TestLogger_DebugFiltered(t *testing.T) {
	var buf bytes.Buffer
	logger := New(LevelInfo, FormatJSON, &buf)

	logger.Debug("test message")

	if buf.Len() > 0 {
		t.Errorf("expected no output for debug when level is info, got: %s", buf.String())
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(LevelInfo, FormatJSON, &buf)
	child := base.WithFields(map[string]any{"component": "ledger"})

	child.Info("appended", map[string]any{"entry_id": "e1"})

	lines := decodeLines(t, &buf)
	if lines[0]["component"] != "ledger" || lines[0]["entry_id"] != "e1" {
		t.Errorf("expected both fields, got %v", lines[0])
	}
}

func TestLogger_SetLevelSharedWithChildren(t *testing.T) {
	var buf bytes.Buffer
	base := New(LevelError, FormatJSON, &buf)
	child := base.WithFields(map[string]any{"component": "cleanup"})

	child.Warn("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected warn filtered at error level")
	}

	base.SetLevel(LevelWarn)
	child.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("expected warn after level change, got %q", buf.String())
	}
}

func TestLogger_ErrorErr(t *testing.T) {
	var buf bytes.Buffer
	logger := New(LevelInfo, FormatJSON, &buf)

	logger.ErrorErr("sign failed", errors.New("no key"), map[string]any{"report": "r1"})

	lines := decodeLines(t, &buf)
	if lines[0]["error"] != "no key" || lines[0]["report"] != "r1" {
		t.Errorf("unexpected fields: %v", lines[0])
	}
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(LevelInfo, FormatText, &buf)

	logger.Info("hello", map[string]any{"k": "v"})

	out := buf.String()
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "k=v") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"WARN":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := Global()
	defer SetGlobal(prev)

	SetGlobal(New(LevelInfo, FormatJSON, &buf))
	Info("global message")

	if !strings.Contains(buf.String(), "global message") {
		t.Errorf("expected global output, got %q", buf.String())
	}
}
