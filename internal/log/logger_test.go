package log

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppendAndReadAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "console")
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatal(err)
	}

	stamp := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := l.Append(LogEvent{Time: stamp, Event: EventSessionCreated, SessionID: "s1", Role: "Backend_Engineer"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(LogEvent{Event: EventSpawnFailed, Command: "claude", Error: "not found"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	events, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if !events[0].Time.Equal(stamp) || events[0].SessionID != "s1" {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Time.IsZero() {
		t.Error("zero time was not filled in")
	}
	if events[1].Error != "not found" {
		t.Errorf("second event error = %q", events[1].Error)
	}
}

func TestReadAllMissingFile(t *testing.T) {
	l, err := NewLogger(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	events, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events from missing log", len(events))
	}
}

func TestReadAllMalformedLine(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(l.Path(), []byte("{\"event\":\"x\"}\nnot json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.ReadAll(); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("ReadAll error = %v, want line 2 parse error", err)
	}
}

func TestNewDiagnostics(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := NewDiagnostics(dir, "warn")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("dropped")
	logger.Warn("kept", "sink", "desktop")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, DiagnosticsFile))
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "dropped") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"sink":"desktop"`) {
		t.Errorf("diagnostics output = %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
