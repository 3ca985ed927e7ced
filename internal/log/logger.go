// Package log provides the console's audit log and diagnostics logger.
// This file appends JSON events to log.jsonl.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event type constants.
const (
	EventSessionCreated    = "session_created"
	EventSessionClosed     = "session_closed"
	EventSessionRestored   = "session_restored"
	EventSpawnFailed       = "spawn_failed"
	EventAlertFired        = "alert_fired"
	EventGovernanceOffline = "governance_offline"
	EventGovernanceOnline  = "governance_online"
	EventDaemonStarted     = "daemon_started"
)

// LogFile is the audit log's file name inside the console directory.
const LogFile = "log.jsonl"

// LogEvent represents a single structured event written to the log.
type LogEvent struct {
	Time      time.Time      `json:"time"`
	Event     string         `json:"event"`
	SessionID string         `json:"session,omitempty"`
	Agent     string         `json:"agent,omitempty"`
	Role      string         `json:"role,omitempty"`
	SpecRef   string         `json:"spec,omitempty"`
	Project   string         `json:"project,omitempty"`
	Command   string         `json:"command,omitempty"`
	Title     string         `json:"title,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Source    string         `json:"source,omitempty"`
	Count     int            `json:"count,omitempty"`
	ExitCode  int            `json:"exit_code,omitempty"`
	Error     string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Logger writes append-only JSONL events to a log file.
type Logger struct {
	path string
	mu   sync.Mutex
}

// NewLogger creates a Logger that writes to log.jsonl inside dir,
// creating dir if needed. An existing log is never truncated.
func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &Logger{path: filepath.Join(dir, LogFile)}, nil
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.path
}

// Append writes a single LogEvent as one JSON line.
// A zero event.Time is set to time.Now().UTC().
func (l *Logger) Append(event LogEvent) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal log event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write log event: %w", err)
	}
	return nil
}

// ReadAll reads and parses all events from the log file.
// Returns an empty slice (not an error) if the file does not exist.
func (l *Logger) ReadAll() ([]LogEvent, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []LogEvent{}, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var events []LogEvent
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event LogEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("parse log line %d: %w", lineNum, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	return events, nil
}
