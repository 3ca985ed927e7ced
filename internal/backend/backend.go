// Package backend owns the processes behind console sessions. A Backend
// spawns agent commands on pseudo-terminals, forwards input and resizes, and
// streams output back as ordered events. The Manager does this in-process;
// the Server exposes a Manager over a unix socket so sessions outlive the
// console, and the Client talks to that Server.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by all Backend implementations.
var (
	ErrUnknownSession = errors.New("unknown session")
	ErrSessionExists  = errors.New("session already exists")
	ErrUnreachable    = errors.New("backend unreachable")
	ErrUnsupported    = errors.New("pty not supported on this platform")
)

// Backend is the request/response and push-event surface the console
// consumes. Implementations must be safe for concurrent use.
type Backend interface {
	Spawn(ctx context.Context, spec SpawnSpec) (Descriptor, error)
	Write(ctx context.Context, id string, data []byte) error
	Resize(ctx context.Context, id string, cols, rows uint16) error
	Close(ctx context.Context, id string) error
	List(ctx context.Context) ([]Descriptor, error)
	// Subscribe streams output written at or after offset from. The channel
	// ends with an EventClosed when the process exits, and is closed when
	// ctx is cancelled or the stream breaks.
	Subscribe(ctx context.Context, id string, from uint64) (<-chan Event, error)
}

// SpawnSpec describes a process to launch for a session.
type SpawnSpec struct {
	ID      string   `json:"id"`
	Project string   `json:"project,omitempty"`
	Agent   string   `json:"agent"`
	Role    string   `json:"role"`
	SpecRef string   `json:"spec_ref,omitempty"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Cwd     string   `json:"cwd,omitempty"`
	Cols    uint16   `json:"cols"`
	Rows    uint16   `json:"rows"`
}

// Descriptor is the backend's view of a running or exited session.
type Descriptor struct {
	ID        string    `json:"id"`
	Project   string    `json:"project,omitempty"`
	Agent     string    `json:"agent"`
	Role      string    `json:"role"`
	SpecRef   string    `json:"spec_ref,omitempty"`
	Command   string    `json:"command"`
	Args      []string  `json:"args,omitempty"`
	Cwd       string    `json:"cwd,omitempty"`
	Pid       int       `json:"pid"`
	Cols      uint16    `json:"cols"`
	Rows      uint16    `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
	Alive     bool      `json:"alive"`
	ExitCode  int       `json:"exit_code,omitempty"`
}

// EventKind distinguishes output payloads from the end-of-stream marker.
type EventKind string

const (
	EventOutput EventKind = "output"
	EventClosed EventKind = "closed"
)

// Event is one item on a session's push stream.
type Event struct {
	Kind     EventKind `cbor:"kind" json:"kind"`
	Data     []byte    `cbor:"data,omitempty" json:"data,omitempty"`
	Offset   uint64    `cbor:"offset" json:"offset"`
	ExitCode int       `cbor:"exit_code,omitempty" json:"exit_code,omitempty"`
}

// SpawnError reports that the backend refused or could not be reached for
// a spawn. The session must not be registered.
type SpawnError struct {
	ID      string
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s (%s): %v", e.ID, e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Default terminal dimensions for a new session.
const (
	DefaultCols uint16 = 120
	DefaultRows uint16 = 30
)
