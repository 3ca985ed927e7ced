// Package session owns the lifecycle of console sessions: creating them on
// the backend, tracking which one is active, closing and restoring them,
// and remembering recently opened configurations.
package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownSession means the id is not registered.
	ErrUnknownSession = errors.New("unknown session")
	// ErrCloseDeclined means the operator declined a close confirmation.
	ErrCloseDeclined = errors.New("close declined")
)

// Session is one operator-initiated unit of work bound to one backend
// process.
type Session struct {
	ID        string
	Agent     AgentKind
	Role      string
	SpecRef   string // empty when the session has no spec
	Command   string
	Args      []string
	Cwd       string
	Project   string
	Color     string
	CreatedAt time.Time
	Alive     bool
}

// Label is the short name shown in lists.
func (s *Session) Label() string {
	if s.SpecRef != "" {
		return fmt.Sprintf("%s (%s) %s", s.Role, s.Agent, s.SpecRef)
	}
	return fmt.Sprintf("%s (%s)", s.Role, s.Agent)
}

func (s *Session) clone() *Session {
	c := *s
	c.Args = append([]string(nil), s.Args...)
	return &c
}

// CreateRequest describes a session to create.
type CreateRequest struct {
	Agent   AgentKind
	Role    string
	SpecRef string
	// Command overrides the agent profile's command when non-empty.
	Command string
	Project string
	// Cwd defaults to Project.
	Cwd             string
	SkipPermissions bool
	Yolo            bool
	Cols            uint16
	Rows            uint16
}

// RecentEntry is a remembered session configuration.
type RecentEntry struct {
	Project  string
	Role     string
	Agent    AgentKind
	SpecRef  string
	Command  string
	OpenedAt time.Time
}

// Observer is told about registry changes. Calls are made after the
// registry lock is released, from the goroutine that caused the change.
type Observer interface {
	// ActiveChanged receives the newly active session, or nil for the
	// empty state.
	ActiveChanged(s *Session)
	SessionsChanged(count int)
}

// Confirmer asks the operator to confirm a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool {
	return f(prompt)
}

// Confirmed is a Confirmer for callers that already asked.
var Confirmed Confirmer = ConfirmFunc(func(string) bool { return true })

// FormatUptime renders d as "Hh Mm", or "Mm" under an hour.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
