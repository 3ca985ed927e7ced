package tui

import (
	"time"

	"github.com/adt-framework/adt-console/internal/console"
	"github.com/adt-framework/adt-console/internal/notify"
	"github.com/adt-framework/adt-console/internal/session"
)

// ============================================================================
// Session Messages
// ============================================================================

// SessionCreatedMsg reports the outcome of a spawn.
type SessionCreatedMsg struct {
	Session *session.Session
	Err     error
}

// SessionSwitchedMsg reports the outcome of a switch.
type SessionSwitchedMsg struct {
	ID  string
	Err error
}

// SessionClosedMsg reports the outcome of closing one or all sessions.
type SessionClosedMsg struct {
	ID  string // empty for close-all
	Err error
}

// RecentsLoadedMsg carries the recent-session list for the new-session
// dialog.
type RecentsLoadedMsg struct {
	Entries []session.RecentEntry
	Err     error
}

// InputErrorMsg reports a failed keystroke forward. The channel already
// shows the error inline.
type InputErrorMsg struct {
	Err error
}

// ============================================================================
// Governance Messages
// ============================================================================

// PanelFetchedMsg carries a panel built off-loop. It is applied only when
// its token is still current.
type PanelFetchedMsg struct {
	Panel *console.Panel
}

// AlertMsg carries a toast alert that just fired.
type AlertMsg struct {
	Alert notify.Alert
}

// ============================================================================
// Change Notifications
// ============================================================================

// ConsoleChangedMsg means sessions, the panel or the ambient state changed.
type ConsoleChangedMsg struct{}

// OutputMsg means some channel's scrollback grew.
type OutputMsg struct{}

// ============================================================================
// Timers
// ============================================================================

// ClockTickMsg drives the status bar clock and toast expiry.
type ClockTickMsg struct {
	Time time.Time
}

// UptimeTickMsg re-renders session uptimes.
type UptimeTickMsg struct {
	Time time.Time
}

// ============================================================================
// Dialog Messages
// ============================================================================

// NewSessionSubmitMsg carries a completed new-session form.
type NewSessionSubmitMsg struct {
	Request session.CreateRequest
}

// DialogCancelMsg closes any open dialog.
type DialogCancelMsg struct{}

// ConfirmedMsg carries the action a confirmation dialog approved.
type ConfirmedMsg struct {
	Action ConfirmAction
	ID     string
}

// ConfirmAction is what a confirmation dialog guards.
type ConfirmAction int

const (
	ConfirmClose ConfirmAction = iota
	ConfirmCloseAll
)

// PrefixTimeoutMsg disarms the prefix key.
type PrefixTimeoutMsg struct {
	Seq int
}
