// Package commands provides Bubble Tea commands for TUI operations. Every
// call that can block runs here, off the Update loop, and reports back
// with a message.
package commands

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/adt-framework/adt-console/internal/console"
	"github.com/adt-framework/adt-console/internal/session"
	"github.com/adt-framework/adt-console/internal/tui"
)

// spawnTimeout bounds one backend spawn, daemon round trip included.
const spawnTimeout = 15 * time.Second

// opTimeout bounds switch, close and input calls.
const opTimeout = 5 * time.Second

// RecentLister lists recently opened session configurations.
type RecentLister interface {
	List() ([]session.RecentEntry, error)
}

// CreateSessionCmd spawns a session and makes it active.
func CreateSessionCmd(c *console.Console, req session.CreateRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), spawnTimeout)
		defer cancel()
		s, err := c.Create(ctx, req)
		return tui.SessionCreatedMsg{Session: s, Err: err}
	}
}

// SwitchSessionCmd makes id the active session.
func SwitchSessionCmd(c *console.Console, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return tui.SessionSwitchedMsg{ID: id, Err: c.SwitchTo(ctx, id)}
	}
}

// CloseSessionCmd closes id. The dialog has already confirmed.
func CloseSessionCmd(c *console.Console, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return tui.SessionClosedMsg{ID: id, Err: c.CloseSession(ctx, id, session.Confirmed)}
	}
}

// CloseAllCmd closes every session. The dialog has already confirmed.
func CloseAllCmd(c *console.Console) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return tui.SessionClosedMsg{Err: c.CloseAll(ctx, session.Confirmed)}
	}
}

// InputCmd forwards keystrokes to the active session.
func InputCmd(c *console.Console, data []byte) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := c.Input(ctx, data); err != nil {
			return tui.InputErrorMsg{Err: err}
		}
		return nil
	}
}

// LoadRecentsCmd fetches recent sessions for the new-session dialog.
func LoadRecentsCmd(store RecentLister) tea.Cmd {
	return func() tea.Msg {
		if store == nil {
			return tui.RecentsLoadedMsg{}
		}
		entries, err := store.List()
		return tui.RecentsLoadedMsg{Entries: entries, Err: err}
	}
}
