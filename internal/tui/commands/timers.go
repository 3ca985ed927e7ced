package commands

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/adt-framework/adt-console/internal/tui"
)

// ClockTickCmd fires once after d. The receiver re-arms it.
func ClockTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tui.ClockTickMsg{Time: t}
	})
}

// UptimeTickCmd fires once after d. The receiver re-arms it.
func UptimeTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tui.UptimeTickMsg{Time: t}
	})
}

// PrefixTimeoutCmd disarms prefix arming number seq after tui.PrefixTimeout.
func PrefixTimeoutCmd(seq int) tea.Cmd {
	return tea.Tick(tui.PrefixTimeout, func(time.Time) tea.Msg {
		return tui.PrefixTimeoutMsg{Seq: seq}
	})
}
