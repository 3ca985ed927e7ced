package commands

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/adt-framework/adt-console/internal/notify"
	"github.com/adt-framework/adt-console/internal/tui"
)

// ListenChangesCmd waits for the next console change signal.
func ListenChangesCmd(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-changes
		return tui.ConsoleChangedMsg{}
	}
}

// ListenOutputCmd waits for the next scrollback update from the bridge.
func ListenOutputCmd(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-updates
		return tui.OutputMsg{}
	}
}

// ListenAlertsCmd waits for the next toast alert. It returns nil once the
// channel closes.
func ListenAlertsCmd(alerts <-chan notify.Alert) tea.Cmd {
	return func() tea.Msg {
		a, ok := <-alerts
		if !ok {
			return nil
		}
		return tui.AlertMsg{Alert: a}
	}
}
