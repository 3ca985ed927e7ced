package commands

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/adt-framework/adt-console/internal/console"
	"github.com/adt-framework/adt-console/internal/tui"
)

// FetchPanelCmd refreshes governance state and builds the context panel
// for the session active when the fetch began. The Update loop applies it
// through the console's guard.
func FetchPanelCmd(c *console.Console) tea.Cmd {
	return func() tea.Msg {
		return tui.PanelFetchedMsg{Panel: c.FetchPanel(context.Background())}
	}
}
