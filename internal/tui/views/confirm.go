package views

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/adt-framework/adt-console/internal/tui"
)

// ConfirmModel asks a yes/no question before a destructive action.
type ConfirmModel struct {
	Action tui.ConfirmAction
	ID     string
	prompt string
}

// NewConfirmModel creates a dialog for action on id.
func NewConfirmModel(action tui.ConfirmAction, id, prompt string) ConfirmModel {
	return ConfirmModel{Action: action, ID: id, prompt: prompt}
}

// Update handles y, n and esc.
func (m ConfirmModel) Update(msg tea.Msg) (ConfirmModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y", tui.KeyEnter:
		action, id := m.Action, m.ID
		return m, func() tea.Msg { return tui.ConfirmedMsg{Action: action, ID: id} }
	case "n", "N", tui.KeyEsc, tui.KeyCtrlC:
		return m, func() tea.Msg { return tui.DialogCancelMsg{} }
	}
	return m, nil
}

// View renders the dialog box.
func (m ConfirmModel) View() string {
	return tui.BoxStyle.BorderForeground(lipgloss.Color("#D29922")).Render(
		tui.WarningStyle.Bold(true).Render(m.prompt) + "\n\n" +
			tui.DimStyle.Render("[y] yes  [n] no"))
}
