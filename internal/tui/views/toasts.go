package views

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/adt-framework/adt-console/internal/notify"
	"github.com/adt-framework/adt-console/internal/tui"
)

// ============================================================================
// Toasts
// ============================================================================

// ToastWidth is the outer width of one toast.
const ToastWidth = 40

// RenderToasts stacks the visible toasts, newest at the bottom. It returns
// an empty string when there are none.
func RenderToasts(toasts []notify.Toast) string {
	if len(toasts) == 0 {
		return ""
	}
	inner := ToastWidth - 4
	blocks := make([]string, 0, len(toasts))
	for _, t := range toasts {
		color := tui.KindColor(t.Alert.Kind)
		title := lipgloss.NewStyle().Foreground(color).Bold(true).
			Render(ansi.Truncate(t.Alert.Title, inner, "…"))
		body := lipgloss.NewStyle().Width(inner).Render(t.Alert.Body)
		blocks = append(blocks, tui.ToastStyle.
			BorderForeground(color).
			Width(ToastWidth-2).
			Render(title+"\n"+body))
	}
	return lipgloss.JoinVertical(lipgloss.Right, blocks...)
}
