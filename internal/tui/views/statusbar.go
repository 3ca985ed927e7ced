package views

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/adt-framework/adt-console/internal/governance"
	"github.com/adt-framework/adt-console/internal/notify"
	"github.com/adt-framework/adt-console/internal/tui"
)

// ============================================================================
// Status Bar
// ============================================================================

// StatusBar is everything the bottom line shows.
type StatusBar struct {
	Ambient     notify.Ambient
	Source      governance.Source
	Now         time.Time
	Prefix      bool
	Status      string
	StatusIsErr bool
}

// RenderStatusBar draws the status line width cells wide. While the prefix
// is armed, the short help replaces the status text.
func RenderStatusBar(s StatusBar, h help.Model, width int) string {
	left := tui.LevelStyle(s.Ambient.Level).Render("◆ " + s.Ambient.Text)
	if s.Source != "" && s.Source != governance.SourceRemote {
		left += " " + tui.WarningStyle.Render("governance "+string(s.Source))
	}

	var middle string
	switch {
	case s.Prefix:
		middle = tui.PrefixStyle.Render("PREFIX") + " " + h.ShortHelpView(tui.DefaultKeyMap.ShortHelp())
	case s.Status != "" && s.StatusIsErr:
		middle = tui.ErrorStyle.Render(s.Status)
	case s.Status != "":
		middle = s.Status
	default:
		middle = tui.DimStyle.Render("ctrl+a ? for help")
	}

	right := s.Now.Format("15:04:05")

	inner := width - 2
	gap := inner - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 0 {
		gap = 0
	}
	middle = ansi.Truncate(middle, gap, "…")
	pad := gap - lipgloss.Width(middle)
	line := left + " " + middle + strings.Repeat(" ", pad) + " " + right
	return tui.StatusBarStyle.Width(width).MaxWidth(width).Render(ansi.Truncate(line, inner, ""))
}

// RenderHelp draws the full key binding reference.
func RenderHelp(h help.Model) string {
	h.ShowAll = true
	return tui.BoxStyle.Render(
		tui.TitleStyle.Render("KEYS") + "\n" +
			tui.DimStyle.Render("Press ctrl+a, then:") + "\n\n" +
			h.View(tui.DefaultKeyMap) + "\n\n" +
			tui.DimStyle.Render("Any other key goes to the active session. esc closes."))
}
