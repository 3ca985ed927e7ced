// Package views provides TUI view components for the ADT console.
package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/adt-framework/adt-console/internal/alignment"
	"github.com/adt-framework/adt-console/internal/session"
	"github.com/adt-framework/adt-console/internal/tui"
)

// ============================================================================
// Sidebar
// ============================================================================

// SidebarRow is one session as the sidebar shows it.
type SidebarRow struct {
	Session   *session.Session
	Uptime    string
	Alignment alignment.Status
}

// RenderSidebar draws the session list. Rows are numbered for the 1-9 jump
// keys; the active row is marked.
func RenderSidebar(rows []SidebarRow, activeID string, width, height int) string {
	if width <= 0 {
		return ""
	}
	inner := width - 2
	var b strings.Builder
	b.WriteString(tui.TitleStyle.Render(fmt.Sprintf("SESSIONS (%d)", len(rows))))
	b.WriteString("\n\n")

	if len(rows) == 0 {
		b.WriteString(tui.DimStyle.Render("No sessions."))
		b.WriteString("\n")
		b.WriteString(tui.DimStyle.Render("ctrl+a n to start one"))
	}

	for i, row := range rows {
		s := row.Session
		marker := " "
		if s.ID == activeID {
			marker = tui.SessionActive
		}
		icon := tui.SessionAlive
		if !s.Alive {
			icon = tui.SessionEnded
		}
		num := " "
		if i < 9 {
			num = fmt.Sprintf("%d", i+1)
		}

		name := tui.AgentStyle(s.Color).Render(ansi.Truncate(s.Role, inner-6, "…"))
		if s.ID == activeID {
			name = tui.SelectedStyle.Render(ansi.Truncate(s.Role, inner-6, "…"))
		}
		fmt.Fprintf(&b, "%s%s %s %s\n", marker, num, icon, name)

		detail := string(s.Agent)
		if s.SpecRef != "" {
			detail += " " + s.SpecRef
		}
		if row.Uptime != "" {
			detail += " " + row.Uptime
		}
		b.WriteString("    ")
		b.WriteString(tui.DimStyle.Render(ansi.Truncate(detail, inner-4, "…")))
		b.WriteString("\n")
		if row.Alignment != "" {
			b.WriteString("    ")
			b.WriteString(tui.AlignmentStyle(row.Alignment).Render(string(row.Alignment)))
			b.WriteString("\n")
		}
	}

	return tui.PaneStyle.
		Width(inner).
		Height(height - 2).
		MaxHeight(height).
		Render(lipgloss.NewStyle().MaxWidth(inner).Render(b.String()))
}
