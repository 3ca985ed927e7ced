package views

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/adt-framework/adt-console/internal/tui"
)

// ============================================================================
// Terminal Area
// ============================================================================

const tabWidth = 8

// ScreenLines reduces raw scrollback to the last height printable lines,
// each cut to width. Escape sequences are dropped; a bare carriage return
// overwrites from the start of the line and backspace moves back one cell.
// TODO: feed the scrollback through a VT emulator so full-screen agents
// keep cursor addressing and colors.
func ScreenLines(data []byte, width, height int) []string {
	if width <= 0 || height <= 0 {
		return nil
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	raw := strings.Split(text, "\n")
	if len(raw) > 0 && raw[len(raw)-1] == "" {
		raw = raw[:len(raw)-1]
	}
	if len(raw) > height {
		raw = raw[len(raw)-height:]
	}
	out := make([]string, len(raw))
	for i, line := range raw {
		out[i] = ansi.Truncate(cleanLine(line), width, "")
	}
	return out
}

func cleanLine(line string) string {
	var cells []rune
	put := func(col int, r rune) {
		for len(cells) < col {
			cells = append(cells, ' ')
		}
		if col < len(cells) {
			cells[col] = r
		} else {
			cells = append(cells, r)
		}
	}
	for _, seg := range strings.Split(line, "\r") {
		col := 0
		for _, r := range ansi.Strip(seg) {
			switch {
			case r == '\b':
				if col > 0 {
					col--
				}
			case r == '\t':
				col = (col/tabWidth + 1) * tabWidth
			case r < 0x20 || r == 0x7f:
			default:
				put(col, r)
				col++
			}
		}
	}
	return string(cells)
}

// RenderTerminal draws the active session's screen, or the empty state
// when no session is shown.
func RenderTerminal(data []byte, label string, ended bool, width, height int) string {
	style := lipgloss.NewStyle().Width(width).Height(height).MaxHeight(height)
	if label == "" {
		msg := lipgloss.JoinVertical(lipgloss.Center,
			tui.TitleStyle.Render("ADT Console"),
			"",
			tui.DimStyle.Render("No active session."),
			tui.DimStyle.Render("Press ctrl+a n to start an agent."),
		)
		return style.Render(lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, msg))
	}

	header := tui.SelectedStyle.Render(ansi.Truncate(label, width, "…"))
	if ended {
		header += tui.DimStyle.Render(" (exited)")
	}
	lines := ScreenLines(data, width, height-1)
	return style.Render(header + "\n" + strings.Join(lines, "\n"))
}
