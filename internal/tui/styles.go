package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/adt-framework/adt-console/internal/alignment"
	"github.com/adt-framework/adt-console/internal/notify"
)

// Color constants for the console palette.
const (
	primaryColor   = "#58A6FF" // Blue
	secondaryColor = "#3FB950" // Green
	warningColor   = "#D29922" // Amber
	errorColor     = "#F85149" // Red
	dimColor       = "#8B949E" // Gray
	surfaceColor   = "#161B22"
	borderColor    = "#30363D"
)

// Style variables for consistent TUI rendering.
var (
	// BoxStyle provides a rounded border box.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(primaryColor)).
			Padding(1, 2)

	// PaneStyle frames the sidebar and the panel.
	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color(borderColor))

	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(primaryColor)).
			Bold(true)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(primaryColor)).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(dimColor))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(secondaryColor))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(errorColor))

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(warningColor))

	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color(surfaceColor)).
			Foreground(lipgloss.Color(dimColor)).
			Padding(0, 1)

	// PrefixStyle marks the status bar while the prefix key is armed.
	PrefixStyle = lipgloss.NewStyle().
			Background(lipgloss.Color(warningColor)).
			Foreground(lipgloss.Color("#000000")).
			Bold(true).
			Padding(0, 1)

	ProgressFullStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(secondaryColor))

	ProgressEmptyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(dimColor))

	ToastStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

// Session status icons.
var (
	SessionAlive  = SuccessStyle.Render("●")
	SessionEnded  = DimStyle.Render("○")
	SessionActive = SelectedStyle.Render("▸")
)

// AlignmentStyle colors an alignment badge.
func AlignmentStyle(s alignment.Status) lipgloss.Style {
	switch s {
	case alignment.Nominal:
		return SuccessStyle
	case alignment.Mismatch:
		return ErrorStyle
	case alignment.NoTask:
		return WarningStyle
	default:
		return DimStyle
	}
}

// LevelStyle colors the ambient indicator.
func LevelStyle(l notify.Level) lipgloss.Style {
	switch l {
	case notify.LevelWarning:
		return WarningStyle
	case notify.LevelNominal:
		return SuccessStyle
	default:
		return DimStyle
	}
}

// KindColor is the border color of a toast.
func KindColor(k notify.Kind) lipgloss.Color {
	switch k {
	case notify.KindDenial:
		return lipgloss.Color(errorColor)
	case notify.KindEscalation:
		return lipgloss.Color(warningColor)
	case notify.KindCompletion:
		return lipgloss.Color(secondaryColor)
	default:
		return lipgloss.Color(primaryColor)
	}
}

// AgentStyle renders text in a session's agent color.
func AgentStyle(color string) lipgloss.Style {
	if color == "" {
		color = primaryColor
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}
