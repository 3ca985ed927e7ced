package tui

import "time"

// ViewState represents which layer of the TUI has focus.
type ViewState int

const (
	StateTerminal   ViewState = iota // keystrokes go to the active session
	StateNewSession                  // new-session dialog
	StateConfirm                     // close confirmation
	StateHelp
)

// Layout constants.
const (
	SidebarWidth  = 28
	PanelWidth    = 44
	StatusHeight  = 1
	MinTermWidth  = 20
	MinTermHeight = 5
)

// PrefixTimeout disarms the prefix if no command key follows.
const PrefixTimeout = 2 * time.Second

// Model is the shared TUI state outside the views.
type Model struct {
	State     ViewState
	Width     int
	Height    int
	ShowPanel bool

	// PrefixArmed is set after ctrl+a until a command key or timeout.
	PrefixArmed bool
	PrefixSeq   int

	// Status is a one-line message, such as a spawn error.
	Status      string
	StatusIsErr bool
	StatusAt    time.Time

	Now time.Time
}

// NewModel creates the initial TUI state.
func NewModel() *Model {
	return &Model{State: StateTerminal, ShowPanel: true, Now: time.Now()}
}

// SetStatus records a status line message.
func (m *Model) SetStatus(msg string, isErr bool) {
	m.Status = msg
	m.StatusIsErr = isErr
	m.StatusAt = m.Now
}

// Layout returns the sizes of the sidebar, terminal and panel columns, and
// the body height. The panel is dropped first, then the sidebar, when the
// window is too narrow.
func (m *Model) Layout() (sidebar, term, panel, height int) {
	height = m.Height - StatusHeight
	if height < MinTermHeight {
		height = MinTermHeight
	}
	sidebar = SidebarWidth
	if m.ShowPanel {
		panel = PanelWidth
	}
	term = m.Width - sidebar - panel
	if term < MinTermWidth && panel > 0 {
		panel = 0
		term = m.Width - sidebar
	}
	if term < MinTermWidth {
		sidebar = 0
		term = m.Width
	}
	if term < MinTermWidth {
		term = MinTermWidth
	}
	return sidebar, term, panel, height
}
