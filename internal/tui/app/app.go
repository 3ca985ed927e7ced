// Package app provides the main TUI application that wires all views together.
package app

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/adt-framework/adt-console/internal/config"
	"github.com/adt-framework/adt-console/internal/console"
	"github.com/adt-framework/adt-console/internal/governance"
	"github.com/adt-framework/adt-console/internal/session"
	"github.com/adt-framework/adt-console/internal/terminal"
	"github.com/adt-framework/adt-console/internal/tui"
	"github.com/adt-framework/adt-console/internal/tui/commands"
	"github.com/adt-framework/adt-console/internal/tui/views"
)

// Status line lifetimes.
const (
	statusTTL      = 5 * time.Second
	errorStatusTTL = 10 * time.Second
)

// App is the main TUI application that wires all views together.
type App struct {
	model   *tui.Model
	console *console.Console
	recents commands.RecentLister
	project string
	uptime  time.Duration
	keys    tui.KeyMap
	help    help.Model

	// View models
	panelView      views.PanelModel
	newSessionView views.NewSessionModel
	confirmView    views.ConfirmModel
}

// New creates a new App over a started console.
func New(c *console.Console, recents commands.RecentLister, cfg *config.Config) *App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	model := tui.NewModel()
	a := &App{
		model:     model,
		console:   c,
		recents:   recents,
		project:   cfg.Project.Root,
		uptime:    cfg.Polling.UptimeInterval(),
		keys:      tui.DefaultKeyMap,
		help:      help.New(),
		panelView: views.NewPanelModel(tui.PanelWidth, 0),
	}
	if a.uptime <= 0 {
		a.uptime = 30 * time.Second
	}
	a.panelView.SetPanel(c.Panel())
	return a
}

// Init starts the listeners and timers and fetches the first panel.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		commands.ListenChangesCmd(a.console.Changes()),
		commands.ListenOutputCmd(a.console.Bridge().Updates()),
		commands.ListenAlertsCmd(a.console.Alerts()),
		commands.ClockTickCmd(time.Second),
		commands.UptimeTickCmd(a.uptime),
		commands.FetchPanelCmd(a.console),
	)
}

// Update handles messages and updates the application state.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.model.Width = msg.Width
		a.model.Height = msg.Height
		a.resize()
		return a, nil

	case tea.KeyMsg:
		return a, a.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		a.panelView, cmd = a.panelView.Update(msg)
		return a, cmd

	// Session outcomes
	case tui.SessionCreatedMsg:
		if msg.Err != nil {
			a.model.SetStatus("spawn failed: "+msg.Err.Error(), true)
			return a, nil
		}
		// The console refreshes the panel itself when the active session
		// changes.
		a.model.SetStatus("started "+msg.Session.Label(), false)
		return a, nil

	case tui.SessionSwitchedMsg:
		if msg.Err != nil {
			a.model.SetStatus(msg.Err.Error(), true)
		}
		return a, nil

	case tui.SessionClosedMsg:
		if msg.Err != nil {
			a.model.SetStatus(msg.Err.Error(), true)
		} else if msg.ID == "" {
			a.model.SetStatus("closed all sessions", false)
		}
		return a, nil

	case tui.RecentsLoadedMsg:
		if msg.Err == nil {
			a.newSessionView.SetRecents(msg.Entries)
		}
		return a, nil

	case tui.InputErrorMsg:
		a.model.SetStatus(msg.Err.Error(), true)
		return a, nil

	// Governance
	case tui.PanelFetchedMsg:
		if a.console.ApplyPanel(msg.Panel) {
			a.panelView.SetPanel(msg.Panel)
		}
		return a, nil

	case tui.AlertMsg:
		return a, commands.ListenAlertsCmd(a.console.Alerts())

	// Change signals
	case tui.ConsoleChangedMsg:
		a.panelView.SetPanel(a.console.Panel())
		return a, commands.ListenChangesCmd(a.console.Changes())

	case tui.OutputMsg:
		return a, commands.ListenOutputCmd(a.console.Bridge().Updates())

	// Timers
	case tui.ClockTickMsg:
		a.model.Now = msg.Time
		a.expireStatus()
		return a, commands.ClockTickCmd(time.Second)

	case tui.UptimeTickMsg:
		return a, commands.UptimeTickCmd(a.uptime)

	case tui.PrefixTimeoutMsg:
		if msg.Seq == a.model.PrefixSeq {
			a.model.PrefixArmed = false
		}
		return a, nil

	// Dialogs
	case tui.NewSessionSubmitMsg:
		a.model.State = tui.StateTerminal
		req := msg.Request
		if a.model.Width > 0 {
			_, term, _, height := a.model.Layout()
			req.Cols, req.Rows = uint16(term), uint16(height-1)
		}
		return a, commands.CreateSessionCmd(a.console, req)

	case tui.DialogCancelMsg:
		a.model.State = tui.StateTerminal
		return a, nil

	case tui.ConfirmedMsg:
		a.model.State = tui.StateTerminal
		switch msg.Action {
		case tui.ConfirmClose:
			return a, commands.CloseSessionCmd(a.console, msg.ID)
		case tui.ConfirmCloseAll:
			return a, commands.CloseAllCmd(a.console)
		}
		return a, nil
	}

	// Let an open dialog see anything else, such as cursor blinks.
	var cmd tea.Cmd
	if a.model.State == tui.StateNewSession {
		a.newSessionView, cmd = a.newSessionView.Update(msg)
	}
	return a, cmd
}

// resize recomputes the columns and tells the bridge the terminal area.
func (a *App) resize() {
	_, term, panel, height := a.model.Layout()
	// One row of the terminal column is the session header.
	a.console.Resize(terminal.Size{Cols: uint16(term), Rows: uint16(height - 1)})
	a.panelView.SetSize(panel, height)
}

func (a *App) expireStatus() {
	if a.model.Status == "" {
		return
	}
	ttl := statusTTL
	if a.model.StatusIsErr {
		ttl = errorStatusTTL
	}
	if a.model.Now.Sub(a.model.StatusAt) >= ttl {
		a.model.Status = ""
	}
}

// ============================================================================
// Keys
// ============================================================================

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch a.model.State {
	case tui.StateNewSession:
		var cmd tea.Cmd
		a.newSessionView, cmd = a.newSessionView.Update(msg)
		return cmd
	case tui.StateConfirm:
		var cmd tea.Cmd
		a.confirmView, cmd = a.confirmView.Update(msg)
		return cmd
	case tui.StateHelp:
		a.model.State = tui.StateTerminal
		return nil
	}

	if !a.model.PrefixArmed {
		if msg.String() == tui.PrefixKey {
			a.model.PrefixArmed = true
			a.model.PrefixSeq++
			return commands.PrefixTimeoutCmd(a.model.PrefixSeq)
		}
		data := tui.KeyBytes(msg)
		if len(data) == 0 || a.console.ActiveID() == "" {
			return nil
		}
		return commands.InputCmd(a.console, data)
	}

	a.model.PrefixArmed = false
	switch {
	case key.Matches(msg, a.keys.SendPrefix):
		if a.console.ActiveID() == "" {
			return nil
		}
		return commands.InputCmd(a.console, []byte{0x01})

	case key.Matches(msg, a.keys.New):
		a.model.State = tui.StateNewSession
		a.newSessionView = views.NewNewSessionModel(a.project, a.model.Width)
		return tea.Batch(a.newSessionView.Init(), commands.LoadRecentsCmd(a.recents))

	case key.Matches(msg, a.keys.Close):
		s := a.active()
		if s == nil {
			return nil
		}
		a.confirmView = views.NewConfirmModel(tui.ConfirmClose, s.ID, fmt.Sprintf("Close %s?", s.Label()))
		a.model.State = tui.StateConfirm
		return nil

	case key.Matches(msg, a.keys.CloseAll):
		n := len(a.console.Sessions())
		if n == 0 {
			return nil
		}
		a.confirmView = views.NewConfirmModel(tui.ConfirmCloseAll, "", fmt.Sprintf("Close all %d sessions?", n))
		a.model.State = tui.StateConfirm
		return nil

	case key.Matches(msg, a.keys.Next):
		return a.cycle(1)

	case key.Matches(msg, a.keys.Prev):
		return a.cycle(-1)

	case key.Matches(msg, a.keys.Jump):
		idx := int(msg.Runes[0] - '1')
		sessions := a.console.Sessions()
		if idx < 0 || idx >= len(sessions) {
			return nil
		}
		return commands.SwitchSessionCmd(a.console, sessions[idx].ID)

	case key.Matches(msg, a.keys.Panel):
		a.model.ShowPanel = !a.model.ShowPanel
		a.resize()
		return nil

	case key.Matches(msg, a.keys.Refresh):
		return commands.FetchPanelCmd(a.console)

	case key.Matches(msg, a.keys.Dismiss):
		toasts := a.console.Toasts()
		if len(toasts) > 0 {
			a.console.DismissToast(toasts[len(toasts)-1].ID)
		}
		return nil

	case key.Matches(msg, a.keys.ScrollU):
		a.panelView.ScrollUp()
		return nil

	case key.Matches(msg, a.keys.ScrollD):
		a.panelView.ScrollDown()
		return nil

	case key.Matches(msg, a.keys.Help):
		a.model.State = tui.StateHelp
		return nil

	case key.Matches(msg, a.keys.Quit):
		return tea.Quit
	}
	return nil
}

func (a *App) active() *session.Session {
	id := a.console.ActiveID()
	for _, s := range a.console.Sessions() {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// cycle switches dir sessions forward or back, wrapping around.
func (a *App) cycle(dir int) tea.Cmd {
	sessions := a.console.Sessions()
	if len(sessions) < 2 {
		return nil
	}
	cur := 0
	id := a.console.ActiveID()
	for i, s := range sessions {
		if s.ID == id {
			cur = i
		}
	}
	next := (cur + dir + len(sessions)) % len(sessions)
	return commands.SwitchSessionCmd(a.console, sessions[next].ID)
}

// ============================================================================
// View
// ============================================================================

// View renders the three columns, any open dialog, and the status bar.
func (a *App) View() string {
	if a.model.Width == 0 {
		return "Starting ADT Console..."
	}
	sidebar, term, panel, height := a.model.Layout()

	var body string
	switch a.model.State {
	case tui.StateNewSession:
		body = lipgloss.Place(a.model.Width, height, lipgloss.Center, lipgloss.Center, a.newSessionView.View())
	case tui.StateConfirm:
		body = lipgloss.Place(a.model.Width, height, lipgloss.Center, lipgloss.Center, a.confirmView.View())
	case tui.StateHelp:
		body = lipgloss.Place(a.model.Width, height, lipgloss.Center, lipgloss.Center, views.RenderHelp(a.help))
	default:
		cols := []string{}
		if sidebar > 0 {
			cols = append(cols, views.RenderSidebar(a.sidebarRows(), a.console.ActiveID(), sidebar, height))
		}
		cols = append(cols, a.terminalColumn(term, height))
		if panel > 0 {
			cols = append(cols, a.panelView.View())
		}
		body = lipgloss.JoinHorizontal(lipgloss.Top, cols...)
	}

	var source governance.Source
	if snap := a.console.Snapshot(); snap != nil {
		source = snap.Source
	}
	status := views.RenderStatusBar(views.StatusBar{
		Ambient:     a.console.Ambient(),
		Source:      source,
		Now:         a.model.Now,
		Prefix:      a.model.PrefixArmed,
		Status:      a.model.Status,
		StatusIsErr: a.model.StatusIsErr,
	}, a.help, a.model.Width)

	return lipgloss.JoinVertical(lipgloss.Left, body, status)
}

func (a *App) sidebarRows() []views.SidebarRow {
	sessions := a.console.Sessions()
	rows := make([]views.SidebarRow, len(sessions))
	for i, s := range sessions {
		rows[i] = views.SidebarRow{
			Session:   s,
			Uptime:    a.console.Uptime(s.ID),
			Alignment: a.console.Alignment(s.ID),
		}
	}
	return rows
}

// terminalColumn renders the active session with toasts stacked beneath
// it, bottom right.
func (a *App) terminalColumn(width, height int) string {
	toasts := views.RenderToasts(a.console.Toasts())
	th := 0
	if toasts != "" {
		th = lipgloss.Height(toasts)
		if th > height-tui.MinTermHeight {
			toasts, th = "", 0
		}
	}

	var data []byte
	var label string
	ended := false
	if s := a.active(); s != nil {
		label = s.Label()
		ended = !s.Alive
		data, _ = a.console.Bridge().Snapshot(s.ID)
	}
	screen := views.RenderTerminal(data, label, ended, width, height-th)
	if toasts == "" {
		return screen
	}
	return lipgloss.JoinVertical(lipgloss.Left, screen, lipgloss.PlaceHorizontal(width, lipgloss.Right, toasts))
}
