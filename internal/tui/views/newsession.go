package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/adt-framework/adt-console/internal/session"
	"github.com/adt-framework/adt-console/internal/tui"
)

// ============================================================================
// Form Fields
// ============================================================================

type field int

const (
	fieldAgent field = iota
	fieldRole
	fieldSpec
	fieldCommand
	fieldFlags
	fieldCount
)

type roleItem string

func (r roleItem) Title() string       { return string(r) }
func (r roleItem) Description() string { return "" }
func (r roleItem) FilterValue() string { return string(r) }

// ============================================================================
// NewSessionModel
// ============================================================================

// NewSessionModel is the dialog that collects a new session's agent, role,
// spec and optional command override.
type NewSessionModel struct {
	agent   int
	roles   list.Model
	spec    textinput.Model
	command textinput.Model
	// unsafe toggles --dangerously-skip-permissions for claude and --yolo
	// for gemini.
	unsafe  bool
	focus   field
	recents []session.RecentEntry
	recent  int
	project string
	width   int
}

// NewNewSessionModel creates the dialog. project is passed through on the
// request.
func NewNewSessionModel(project string, width int) NewSessionModel {
	items := make([]list.Item, len(session.Roles))
	for i, r := range session.Roles {
		items[i] = roleItem(r)
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)
	roles := list.New(items, delegate, 36, len(items)+1)
	roles.SetShowTitle(false)
	roles.SetShowStatusBar(false)
	roles.SetShowHelp(false)
	roles.SetFilteringEnabled(false)
	roles.SetShowPagination(false)

	spec := textinput.New()
	spec.Placeholder = "SPEC-021 (optional)"
	spec.CharLimit = 64
	spec.Width = 32

	command := textinput.New()
	command.Placeholder = "override agent command (optional)"
	command.CharLimit = 512
	command.Width = 32

	return NewSessionModel{
		roles:   roles,
		spec:    spec,
		command: command,
		recent:  -1,
		project: project,
		width:   width,
	}
}

// Agent returns the selected agent kind.
func (m NewSessionModel) Agent() session.AgentKind {
	return session.AgentKinds[m.agent]
}

// Role returns the selected role.
func (m NewSessionModel) Role() string {
	if it, ok := m.roles.SelectedItem().(roleItem); ok {
		return string(it)
	}
	return ""
}

// SetRecents provides entries the user can cycle through with ctrl+r.
func (m *NewSessionModel) SetRecents(entries []session.RecentEntry) {
	m.recents = entries
	m.recent = -1
}

// Request builds the create request from the current form state.
func (m NewSessionModel) Request() session.CreateRequest {
	agent := m.Agent()
	return session.CreateRequest{
		Agent:           agent,
		Role:            m.Role(),
		SpecRef:         strings.TrimSpace(m.spec.Value()),
		Command:         strings.TrimSpace(m.command.Value()),
		Project:         m.project,
		SkipPermissions: m.unsafe && agent == session.AgentClaude,
		Yolo:            m.unsafe && agent == session.AgentGemini,
	}
}

func (m *NewSessionModel) applyRecent(e session.RecentEntry) {
	for i, k := range session.AgentKinds {
		if k == e.Agent {
			m.agent = i
		}
	}
	for i, r := range session.Roles {
		if r == e.Role {
			m.roles.Select(i)
		}
	}
	m.spec.SetValue(e.SpecRef)
	m.command.SetValue(e.Command)
	if e.Project != "" {
		m.project = e.Project
	}
}

func (m *NewSessionModel) setFocus(f field) {
	m.focus = (f + fieldCount) % fieldCount
	m.spec.Blur()
	m.command.Blur()
	switch m.focus {
	case fieldSpec:
		m.spec.Focus()
	case fieldCommand:
		m.command.Focus()
	}
}

// Init returns the initial command for the dialog.
func (m NewSessionModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the dialog.
func (m NewSessionModel) Update(msg tea.Msg) (NewSessionModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		switch m.focus {
		case fieldSpec:
			m.spec, cmd = m.spec.Update(msg)
		case fieldCommand:
			m.command, cmd = m.command.Update(msg)
		}
		return m, cmd
	}

	switch key.String() {
	case tui.KeyEsc, tui.KeyCtrlC:
		return m, func() tea.Msg { return tui.DialogCancelMsg{} }
	case tui.KeyEnter:
		if m.Role() == "" {
			return m, nil
		}
		req := m.Request()
		return m, func() tea.Msg { return tui.NewSessionSubmitMsg{Request: req} }
	case tui.KeyTab:
		m.setFocus(m.focus + 1)
		return m, nil
	case "shift+tab":
		m.setFocus(m.focus - 1)
		return m, nil
	case "ctrl+r":
		if len(m.recents) > 0 {
			m.recent = (m.recent + 1) % len(m.recents)
			m.applyRecent(m.recents[m.recent])
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.focus {
	case fieldAgent:
		switch key.String() {
		case tui.KeyLeft, "h":
			m.agent = (m.agent + len(session.AgentKinds) - 1) % len(session.AgentKinds)
		case tui.KeyRight, "l", " ", "space":
			m.agent = (m.agent + 1) % len(session.AgentKinds)
		}
	case fieldRole:
		m.roles, cmd = m.roles.Update(msg)
	case fieldSpec:
		m.spec, cmd = m.spec.Update(msg)
	case fieldCommand:
		m.command, cmd = m.command.Update(msg)
	case fieldFlags:
		switch key.String() {
		case " ", "space", "x":
			m.unsafe = !m.unsafe
		}
	}
	return m, cmd
}

// View renders the dialog.
func (m NewSessionModel) View() string {
	var b strings.Builder
	b.WriteString(tui.TitleStyle.Render("NEW SESSION"))
	b.WriteString("\n\n")

	label := func(f field, name string) string {
		if m.focus == f {
			return tui.SelectedStyle.Render("▸ " + name)
		}
		return tui.DimStyle.Render("  " + name)
	}

	var agents []string
	for i, k := range session.AgentKinds {
		if i == m.agent {
			agents = append(agents, tui.SelectedStyle.Render("["+string(k)+"]"))
		} else {
			agents = append(agents, tui.DimStyle.Render(" "+string(k)+" "))
		}
	}
	fmt.Fprintf(&b, "%s\n    %s\n\n", label(fieldAgent, "Agent"), strings.Join(agents, " "))

	b.WriteString(label(fieldRole, "Role"))
	b.WriteString("\n")
	if m.focus == fieldRole {
		b.WriteString(m.roles.View())
	} else {
		b.WriteString("    " + m.Role())
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "%s\n    %s\n\n", label(fieldSpec, "Spec"), m.spec.View())
	fmt.Fprintf(&b, "%s\n    %s\n\n", label(fieldCommand, "Command"), m.command.View())

	box := "[ ]"
	if m.unsafe {
		box = "[x]"
	}
	fmt.Fprintf(&b, "%s\n    %s skip permission prompts (claude, gemini)\n\n", label(fieldFlags, "Flags"), box)

	hint := "tab next field • enter start • esc cancel"
	if len(m.recents) > 0 {
		hint += fmt.Sprintf(" • ctrl+r recent (%d)", len(m.recents))
	}
	b.WriteString(tui.DimStyle.Render(hint))

	return tui.BoxStyle.Render(b.String())
}
