package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/adt-framework/adt-console/internal/console"
	"github.com/adt-framework/adt-console/internal/governance"
	"github.com/adt-framework/adt-console/internal/tui"
)

// ============================================================================
// PanelModel
// ============================================================================

// PanelModel is the scrollable context panel beside the terminal.
type PanelModel struct {
	viewport viewport.Model
	panel    *console.Panel
	width    int
	height   int
}

// NewPanelModel creates an empty panel of the given size.
func NewPanelModel(width, height int) PanelModel {
	m := PanelModel{viewport: viewport.New(innerSize(width), innerSize(height))}
	m.width, m.height = width, height
	return m
}

func innerSize(n int) int {
	if n < 2 {
		return 0
	}
	return n - 2
}

// SetPanel replaces the displayed panel, keeping the scroll offset when
// the session is unchanged.
func (m *PanelModel) SetPanel(p *console.Panel) {
	same := m.panel != nil && p != nil && m.panel.Token.SessionID == p.Token.SessionID
	m.panel = p
	m.viewport.SetContent(RenderPanel(p, m.viewport.Width))
	if !same {
		m.viewport.GotoTop()
	}
}

// SetSize resizes the panel and re-renders its content.
func (m *PanelModel) SetSize(width, height int) {
	m.width, m.height = width, height
	m.viewport.Width = innerSize(width)
	m.viewport.Height = innerSize(height)
	m.viewport.SetContent(RenderPanel(m.panel, m.viewport.Width))
}

// ScrollUp moves the view up by half a page.
func (m *PanelModel) ScrollUp() {
	m.viewport.HalfViewUp()
}

// ScrollDown moves the view down by half a page.
func (m *PanelModel) ScrollDown() {
	m.viewport.HalfViewDown()
}

// Update forwards mouse and scroll messages to the viewport.
func (m PanelModel) Update(msg tea.Msg) (PanelModel, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the framed panel.
func (m PanelModel) View() string {
	if m.width <= 0 {
		return ""
	}
	return tui.PaneStyle.
		Width(innerSize(m.width)).
		Height(innerSize(m.height)).
		Render(m.viewport.View())
}

// ============================================================================
// Rendering
// ============================================================================

// RenderPanel renders p as plain panel content of the given width. A nil
// panel renders as loading.
func RenderPanel(p *console.Panel, width int) string {
	if width <= 0 {
		width = tui.PanelWidth - 2
	}
	var b strings.Builder
	line := func(s string) {
		b.WriteString(ansi.Truncate(s, width, "…"))
		b.WriteString("\n")
	}
	section := func(title string) {
		b.WriteString("\n")
		line(tui.TitleStyle.Render(title))
	}

	if p == nil {
		line(tui.DimStyle.Render("Loading governance state…"))
		return b.String()
	}

	snap := p.Snapshot
	line(tui.TitleStyle.Render("GOVERNANCE") + " " + sourceBadge(snap))
	if snap != nil && snap.DTTPStatus != "" {
		line(tui.DimStyle.Render("DTTP: ") + snap.DTTPStatus)
	}
	if snap != nil {
		for _, slice := range snap.DegradedSlices() {
			line(tui.WarningStyle.Render(fmt.Sprintf("! %s unavailable", slice)))
		}
	}

	if p.Session == nil {
		section("NO ACTIVE SESSION")
		line(tui.DimStyle.Render("Start a session with ctrl+a n."))
		renderProgress(line, section, p.Progress, width)
		return b.String()
	}

	s := p.Session
	section("SESSION")
	line(tui.AgentStyle(s.Color).Render(s.Role) + tui.DimStyle.Render(" ("+string(s.Agent)+")"))
	if s.SpecRef != "" {
		line("Spec: " + s.SpecRef)
	}
	if p.Uptime != "" {
		line(tui.DimStyle.Render("Uptime: ") + p.Uptime)
	}

	section("ALIGNMENT")
	line(tui.AlignmentStyle(p.Alignment).Render(strings.ToUpper(string(p.Alignment))))
	for _, l := range wrap(p.Detail, width) {
		line(tui.DimStyle.Render(l))
	}

	section("ACTIVE TASK")
	switch {
	case snap.IsDegraded(governance.SliceTasks):
		line(tui.DimStyle.Render("unknown"))
	case p.ActiveTask == nil:
		line(tui.DimStyle.Render("none"))
	default:
		t := p.ActiveTask
		line(tui.SelectedStyle.Render(t.ID) + " " + t.Title)
		meta := t.Status
		if pr := t.PriorityText(); pr != "" {
			meta += ", priority " + pr
		}
		line(tui.DimStyle.Render(meta))
		if len(t.DependsOn) > 0 {
			deps := "dependencies met"
			style := tui.SuccessStyle
			if !p.DepsMet {
				deps, style = "waiting on "+strings.Join(t.DependsOn, ", "), tui.WarningStyle
			}
			line(style.Render(deps))
		}
	}

	if len(p.Chain) > 0 {
		section("DELEGATION CHAIN")
		for i, link := range p.Chain {
			prefix := "  "
			if i > 0 {
				prefix = "→ "
			}
			text := prefix + link.Label + ": " + link.Value
			if link.Extra != "" {
				text += tui.DimStyle.Render(" " + link.Extra)
			}
			line(text)
		}
	}

	section(fmt.Sprintf("QUEUE (%d)", len(p.Queue)))
	if len(p.Queue) == 0 {
		line(tui.DimStyle.Render("empty"))
	}
	for _, t := range p.Queue {
		line("• " + t.ID + " " + tui.DimStyle.Render(t.Title))
	}

	section(fmt.Sprintf("COMPLETED (%d)", len(p.Completed)))
	for i, t := range p.Completed {
		if i == 3 {
			line(tui.DimStyle.Render(fmt.Sprintf("  and %d more", len(p.Completed)-3)))
			break
		}
		line(tui.SuccessStyle.Render("✓ ") + t.ID + " " + tui.DimStyle.Render(t.Title))
	}

	if len(p.Sent) > 0 {
		section("DELEGATED")
		for _, d := range p.Sent {
			line(fmt.Sprintf("%s → %s %s", d.TaskID, d.To, tui.DimStyle.Render(d.Action)))
		}
	}

	section("AGENT FEED")
	switch {
	case snap.IsDegraded(governance.SliceEvents):
		line(tui.DimStyle.Render("unknown"))
	case len(p.Feed) == 0:
		line(tui.DimStyle.Render("no activity"))
	}
	for _, ev := range p.Feed {
		desc := ev.Description
		if desc == "" {
			desc = ev.ActionType
		}
		line(tui.DimStyle.Render(feedTime(ev.TS)+" ") + desc)
	}

	if snap != nil && len(snap.Requests) > 0 {
		open := 0
		for _, r := range snap.Requests {
			if !strings.EqualFold(r.Status, "completed") && !strings.EqualFold(r.Status, "closed") {
				open++
			}
		}
		section("REQUESTS")
		line(fmt.Sprintf("%d open of %d", open, len(snap.Requests)))
	}

	renderProgress(line, section, p.Progress, width)
	return b.String()
}

func renderProgress(line, section func(string), progress []governance.PhaseProgress, width int) {
	if len(progress) == 0 {
		return
	}
	section("PHASES")
	barWidth := width - 8
	if barWidth > 20 {
		barWidth = 20
	}
	if barWidth < 4 {
		barWidth = 4
	}
	for _, pp := range progress {
		name := pp.Phase.Name
		if name == "" {
			name = pp.Phase.ID
		}
		line(name + tui.DimStyle.Render(fmt.Sprintf(" %d/%d", pp.Completed, pp.Total)))
		line(ProgressBar(pp.Percent(), barWidth) + fmt.Sprintf(" %3d%%", pp.Percent()))
	}
}

// ProgressBar draws a bar width cells wide, percent full.
func ProgressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	full := percent * width / 100
	return tui.ProgressFullStyle.Render(strings.Repeat("█", full)) +
		tui.ProgressEmptyStyle.Render(strings.Repeat("░", width-full))
}

func sourceBadge(snap *governance.Snapshot) string {
	if snap == nil {
		return tui.DimStyle.Render("[loading]")
	}
	switch snap.Source {
	case governance.SourceRemote:
		return tui.SuccessStyle.Render("[center]")
	case governance.SourceLocal:
		return tui.WarningStyle.Render("[local]")
	default:
		return tui.ErrorStyle.Render("[offline]")
	}
}

// feedTime shortens an RFC 3339 stamp to its clock part.
func feedTime(ts string) string {
	if i := strings.IndexByte(ts, 'T'); i >= 0 && len(ts) >= i+6 {
		return ts[i+1 : i+6]
	}
	return ts
}

// wrap splits s on word boundaries into lines at most width runes wide.
func wrap(s string, width int) []string {
	if s == "" {
		return nil
	}
	var out []string
	var cur strings.Builder
	for _, word := range strings.Fields(s) {
		if cur.Len() > 0 && ansi.StringWidth(cur.String())+1+ansi.StringWidth(word) > width {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString(" ")
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
