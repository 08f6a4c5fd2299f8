package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/shiggityshwah/punchlist/checklist"
	"github.com/shiggityshwah/punchlist/field"
	"github.com/shiggityshwah/punchlist/normalize"
	"github.com/shiggityshwah/punchlist/surface"
	"github.com/shiggityshwah/punchlist/types"
)

// Controller is the coordinator subset the pop-out window drives. Calls
// are asynchronous; the resulting repaints arrive through Events.
type Controller interface {
	Confirm(index int)
	Skip(index int)
	Unconfirm(index int)
	Reset()
	ToggleUI(visible bool)
	ChangeViewMode(mode types.ViewMode)
	UpdateFieldValue(loc field.Locator, value string)
	Snapshot() surface.Snapshot
}

// suggestion is one pending normalization suggestion.
type suggestion struct {
	loc    field.Locator
	result normalize.Result
}

// PopoutModel is the detached checklist window. It starts empty and
// fills in when the coordinator's bootstrap render arrives.
type PopoutModel struct {
	def    checklist.Definition
	ctrl   Controller
	events *Events
	stop   func()

	state       checklist.State
	currentStep int
	viewMode    types.ViewMode
	visible     bool
	conn        surface.ConnState
	cursor      int
	notice      string
	pending     *suggestion
	width       int
	quitting    bool
}

// NewPopoutModel creates the pop-out model. stop cancels the coordinator
// and is called once when the user quits; nil is allowed.
func NewPopoutModel(def checklist.Definition, ctrl Controller, events *Events, stop func()) PopoutModel {
	return PopoutModel{
		def:         def,
		ctrl:        ctrl,
		events:      events,
		stop:        stop,
		currentStep: -1,
		viewMode:    types.ViewModeSingle,
		visible:     true,
		conn:        surface.StateDisconnected,
	}
}

// Init implements tea.Model.
func (m PopoutModel) Init() tea.Cmd {
	return m.events.Wait()
}

// Update implements tea.Model.
func (m PopoutModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case DisplayMsg:
		m.state = msg.State
		m.currentStep = msg.CurrentStep
		// The coordinator loop never blocks on this model (Events sends
		// are non-blocking), so it is always free to serve a snapshot.
		snap := m.ctrl.Snapshot()
		m.viewMode = snap.ViewMode
		m.visible = snap.Visible
		m.conn = snap.Conn
		m.cursor = clamp(m.cursor, 0, len(m.state)-1)
		return m, m.events.Wait()

	case NoticeMsg:
		m.notice = string(msg)
		return m, m.events.Wait()

	case ConnMsg:
		m.conn = surface.ConnState(msg)
		return m, m.events.Wait()

	case SuggestMsg:
		m.pending = &suggestion{loc: msg.Locator, result: msg.Result}
		return m, m.events.Wait()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m PopoutModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""

	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		if m.stop != nil {
			m.stop()
		}
		return m, tea.Quit

	case key.Matches(msg, keys.Up):
		if m.viewMode == types.ViewModeFull {
			m.cursor = clamp(m.cursor-1, 0, len(m.state)-1)
		}

	case key.Matches(msg, keys.Down):
		if m.viewMode == types.ViewModeFull {
			m.cursor = clamp(m.cursor+1, 0, len(m.state)-1)
		}

	case key.Matches(msg, keys.Confirm):
		if i := m.target(); i >= 0 {
			m.ctrl.Confirm(i)
		}

	case key.Matches(msg, keys.Skip):
		if i := m.target(); i >= 0 {
			m.ctrl.Skip(i)
		}

	case key.Matches(msg, keys.Unconfirm):
		if i := m.target(); i >= 0 {
			m.ctrl.Unconfirm(i)
		}

	case key.Matches(msg, keys.Reset):
		m.ctrl.Reset()

	case key.Matches(msg, keys.ViewMode):
		next := types.ViewModeFull
		if m.viewMode == types.ViewModeFull {
			next = types.ViewModeSingle
		}
		// Optimistic: the coordinator echoes the change through Events.
		m.viewMode = next
		m.ctrl.ChangeViewMode(next)

	case key.Matches(msg, keys.Hide):
		m.visible = !m.visible
		m.ctrl.ToggleUI(m.visible)

	case key.Matches(msg, keys.Accept):
		if p := m.pending; p != nil {
			m.ctrl.UpdateFieldValue(p.loc, p.result.FixedValue)
			m.pending = nil
			m.notice = "suggestion applied"
		}

	case key.Matches(msg, keys.Dismiss):
		m.pending = nil
	}

	return m, nil
}

// target is the step index an action applies to: the cursor in full
// view, the actionable step in single view. -1 means no target.
func (m PopoutModel) target() int {
	if m.viewMode == types.ViewModeFull {
		if m.cursor >= 0 && m.cursor < len(m.state) {
			return m.cursor
		}
		return -1
	}
	return m.currentStep
}

// View implements tea.Model.
func (m PopoutModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")

	if len(m.state) == 0 {
		b.WriteString(MutedStyle.Render("(empty checklist)"))
	} else if m.viewMode == types.ViewModeFull {
		b.WriteString(m.fullView())
	} else {
		b.WriteString(m.singleView())
	}

	if m.pending != nil {
		b.WriteString("\n\n")
		b.WriteString(m.suggestionView())
	}
	if m.notice != "" {
		b.WriteString("\n\n")
		b.WriteString(NoticeStyle.Render(m.notice))
	}

	b.WriteString("\n")
	b.WriteString(m.helpView())
	return b.String()
}

func (m PopoutModel) header() string {
	title := m.def.Name
	if title == "" {
		title = "Checklist"
	}
	parts := []string{
		TitleStyle.Render(title),
		ConnStyle(m.conn).Render("● " + string(m.conn)),
	}
	if !m.visible {
		parts = append(parts, MutedStyle.Render("overlay hidden"))
	}
	return strings.Join(parts, "  ")
}

func (m PopoutModel) singleView() string {
	var b strings.Builder

	if m.currentStep < 0 {
		b.WriteString(SuccessStyle.Render("All steps confirmed"))
	} else {
		b.WriteString(LabelStyle.Render(fmt.Sprintf("Step %d of %d", m.currentStep+1, len(m.state))))
		b.WriteString("\n  ")
		b.WriteString(CursorStyle.Render(m.stepName(m.currentStep)))
		if m.state[m.currentStep].Skipped {
			b.WriteString(WarningStyle.Render("  (skipped earlier)"))
		}
	}

	processed, skipped := m.state.Counts()
	b.WriteString("\n\n")
	b.WriteString(MutedStyle.Render(fmt.Sprintf("%d confirmed, %d skipped, %d total",
		processed, skipped, len(m.state))))
	return b.String()
}

func (m PopoutModel) fullView() string {
	var b strings.Builder
	for i, item := range m.state {
		glyph := MutedStyle.Render("·")
		switch {
		case item.Processed:
			glyph = SuccessStyle.Render("✓")
		case item.Skipped:
			glyph = WarningStyle.Render("~")
		}

		marker := "  "
		name := m.stepName(i)
		if i == m.cursor {
			marker = CursorStyle.Render("› ")
			name = CursorStyle.Render(name)
		} else if item.Untouched() {
			name = ValueStyle.Render(name)
		} else {
			name = MutedStyle.Render(name)
		}

		b.WriteString(marker)
		b.WriteString(glyph)
		b.WriteString(" ")
		b.WriteString(name)
		if i == m.currentStep {
			b.WriteString(MutedStyle.Render("  ← next"))
		}
		if i < len(m.state)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m PopoutModel) suggestionView() string {
	p := m.pending
	var b strings.Builder
	b.WriteString(WarningStyle.Render("Normalize"))
	b.WriteString(" ")
	b.WriteString(LabelStyle.Render(string(p.loc)))
	b.WriteString("\n")
	b.WriteString(ValueStyle.Render(p.result.FixedValue))
	if p.result.Message != "" {
		b.WriteString("\n")
		b.WriteString(MutedStyle.Render(p.result.Message))
	}
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("a apply  x dismiss"))
	return BoxStyle.Render(b.String())
}

func (m PopoutModel) helpView() string {
	var b strings.Builder
	if m.viewMode == types.ViewModeFull {
		b.WriteString("j/k move  ")
	}
	b.WriteString("c confirm  s skip  u unconfirm  v view  t show/hide  r reset  q quit")
	return HelpStyle.Render(b.String())
}

func (m PopoutModel) stepName(i int) string {
	if i >= 0 && i < len(m.def.Steps) {
		return m.def.Steps[i].Name
	}
	return fmt.Sprintf("step %d", i+1)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// keyMap defines pop-out key bindings.
type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Confirm   key.Binding
	Skip      key.Binding
	Unconfirm key.Binding
	Reset     key.Binding
	ViewMode  key.Binding
	Hide      key.Binding
	Accept    key.Binding
	Dismiss   key.Binding
	Quit      key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("j", "down"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("enter", "c"),
		key.WithHelp("c", "confirm"),
	),
	Skip: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "skip"),
	),
	Unconfirm: key.NewBinding(
		key.WithKeys("u"),
		key.WithHelp("u", "unconfirm"),
	),
	Reset: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reset"),
	),
	ViewMode: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "view mode"),
	),
	Hide: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "show/hide overlay"),
	),
	Accept: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "apply suggestion"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "dismiss suggestion"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunPopout runs the pop-out window until the user quits.
func RunPopout(m PopoutModel) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
