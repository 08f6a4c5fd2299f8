package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/shiggityshwah/punchlist/checklist"
	"github.com/shiggityshwah/punchlist/field"
	"github.com/shiggityshwah/punchlist/normalize"
	"github.com/shiggityshwah/punchlist/surface"
)

// DisplayMsg carries a checklist repaint from the coordinator.
type DisplayMsg struct {
	State       checklist.State
	CurrentStep int
}

// NoticeMsg carries a short transient message.
type NoticeMsg string

// ConnMsg reports a channel state transition.
type ConnMsg surface.ConnState

// SuggestMsg surfaces a normalization mismatch for a field value.
type SuggestMsg struct {
	Locator field.Locator
	Result  normalize.Result
}

// eventQueueSize bounds the coordinator-to-model queue. Display repaints
// carry full state, so any dropped message is superseded by a later one.
const eventQueueSize = 64

// Events adapts coordinator renderer callbacks into Bubble Tea messages.
// The coordinator event loop must never block on a slow terminal, so
// sends are non-blocking: when the queue is full the oldest pending
// message is dropped to make room.
type Events struct {
	ch chan tea.Msg
}

var _ surface.Renderer = (*Events)(nil)

// NewEvents creates the coordinator-to-model bridge.
func NewEvents() *Events {
	return &Events{ch: make(chan tea.Msg, eventQueueSize)}
}

// Render implements surface.Renderer.
func (e *Events) Render(state checklist.State, currentStep int) {
	e.send(DisplayMsg{State: state, CurrentStep: currentStep})
}

// Notify implements surface.Renderer.
func (e *Events) Notify(text string) {
	e.send(NoticeMsg(text))
}

// ConnectionChanged implements surface.Renderer.
func (e *Events) ConnectionChanged(state surface.ConnState) {
	e.send(ConnMsg(state))
}

// Suggest implements surface.Renderer.
func (e *Events) Suggest(loc field.Locator, result normalize.Result) {
	e.send(SuggestMsg{Locator: loc, Result: result})
}

// send enqueues without ever blocking the caller. All renderer callbacks
// come from the coordinator's single event loop, so the drop-retry cycle
// terminates.
func (e *Events) send(m tea.Msg) {
	for {
		select {
		case e.ch <- m:
			return
		default:
		}
		select {
		case <-e.ch:
		default:
		}
	}
}

// Wait returns a command that delivers the next coordinator event. The
// model re-arms it after consuming each delivered message.
func (e *Events) Wait() tea.Cmd {
	return func() tea.Msg { return <-e.ch }
}
