package wire

import (
	"github.com/shiggityshwah/punchlist/checklist"
	"github.com/shiggityshwah/punchlist/types"
)

// Action discriminates protocol messages.
type Action string

// Protocol actions per PROTOCOL.md.
const (
	// ActionInit registers a link with the relay. First message on every
	// channel; carries the session id and surface kind.
	ActionInit Action = "init"
	// ActionUpdateDisplay pushes the current step, the full item-state
	// array, and the display-name list.
	ActionUpdateDisplay Action = "updateDisplay"
	// ActionConfirmField announces a confirm on a step.
	ActionConfirmField Action = "confirmField"
	// ActionSkipField announces a skip on a step.
	ActionSkipField Action = "skipField"
	// ActionUpdateFieldValue announces a field edit.
	ActionUpdateFieldValue Action = "updateFieldValue"
	// ActionToggleUI announces an overlay visibility change.
	ActionToggleUI Action = "toggleUI"
	// ActionChangeViewMode announces a view mode change.
	ActionChangeViewMode Action = "changeViewMode"
	// ActionResetComplete announces that a reset finished and fresh
	// state is persisted.
	ActionResetComplete Action = "resetComplete"
	// ActionPing and ActionPong are the keep-alive pair. The relay
	// answers ping directly without fanning it out.
	ActionPing Action = "ping"
	ActionPong Action = "pong"
)

// Known reports whether the action is part of the protocol. Consumers
// ignore unknown actions rather than treating them as errors.
func (a Action) Known() bool {
	switch a {
	case ActionInit, ActionUpdateDisplay, ActionConfirmField, ActionSkipField,
		ActionUpdateFieldValue, ActionToggleUI, ActionChangeViewMode,
		ActionResetComplete, ActionPing, ActionPong:
		return true
	}
	return false
}

// Message is the flat wire record exchanged between surfaces and the relay.
// Only the fields relevant to the action are populated; zero fields are
// omitted from the encoding.
type Message struct {
	// Action discriminates the message.
	Action Action `msgpack:"action"`

	// Version is the protocol version, sent with init.
	Version string `msgpack:"version,omitempty"`
	// SessionID identifies the session, sent with init.
	SessionID string `msgpack:"sessionId,omitempty"`
	// Surface is the connecting surface kind, sent with init.
	Surface types.SurfaceKind `msgpack:"surface,omitempty"`

	// CurrentStep is the index the cursor points at, -1 when nothing is
	// actionable. Sent with updateDisplay.
	CurrentStep int `msgpack:"currentStep,omitempty"`
	// State is the full item-state array. Sent with updateDisplay.
	State []checklist.ItemState `msgpack:"state,omitempty"`
	// DisplayNames lists the step names for rendering. Sent with
	// updateDisplay.
	DisplayNames []string `msgpack:"displayNames,omitempty"`

	// StepIndex is the step a confirmField or skipField acts on.
	StepIndex int `msgpack:"stepIndex,omitempty"`

	// Locator and Value carry a field edit with updateFieldValue.
	Locator string `msgpack:"locator,omitempty"`
	Value   string `msgpack:"value,omitempty"`

	// Visible carries overlay visibility with toggleUI.
	Visible bool `msgpack:"visible,omitempty"`

	// ViewMode carries the selected view mode with changeViewMode.
	ViewMode types.ViewMode `msgpack:"viewMode,omitempty"`
}
