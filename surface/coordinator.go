// Package surface keeps one rendering surface synchronized with its
// session per PROTOCOL.md.
//
// A Coordinator owns a single surface's view of the checklist: it writes
// every mutation to the shared store first, broadcasts a display update
// over the relay channel as a best-effort fast path, and treats the
// store's change feed as the source of truth. All state lives on the
// coordinator's serialized event loop; there is no package-level mutable
// state and no shared-memory concurrency with the renderer.
package surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shiggityshwah/punchlist/checklist"
	"github.com/shiggityshwah/punchlist/field"
	"github.com/shiggityshwah/punchlist/log"
	"github.com/shiggityshwah/punchlist/normalize"
	"github.com/shiggityshwah/punchlist/store"
	"github.com/shiggityshwah/punchlist/types"
	"github.com/shiggityshwah/punchlist/wire"
)

// ConnState is the message channel state.
type ConnState string

// Connection states. The machine moves disconnected → reconnecting →
// connected, and connected → polling → connected once reconnect
// attempts are exhausted.
const (
	StateDisconnected ConnState = "disconnected"
	StateReconnecting ConnState = "reconnecting"
	StateConnected    ConnState = "connected"
	StatePolling      ConnState = "polling"
)

// Dialer opens a channel to the relay. Called for every connect attempt.
type Dialer func(ctx context.Context) (wire.Channel, error)

// Renderer is the surface's display. The coordinator calls it from its
// own event loop, one call at a time, and may repeat a payload; renders
// must be idempotent.
type Renderer interface {
	// Render displays the checklist state with the current actionable
	// step index, -1 when nothing is actionable.
	Render(state checklist.State, currentStep int)
	// Notify shows a short non-blocking message.
	Notify(text string)
	// ConnectionChanged reports channel state transitions.
	ConnectionChanged(state ConnState)
	// Suggest surfaces a normalization mismatch for a field value.
	// Accepting the suggestion means calling UpdateFieldValue with
	// result.FixedValue.
	Suggest(loc field.Locator, result normalize.Result)
}

// Config configures a surface coordinator.
type Config struct {
	// SessionID identifies the browser session this surface belongs to.
	SessionID string
	// Surface is the rendering context kind announced at init.
	Surface types.SurfaceKind
	// Definition is the pre-validated checklist definition.
	Definition checklist.Definition
	// Store is the shared persistent store.
	Store store.Store
	// Renderer receives display updates.
	Renderer Renderer
	// Dial opens a channel to the relay.
	Dial Dialer
	// Fields is the surface's field accessor. Nil for surfaces that do
	// not own the form fields; their field edits route to the owner over
	// the channel.
	Fields field.Accessor
	// Logger defaults to a stderr logger named after the surface kind.
	Logger *log.Logger
	// Backoff is the reconnect schedule. Zero fields get defaults.
	Backoff Backoff
	// PollInterval is the degraded-mode store polling cadence.
	PollInterval time.Duration
	// After overrides the timer source. Nil means time.After.
	After func(d time.Duration) <-chan time.Time
}

// Snapshot is a copy of the loop-owned view state.
type Snapshot struct {
	State       checklist.State
	CurrentStep int
	ViewMode    types.ViewMode
	Visible     bool
	Conn        ConnState
}

// Coordinator synchronizes one surface with its session.
type Coordinator struct {
	config Config
	logger *log.Logger

	tasks chan func()
	done  chan struct{}

	// Loop-owned state. Only Run's goroutine touches anything below.
	runCtx      context.Context
	state       checklist.State
	viewMode    types.ViewMode
	visible     bool
	conn        ConnState
	ch          wire.Channel
	chGen       int
	failures    int
	pendingSelf map[string]int
}

// NewCoordinator creates a coordinator for one surface.
func NewCoordinator(config Config) (*Coordinator, error) {
	meta := types.LinkMeta{SessionID: config.SessionID, Surface: config.Surface}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("surface: %w", err)
	}
	if config.Store == nil {
		return nil, errors.New("surface: a store is required")
	}
	if config.Renderer == nil {
		return nil, errors.New("surface: a renderer is required")
	}
	if config.Dial == nil {
		return nil, errors.New("surface: a dialer is required")
	}
	config.Backoff = config.Backoff.withDefaults()
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.After == nil {
		config.After = time.After
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(string(config.Surface))
	}

	return &Coordinator{
		config:      config,
		logger:      logger.WithLink(meta),
		tasks:       make(chan func(), 256),
		done:        make(chan struct{}),
		state:       checklist.NewState(len(config.Definition.Steps)),
		viewMode:    types.ViewModeSingle,
		visible:     true,
		conn:        StateDisconnected,
		pendingSelf: make(map[string]int),
	}, nil
}

// Run drives the event loop until ctx is canceled. It subscribes to the
// store (and the field accessor when this surface owns one), loads the
// persisted view, and starts connecting. Run must be called once.
func (c *Coordinator) Run(ctx context.Context) error {
	c.runCtx = ctx

	changes, err := c.config.Store.Watch(ctx)
	if err != nil {
		return fmt.Errorf("surface: watch store: %w", err)
	}
	go c.pumpChanges(changes)

	if c.config.Fields != nil {
		fieldChanges, err := c.config.Fields.Changes(ctx)
		if err != nil {
			return fmt.Errorf("surface: watch fields: %w", err)
		}
		go c.pumpFieldChanges(fieldChanges)
	}

	c.post(c.bootstrap)

	for {
		select {
		case <-ctx.Done():
			close(c.done)
			if c.ch != nil {
				_ = c.ch.Close()
			}
			c.logger.Info("surface stopped", nil)
			return nil
		case task := <-c.tasks:
			task()
		}
	}
}

// post queues a task for the event loop.
func (c *Coordinator) post(task func()) {
	select {
	case c.tasks <- task:
	case <-c.done:
	}
}

func (c *Coordinator) bootstrap() {
	c.resync()
	c.connect()
}

// Confirm marks the step processed and propagates the change.
func (c *Coordinator) Confirm(index int) {
	c.post(func() { c.mutate("confirm", index, c.state.Confirm) })
}

// Skip marks the step skipped and propagates the change.
func (c *Coordinator) Skip(index int) {
	c.post(func() { c.mutate("skip", index, c.state.Skip) })
}

// Unconfirm returns the step to untouched and propagates the change.
func (c *Coordinator) Unconfirm(index int) {
	c.post(func() { c.mutate("unconfirm", index, c.state.Unconfirm) })
}

// Reset starts the two-phase reset: the state key is removed, and every
// surface, this one included, treats the removal as the signal to
// recreate fresh state. The delete is deliberately unguarded so this
// surface handles its own removal through the same path as its peers.
func (c *Coordinator) Reset() {
	c.post(func() {
		if err := c.config.Store.Delete(c.runCtx, c.stateKey()); err != nil {
			c.logger.Warn("reset delete failed", map[string]any{
				"error": err.Error(),
			})
		}
	})
}

// ToggleUI persists and propagates the overlay visibility.
func (c *Coordinator) ToggleUI(visible bool) {
	c.post(func() {
		c.visible = visible
		c.writeGuarded(store.UIStateKey(c.config.SessionID), types.UIState{Visible: visible})
		c.send(&wire.Message{Action: wire.ActionToggleUI, Visible: visible})
		c.render()
	})
}

// ChangeViewMode persists and propagates the checklist view mode.
func (c *Coordinator) ChangeViewMode(mode types.ViewMode) {
	c.post(func() {
		if !mode.Valid() {
			c.logger.Warn("ignored unknown view mode", map[string]any{
				"mode": string(mode),
			})
			return
		}
		c.viewMode = mode
		c.writeGuarded(store.ViewModeKey(c.config.SessionID), mode)
		c.send(&wire.Message{Action: wire.ActionChangeViewMode, ViewMode: mode})
		c.render()
	})
}

// UpdateFieldValue routes a field edit: the accessor owner writes
// through it, other surfaces ask the owner over the channel. Accepting a
// normalization suggestion is the same call with the suggested value.
func (c *Coordinator) UpdateFieldValue(loc field.Locator, value string) {
	c.post(func() {
		if c.config.Fields == nil {
			c.send(&wire.Message{
				Action:  wire.ActionUpdateFieldValue,
				Locator: string(loc),
				Value:   value,
			})
			return
		}
		c.applyFieldValue(loc, value)
	})
}

// Ping probes the channel; the relay answers with pong.
func (c *Coordinator) Ping() {
	c.post(func() { c.send(&wire.Message{Action: wire.ActionPing}) })
}

// Snapshot returns a copy of the loop-owned view state. It blocks until
// the event loop serves it, so pending tasks posted earlier are visible.
func (c *Coordinator) Snapshot() Snapshot {
	res := make(chan Snapshot, 1)
	c.post(func() {
		res <- Snapshot{
			State:       c.state.Clone(),
			CurrentStep: c.state.NextActionable(),
			ViewMode:    c.viewMode,
			Visible:     c.visible,
			Conn:        c.conn,
		}
	})
	select {
	case s := <-res:
		return s
	case <-c.done:
		return Snapshot{CurrentStep: -1, Conn: StateDisconnected}
	}
}

// mutate applies a local step transition, persists it, and propagates.
func (c *Coordinator) mutate(op string, index int, apply func(int) error) {
	if err := apply(index); err != nil {
		// Caller contract violation; a safe no-op in production.
		c.logger.Warn("ignored out-of-range step", map[string]any{
			"op":    op,
			"index": index,
			"error": err.Error(),
		})
		return
	}
	c.writeState()
	c.broadcastDisplay()
	c.render()
}

// writeState persists the checklist state under the re-entrancy guard.
func (c *Coordinator) writeState() {
	c.writeGuarded(c.stateKey(), c.state)
}

// writeGuarded writes a store key and marks its change record as our
// own. The feed delivers records in write order, so consuming one
// pending record per successful write skips exactly this surface's own
// echoes; a peer record consumed in its place was written earlier and is
// superseded by the write that pended it.
func (c *Coordinator) writeGuarded(key string, value any) {
	if err := store.SetJSON(c.runCtx, c.config.Store, key, value); err != nil {
		// Transient no-op: the next successful write self-heals.
		c.logger.Warn("store write failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return
	}
	c.pendingSelf[key]++
}

// consumeSelfWrite reports whether a change record on key is one this
// surface wrote itself. A record dropped by a lossy feed leaves a count
// behind that the next record on the key absorbs.
func (c *Coordinator) consumeSelfWrite(key string) bool {
	if c.pendingSelf[key] > 0 {
		c.pendingSelf[key]--
		return true
	}
	return false
}

// broadcastDisplay pushes the full display payload to the session's
// other surfaces. Best effort: the store feed is the source of truth and
// heals a lost push.
func (c *Coordinator) broadcastDisplay() {
	c.send(&wire.Message{
		Action:       wire.ActionUpdateDisplay,
		CurrentStep:  c.state.NextActionable(),
		State:        c.state.Clone(),
		DisplayNames: c.config.Definition.DisplayNames(),
	})
}

// render recomputes the actionable step and repaints.
func (c *Coordinator) render() {
	c.config.Renderer.Render(c.state.Clone(), c.state.NextActionable())
}

// send writes to the live channel. Channel errors feed the reconnect
// path through the reader goroutine, so send itself only logs.
func (c *Coordinator) send(m *wire.Message) {
	if c.conn != StateConnected || c.ch == nil {
		return
	}
	m.SessionID = c.config.SessionID
	m.Surface = c.config.Surface
	if err := c.ch.Send(m); err != nil {
		c.logger.Warn("send failed", map[string]any{
			"action": string(m.Action),
			"error":  err.Error(),
		})
	}
}

// applyFieldValue writes a field through the accessor and leaves the
// suggestion check to the accessor's change feed.
func (c *Coordinator) applyFieldValue(loc field.Locator, value string) {
	if err := c.config.Fields.SetValue(loc, value); err != nil {
		c.logger.Warn("field write failed", map[string]any{
			"locator": string(loc),
			"error":   err.Error(),
		})
	}
}

func (c *Coordinator) pumpFieldChanges(changes <-chan field.Change) {
	for fc := range changes {
		fc := fc
		c.post(func() { c.handleFieldChange(fc) })
	}
}

// handleFieldChange checks an edited field against its step's
// normalization rules and surfaces a non-blocking suggestion on a
// mismatch.
func (c *Coordinator) handleFieldChange(fc field.Change) {
	step, ok := c.stepFor(fc.Locator)
	if !ok || step.Normalizer == "" {
		return
	}
	result := applyNormalizer(step.Normalizer, fc.New)
	if result.IsValid {
		return
	}
	c.config.Renderer.Suggest(fc.Locator, result)
}

// stepFor finds the definition step owning a locator.
func (c *Coordinator) stepFor(loc field.Locator) (checklist.Step, bool) {
	for _, s := range c.config.Definition.Steps {
		for _, l := range s.Locators {
			if l == string(loc) {
				return s, true
			}
		}
	}
	return checklist.Step{}, false
}

// applyNormalizer maps a definition normalizer name to its rule set.
// Unknown names pass the value through; the config loader rejects them
// before a definition gets this far.
func applyNormalizer(name, value string) normalize.Result {
	switch name {
	case checklist.NormalizerPolicyNumber:
		return normalize.NormalizePolicyNumber(value)
	case checklist.NormalizerNamedInsured:
		return normalize.NormalizeNamedInsured(value)
	}
	return normalize.Result{IsValid: true, FixedValue: value}
}

func (c *Coordinator) stateKey() string {
	return store.ChecklistStateKey(c.config.SessionID)
}

// decodeJSON unmarshals a change payload, logging failures.
func (c *Coordinator) decodeJSON(key string, data json.RawMessage, dst any) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("change decode failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	return true
}
