package surface

import (
	"github.com/shiggityshwah/punchlist/checklist"
	"github.com/shiggityshwah/punchlist/store"
	"github.com/shiggityshwah/punchlist/types"
	"github.com/shiggityshwah/punchlist/wire"
)

// pumpChanges forwards store changes onto the event loop. Runs until the
// store closes the feed.
func (c *Coordinator) pumpChanges(changes <-chan store.Change) {
	for change := range changes {
		change := change
		c.post(func() { c.handleChange(change) })
	}
}

// handleChange applies one store change to the loop-owned view.
func (c *Coordinator) handleChange(change store.Change) {
	switch change.Key {
	case c.stateKey():
		// Removal is the reset signal and outranks the self-write
		// check: the surface that deleted the key recreates through
		// this same path as its peers.
		if change.Removed() {
			c.recreateAfterReset()
			return
		}
		if c.consumeSelfWrite(change.Key) {
			return
		}
		var st checklist.State
		if !c.decodeJSON(change.Key, change.New, &st) {
			return
		}
		c.state = st.Conform(len(c.config.Definition.Steps))
		c.render()

	case store.UIStateKey(c.config.SessionID):
		if change.Removed() || c.consumeSelfWrite(change.Key) {
			return
		}
		var ui types.UIState
		if !c.decodeJSON(change.Key, change.New, &ui) {
			return
		}
		c.visible = ui.Visible
		c.render()

	case store.ViewModeKey(c.config.SessionID):
		if change.Removed() || c.consumeSelfWrite(change.Key) {
			return
		}
		var mode types.ViewMode
		if !c.decodeJSON(change.Key, change.New, &mode) || !mode.Valid() {
			return
		}
		c.viewMode = mode
		c.render()
	}
}

// recreateAfterReset rebuilds untouched state after the state key was
// removed. The accessor owner persists the fresh state and announces
// resetComplete on the session's behalf; other surfaces adopt it locally
// and notify when the announcement arrives. Rebuild, write, render, and
// notify run inside this one task, so a racing update from another
// surface lands strictly before or strictly after the whole sequence.
func (c *Coordinator) recreateAfterReset() {
	c.state = checklist.NewState(len(c.config.Definition.Steps))
	c.render()
	if c.config.Fields == nil {
		return
	}
	c.writeState()
	c.config.Renderer.Notify("Checklist reset")
	c.send(&wire.Message{Action: wire.ActionResetComplete})
}

// resync reloads the store's view of the session. Used at startup, after
// every reconnect, and on each polling tick; state buffered in memory is
// never trusted across a disconnect.
func (c *Coordinator) resync() {
	key := c.stateKey()
	var st checklist.State
	found, err := store.GetJSON(c.runCtx, c.config.Store, key, &st)
	switch {
	case err != nil:
		// Keep the current view; the next change or tick retries.
		c.logger.Warn("resync read failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	case !found:
		c.ensureFreshState()
	default:
		conformed := st.Conform(len(c.config.Definition.Steps))
		c.state = conformed
		if len(conformed) != len(st) {
			// Heal a store value written against a stale definition.
			c.writeState()
		}
	}

	var ui types.UIState
	if ok, err := store.GetJSON(c.runCtx, c.config.Store, store.UIStateKey(c.config.SessionID), &ui); err == nil && ok {
		c.visible = ui.Visible
	}
	var mode types.ViewMode
	if ok, err := store.GetJSON(c.runCtx, c.config.Store, store.ViewModeKey(c.config.SessionID), &mode); err == nil && ok && mode.Valid() {
		c.viewMode = mode
	}
	c.render()
}

// ensureFreshState adopts all-untouched state for a missing key. Only
// the accessor owner persists it, so a session bootstrapping several
// surfaces at once has a single writer.
func (c *Coordinator) ensureFreshState() {
	c.state = checklist.NewState(len(c.config.Definition.Steps))
	if c.config.Fields != nil {
		c.writeState()
	}
}
