package surface

import (
	"errors"
	"time"

	"github.com/shiggityshwah/punchlist/checklist"
	"github.com/shiggityshwah/punchlist/field"
	"github.com/shiggityshwah/punchlist/types"
	"github.com/shiggityshwah/punchlist/wire"
)

// connect dials the relay. A failed dial schedules a retry on the
// backoff schedule, falling back to store polling once the schedule is
// exhausted.
func (c *Coordinator) connect() {
	if c.conn == StateConnected {
		return
	}
	ch, err := c.config.Dial(c.runCtx)
	if err != nil {
		c.failures++
		c.logger.Warn("dial failed", map[string]any{
			"failures": c.failures,
			"error":    err.Error(),
		})
		if c.failures >= c.config.Backoff.MaxAttempts {
			c.enterPolling()
			return
		}
		c.setConn(StateReconnecting)
		c.retryAfter(c.config.Backoff.Delay(c.failures))
		return
	}
	c.established(ch)
}

// retryAfter arms a reconnect timer off the loop.
func (c *Coordinator) retryAfter(d time.Duration) {
	timer := c.config.After(d)
	go func() {
		select {
		case <-timer:
			c.post(c.connect)
		case <-c.done:
		}
	}()
}

// established switches to a live channel. The generation counter fences
// out reader events from any channel this one replaced.
func (c *Coordinator) established(ch wire.Channel) {
	c.failures = 0
	c.chGen++
	c.ch = ch
	c.setConn(StateConnected)
	go c.readChannel(ch, c.chGen)
	c.send(&wire.Message{Action: wire.ActionInit, Version: types.Version})
	// Messages may have been dropped while disconnected; trust only the
	// store.
	c.resync()
}

// readChannel pumps inbound messages onto the loop until the channel
// fails. A decode error skips one message; anything else reports the
// channel down.
func (c *Coordinator) readChannel(ch wire.Channel, gen int) {
	for {
		m, err := ch.Receive()
		if err != nil {
			if isDecodeError(err) {
				// The frame boundary held; only this message is lost.
				continue
			}
			c.post(func() { c.handleChannelDown(gen, err) })
			return
		}
		c.post(func() { c.handleMessage(gen, m) })
	}
}

// handleChannelDown reacts to a reader failure. A stale generation is a
// leftover from a channel already replaced.
func (c *Coordinator) handleChannelDown(gen int, err error) {
	if gen != c.chGen {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	c.setConn(StateDisconnected)
	c.logger.Warn("channel lost", map[string]any{"error": err.Error()})
	// Retry immediately; backoff starts after the first failed dial.
	c.connect()
}

// enterPolling gives up on the backoff schedule and falls back to
// resyncing from the store on a fixed cadence, probing the relay once
// per tick.
func (c *Coordinator) enterPolling() {
	c.failures = 0
	c.setConn(StatePolling)
	c.logger.Warn("reconnect attempts exhausted, polling store", map[string]any{
		"poll_interval": c.config.PollInterval.String(),
	})
	c.armPoll()
}

func (c *Coordinator) armPoll() {
	timer := c.config.After(c.config.PollInterval)
	go func() {
		select {
		case <-timer:
			c.post(c.pollTick)
		case <-c.done:
		}
	}()
}

// pollTick refreshes from the store and probes the relay once. Probe
// failures do not count against the backoff schedule; polling continues
// until a dial succeeds.
func (c *Coordinator) pollTick() {
	if c.conn != StatePolling {
		// A successful connect raced the timer.
		return
	}
	c.resync()
	ch, err := c.config.Dial(c.runCtx)
	if err != nil {
		c.armPoll()
		return
	}
	c.established(ch)
}

// setConn records a connection state transition and tells the renderer.
func (c *Coordinator) setConn(state ConnState) {
	if c.conn == state {
		return
	}
	c.conn = state
	c.config.Renderer.ConnectionChanged(state)
	c.logger.Info("connection state", map[string]any{"state": string(state)})
}

// handleMessage applies one relay message to the loop-owned view.
func (c *Coordinator) handleMessage(gen int, m *wire.Message) {
	if gen != c.chGen {
		return
	}
	switch m.Action {
	case wire.ActionUpdateDisplay:
		c.state = checklist.State(m.State).Conform(len(c.config.Definition.Steps))
		c.render()
	case wire.ActionConfirmField:
		c.applyRemoteStep("confirm", m.StepIndex, c.state.Confirm)
	case wire.ActionSkipField:
		c.applyRemoteStep("skip", m.StepIndex, c.state.Skip)
	case wire.ActionUpdateFieldValue:
		if c.config.Fields != nil {
			c.applyFieldValue(field.Locator(m.Locator), m.Value)
		}
	case wire.ActionToggleUI:
		c.visible = m.Visible
		c.render()
	case wire.ActionChangeViewMode:
		if m.ViewMode.Valid() {
			c.viewMode = m.ViewMode
			c.render()
		}
	case wire.ActionResetComplete:
		c.config.Renderer.Notify("Checklist reset")
	case wire.ActionPong:
		c.logger.Debug("pong", nil)
	default:
		// Forward compatibility: newer peers may speak actions we do
		// not.
		c.logger.Debug("unknown action ignored", map[string]any{
			"action": string(m.Action),
		})
	}
}

// applyRemoteStep applies a peer-initiated step transition. The accessor
// owner persists it on the sender's behalf, so thin senders need no
// store access; everyone else renders the fast path and lets the store
// feed settle it.
func (c *Coordinator) applyRemoteStep(op string, index int, apply func(int) error) {
	if err := apply(index); err != nil {
		c.logger.Warn("ignored out-of-range step", map[string]any{
			"op":    op,
			"index": index,
			"error": err.Error(),
		})
		return
	}
	if c.config.Fields != nil {
		c.writeState()
		c.broadcastDisplay()
	}
	c.render()
}

// isDecodeError reports a per-message decode failure, which leaves the
// frame boundary intact.
func isDecodeError(err error) bool {
	var frameErr *wire.FrameError
	return errors.As(err, &frameErr) && frameErr.Kind == wire.FrameErrorDecode
}
