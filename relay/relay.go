// Package relay hosts the session message hub per PROTOCOL.md.
//
// Surfaces connect over a wire.Channel, announce themselves with an init
// message, and from then on every message they send is fanned out to the
// session's other surfaces. The relay routes by the handshake identity and
// never interprets checklist semantics.
package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/shiggityshwah/punchlist/log"
	"github.com/shiggityshwah/punchlist/types"
	"github.com/shiggityshwah/punchlist/wire"
)

// Config configures the relay.
type Config struct {
	// Logger receives relay lifecycle and per-link events.
	// If nil, a logger named "relay" writing to stderr is used.
	Logger *log.Logger
}

// Stats is a snapshot of relay counters.
type Stats struct {
	// LinksAttached is the number of links that completed the handshake.
	LinksAttached int64
	// LinksDetached is the number of handshaken links that have gone away.
	LinksDetached int64
	// MessagesRouted is the number of inbound messages fanned out.
	MessagesRouted int64
	// PingsAnswered is the number of pings answered directly.
	PingsAnswered int64
	// MessagesDropped is the number of inbound messages ignored
	// (unknown action, duplicate init, undecodable payload).
	MessagesDropped int64
}

// link is one owned channel. meta is zero until the handshake completes.
type link struct {
	id   string
	ch   wire.Channel
	meta types.LinkMeta
}

// Relay fans session traffic out to each session's other surfaces.
type Relay struct {
	logger *log.Logger

	mu       sync.Mutex
	links    map[*link]struct{}            // every owned channel, handshaken or not
	sessions map[string]map[*link]struct{} // handshaken links by session
	closed   bool

	wg sync.WaitGroup // outstanding link loops

	attached int64
	detached int64
	routed   atomic.Int64
	pings    atomic.Int64
	dropped  atomic.Int64
}

// New creates a new relay.
func New(config Config) *Relay {
	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger("relay")
	}
	return &Relay{
		logger:   logger,
		links:    make(map[*link]struct{}),
		sessions: make(map[string]map[*link]struct{}),
	}
}

// Serve accepts channels until ctx is canceled or the listener fails.
// Accepted channels are owned by the relay from that point on.
// Returns nil on context cancellation.
func (r *Relay) Serve(ctx context.Context, ln *wire.Listener) error {
	r.logger.Info("relay listening", map[string]any{
		"addr": ln.Addr().String(),
	})

	// Close the listener when ctx ends so Accept unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-done:
		}
	}()

	for {
		ch, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		r.Attach(ch)
	}
}

// Attach hands an established channel to the relay. The relay owns the
// channel from this point and closes it when the link detaches. The link
// loop runs on its own goroutine; Attach does not block.
func (r *Relay) Attach(ch wire.Channel) {
	l := &link{id: uuid.NewString(), ch: ch}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = ch.Close()
		return
	}
	r.links[l] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	go r.serveLink(l)
}

// Close detaches every link, waits for their loops to finish, and refuses
// further attaches. Idempotent.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	owned := make([]*link, 0, len(r.links))
	for l := range r.links {
		owned = append(owned, l)
	}
	r.mu.Unlock()

	// Closing the channels unblocks every pending Receive.
	for _, l := range owned {
		_ = l.ch.Close()
	}
	r.wg.Wait()
	return nil
}

// Stats returns a snapshot of the relay counters.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	attached, detached := r.attached, r.detached
	r.mu.Unlock()

	return Stats{
		LinksAttached:   attached,
		LinksDetached:   detached,
		MessagesRouted:  r.routed.Load(),
		PingsAnswered:   r.pings.Load(),
		MessagesDropped: r.dropped.Load(),
	}
}

// serveLink runs the handshake and read loop for one channel.
func (r *Relay) serveLink(l *link) {
	defer r.wg.Done()
	defer func() { _ = l.ch.Close() }()
	defer r.forget(l)

	logger := r.logger.WithLinkID(l.id)

	first, err := l.ch.Receive()
	if err != nil {
		logger.Debug("link closed before handshake", map[string]any{
			"error": err.Error(),
		})
		return
	}
	if first.Action != wire.ActionInit {
		logger.Warn("link dropped", map[string]any{
			"reason": string(types.DetachBadHandshake),
			"action": string(first.Action),
		})
		return
	}

	meta := types.LinkMeta{
		SessionID: first.SessionID,
		Surface:   first.Surface,
		Version:   first.Version,
	}
	if err := meta.Validate(); err != nil {
		logger.Warn("link dropped", map[string]any{
			"reason": string(types.DetachBadHandshake),
			"error":  err.Error(),
		})
		return
	}

	logger = logger.WithLink(meta)
	if meta.Version != "" && meta.Version != types.Version {
		// Informational only per PROTOCOL.md. Old surfaces still get routed.
		logger.Warn("version mismatch", map[string]any{
			"peer_version":  meta.Version,
			"relay_version": types.Version,
		})
	}

	if !r.admit(l, meta) {
		return
	}
	logger.Info("link attached", nil)

	reason := r.readLoop(l, logger)
	r.detach(l)
	if reason == types.DetachReadError && r.isClosed() {
		reason = types.DetachShutdown
	}
	logger.Info("link detached", map[string]any{
		"reason": string(reason),
	})
}

// readLoop routes messages until the link dies. Returns why it died.
func (r *Relay) readLoop(l *link, logger *log.Logger) types.DetachReason {
	for {
		m, err := l.ch.Receive()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return types.DetachPeerClosed
			case wire.IsFatalFrameError(err):
				logger.Error("frame error", map[string]any{
					"error": err.Error(),
				})
				return types.DetachFrameFatal
			case isDecodeError(err):
				// The frame boundary held; only this message is lost.
				logger.Warn("undecodable message skipped", map[string]any{
					"error": err.Error(),
				})
				r.dropped.Add(1)
				continue
			default:
				return types.DetachReadError
			}
		}
		r.dispatch(l, m, logger)
	}
}

// dispatch handles one inbound message from an attached link.
func (r *Relay) dispatch(l *link, m *wire.Message, logger *log.Logger) {
	switch {
	case m.Action == wire.ActionPing:
		// Answered directly, never fanned out.
		r.pings.Add(1)
		pong := &wire.Message{Action: wire.ActionPong, SessionID: l.meta.SessionID}
		if err := l.ch.Send(pong); err != nil {
			logger.Warn("pong send failed", map[string]any{
				"error": err.Error(),
			})
		}
		return
	case m.Action == wire.ActionInit:
		logger.Debug("duplicate init ignored", nil)
		r.dropped.Add(1)
		return
	case !m.Action.Known():
		// Forward compatibility: newer peers may speak actions we do not.
		logger.Debug("unknown action ignored", map[string]any{
			"action": string(m.Action),
		})
		r.dropped.Add(1)
		return
	}

	// Route by the handshake identity, never by what the peer claims in
	// later messages. A link cannot write into another session.
	m.SessionID = l.meta.SessionID
	m.Surface = l.meta.Surface

	peers := r.peersOf(l)
	for _, p := range peers {
		if err := p.ch.Send(m); err != nil {
			logger.Warn("peer send failed", map[string]any{
				"peer":  string(p.meta.Surface),
				"error": err.Error(),
			})
		}
	}
	r.routed.Add(1)
}

// admit indexes a handshaken link into its session.
// Returns false if the relay closed during the handshake.
func (r *Relay) admit(l *link, meta types.LinkMeta) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	l.meta = meta
	peers, ok := r.sessions[meta.SessionID]
	if !ok {
		peers = make(map[*link]struct{})
		r.sessions[meta.SessionID] = peers
	}
	peers[l] = struct{}{}
	r.attached++
	return true
}

// detach removes a handshaken link from its session index.
func (r *Relay) detach(l *link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers, ok := r.sessions[l.meta.SessionID]
	if !ok {
		return
	}
	if _, ok := peers[l]; !ok {
		return
	}
	delete(peers, l)
	if len(peers) == 0 {
		delete(r.sessions, l.meta.SessionID)
	}
	r.detached++
}

// forget releases channel ownership, handshaken or not.
func (r *Relay) forget(l *link) {
	r.mu.Lock()
	delete(r.links, l)
	r.mu.Unlock()
}

// peersOf returns the other links of l's session.
func (r *Relay) peersOf(l *link) []*link {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers := make([]*link, 0, len(r.sessions[l.meta.SessionID]))
	for p := range r.sessions[l.meta.SessionID] {
		if p != l {
			peers = append(peers, p)
		}
	}
	return peers
}

func (r *Relay) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// isDecodeError reports whether err is a per-message decode failure.
func isDecodeError(err error) bool {
	var frameErr *wire.FrameError
	return errors.As(err, &frameErr) && frameErr.Kind == wire.FrameErrorDecode
}
