// Package types defines core domain types shared by the relay, the surfaces,
// and the CLI. Wire and store representations conform to PROTOCOL.md.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
)

// LinkMeta identifies one surface link per PROTOCOL.md.
// The relay learns it from the init handshake and stamps it on every
// log entry and routing decision for the link.
type LinkMeta struct {
	// SessionID is the browser session the link belongs to. Must be non-empty.
	SessionID string
	// Surface is the rendering context the link speaks for.
	Surface SurfaceKind
	// Version is the protocol version the peer announced at init.
	// May be empty for peers that predate the version field.
	Version string
}

// Validate validates handshake rules per PROTOCOL.md:
//   - sessionId must be non-empty
//   - surface must be a known kind
//
// Version is informational only. A mismatch is logged, never fatal.
func (m *LinkMeta) Validate() error {
	if m.SessionID == "" {
		return errors.New("sessionId must be non-empty")
	}

	if !m.Surface.Valid() {
		return fmt.Errorf("unknown surface kind %q", m.Surface)
	}

	return nil
}

// DetachReason classifies why a link left the relay.
type DetachReason string

const (
	// DetachPeerClosed indicates the peer closed the channel cleanly.
	DetachPeerClosed DetachReason = "peer_closed"
	// DetachReadError indicates the transport failed mid-stream.
	DetachReadError DetachReason = "read_error"
	// DetachBadHandshake indicates the first message was not a valid init.
	DetachBadHandshake DetachReason = "bad_handshake"
	// DetachFrameFatal indicates a framing error poisoned the stream.
	DetachFrameFatal DetachReason = "frame_fatal"
	// DetachShutdown indicates the relay itself is stopping.
	DetachShutdown DetachReason = "shutdown"
)
