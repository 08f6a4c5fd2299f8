package wire

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// Channel is one bidirectional message stream between a surface and the
// relay.
//
// Send is safe for concurrent use. Receive is meant for a single read loop;
// Close unblocks a pending Receive.
type Channel interface {
	Send(m *Message) error
	Receive() (*Message, error)
	Close() error
}

// connChannel frames messages over a net.Conn.
type connChannel struct {
	conn net.Conn
	dec  *FrameDecoder
	wmu  sync.Mutex
}

// NewChannel wraps an established connection in a Channel.
func NewChannel(conn net.Conn) Channel {
	return &connChannel{conn: conn, dec: NewFrameDecoder(conn)}
}

func (ch *connChannel) Send(m *Message) error {
	frame, err := EncodeMessage(m)
	if err != nil {
		return err
	}

	ch.wmu.Lock()
	defer ch.wmu.Unlock()
	if _, err := ch.conn.Write(frame); err != nil {
		return fmt.Errorf("wire: send: %w", err)
	}
	return nil
}

func (ch *connChannel) Receive() (*Message, error) {
	payload, err := ch.dec.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeMessage(payload)
}

func (ch *connChannel) Close() error {
	return ch.conn.Close()
}

// Dial connects to a relay endpoint. Network is "tcp" or "unix".
func Dial(network, addr string) (Channel, error) {
	return DialContext(context.Background(), network, addr)
}

// DialContext connects to a relay endpoint, honoring ctx for the dial.
func DialContext(ctx context.Context, network, addr string) (Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s %s: %w", network, addr, err)
	}
	return NewChannel(conn), nil
}

// Listener accepts surface connections for the relay.
type Listener struct {
	l net.Listener
}

// Listen opens a relay endpoint. Network is "tcp" or "unix".
func Listen(network, addr string) (*Listener, error) {
	l, err := net.Listen(network, addr)
	if err != nil {
		return nil, fmt.Errorf("wire: listen %s %s: %w", network, addr, err)
	}
	return &Listener{l: l}, nil
}

// Accept blocks for the next surface connection.
func (l *Listener) Accept() (Channel, error) {
	conn, err := l.l.Accept()
	if err != nil {
		return nil, fmt.Errorf("wire: accept: %w", err)
	}
	return NewChannel(conn), nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.l.Addr()
}

// Close stops accepting. Established channels stay open.
func (l *Listener) Close() error {
	return l.l.Close()
}

// Pipe returns two connected in-process channels, used by tests and
// embedded surfaces. Sends block until the peer receives.
func Pipe() (Channel, Channel) {
	a, b := net.Pipe()
	return NewChannel(a), NewChannel(b)
}

// Verify connChannel implements the channel interface.
var _ Channel = (*connChannel)(nil)
