package iox

import (
	"errors"
	"strings"
	"testing"
)

type spyCloser struct {
	closed bool
}

func (s *spyCloser) Close() error { s.closed = true; return errors.New("ignored") }

type spyBody struct {
	spyCloser
	*strings.Reader
}

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestDrainClose(t *testing.T) {
	body := &spyBody{Reader: strings.NewReader("redirect body")}
	DrainClose(body)
	if !body.closed {
		t.Fatal("Close was not called")
	}
	if body.Len() != 0 {
		t.Fatalf("body not drained, %d bytes left", body.Len())
	}
}
