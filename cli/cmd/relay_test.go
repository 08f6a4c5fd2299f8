package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shiggityshwah/punchlist/wire"
)

func TestRelayAction_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- newTestApp().RunContext(ctx, []string{"punchlist", "relay", "--relay", "127.0.0.1:0"})
	}()

	// Give the listener a moment to come up, then stop the daemon the
	// way a signal would.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("relay should stop cleanly on cancel, got: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}

func TestRelayAction_ListenFailure(t *testing.T) {
	ln, err := wire.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ln.Close() }()

	err = newTestApp().Run([]string{"punchlist", "relay", "--relay", ln.Addr().String()})
	if err == nil {
		t.Fatal("expected a second listener on the same address to fail")
	}
	if !strings.Contains(err.Error(), "address already in use") {
		t.Errorf("error should name the listen failure, got: %v", err)
	}
}
