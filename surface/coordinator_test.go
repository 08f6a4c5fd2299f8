package surface

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/shiggityshwah/punchlist/checklist"
	"github.com/shiggityshwah/punchlist/field"
	"github.com/shiggityshwah/punchlist/iox"
	"github.com/shiggityshwah/punchlist/log"
	"github.com/shiggityshwah/punchlist/normalize"
	"github.com/shiggityshwah/punchlist/store"
	"github.com/shiggityshwah/punchlist/types"
	"github.com/shiggityshwah/punchlist/wire"
)

type renderCall struct {
	state       checklist.State
	currentStep int
}

type suggestCall struct {
	loc    field.Locator
	result normalize.Result
}

// fakeRenderer exposes every display callback as a buffered feed the
// test can assert on.
type fakeRenderer struct {
	renders  chan renderCall
	notices  chan string
	conns    chan ConnState
	suggests chan suggestCall
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		renders:  make(chan renderCall, 128),
		notices:  make(chan string, 16),
		conns:    make(chan ConnState, 16),
		suggests: make(chan suggestCall, 16),
	}
}

func (r *fakeRenderer) Render(state checklist.State, currentStep int) {
	r.renders <- renderCall{state: state, currentStep: currentStep}
}

func (r *fakeRenderer) Notify(text string) { r.notices <- text }

func (r *fakeRenderer) ConnectionChanged(state ConnState) { r.conns <- state }

func (r *fakeRenderer) Suggest(loc field.Locator, result normalize.Result) {
	r.suggests <- suggestCall{loc: loc, result: result}
}

// pipeDialer hands out in-process channels. Dial attempts whose ordinals
// are listed in failOn fail instead; the relay side of every successful
// dial arrives on servers.
type pipeDialer struct {
	mu      sync.Mutex
	dials   int
	failOn  map[int]bool
	servers chan wire.Channel
}

func newPipeDialer(failOn ...int) *pipeDialer {
	m := make(map[int]bool, len(failOn))
	for _, n := range failOn {
		m[n] = true
	}
	return &pipeDialer{failOn: m, servers: make(chan wire.Channel, 8)}
}

func (d *pipeDialer) dial(context.Context) (wire.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failOn[d.dials] {
		return nil, errors.New("relay unreachable")
	}
	client, server := wire.Pipe()
	d.servers <- server
	return client, nil
}

func (d *pipeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func failingDialer(context.Context) (wire.Channel, error) {
	return nil, errors.New("relay unreachable")
}

// instantAfter records each requested delay and fires the timer at once.
type instantAfter struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (a *instantAfter) After(d time.Duration) <-chan time.Time {
	a.mu.Lock()
	a.delays = append(a.delays, d)
	a.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (a *instantAfter) recorded() []time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]time.Duration(nil), a.delays...)
}

// idleAfter parks every timer, keeping retries out of tests that do not
// exercise them.
func idleAfter(time.Duration) <-chan time.Time { return make(chan time.Time) }

// mutedStore hides the change feed, so every render must come from an
// explicit resync.
type mutedStore struct{ store.Store }

func (m mutedStore) Watch(ctx context.Context) (<-chan store.Change, error) {
	ch := make(chan store.Change)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func testDefinition() checklist.Definition {
	return checklist.Definition{
		Name: "quote-intake",
		Steps: []checklist.Step{
			{Name: "Policy Number", Type: checklist.StepText, Locators: []string{"#policy"}, Normalizer: checklist.NormalizerPolicyNumber},
			{Name: "Named Insured", Type: checklist.StepText, Locators: []string{"#insured"}, Normalizer: checklist.NormalizerNamedInsured},
			{Name: "Effective Date", Type: checklist.StepText, Locators: []string{"#effective"}},
		},
	}
}

func testConfig(t *testing.T, r *fakeRenderer, dial Dialer) (Config, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	t.Cleanup(iox.CloseFunc(st))
	return Config{
		SessionID:    "session-1",
		Surface:      types.SurfacePopout,
		Definition:   testDefinition(),
		Store:        st,
		Renderer:     r,
		Dial:         dial,
		Logger:       log.NewLogger("popout").WithOutput(io.Discard),
		Backoff:      Backoff{Base: 10 * time.Millisecond, Max: 80 * time.Millisecond, MaxAttempts: 5},
		PollInterval: 25 * time.Millisecond,
		After:        idleAfter,
	}, st
}

func startCoordinator(t *testing.T, config Config) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(config)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := c.Run(ctx); err != nil {
			t.Errorf("run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-runDone
	})
	return c
}

func ownedFields(t *testing.T) *field.MemAccessor {
	t.Helper()
	a := field.NewMemAccessor()
	for _, loc := range []field.Locator{"#policy", "#insured", "#effective"} {
		if err := a.Define(loc, field.Spec{Kind: field.KindText}); err != nil {
			t.Fatalf("define %s: %v", loc, err)
		}
	}
	return a
}

// pumpServer drains the relay side of a channel into a buffered feed, so
// the coordinator's synchronous pipe sends never stall on the test.
func pumpServer(t *testing.T, ch wire.Channel) <-chan *wire.Message {
	t.Helper()
	feed := make(chan *wire.Message, 64)
	go func() {
		defer close(feed)
		for {
			m, err := ch.Receive()
			if err != nil {
				return
			}
			feed <- m
		}
	}()
	return feed
}

func waitServer(t *testing.T, d *pipeDialer) wire.Channel {
	t.Helper()
	select {
	case ch := <-d.servers:
		t.Cleanup(func() { _ = ch.Close() })
		return ch
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a dial")
	}
	return nil // unreachable
}

func waitAction(t *testing.T, feed <-chan *wire.Message, action wire.Action) *wire.Message {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case m, ok := <-feed:
			if !ok {
				t.Fatalf("channel closed waiting for %s", action)
				return nil // unreachable
			}
			if m.Action == action {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", action)
			return nil // unreachable
		}
	}
}

func waitRenderMatching(t *testing.T, r *fakeRenderer, desc string, want func(renderCall) bool) renderCall {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case rc := <-r.renders:
			if want(rc) {
				return rc
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a render: %s", desc)
			return renderCall{} // unreachable
		}
	}
}

func waitConn(t *testing.T, r *fakeRenderer) ConnState {
	t.Helper()
	select {
	case s := <-r.conns:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a connection transition")
	}
	return "" // unreachable
}

func waitNotice(t *testing.T, r *fakeRenderer) string {
	t.Helper()
	select {
	case text := <-r.notices:
		return text
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a notice")
	}
	return "" // unreachable
}

func waitSuggest(t *testing.T, r *fakeRenderer) suggestCall {
	t.Helper()
	select {
	case sc := <-r.suggests:
		return sc
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a suggestion")
	}
	return suggestCall{} // unreachable
}

func waitSnapshot(t *testing.T, c *Coordinator, desc string, want func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		s := c.Snapshot()
		if want(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for snapshot: %s (last %+v)", desc, s)
			return Snapshot{} // unreachable
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewCoordinator_Validation(t *testing.T) {
	st := store.NewMemStore()
	defer func() { _ = st.Close() }()
	base := Config{
		SessionID:  "session-1",
		Surface:    types.SurfaceOverlay,
		Definition: testDefinition(),
		Store:      st,
		Renderer:   newFakeRenderer(),
		Dial:       failingDialer,
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty session", mutate: func(c *Config) { c.SessionID = "" }},
		{name: "unknown surface", mutate: func(c *Config) { c.Surface = "sidebar" }},
		{name: "nil store", mutate: func(c *Config) { c.Store = nil }},
		{name: "nil renderer", mutate: func(c *Config) { c.Renderer = nil }},
		{name: "nil dialer", mutate: func(c *Config) { c.Dial = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := base
			tt.mutate(&config)
			if _, err := NewCoordinator(config); err == nil {
				t.Fatal("expected a config error")
			}
		})
	}

	if _, err := NewCoordinator(base); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestNewCoordinator_AppliesDefaults(t *testing.T) {
	st := store.NewMemStore()
	defer func() { _ = st.Close() }()

	c, err := NewCoordinator(Config{
		SessionID:  "session-1",
		Surface:    types.SurfaceOverlay,
		Definition: testDefinition(),
		Store:      st,
		Renderer:   newFakeRenderer(),
		Dial:       failingDialer,
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	if c.config.Backoff.Base != DefaultBackoffBase {
		t.Fatalf("backoff base = %v, want %v", c.config.Backoff.Base, DefaultBackoffBase)
	}
	if c.config.Backoff.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("max attempts = %d, want %d", c.config.Backoff.MaxAttempts, DefaultMaxAttempts)
	}
	if c.config.PollInterval != DefaultPollInterval {
		t.Fatalf("poll interval = %v, want %v", c.config.PollInterval, DefaultPollInterval)
	}
	if c.config.After == nil {
		t.Fatal("after not defaulted")
	}
	if c.logger == nil {
		t.Fatal("logger not defaulted")
	}
}

func TestCoordinator_ConnectSendsInit(t *testing.T) {
	r := newFakeRenderer()
	d := newPipeDialer()
	config, _ := testConfig(t, r, d.dial)
	startCoordinator(t, config)

	server := waitServer(t, d)
	feed := pumpServer(t, server)

	init := waitAction(t, feed, wire.ActionInit)
	if init.SessionID != "session-1" {
		t.Fatalf("init session = %q, want session-1", init.SessionID)
	}
	if init.Surface != types.SurfacePopout {
		t.Fatalf("init surface = %q, want popout", init.Surface)
	}
	if init.Version != types.Version {
		t.Fatalf("init version = %q, want %q", init.Version, types.Version)
	}

	if got := waitConn(t, r); got != StateConnected {
		t.Fatalf("first transition = %q, want connected", got)
	}
}

func TestCoordinator_StepMutationsPersist(t *testing.T) {
	r := newFakeRenderer()
	config, st := testConfig(t, r, failingDialer)
	c := startCoordinator(t, config)

	c.Confirm(0)
	c.Skip(1)
	snap := waitSnapshot(t, c, "step 0 processed and step 1 skipped", func(s Snapshot) bool {
		return len(s.State) == 3 && s.State[0].Processed && s.State[1].Skipped
	})
	if snap.CurrentStep != 2 {
		t.Fatalf("current step = %d, want 2", snap.CurrentStep)
	}

	var persisted checklist.State
	found, err := store.GetJSON(context.Background(), st, store.ChecklistStateKey("session-1"), &persisted)
	if err != nil || !found {
		t.Fatalf("read state: found=%v err=%v", found, err)
	}
	if !persisted[0].Processed || !persisted[1].Skipped || !persisted[2].Untouched() {
		t.Fatalf("persisted state = %+v", persisted)
	}

	c.Unconfirm(0)
	waitSnapshot(t, c, "step 0 untouched again", func(s Snapshot) bool {
		return s.State[0].Untouched() && s.CurrentStep == 0
	})
	if _, err := store.GetJSON(context.Background(), st, store.ChecklistStateKey("session-1"), &persisted); err != nil {
		t.Fatalf("read state: %v", err)
	}
	if !persisted[0].Untouched() {
		t.Fatalf("unconfirm not persisted: %+v", persisted)
	}
}

func TestCoordinator_OutOfRangeStepIgnored(t *testing.T) {
	r := newFakeRenderer()
	config, _ := testConfig(t, r, failingDialer)
	c := startCoordinator(t, config)

	c.Confirm(7)
	c.Skip(-1)
	c.Confirm(2)

	snap := waitSnapshot(t, c, "only step 2 processed", func(s Snapshot) bool {
		return s.State[2].Processed
	})
	processed, skipped := snap.State.Counts()
	if processed != 1 || skipped != 0 {
		t.Fatalf("counts = %d processed %d skipped, want 1/0", processed, skipped)
	}
}

func TestCoordinator_PeerStoreChangeRenders(t *testing.T) {
	r := newFakeRenderer()
	config, st := testConfig(t, r, failingDialer)
	startCoordinator(t, config)

	peer := checklist.NewState(3)
	_ = peer.Skip(2)
	if err := store.SetJSON(context.Background(), st, store.ChecklistStateKey("session-1"), peer); err != nil {
		t.Fatalf("peer write: %v", err)
	}

	rc := waitRenderMatching(t, r, "third step skipped", func(rc renderCall) bool {
		return len(rc.state) == 3 && rc.state[2].Skipped
	})
	if rc.currentStep != 0 {
		t.Fatalf("current step = %d, want 0", rc.currentStep)
	}
}

func TestCoordinator_StoreRemovalResetsView(t *testing.T) {
	r := newFakeRenderer()
	config, st := testConfig(t, r, failingDialer)
	c := startCoordinator(t, config)

	c.Confirm(0)
	waitSnapshot(t, c, "step 0 processed", func(s Snapshot) bool {
		return s.State[0].Processed
	})

	if err := st.Delete(context.Background(), store.ChecklistStateKey("session-1")); err != nil {
		t.Fatalf("delete: %v", err)
	}

	waitSnapshot(t, c, "view reset to untouched", func(s Snapshot) bool {
		processed, skipped := s.State.Counts()
		return len(s.State) == 3 && processed == 0 && skipped == 0
	})

	// Recreating the key is the accessor owner's job; this surface owns
	// no fields and must leave the store alone.
	if _, ok, err := st.Get(context.Background(), store.ChecklistStateKey("session-1")); err != nil || ok {
		t.Fatalf("state key present after reset: ok=%v err=%v", ok, err)
	}
}

func TestCoordinator_OwnerRecreatesAfterReset(t *testing.T) {
	r := newFakeRenderer()
	d := newPipeDialer()
	config, st := testConfig(t, r, d.dial)
	config.Surface = types.SurfaceOverlay
	config.Fields = ownedFields(t)
	c := startCoordinator(t, config)

	server := waitServer(t, d)
	feed := pumpServer(t, server)
	waitAction(t, feed, wire.ActionInit)

	c.Confirm(0)
	waitAction(t, feed, wire.ActionUpdateDisplay)

	c.Reset()
	reset := waitAction(t, feed, wire.ActionResetComplete)
	if reset.SessionID != "session-1" || reset.Surface != types.SurfaceOverlay {
		t.Fatalf("resetComplete stamped %q/%q", reset.SessionID, reset.Surface)
	}
	if text := waitNotice(t, r); text != "Checklist reset" {
		t.Fatalf("notice = %q", text)
	}

	var persisted checklist.State
	found, err := store.GetJSON(context.Background(), st, store.ChecklistStateKey("session-1"), &persisted)
	if err != nil || !found {
		t.Fatalf("read recreated state: found=%v err=%v", found, err)
	}
	processed, skipped := persisted.Counts()
	if len(persisted) != 3 || processed != 0 || skipped != 0 {
		t.Fatalf("recreated state = %+v", persisted)
	}
}

func TestCoordinator_ResetConvergesWithConcurrentWrite(t *testing.T) {
	r := newFakeRenderer()
	config, st := testConfig(t, r, failingDialer)
	config.Surface = types.SurfaceOverlay
	config.Fields = ownedFields(t)
	c := startCoordinator(t, config)

	waitSnapshot(t, c, "bootstrap settled", func(s Snapshot) bool {
		return s.Conn == StateReconnecting
	})

	peer := checklist.NewState(3)
	_ = peer.Confirm(1)
	key := store.ChecklistStateKey("session-1")

	wrote := make(chan struct{})
	go func() {
		defer close(wrote)
		_ = store.SetJSON(context.Background(), st, key, peer)
	}()
	c.Reset()
	<-wrote

	// Whichever write lands last, the rendered view must converge to
	// the persisted value.
	waitSnapshot(t, c, "view converged to the store", func(s Snapshot) bool {
		var persisted checklist.State
		found, err := store.GetJSON(context.Background(), st, key, &persisted)
		if err != nil || !found {
			return false
		}
		return reflect.DeepEqual(s.State, persisted)
	})

	var persisted checklist.State
	if _, err := store.GetJSON(context.Background(), st, key, &persisted); err != nil {
		t.Fatalf("read state: %v", err)
	}
	processed, skipped := persisted.Counts()
	fresh := processed == 0 && skipped == 0
	if !fresh && !persisted[1].Processed {
		t.Fatalf("store settled on unexpected state %+v", persisted)
	}
}

func TestCoordinator_RemoteDisplayUpdateRenders(t *testing.T) {
	r := newFakeRenderer()
	d := newPipeDialer()
	config, _ := testConfig(t, r, d.dial)
	startCoordinator(t, config)

	server := waitServer(t, d)
	feed := pumpServer(t, server)
	waitAction(t, feed, wire.ActionInit)

	remote := checklist.NewState(3)
	_ = remote.Confirm(0)
	_ = remote.Confirm(1)
	if err := server.Send(&wire.Message{
		Action:       wire.ActionUpdateDisplay,
		CurrentStep:  2,
		State:        remote,
		DisplayNames: []string{"Policy Number", "Named Insured", "Effective Date"},
	}); err != nil {
		t.Fatalf("send updateDisplay: %v", err)
	}

	rc := waitRenderMatching(t, r, "two processed steps", func(rc renderCall) bool {
		return len(rc.state) == 3 && rc.state[0].Processed && rc.state[1].Processed
	})
	if rc.currentStep != 2 {
		t.Fatalf("current step = %d, want 2", rc.currentStep)
	}

	// A payload of the wrong length cannot be mapped onto the
	// definition and renders as a fresh state instead.
	if err := server.Send(&wire.Message{
		Action: wire.ActionUpdateDisplay,
		State:  checklist.NewState(2),
	}); err != nil {
		t.Fatalf("send mismatched updateDisplay: %v", err)
	}
	waitRenderMatching(t, r, "mismatched payload rebuilt", func(rc renderCall) bool {
		processed, skipped := rc.state.Counts()
		return len(rc.state) == 3 && processed == 0 && skipped == 0
	})
}

func TestCoordinator_OwnerPersistsRemoteConfirm(t *testing.T) {
	r := newFakeRenderer()
	d := newPipeDialer()
	config, st := testConfig(t, r, d.dial)
	config.Surface = types.SurfaceOverlay
	config.Fields = ownedFields(t)
	startCoordinator(t, config)

	server := waitServer(t, d)
	feed := pumpServer(t, server)
	waitAction(t, feed, wire.ActionInit)

	if err := server.Send(&wire.Message{Action: wire.ActionConfirmField, StepIndex: 1}); err != nil {
		t.Fatalf("send confirmField: %v", err)
	}

	upd := waitAction(t, feed, wire.ActionUpdateDisplay)
	if len(upd.State) != 3 || !upd.State[1].Processed {
		t.Fatalf("broadcast state = %+v", upd.State)
	}

	var persisted checklist.State
	found, err := store.GetJSON(context.Background(), st, store.ChecklistStateKey("session-1"), &persisted)
	if err != nil || !found {
		t.Fatalf("read state: found=%v err=%v", found, err)
	}
	if !persisted[1].Processed {
		t.Fatalf("remote confirm not persisted: %+v", persisted)
	}
}

func TestCoordinator_NonOwnerAppliesRemoteConfirmLocally(t *testing.T) {
	r := newFakeRenderer()
	d := newPipeDialer()
	config, st := testConfig(t, r, d.dial)
	c := startCoordinator(t, config)

	server := waitServer(t, d)
	feed := pumpServer(t, server)
	waitAction(t, feed, wire.ActionInit)

	if err := server.Send(&wire.Message{Action: wire.ActionSkipField, StepIndex: 2}); err != nil {
		t.Fatalf("send skipField: %v", err)
	}

	waitSnapshot(t, c, "step 2 skipped", func(s Snapshot) bool {
		return s.State[2].Skipped
	})

	// The fast path renders only; persisting belongs to the owner.
	if _, ok, err := st.Get(context.Background(), store.ChecklistStateKey("session-1")); err != nil || ok {
		t.Fatalf("non-owner wrote the store: ok=%v err=%v", ok, err)
	}
}

func TestCoordinator_FieldEditSuggestsNormalization(t *testing.T) {
	r := newFakeRenderer()
	config, _ := testConfig(t, r, failingDialer)
	config.Surface = types.SurfaceOverlay
	fields := ownedFields(t)
	config.Fields = fields
	c := startCoordinator(t, config)

	waitSnapshot(t, c, "bootstrap settled", func(s Snapshot) bool {
		return s.Conn == StateReconnecting
	})

	if err := fields.SetValue("#policy", "PN 1234"); err != nil {
		t.Fatalf("set field: %v", err)
	}
	sg := waitSuggest(t, r)
	if sg.loc != "#policy" {
		t.Fatalf("suggestion locator = %q", sg.loc)
	}
	if sg.result.IsValid || sg.result.FixedValue != "PN1234" {
		t.Fatalf("suggestion result = %+v", sg.result)
	}
	if sg.result.Message == "" {
		t.Fatal("suggestion carries no message")
	}

	// A field without a normalizer never suggests; the next suggestion
	// must come from the second policy edit.
	if err := fields.SetValue("#effective", "2026-09-01"); err != nil {
		t.Fatalf("set field: %v", err)
	}
	if err := fields.SetValue("#policy", "PN 77"); err != nil {
		t.Fatalf("set field: %v", err)
	}
	sg = waitSuggest(t, r)
	if sg.loc != "#policy" || sg.result.FixedValue != "PN77" {
		t.Fatalf("second suggestion = %+v", sg)
	}
}

func TestCoordinator_UpdateFieldValueRoutes(t *testing.T) {
	t.Run("owner writes the accessor", func(t *testing.T) {
		r := newFakeRenderer()
		config, _ := testConfig(t, r, failingDialer)
		config.Surface = types.SurfaceOverlay
		fields := ownedFields(t)
		config.Fields = fields
		c := startCoordinator(t, config)

		c.UpdateFieldValue("#policy", "PN1234")

		deadline := time.Now().Add(5 * time.Second)
		for {
			v, err := fields.Value("#policy")
			if err != nil {
				t.Fatalf("read field: %v", err)
			}
			if v == "PN1234" {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("field value = %q, want PN1234", v)
			}
			time.Sleep(5 * time.Millisecond)
		}
	})

	t.Run("non-owner asks the session", func(t *testing.T) {
		r := newFakeRenderer()
		d := newPipeDialer()
		config, _ := testConfig(t, r, d.dial)
		c := startCoordinator(t, config)

		server := waitServer(t, d)
		feed := pumpServer(t, server)
		waitAction(t, feed, wire.ActionInit)

		c.UpdateFieldValue("#policy", "PN1234")

		m := waitAction(t, feed, wire.ActionUpdateFieldValue)
		if m.Locator != "#policy" || m.Value != "PN1234" {
			t.Fatalf("routed edit = %q/%q", m.Locator, m.Value)
		}
		if m.SessionID != "session-1" || m.Surface != types.SurfacePopout {
			t.Fatalf("edit stamped %q/%q", m.SessionID, m.Surface)
		}
	})

	t.Run("owner applies a routed edit", func(t *testing.T) {
		r := newFakeRenderer()
		d := newPipeDialer()
		config, _ := testConfig(t, r, d.dial)
		config.Surface = types.SurfaceOverlay
		fields := ownedFields(t)
		config.Fields = fields
		startCoordinator(t, config)

		server := waitServer(t, d)
		feed := pumpServer(t, server)
		waitAction(t, feed, wire.ActionInit)

		if err := server.Send(&wire.Message{
			Action:  wire.ActionUpdateFieldValue,
			Locator: "#insured",
			Value:   "John & Jane Smith",
		}); err != nil {
			t.Fatalf("send updateFieldValue: %v", err)
		}

		deadline := time.Now().Add(5 * time.Second)
		for {
			v, err := fields.Value("#insured")
			if err != nil {
				t.Fatalf("read field: %v", err)
			}
			if v == "John & Jane Smith" {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("field value = %q", v)
			}
			time.Sleep(5 * time.Millisecond)
		}
	})
}

func TestCoordinator_ChannelLossRedialsImmediately(t *testing.T) {
	r := newFakeRenderer()
	d := newPipeDialer()
	after := &instantAfter{}
	config, _ := testConfig(t, r, d.dial)
	config.After = after.After
	startCoordinator(t, config)

	server1 := waitServer(t, d)
	feed1 := pumpServer(t, server1)
	waitAction(t, feed1, wire.ActionInit)
	if got := waitConn(t, r); got != StateConnected {
		t.Fatalf("transition = %q, want connected", got)
	}

	_ = server1.Close()

	server2 := waitServer(t, d)
	feed2 := pumpServer(t, server2)
	waitAction(t, feed2, wire.ActionInit)

	if got := waitConn(t, r); got != StateDisconnected {
		t.Fatalf("transition = %q, want disconnected", got)
	}
	if got := waitConn(t, r); got != StateConnected {
		t.Fatalf("transition = %q, want connected", got)
	}
	if n := d.dialCount(); n != 2 {
		t.Fatalf("dials = %d, want 2", n)
	}
	if delays := after.recorded(); len(delays) != 0 {
		t.Fatalf("first redial waited %v, want immediate", delays)
	}
}

func TestCoordinator_DialFailuresBackOffThenPoll(t *testing.T) {
	r := newFakeRenderer()
	d := newPipeDialer(1, 2, 3, 4, 5)
	after := &instantAfter{}
	config, _ := testConfig(t, r, d.dial)
	config.After = after.After
	startCoordinator(t, config)

	if got := waitConn(t, r); got != StateReconnecting {
		t.Fatalf("transition = %q, want reconnecting", got)
	}
	if got := waitConn(t, r); got != StatePolling {
		t.Fatalf("transition = %q, want polling", got)
	}
	if got := waitConn(t, r); got != StateConnected {
		t.Fatalf("transition = %q, want connected", got)
	}

	server := waitServer(t, d)
	feed := pumpServer(t, server)
	waitAction(t, feed, wire.ActionInit)

	want := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		80 * time.Millisecond,
		25 * time.Millisecond,
	}
	if got := after.recorded(); !reflect.DeepEqual(got, want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	if n := d.dialCount(); n != 6 {
		t.Fatalf("dials = %d, want 6", n)
	}
}

func TestCoordinator_ResyncAfterReconnect(t *testing.T) {
	r := newFakeRenderer()
	d := newPipeDialer(2)
	after := &instantAfter{}
	base := store.NewMemStore()
	t.Cleanup(func() { _ = base.Close() })

	config, _ := testConfig(t, r, d.dial)
	config.Store = mutedStore{base}
	config.After = after.After
	startCoordinator(t, config)

	server1 := waitServer(t, d)
	feed1 := pumpServer(t, server1)
	waitAction(t, feed1, wire.ActionInit)

	// Progress lands in the store while the change feed is mute, so the
	// only way the view can pick it up is the reconnect resync.
	peer := checklist.NewState(3)
	_ = peer.Confirm(0)
	_ = peer.Confirm(1)
	if err := store.SetJSON(context.Background(), base, store.ChecklistStateKey("session-1"), peer); err != nil {
		t.Fatalf("peer write: %v", err)
	}

	_ = server1.Close()

	server2 := waitServer(t, d)
	feed2 := pumpServer(t, server2)
	waitAction(t, feed2, wire.ActionInit)

	rc := waitRenderMatching(t, r, "resynced progress", func(rc renderCall) bool {
		return len(rc.state) == 3 && rc.state[0].Processed && rc.state[1].Processed
	})
	if rc.currentStep != 2 {
		t.Fatalf("current step = %d, want 2", rc.currentStep)
	}

	if got := after.recorded(); len(got) != 1 || got[0] != 10*time.Millisecond {
		t.Fatalf("delays = %v, want one base delay", got)
	}
	if n := d.dialCount(); n != 3 {
		t.Fatalf("dials = %d, want 3", n)
	}
}

func TestCoordinator_ToggleUIAndViewModePersist(t *testing.T) {
	r := newFakeRenderer()
	config, st := testConfig(t, r, failingDialer)
	c := startCoordinator(t, config)

	c.ToggleUI(false)
	waitSnapshot(t, c, "overlay hidden", func(s Snapshot) bool { return !s.Visible })

	var ui types.UIState
	found, err := store.GetJSON(context.Background(), st, store.UIStateKey("session-1"), &ui)
	if err != nil || !found {
		t.Fatalf("read ui state: found=%v err=%v", found, err)
	}
	if ui.Visible {
		t.Fatal("visibility not persisted")
	}

	c.ChangeViewMode(types.ViewModeFull)
	waitSnapshot(t, c, "full view", func(s Snapshot) bool { return s.ViewMode == types.ViewModeFull })

	var mode types.ViewMode
	found, err = store.GetJSON(context.Background(), st, store.ViewModeKey("session-1"), &mode)
	if err != nil || !found {
		t.Fatalf("read view mode: found=%v err=%v", found, err)
	}
	if mode != types.ViewModeFull {
		t.Fatalf("view mode = %q, want full", mode)
	}

	// A peer flips visibility back through the store.
	if err := store.SetJSON(context.Background(), st, store.UIStateKey("session-1"), types.UIState{Visible: true}); err != nil {
		t.Fatalf("peer write: %v", err)
	}
	waitSnapshot(t, c, "overlay visible again", func(s Snapshot) bool { return s.Visible })
}

func TestCoordinator_InvalidViewModeIgnored(t *testing.T) {
	r := newFakeRenderer()
	config, st := testConfig(t, r, failingDialer)
	c := startCoordinator(t, config)

	c.ChangeViewMode("grid")

	snap := c.Snapshot()
	if snap.ViewMode != types.ViewModeSingle {
		t.Fatalf("view mode = %q, want single", snap.ViewMode)
	}
	if _, ok, err := st.Get(context.Background(), store.ViewModeKey("session-1")); err != nil || ok {
		t.Fatalf("invalid mode persisted: ok=%v err=%v", ok, err)
	}
}

func TestCoordinator_IgnoresUnknownChannelActions(t *testing.T) {
	r := newFakeRenderer()
	d := newPipeDialer()
	config, _ := testConfig(t, r, d.dial)
	startCoordinator(t, config)

	server := waitServer(t, d)
	feed := pumpServer(t, server)
	waitAction(t, feed, wire.ActionInit)

	if err := server.Send(&wire.Message{Action: "futureAction", Value: "whatever"}); err != nil {
		t.Fatalf("send unknown action: %v", err)
	}

	sentinel := checklist.NewState(3)
	_ = sentinel.Confirm(0)
	if err := server.Send(&wire.Message{Action: wire.ActionUpdateDisplay, State: sentinel}); err != nil {
		t.Fatalf("send sentinel: %v", err)
	}
	waitRenderMatching(t, r, "sentinel after unknown action", func(rc renderCall) bool {
		return rc.state[0].Processed
	})
}

func TestCoordinator_SnapshotAfterStop(t *testing.T) {
	r := newFakeRenderer()
	config, _ := testConfig(t, r, failingDialer)
	c, err := NewCoordinator(config)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = c.Run(ctx)
	}()
	cancel()
	<-runDone

	snap := c.Snapshot()
	if snap.Conn != StateDisconnected || snap.CurrentStep != -1 {
		t.Fatalf("stopped snapshot = %+v", snap)
	}
}
