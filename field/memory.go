package field

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"
)

// watchBuffer is the per-subscriber change buffer size.
const watchBuffer = 64

// Spec declares one in-memory field.
type Spec struct {
	Kind Kind
	// Value is the initial value. Checkboxes default to "false".
	Value string
	// Options constrains select and multi fields when non-empty.
	Options []string
}

// MemAccessor is an in-memory Accessor backing tests and the demo overlay.
//
// Fields are declared up front with Define; reads and writes of undeclared
// locators fail with ErrNotFound. Changes are fanned out under the write
// lock, so every subscriber observes mutations in the order they applied.
type MemAccessor struct {
	mu     sync.RWMutex
	fields map[Locator]*memField
	subs   map[*watcher]struct{}
}

type memField struct {
	kind    Kind
	value   string
	options []string
}

type watcher struct {
	ch chan Change
}

// NewMemAccessor returns an accessor with no fields defined.
func NewMemAccessor() *MemAccessor {
	return &MemAccessor{
		fields: make(map[Locator]*memField),
		subs:   make(map[*watcher]struct{}),
	}
}

// Define declares a field. Redefining a locator replaces it without
// notifying subscribers.
func (a *MemAccessor) Define(loc Locator, spec Spec) error {
	if !spec.Kind.Valid() {
		return fmt.Errorf("field %s: unknown kind %q", loc, spec.Kind)
	}
	if spec.Kind == KindCheckbox && spec.Value == "" {
		spec.Value = "false"
	}
	if err := checkValue(spec.Kind, spec.Options, spec.Value); err != nil {
		return fmt.Errorf("field %s: %w", loc, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.fields[loc] = &memField{
		kind:    spec.Kind,
		value:   spec.Value,
		options: append([]string(nil), spec.Options...),
	}
	return nil
}

// Kind returns the widget type behind the locator.
func (a *MemAccessor) Kind(loc Locator) (Kind, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	f, ok := a.fields[loc]
	if !ok {
		return "", fmt.Errorf("field %s: %w", loc, ErrNotFound)
	}
	return f.kind, nil
}

// Value returns the field's current value.
func (a *MemAccessor) Value(loc Locator) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	f, ok := a.fields[loc]
	if !ok {
		return "", fmt.Errorf("field %s: %w", loc, ErrNotFound)
	}
	return f.value, nil
}

// SetValue writes the field's value and notifies subscribers. Writing the
// current value is a no-op and notifies nobody.
func (a *MemAccessor) SetValue(loc Locator, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, ok := a.fields[loc]
	if !ok {
		return fmt.Errorf("field %s: %w", loc, ErrNotFound)
	}
	if err := checkValue(f.kind, f.options, value); err != nil {
		return fmt.Errorf("field %s: %w", loc, err)
	}
	if value == f.value {
		return nil
	}

	old := f.value
	f.value = value
	c := Change{Locator: loc, Old: old, New: value}
	for w := range a.subs {
		w.deliver(c)
	}
	return nil
}

// Changes returns a feed of mutations observed after the call returns.
func (a *MemAccessor) Changes(ctx context.Context) (<-chan Change, error) {
	w := &watcher{ch: make(chan Change, watchBuffer)}

	a.mu.Lock()
	a.subs[w] = struct{}{}
	a.mu.Unlock()

	go func() {
		<-ctx.Done()
		a.mu.Lock()
		defer a.mu.Unlock()
		if _, ok := a.subs[w]; ok {
			delete(a.subs, w)
			close(w.ch)
		}
	}()

	return w.ch, nil
}

// deliver is only called with the accessor write lock held, which
// serializes sends against channel close.
func (w *watcher) deliver(c Change) {
	select {
	case w.ch <- c:
		return
	default:
	}
	// Buffer full: drop the oldest queued change in favor of the newest.
	select {
	case <-w.ch:
	default:
	}
	select {
	case w.ch <- c:
	default:
	}
}

func checkValue(kind Kind, options []string, value string) error {
	switch kind {
	case KindCheckbox:
		if value != "true" && value != "false" {
			return fmt.Errorf("%w: checkbox wants true or false, got %q", ErrInvalidValue, value)
		}
	case KindSelect:
		if value == "" || len(options) == 0 {
			return nil
		}
		if !lo.Contains(options, value) {
			return fmt.Errorf("%w: %q is not an option", ErrInvalidValue, value)
		}
	case KindMulti:
		if value == "" || len(options) == 0 {
			return nil
		}
		for _, part := range strings.Split(value, MultiSeparator) {
			if !lo.Contains(options, part) {
				return fmt.Errorf("%w: %q is not an option", ErrInvalidValue, part)
			}
		}
	}
	return nil
}

// Verify MemAccessor implements the accessor interface.
var _ Accessor = (*MemAccessor)(nil)
