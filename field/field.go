// Package field exposes form fields behind an opaque accessor capability.
//
// A Locator names a field; its format belongs to the backing implementation.
// Accessors are type-aware: checkbox values round-trip as "true"/"false", and
// multi-valued widgets join their selections with MultiSeparator.
package field

import (
	"context"
	"errors"
)

// MultiSeparator joins the selections of a multi-valued widget into the
// single string form used by Value and SetValue.
const MultiSeparator = "; "

var (
	// ErrNotFound is returned when no field exists at a locator.
	ErrNotFound = errors.New("no field at locator")

	// ErrInvalidValue is returned when a value does not fit the field's
	// kind, such as a checkbox value other than "true"/"false" or a
	// selection outside the field's options.
	ErrInvalidValue = errors.New("value not valid for field")
)

// Locator identifies a single field. Opaque to this package.
type Locator string

// Kind is the widget type behind a locator.
type Kind string

// Field kinds.
const (
	KindText     Kind = "text"
	KindCheckbox Kind = "checkbox"
	KindSelect   Kind = "select"
	KindMulti    Kind = "multi"
)

// Valid reports whether k is a recognized kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindCheckbox, KindSelect, KindMulti:
		return true
	}
	return false
}

// Change is one observed field mutation.
type Change struct {
	Locator Locator
	Old     string
	New     string
}

// Accessor reads and writes form fields by locator.
type Accessor interface {
	// Kind returns the widget type behind the locator.
	Kind(loc Locator) (Kind, error)

	// Value returns the field's current value.
	Value(loc Locator) (string, error)

	// SetValue writes the field's value. Writing the current value is a
	// no-op and notifies nobody.
	SetValue(loc Locator, value string) error

	// Changes returns a feed of mutations observed after the call
	// returns. The channel closes when ctx is canceled.
	Changes(ctx context.Context) (<-chan Change, error)
}
