// Package checklist models an ordered step list and its progress state.
//
// State transitions are pure: no I/O, no clocks. Persistence and
// propagation live in the store and surface packages.
package checklist

import (
	"errors"
	"fmt"
)

// ErrIndexOutOfRange is returned for a step index outside the state.
// Callers log it and treat the operation as a no-op.
var ErrIndexOutOfRange = errors.New("checklist: step index out of range")

// StepType classifies the field widget a step reviews.
type StepType string

// Step type constants.
const (
	StepText     StepType = "text"
	StepCheckbox StepType = "checkbox"
	StepSelect   StepType = "select"
	StepMulti    StepType = "multi"
)

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	switch t {
	case StepText, StepCheckbox, StepSelect, StepMulti:
		return true
	}
	return false
}

// Normalizer rule-set names a step may reference.
const (
	NormalizerPolicyNumber = "policy_number"
	NormalizerNamedInsured = "named_insured"
)

// ValidNormalizer reports whether name is a known rule set or empty.
func ValidNormalizer(name string) bool {
	return name == "" || name == NormalizerPolicyNumber || name == NormalizerNamedInsured
}

// Step is one reviewable entry of a checklist definition.
type Step struct {
	// Name is the display name shown by every surface.
	Name string `yaml:"name" json:"name"`
	// Type selects the field accessor behavior.
	Type StepType `yaml:"type" json:"type"`
	// Locators are opaque field locator strings, tried in order.
	Locators []string `yaml:"locators,omitempty" json:"locators,omitempty"`
	// Normalizer names the normalization rule set applied to the field
	// value ("named_insured", "policy_number"), empty for none.
	Normalizer string `yaml:"normalizer,omitempty" json:"normalizer,omitempty"`
}

// Definition is an ordered checklist definition, immutable for a session.
type Definition struct {
	Name  string `yaml:"name" json:"name"`
	Steps []Step `yaml:"steps" json:"steps"`
}

// DisplayNames returns the step names in definition order.
func (d *Definition) DisplayNames() []string {
	names := make([]string, len(d.Steps))
	for i, s := range d.Steps {
		names[i] = s.Name
	}
	return names
}

// ItemState is the progress of a single step.
// Processed and Skipped are never both true in a well-formed state.
type ItemState struct {
	Processed bool `json:"processed" msgpack:"processed"`
	Skipped   bool `json:"skipped" msgpack:"skipped"`
}

// Untouched reports whether the step has been neither processed nor skipped.
func (s ItemState) Untouched() bool {
	return !s.Processed && !s.Skipped
}

// State is the per-session progress, index-aligned with the definition.
type State []ItemState

// NewState returns an all-untouched state of n items.
func NewState(n int) State {
	if n < 0 {
		n = 0
	}
	return make(State, n)
}

// Conform returns s unchanged when its length matches the definition
// length n, otherwise a fresh all-untouched state of n items. Progress
// is deliberately dropped on mismatch: after a definition change there
// is no index mapping worth guessing at.
func (s State) Conform(n int) State {
	if len(s) == n {
		return s
	}
	return NewState(n)
}

// Clone returns an independent copy of s.
func (s State) Clone() State {
	out := make(State, len(s))
	copy(out, s)
	return out
}

// Confirm marks step index as processed.
func (s State) Confirm(index int) error {
	if err := s.check(index); err != nil {
		return err
	}
	s[index] = ItemState{Processed: true}
	return nil
}

// Skip marks step index as skipped.
func (s State) Skip(index int) error {
	if err := s.check(index); err != nil {
		return err
	}
	s[index] = ItemState{Skipped: true}
	return nil
}

// Unconfirm returns step index to untouched.
func (s State) Unconfirm(index int) error {
	if err := s.check(index); err != nil {
		return err
	}
	s[index] = ItemState{}
	return nil
}

func (s State) check(index int) error {
	if index < 0 || index >= len(s) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(s))
	}
	return nil
}

// NextActionable returns the index of the step the user should act on
// next, or -1 when every step is processed (or the state is empty).
//
// The scan is two-pass: the first untouched step wins, and skipped
// steps come around again only once nothing is untouched. Folding the
// passes would park the user on an early skipped step instead of
// moving them to new ground.
func (s State) NextActionable() int {
	for i, item := range s {
		if item.Untouched() {
			return i
		}
	}
	for i, item := range s {
		if item.Skipped {
			return i
		}
	}
	return -1
}

// Counts returns the number of processed and skipped steps.
func (s State) Counts() (processed, skipped int) {
	for _, item := range s {
		if item.Processed {
			processed++
		}
		if item.Skipped {
			skipped++
		}
	}
	return processed, skipped
}

// Complete reports whether every step is processed.
func (s State) Complete() bool {
	if len(s) == 0 {
		return false
	}
	processed, _ := s.Counts()
	return processed == len(s)
}
