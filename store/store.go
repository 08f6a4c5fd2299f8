// Package store persists shared checklist and tracking state per PROTOCOL.md.
//
// Values are JSON documents addressed by the key builders in keys.go. Every
// mutation fans out to watchers as a Change carrying both the old and the new
// value, so consumers can tell a rewrite from a removal without a second read.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned for operations on a closed store.
	ErrClosed = errors.New("store: closed")

	// ErrInvalidValue is returned when Set is given a value that is not
	// a JSON document.
	ErrInvalidValue = errors.New("store: value is not valid JSON")
)

// Change is a single store mutation as delivered to watchers.
type Change struct {
	// Key is the logical key, without any backend prefix.
	Key string `json:"key"`
	// Old is the previous value. Nil when the key was newly created.
	Old json.RawMessage `json:"old,omitempty"`
	// New is the written value. Nil when the key was deleted, which is
	// the reset signal per PROTOCOL.md.
	New json.RawMessage `json:"new,omitempty"`
}

// Removed reports whether the change deleted its key.
func (c Change) Removed() bool { return c.New == nil }

// Store is a watchable key/value store for protocol state.
//
// Implementations deliver changes to every watcher in the order the
// mutations were applied.
type Store interface {
	// Get returns the value stored under key. The bool reports whether
	// the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes value under key and notifies watchers. The value must
	// be a valid JSON document.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key and notifies watchers with a nil New value.
	// Deleting an absent key is a no-op and notifies nobody.
	Delete(ctx context.Context, key string) error

	// Watch returns a channel of changes applied after the call returns.
	// The channel closes when ctx is canceled or the store is closed.
	Watch(ctx context.Context) (<-chan Change, error)

	// Close releases backend resources.
	Close() error
}

// GetJSON reads key and unmarshals its value into dst. The bool reports
// whether the key existed.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON marshals value and writes it under key.
func SetJSON(ctx context.Context, s Store, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
