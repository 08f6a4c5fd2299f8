package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// DefaultWatchBuffer is the per-watcher change buffer size.
const DefaultWatchBuffer = 64

// MemStore is an in-memory Store backing tests and single-process mode.
//
// Changes are fanned out under the write lock, so every watcher observes
// mutations in the order they were applied. A watcher that falls more than
// DefaultWatchBuffer changes behind loses the oldest ones.
type MemStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	subs   map[*memWatcher]struct{}
	done   chan struct{}
	closed bool
}

type memWatcher struct {
	ch chan Change
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string][]byte),
		subs: make(map[*memWatcher]struct{}),
		done: make(chan struct{}),
	}
}

// Get returns the value stored under key.
func (s *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, ErrClosed
	}
	value, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(value), true, nil
}

// Set writes value under key and notifies watchers.
func (s *MemStore) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("%w (key %q)", ErrInvalidValue, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	old := s.data[key]
	stored := bytes.Clone(value)
	s.data[key] = stored
	s.notifyLocked(Change{Key: key, Old: old, New: stored})
	return nil
}

// Delete removes key and notifies watchers with a nil New value.
// Deleting an absent key is a no-op.
func (s *MemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	old, ok := s.data[key]
	if !ok {
		return nil
	}
	delete(s.data, key)
	s.notifyLocked(Change{Key: key, Old: old})
	return nil
}

// Watch returns a channel of changes applied after the call returns.
// The channel closes when ctx is canceled or the store is closed.
func (s *MemStore) Watch(ctx context.Context) (<-chan Change, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	w := &memWatcher{ch: make(chan Change, DefaultWatchBuffer)}
	s.subs[w] = struct{}{}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.remove(w)
	}()

	return w.ch, nil
}

// Close drops all data and closes every watcher channel.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	for w := range s.subs {
		delete(s.subs, w)
		close(w.ch)
	}
	s.data = nil
	return nil
}

func (s *MemStore) notifyLocked(c Change) {
	for w := range s.subs {
		w.deliver(c)
	}
}

func (s *MemStore) remove(w *memWatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[w]; ok {
		delete(s.subs, w)
		close(w.ch)
	}
}

// deliver is only called with the store write lock held, which serializes
// sends against channel close.
func (w *memWatcher) deliver(c Change) {
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

// Verify MemStore implements the store interface.
var _ Store = (*MemStore)(nil)
