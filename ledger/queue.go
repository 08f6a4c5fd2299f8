package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

const tempPrefix = "temp-"

// TempID derives a provisional tracking id from a workflow URL. The id
// is stable for a given URL, so re-adding the same provisional form
// collides instead of duplicating.
func TempID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return tempPrefix + hex.EncodeToString(sum[:])[:8]
}

// IsTemporaryID reports whether id is a provisional placeholder awaiting
// promotion.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}

// DuplicateError rejects a queue batch whose tracking ids collide,
// either with entries already queued or within the batch itself. IDs
// lists every offender so the caller can show the user exactly which
// ones.
type DuplicateError struct {
	IDs []string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("ledger: duplicate tracking ids: %s", strings.Join(e.IDs, ", "))
}

// AddToQueue appends entries to the queue. An entry without a tracking
// id gets a provisional one derived from its URL; an entry without a
// timestamp is stamped now.
//
// Deduplication is case-insensitive on the tracking id. Any collision
// rejects the whole batch with a DuplicateError; nothing is silently
// dropped.
func (l *Ledger) AddToQueue(ctx context.Context, entries []QueueEntry) error {
	if len(entries) == 0 {
		return nil
	}

	queue, err := l.Queue(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(queue)+len(entries))
	for _, e := range queue {
		seen[strings.ToLower(e.TrackingID)] = true
	}

	var duplicates []string
	now := l.now()
	for i := range entries {
		if entries[i].TrackingID == "" {
			if entries[i].URL == "" {
				return fmt.Errorf("ledger: entry %d has neither a tracking id nor a url", i)
			}
			entries[i].TrackingID = TempID(entries[i].URL)
		}
		if entries[i].Added.IsZero() {
			entries[i].Added = now
		}
		key := strings.ToLower(entries[i].TrackingID)
		if seen[key] {
			duplicates = append(duplicates, entries[i].TrackingID)
			continue
		}
		seen[key] = true
	}
	if len(duplicates) > 0 {
		return &DuplicateError{IDs: duplicates}
	}

	if err := l.writeQueue(ctx, append(queue, entries...)); err != nil {
		return err
	}
	l.logger.Info("forms queued", map[string]any{"count": len(entries)})
	return nil
}

// RemoveFromQueue deletes the entry carrying id. Removing an absent id
// returns ErrNotFound.
func (l *Ledger) RemoveFromQueue(ctx context.Context, id string) error {
	queue, err := l.Queue(ctx)
	if err != nil {
		return err
	}
	kept := lo.Filter(queue, func(e QueueEntry, _ int) bool {
		return !sameID(e.TrackingID, id)
	})
	if len(kept) == len(queue) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return l.writeQueue(ctx, kept)
}

// RemoveFromHistory deletes the entry carrying id. This is the explicit
// user deletion; pruning is the only other way out of the history.
func (l *Ledger) RemoveFromHistory(ctx context.Context, id string) error {
	history, err := l.History(ctx)
	if err != nil {
		return err
	}
	kept := lo.Filter(history, func(e HistoryEntry, _ int) bool {
		return !sameID(e.TrackingID, id)
	})
	if len(kept) == len(history) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return l.writeHistory(ctx, kept)
}
