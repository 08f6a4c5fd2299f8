package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// UpdateProgress records a fresh field count for a history entry.
//
// Review measurements are always written. Checked progress freezes once
// the entry is complete, so a later visit that blanks a few fields does
// not walk a finished form backwards. The first time checked progress
// reaches 100% the completion timestamp is stamped.
func (l *Ledger) UpdateProgress(ctx context.Context, trackingID string, current, total int, isReview bool) (*HistoryEntry, error) {
	history, err := l.History(ctx)
	if err != nil {
		return nil, err
	}
	i := findHistory(history, trackingID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, trackingID)
	}
	e := &history[i]
	p := NewProgress(current, total)

	if isReview {
		e.ReviewedProgress = &p
	} else {
		if e.Complete() {
			l.logger.Debug("checked progress frozen", map[string]any{
				"tracking_id": e.TrackingID,
			})
			out := *e
			return &out, nil
		}
		e.CheckedProgress = p
		if p.Complete() && e.Completed == nil {
			t := l.now()
			e.Completed = &t
		}
	}

	if err := l.writeHistory(ctx, history); err != nil {
		return nil, err
	}
	out := *e
	return &out, nil
}

// MarkComplete sets or clears the manual completion override. Marking
// stamps the completion timestamp if the entry never reached it on its
// own; un-marking unfreezes checked progress but keeps the stamp as a
// historical fact.
func (l *Ledger) MarkComplete(ctx context.Context, trackingID string, complete bool) (*HistoryEntry, error) {
	history, err := l.History(ctx)
	if err != nil {
		return nil, err
	}
	i := findHistory(history, trackingID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, trackingID)
	}
	e := &history[i]
	e.ManuallyComplete = complete
	if complete && e.Completed == nil {
		t := l.now()
		e.Completed = &t
	}

	if err := l.writeHistory(ctx, history); err != nil {
		return nil, err
	}
	l.logger.Info("manual completion changed", map[string]any{
		"tracking_id": e.TrackingID,
		"complete":    complete,
	})
	out := *e
	return &out, nil
}

// Prune drops history entries past the retention bounds and reports how
// many were removed. maxAge drops entries whose history timestamp
// (falling back to the queued timestamp) is older than the cutoff,
// sparing complete entries when keepCompleted is set. maxItems then
// keeps the most recent entries without reordering the survivors. A
// bound of zero is unlimited. A history already within bounds is left
// untouched.
func (l *Ledger) Prune(ctx context.Context, maxItems int, maxAge time.Duration, keepCompleted bool) (int, error) {
	history, err := l.History(ctx)
	if err != nil {
		return 0, err
	}
	kept := history

	if maxAge > 0 {
		cutoff := l.now().Add(-maxAge)
		kept = lo.Filter(kept, func(e HistoryEntry, _ int) bool {
			if keepCompleted && e.Complete() {
				return true
			}
			return !e.ageBasis().Before(cutoff)
		})
	}

	if maxItems > 0 && len(kept) > maxItems {
		byAge := append([]HistoryEntry(nil), kept...)
		sort.Slice(byAge, func(i, j int) bool {
			return byAge[i].ageBasis().After(byAge[j].ageBasis())
		})
		allow := make(map[string]bool, maxItems)
		for _, e := range byAge[:maxItems] {
			allow[strings.ToLower(e.TrackingID)] = true
		}
		kept = lo.Filter(kept, func(e HistoryEntry, _ int) bool {
			return allow[strings.ToLower(e.TrackingID)]
		})
	}

	removed := len(history) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := l.writeHistory(ctx, kept); err != nil {
		return 0, err
	}
	l.logger.Info("history pruned", map[string]any{
		"removed":   removed,
		"remaining": len(kept),
	})
	return removed, nil
}
