package ledger

import (
	"context"
	"errors"
	"time"
)

// PageIdentity carries the identity signals extracted from a loaded form
// page.
type PageIdentity struct {
	// TrackingID is the resolved permanent id. Required.
	TrackingID string
	// SubmissionNumber and PolicyNumber match provisional queue entries
	// whose permanent id was unknown when they were queued.
	SubmissionNumber string
	PolicyNumber     string

	// Metadata absorbed onto the matched or synthesized entry.
	URL        string
	Premium    string
	Broker     string
	PolicyType string
}

// MatchOrCreate resolves a loaded form page to its history entry.
//
// A queue entry matches by exact id, or, only while its id is still
// provisional, by submission or policy number. A match is promoted to
// the page's id and moved from queue to history. Without a queue match
// the history is searched by exact id only; one policy can carry several
// independent transactions, so a policy number alone never matches
// history. An existing history entry absorbs the page's metadata and
// keeps its progress; a page matching nothing synthesizes a fresh entry.
//
// The same tracking id never appears in the history twice.
func (l *Ledger) MatchOrCreate(ctx context.Context, page PageIdentity) (*HistoryEntry, error) {
	if page.TrackingID == "" {
		return nil, errors.New("ledger: page identity has no tracking id")
	}

	queue, err := l.Queue(ctx)
	if err != nil {
		return nil, err
	}
	history, err := l.History(ctx)
	if err != nil {
		return nil, err
	}
	now := l.now()

	if i := matchQueue(queue, page); i >= 0 {
		matched := queue[i]
		queue = append(queue[:i], queue[i+1:]...)
		if IsTemporaryID(matched.TrackingID) {
			l.logger.Info("queue entry promoted", map[string]any{
				"provisional_id": matched.TrackingID,
				"tracking_id":    page.TrackingID,
			})
		}
		matched.TrackingID = page.TrackingID

		var entry *HistoryEntry
		if j := findHistory(history, page.TrackingID); j >= 0 {
			// The form was already worked on; the stale queue entry is
			// consumed and the page refreshes the metadata.
			mergeMetadata(&history[j], page, now)
			entry = &history[j]
		} else {
			fresh := HistoryEntry{QueueEntry: matched, MovedToHistory: now}
			mergeMetadata(&fresh, page, now)
			history = append(history, fresh)
			entry = &history[len(history)-1]
		}
		if err := l.writeQueue(ctx, queue); err != nil {
			return nil, err
		}
		if err := l.writeHistory(ctx, history); err != nil {
			return nil, err
		}
		l.logger.Info("form moved to history", map[string]any{
			"tracking_id": entry.TrackingID,
		})
		out := *entry
		return &out, nil
	}

	if j := findHistory(history, page.TrackingID); j >= 0 {
		if mergeMetadata(&history[j], page, now) {
			if err := l.writeHistory(ctx, history); err != nil {
				return nil, err
			}
		}
		out := history[j]
		return &out, nil
	}

	fresh := HistoryEntry{
		QueueEntry: QueueEntry{
			TrackingID:       page.TrackingID,
			URL:              page.URL,
			PolicyNumber:     page.PolicyNumber,
			SubmissionNumber: page.SubmissionNumber,
			Premium:          page.Premium,
			Broker:           page.Broker,
			PolicyType:       page.PolicyType,
			Added:            now,
		},
		MovedToHistory: now,
	}
	history = append(history, fresh)
	if err := l.writeHistory(ctx, history); err != nil {
		return nil, err
	}
	l.logger.Info("history entry synthesized", map[string]any{
		"tracking_id": fresh.TrackingID,
	})
	out := fresh
	return &out, nil
}

// matchQueue finds the queue entry a page belongs to. Exact id wins;
// submission and policy numbers only ever match an entry still carrying
// a provisional id.
func matchQueue(queue []QueueEntry, page PageIdentity) int {
	for i := range queue {
		if sameID(queue[i].TrackingID, page.TrackingID) {
			return i
		}
	}
	for i := range queue {
		if !IsTemporaryID(queue[i].TrackingID) {
			continue
		}
		if page.SubmissionNumber != "" && sameID(queue[i].SubmissionNumber, page.SubmissionNumber) {
			return i
		}
		if page.PolicyNumber != "" && sameID(queue[i].PolicyNumber, page.PolicyNumber) {
			return i
		}
	}
	return -1
}

func findHistory(history []HistoryEntry, id string) int {
	for i := range history {
		if sameID(history[i].TrackingID, id) {
			return i
		}
	}
	return -1
}

// mergeMetadata absorbs the page's metadata onto an entry. A first
// observation fills the field silently; a rewrite of a present value is
// recorded in the entry's change map.
func mergeMetadata(e *HistoryEntry, page PageIdentity, at time.Time) bool {
	fields := []struct {
		name string
		dst  *string
		src  string
	}{
		{"url", &e.URL, page.URL},
		{"policyNumber", &e.PolicyNumber, page.PolicyNumber},
		{"submissionNumber", &e.SubmissionNumber, page.SubmissionNumber},
		{"premium", &e.Premium, page.Premium},
		{"broker", &e.Broker, page.Broker},
		{"policyType", &e.PolicyType, page.PolicyType},
	}

	changed := false
	for _, f := range fields {
		if f.src == "" || f.src == *f.dst {
			continue
		}
		if *f.dst != "" {
			if e.Changed == nil {
				e.Changed = make(map[string][]FieldChange)
			}
			e.Changed[f.name] = append(e.Changed[f.name], FieldChange{
				Old: *f.dst,
				New: f.src,
				At:  at,
			})
		}
		*f.dst = f.src
		changed = true
	}
	return changed
}
