// Package ledger maintains the form queue and history over the shared
// store per PROTOCOL.md.
//
// The queue (tracking_availableForms) is an ordered list of forms waiting
// to be worked; the history (tracking_history) records forms that have
// been opened, with their progress. Both share one identity space:
// tracking ids compare case-insensitively everywhere, and a provisional
// entry carries a temporary id until resolution promotes it in place.
//
// The store offers no transactions, so every operation re-reads the list
// it mutates immediately before writing it back. Two surfaces mutating
// the same list concurrently can still lose an update; last-write-wins
// is the accepted resolution.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shiggityshwah/punchlist/log"
	"github.com/shiggityshwah/punchlist/store"
)

// ErrNotFound is returned when no entry carries the requested id.
var ErrNotFound = errors.New("ledger: entry not found")

// Progress is one step-completion measurement.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
	// Percentage is Current/Total rounded to the nearest whole percent,
	// clamped to [0, 100].
	Percentage int `json:"percentage"`
}

// NewProgress computes the percentage for a measurement.
func NewProgress(current, total int) Progress {
	p := Progress{Current: current, Total: total}
	if total > 0 {
		pct := int(math.Round(float64(current) / float64(total) * 100))
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		p.Percentage = pct
	}
	return p
}

// Complete reports whether the measurement reached the whole form.
func (p Progress) Complete() bool { return p.Percentage >= 100 }

// String renders the measurement for table output, e.g. "67% (2/3)".
func (p Progress) String() string {
	return fmt.Sprintf("%d%% (%d/%d)", p.Percentage, p.Current, p.Total)
}

// QueueEntry is one form awaiting processing.
type QueueEntry struct {
	TrackingID       string    `json:"trackingId"`
	URL              string    `json:"url,omitempty"`
	PolicyNumber     string    `json:"policyNumber,omitempty"`
	SubmissionNumber string    `json:"submissionNumber,omitempty"`
	Premium          string    `json:"premium,omitempty"`
	Broker           string    `json:"broker,omitempty"`
	PolicyType       string    `json:"policyType,omitempty"`
	Added            time.Time `json:"addedTimestamp"`
}

// FieldChange records one observed metadata rewrite on a history entry.
type FieldChange struct {
	Old string    `json:"old"`
	New string    `json:"new"`
	At  time.Time `json:"at"`
}

// HistoryEntry is a form that has been worked on.
//
// Once CheckedProgress reaches 100% or the entry is manually marked
// complete, checked progress is frozen: automatic writes stop until the
// entry is explicitly un-marked, so post-completion edits never show up
// as regressions.
type HistoryEntry struct {
	QueueEntry

	CheckedProgress  Progress   `json:"checkedProgress"`
	ReviewedProgress *Progress  `json:"reviewedProgress,omitempty"`
	ManuallyComplete bool       `json:"manuallyMarkedComplete"`
	MovedToHistory   time.Time  `json:"movedToHistoryTimestamp"`
	Completed        *time.Time `json:"completedTimestamp,omitempty"`
	// Changed maps a metadata field's JSON name to every rewrite
	// MatchOrCreate observed for it.
	Changed map[string][]FieldChange `json:"changedFields,omitempty"`
}

// Complete reports whether the entry is finished, by progress or by hand.
func (e *HistoryEntry) Complete() bool {
	return e.ManuallyComplete || e.CheckedProgress.Complete()
}

// ageBasis is the timestamp pruning and recency ordering run on.
func (e *HistoryEntry) ageBasis() time.Time {
	if !e.MovedToHistory.IsZero() {
		return e.MovedToHistory
	}
	return e.Added
}

// Settings is the tracking_settings document.
type Settings struct {
	URLResolution URLResolutionSettings `json:"urlResolution"`
}

// URLResolutionSettings bounds provisional-id resolution.
type URLResolutionSettings struct {
	// Enabled gates ResolveQueue entirely.
	Enabled bool `json:"enabled"`
	// Limit caps resolution attempts per run. Zero or negative means
	// unbounded.
	Limit int `json:"limit"`
}

// DefaultSettings apply when the store holds no settings document.
func DefaultSettings() Settings {
	return Settings{URLResolution: URLResolutionSettings{Enabled: true, Limit: 5}}
}

// Config configures a Ledger.
type Config struct {
	// Store is the shared persistent store.
	Store store.Store
	// Logger defaults to a stderr logger for the tracking surface.
	Logger *log.Logger
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Ledger reads and mutates the queue and history lists.
type Ledger struct {
	store  store.Store
	logger *log.Logger
	now    func() time.Time
}

// New creates a ledger over the shared store.
func New(config Config) (*Ledger, error) {
	if config.Store == nil {
		return nil, errors.New("ledger: a store is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger("tracking")
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: config.Store, logger: logger, now: now}, nil
}

// Queue returns the ordered list of forms awaiting processing.
func (l *Ledger) Queue(ctx context.Context) ([]QueueEntry, error) {
	var queue []QueueEntry
	if _, err := store.GetJSON(ctx, l.store, store.KeyAvailableForms, &queue); err != nil {
		return nil, fmt.Errorf("ledger: read queue: %w", err)
	}
	return queue, nil
}

// History returns the list of forms that have been worked on.
func (l *Ledger) History(ctx context.Context) ([]HistoryEntry, error) {
	var history []HistoryEntry
	if _, err := store.GetJSON(ctx, l.store, store.KeyHistory, &history); err != nil {
		return nil, fmt.Errorf("ledger: read history: %w", err)
	}
	return history, nil
}

// Settings returns the tracking settings, falling back to defaults when
// the store holds none.
func (l *Ledger) Settings(ctx context.Context) (Settings, error) {
	settings := DefaultSettings()
	if _, err := store.GetJSON(ctx, l.store, store.KeySettings, &settings); err != nil {
		return Settings{}, fmt.Errorf("ledger: read settings: %w", err)
	}
	return settings, nil
}

// SaveSettings persists the tracking settings.
func (l *Ledger) SaveSettings(ctx context.Context, settings Settings) error {
	if err := store.SetJSON(ctx, l.store, store.KeySettings, settings); err != nil {
		return fmt.Errorf("ledger: write settings: %w", err)
	}
	return nil
}

func (l *Ledger) writeQueue(ctx context.Context, queue []QueueEntry) error {
	if queue == nil {
		queue = []QueueEntry{}
	}
	if err := store.SetJSON(ctx, l.store, store.KeyAvailableForms, queue); err != nil {
		return fmt.Errorf("ledger: write queue: %w", err)
	}
	return nil
}

func (l *Ledger) writeHistory(ctx context.Context, history []HistoryEntry) error {
	if history == nil {
		history = []HistoryEntry{}
	}
	if err := store.SetJSON(ctx, l.store, store.KeyHistory, history); err != nil {
		return fmt.Errorf("ledger: write history: %w", err)
	}
	return nil
}

// sameID compares tracking ids, which are case-insensitive everywhere.
func sameID(a, b string) bool { return strings.EqualFold(a, b) }
