package surface

import "time"

// Default reconnect schedule and polling cadence.
const (
	// DefaultBackoffBase is the delay before the first scheduled retry.
	DefaultBackoffBase = 500 * time.Millisecond
	// DefaultBackoffMax caps the delay between retries.
	DefaultBackoffMax = 30 * time.Second
	// DefaultMaxAttempts is the number of failed dials tolerated before
	// the surface falls back to store polling.
	DefaultMaxAttempts = 8
	// DefaultPollInterval is the degraded-mode store polling cadence.
	DefaultPollInterval = 5 * time.Second
)

// Backoff is the reconnect schedule: an exponential delay starting at
// Base, doubling per consecutive failure, capped at Max. After
// MaxAttempts failed dials the surface stops retrying on a timer and
// falls back to store polling.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
}

// withDefaults fills zero fields.
func (b Backoff) withDefaults() Backoff {
	if b.Base <= 0 {
		b.Base = DefaultBackoffBase
	}
	if b.Max <= 0 {
		b.Max = DefaultBackoffMax
	}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = DefaultMaxAttempts
	}
	return b
}

// Delay returns the wait before retry number attempt (numbered from 1).
// The sequence is Base, 2*Base, 4*Base and so on, capped at Max, so
// delays never decrease across consecutive failures.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	shift := uint(attempt - 1)
	if shift > 30 {
		return b.Max
	}
	d := b.Base * time.Duration(1<<shift)
	if d > b.Max || d <= 0 {
		return b.Max
	}
	return d
}
