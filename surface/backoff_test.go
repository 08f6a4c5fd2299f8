package surface

import (
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second, MaxAttempts: 8}

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{name: "zero attempt", attempt: 0, want: 0},
		{name: "negative attempt", attempt: -3, want: 0},
		{name: "first failure", attempt: 1, want: 500 * time.Millisecond},
		{name: "second failure", attempt: 2, want: time.Second},
		{name: "third failure", attempt: 3, want: 2 * time.Second},
		{name: "doubles until the cap", attempt: 6, want: 16 * time.Second},
		{name: "capped", attempt: 7, want: 30 * time.Second},
		{name: "stays capped", attempt: 12, want: 30 * time.Second},
		{name: "huge attempt does not overflow", attempt: 200, want: 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Delay(tt.attempt); got != tt.want {
				t.Fatalf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestBackoff_DelayNeverDecreases(t *testing.T) {
	b := Backoff{Base: 250 * time.Millisecond, Max: 10 * time.Second, MaxAttempts: 8}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 64; attempt++ {
		d := b.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v, below Delay(%d) = %v", attempt, d, attempt-1, prev)
		}
		if d > b.Max {
			t.Fatalf("Delay(%d) = %v exceeds cap %v", attempt, d, b.Max)
		}
		prev = d
	}
}

func TestBackoff_Defaults(t *testing.T) {
	b := Backoff{}.withDefaults()

	if b.Base != DefaultBackoffBase {
		t.Fatalf("base = %v, want %v", b.Base, DefaultBackoffBase)
	}
	if b.Max != DefaultBackoffMax {
		t.Fatalf("max = %v, want %v", b.Max, DefaultBackoffMax)
	}
	if b.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("max attempts = %d, want %d", b.MaxAttempts, DefaultMaxAttempts)
	}

	partial := Backoff{Base: time.Second}.withDefaults()
	if partial.Base != time.Second {
		t.Fatalf("explicit base overridden to %v", partial.Base)
	}
	if partial.Max != DefaultBackoffMax {
		t.Fatalf("max = %v, want default %v", partial.Max, DefaultBackoffMax)
	}
}
