package retry

import (
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	base := 100 * time.Millisecond

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 100 * time.Millisecond},
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1600 * time.Millisecond},
	}

	for _, tt := range tests {
		result := ExponentialBackoff(tt.attempt, base)
		if result != tt.expected {
			t.Errorf("attempt %d: got %v, want %v", tt.attempt, result, tt.expected)
		}
	}
}

func TestExponentialBackoffClampsToMaxDelay(t *testing.T) {
	if got := ExponentialBackoff(10, time.Second); got != MaxDelay {
		t.Errorf("got %v, want %v", got, MaxDelay)
	}
	// Shift overflow must never produce a zero or negative delay.
	if got := ExponentialBackoff(80, time.Second); got != MaxDelay {
		t.Errorf("got %v, want %v", got, MaxDelay)
	}
}
