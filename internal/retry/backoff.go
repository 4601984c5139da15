package retry

import "time"

// MaxDelay bounds the backoff so a long retry chain against a slow
// upstream does not park tasks for minutes.
const MaxDelay = 30 * time.Second

// ExponentialBackoff returns the delay before the given attempt: the base
// doubled per attempt, clamped to MaxDelay. Attempt numbers below zero are
// treated as zero.
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base << uint(attempt)
	if d <= 0 || d > MaxDelay {
		return MaxDelay
	}
	return d
}
