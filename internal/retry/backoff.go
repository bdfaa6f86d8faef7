package retry

import "time"

// MaxBackoff bounds every delay returned by ExponentialBackoff.
const MaxBackoff = 30 * time.Second

// ExponentialBackoff returns base * 2^attempt, capped at MaxBackoff.
// Negative attempts are treated as the first attempt.
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		return MaxBackoff
	}
	d := base * (1 << attempt)
	if d > MaxBackoff || d < 0 {
		return MaxBackoff
	}
	return d
}
