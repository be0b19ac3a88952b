package feed

import "time"

// Backoff returns base * 2^attempt, capped at maxDelay. Negative attempts
// return base.
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt <= 0 {
		return min(base, maxDelay)
	}
	// Compare before shifting so large attempts cannot wrap int64.
	if base > maxDelay>>attempt {
		return maxDelay
	}
	return base << attempt
}
