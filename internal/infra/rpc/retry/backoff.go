package retry

import "time"

const (
	backoffUnit = 1 * time.Second
	backoffCap  = 60 * time.Second
)

// Delay returns the wait before attempt n of a background retry:
// 2^n seconds, capped at 60s. Delay(1) = 2s, Delay(5) = 32s, Delay(6) = 60s.
// The first attempt is never delayed, so n <= 0 yields 0.
func Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	// 2^6s already exceeds the cap; avoid shifting into overflow.
	if attempt >= 6 {
		return backoffCap
	}
	return min(backoffUnit<<attempt, backoffCap)
}
