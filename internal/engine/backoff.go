package engine

import "time"

// Backoff computes exponential retry delays: Base doubled per attempt,
// capped at Cap.
//
// It is a pure value, not a timer: callers ask for the delay of attempt N
// and schedule their own waits, so tests can walk through many attempts
// without sleeping.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the wait before the given attempt number.
// Attempt 0 (first try) waits Base; each subsequent attempt doubles,
// saturating at Cap.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Cap {
			return b.Cap
		}
	}
	if b.Cap > 0 && d > b.Cap {
		return b.Cap
	}
	return d
}
