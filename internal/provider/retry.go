package provider

import "time"

// RetryPolicy bounds how often a transport-level failure against the
// provider is retried. Delay grows exponentially per attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy suits interactive submission paths: short, bounded.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, Multiplier: 2}
}

// Delay returns the backoff before the given retry attempt (1-based; the
// first attempt has no delay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := float64(p.BaseDelay)
	for i := 2; i < attempt; i++ {
		delay *= p.Multiplier
	}
	return time.Duration(delay)
}
