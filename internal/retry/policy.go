// Package retry runs executor invocations under a linear backoff policy.
package retry

import "time"

// Config is an immutable backoff policy. Waits grow linearly:
// BaseInterval, BaseInterval+IntervalIncrement, BaseInterval+2*IntervalIncrement...
type Config struct {
	MaxAttempts       int
	BaseInterval      time.Duration
	IntervalIncrement time.Duration
}

// DefaultConfig allows 100 attempts starting at 10s, growing by 10s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       100,
		BaseInterval:      10 * time.Second,
		IntervalIncrement: 10 * time.Second,
	}
}

// WaitDuration returns the wait after the zero-indexed failed attempt.
func (c Config) WaitDuration(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return c.BaseInterval + time.Duration(attempt)*c.IntervalIncrement
}

// HasAttemptsRemaining reports whether another attempt is allowed after
// attempts have already been made.
func (c Config) HasAttemptsRemaining(attempts int) bool {
	return attempts < c.MaxAttempts
}
