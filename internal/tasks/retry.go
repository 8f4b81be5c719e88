package tasks

import (
	"errors"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns three attempts, one minute apart and doubling
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   60 * time.Second,
		MaxDelay:    5 * time.Minute,
		Multiplier:  2.0,
	}
}

// Delay returns the wait before the attempt following a failed attempt
// (zero-based).
func (c RetryConfig) Delay(failedAttempt int) time.Duration {
	delay := float64(c.BaseDelay)
	for i := 0; i < failedAttempt; i++ {
		delay *= c.Multiplier
		if c.MaxDelay > 0 && time.Duration(delay) >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && time.Duration(delay) > c.MaxDelay {
		return c.MaxDelay
	}
	return time.Duration(delay)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
