package errs

import (
	"errors"
	"time"
)

// RetryError wraps a denial sentinel with a hint for when the caller may retry.
type RetryError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryError) Error() string { return e.Err.Error() }

func (e *RetryError) Unwrap() error { return e.Err }

// Retry wraps err with a retry hint. A non-positive hint returns err unchanged.
func Retry(err error, after time.Duration) error {
	if after <= 0 {
		return err
	}
	return &RetryError{Err: err, RetryAfter: after}
}

// RetryAfter extracts the hint from err, or 0.
func RetryAfter(err error) time.Duration {
	var re *RetryError
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}
