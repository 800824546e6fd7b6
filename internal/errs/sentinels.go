// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across service/transport layers.
var (
	// ErrConflict indicates a duplicate record.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable indicates a backend write that did not take effect.
	ErrUnavailable = errors.New("unavailable")

	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates valid credentials without the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates the caller exhausted its current window.
	ErrRateLimited = errors.New("rate limited")

	// ErrLockedOut indicates a temporary lock after repeated failed attempts.
	ErrLockedOut = errors.New("locked out")

	// ErrInvalidInput indicates a malformed request payload.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSuspiciousInput indicates text that looks like an injection attempt.
	ErrSuspiciousInput = errors.New("suspicious input")

	// ErrSpam indicates text classified as spam.
	ErrSpam = errors.New("spam")
)
