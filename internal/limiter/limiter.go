// Package limiter implements the request, failed-attempt, comment and analysis
// policies enforced in front of abusable operations.
//
// Counters are fixed windows: a key is created with the window as its expiry and
// incremented until the maximum is reached. A client can therefore burst up to
// twice the maximum across a window boundary. The approximation is accepted.
//
// Every check first consults the global switch. With the switch off every check
// allows and RecordFailedAttempt never locks out. Counter state is never cached:
// each decision re-reads the store so concurrent callers sharing a backend see
// the same state.
package limiter

import (
	"context"
	"errors"
	"time"
)

// Limiter is the policy surface consumed by the service layer.
type Limiter interface {
	// Evaluate decides whether a request from ip to route may proceed.
	Evaluate(ctx context.Context, ip, route string) Decision
	// RecordFailedAttempt counts a failure for (ip, route) and reports whether it caused a lockout.
	RecordFailedAttempt(ctx context.Context, ip, route string) bool
	// ResetFailedAttempts clears the failure counter for (ip, route).
	ResetFailedAttempts(ctx context.Context, ip, route string)
	// CheckCommentRateLimit reports whether userID may post another comment.
	CheckCommentRateLimit(ctx context.Context, userID string) bool
	// CheckAnalysisRateLimit reports whether userID may start another analysis.
	CheckAnalysisRateLimit(ctx context.Context, userID string) bool
	// Policy returns the limits in force.
	Policy() Policy
}

// Switch is the global enable flag.
type Switch interface {
	IsEnabled(ctx context.Context) bool
}

// AnalysisCounter counts analysis runs recorded in the system of record.
type AnalysisCounter interface {
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// ErrNoAnalysisLog is returned by NoAnalysisLog.
var ErrNoAnalysisLog = errors.New("limiter: no analysis log configured")

// NoAnalysisLog is the AnalysisCounter used when no document store is configured.
// It always errors, so analysis checks fail closed.
type NoAnalysisLog struct{}

// CountSince implements AnalysisCounter.
func (NoAnalysisLog) CountSince(context.Context, string, time.Time) (int, error) {
	return 0, ErrNoAnalysisLog
}

// Reason explains a Decision.
type Reason string

const (
	ReasonAllowed   Reason = "allowed"
	ReasonDisabled  Reason = "disabled"
	ReasonLockedOut Reason = "locked_out"
	ReasonWindow    Reason = "window_exceeded"
)

// Decision is the outcome of Evaluate.
type Decision struct {
	Allowed bool
	Reason  Reason
	// RetryAfter is a hint for denied callers: the lockout duration or the window length.
	RetryAfter time.Duration
}

// Policy holds the limits. Zero values are invalid; start from DefaultPolicy.
type Policy struct {
	RequestWindow   time.Duration `yaml:"request_window"`
	RequestMax      int64         `yaml:"request_max"`
	FailureWindow   time.Duration `yaml:"failure_window"`
	FailureMax      int64         `yaml:"failure_max"`
	LockoutDuration time.Duration `yaml:"lockout_duration"`
	CommentWindow   time.Duration `yaml:"comment_window"`
	CommentMax      int64         `yaml:"comment_max"`
	AnalysisWindow  time.Duration `yaml:"analysis_window"`
	AnalysisMax     int           `yaml:"analysis_max"`
}

// DefaultPolicy returns the production limits.
func DefaultPolicy() Policy {
	return Policy{
		RequestWindow:   60 * time.Second,
		RequestMax:      30,
		FailureWindow:   time.Hour,
		FailureMax:      5,
		LockoutDuration: 15 * time.Minute,
		CommentWindow:   60 * time.Second,
		CommentMax:      5,
		AnalysisWindow:  60 * time.Second,
		AnalysisMax:     10,
	}
}

// Validate reports the first non-positive field.
func (p Policy) Validate() error {
	switch {
	case p.RequestWindow <= 0 || p.RequestMax <= 0:
		return errors.New("policy: request window and max must be positive")
	case p.FailureWindow <= 0 || p.FailureMax <= 0:
		return errors.New("policy: failure window and max must be positive")
	case p.LockoutDuration <= 0:
		return errors.New("policy: lockout duration must be positive")
	case p.CommentWindow <= 0 || p.CommentMax <= 0:
		return errors.New("policy: comment window and max must be positive")
	case p.AnalysisWindow <= 0 || p.AnalysisMax <= 0:
		return errors.New("policy: analysis window and max must be positive")
	}
	return nil
}

func requestKey(ip, route string) string { return "ratelimit:" + ip + ":" + route }
func failedKey(ip, route string) string  { return "failed:" + ip + ":" + route }
func lockoutKey(ip, route string) string { return "lockout:" + ip + ":" + route }
func commentKey(userID string) string    { return "comment-limit:" + userID }
