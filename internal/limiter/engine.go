package limiter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/riskguard/internal/kv"
	"github.com/and161185/riskguard/internal/metrics"
)

// Check names used for metrics.
const (
	checkRequest  = "request"
	checkFailure  = "failure"
	checkComment  = "comment"
	checkAnalysis = "analysis"
)

// Engine is the kv-backed Limiter.
type Engine struct {
	store    kv.Store
	sw       Switch
	policy   Policy
	analyses AnalysisCounter
	rec      metrics.Recorder
	log      *zap.Logger
	clock    func() time.Time
}

var _ Limiter = (*Engine)(nil)

// Option customises an Engine.
type Option func(*Engine)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option { return func(e *Engine) { e.policy = p } }

// WithAnalysisCounter sets the system of record used by CheckAnalysisRateLimit.
func WithAnalysisCounter(c AnalysisCounter) Option {
	return func(e *Engine) {
		if c != nil {
			e.analyses = c
		}
	}
}

// WithRecorder sets the decision recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.rec = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides the time source used for the analysis window.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewEngine builds an Engine over store, gated by sw.
func NewEngine(store kv.Store, sw Switch, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		sw:       sw,
		policy:   DefaultPolicy(),
		analyses: NoAnalysisLog{},
		rec:      metrics.Nop{},
		log:      zap.NewNop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Policy returns the active limits.
func (e *Engine) Policy() Policy { return e.policy }

// CheckRateLimit reports whether a request from ip to route may proceed.
func (e *Engine) CheckRateLimit(ctx context.Context, ip, route string) bool {
	return e.Evaluate(ctx, ip, route).Allowed
}

// Evaluate implements Limiter. A lockout overrides the request counter.
func (e *Engine) Evaluate(ctx context.Context, ip, route string) Decision {
	if !e.sw.IsEnabled(ctx) {
		e.rec.Decision(ctx, checkRequest, string(ReasonDisabled))
		return Decision{Allowed: true, Reason: ReasonDisabled}
	}
	if _, locked := e.store.Get(ctx, lockoutKey(ip, route)); locked {
		e.rec.Decision(ctx, checkRequest, string(ReasonLockedOut))
		return Decision{Reason: ReasonLockedOut, RetryAfter: e.policy.LockoutDuration}
	}
	if !e.window(ctx, requestKey(ip, route), e.policy.RequestMax, e.policy.RequestWindow) {
		e.rec.Decision(ctx, checkRequest, string(ReasonWindow))
		return Decision{Reason: ReasonWindow, RetryAfter: e.policy.RequestWindow}
	}
	e.rec.Decision(ctx, checkRequest, string(ReasonAllowed))
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

// RecordFailedAttempt implements Limiter.
func (e *Engine) RecordFailedAttempt(ctx context.Context, ip, route string) bool {
	if !e.sw.IsEnabled(ctx) {
		e.rec.Decision(ctx, checkFailure, string(ReasonDisabled))
		return false
	}

	key := failedKey(ip, route)
	var fails int64
	if _, ok := e.store.Get(ctx, key); !ok {
		e.store.Set(ctx, key, "1", kv.WithExpiry(e.policy.FailureWindow))
		fails = 1
	} else {
		fails = e.incr(ctx, key, e.policy.FailureWindow)
	}

	if fails < e.policy.FailureMax {
		e.rec.Decision(ctx, checkFailure, string(ReasonAllowed))
		return false
	}
	e.store.Set(ctx, lockoutKey(ip, route), "1", kv.WithExpiry(e.policy.LockoutDuration))
	e.log.Info("client locked out",
		zap.String("ip", ip),
		zap.String("route", route),
		zap.Int64("failures", fails),
		zap.Duration("for", e.policy.LockoutDuration),
	)
	e.rec.Decision(ctx, checkFailure, string(ReasonLockedOut))
	return true
}

// ResetFailedAttempts implements Limiter. Lockouts already in place stay until they expire.
func (e *Engine) ResetFailedAttempts(ctx context.Context, ip, route string) {
	e.store.Delete(ctx, failedKey(ip, route))
}

// CheckCommentRateLimit implements Limiter.
func (e *Engine) CheckCommentRateLimit(ctx context.Context, userID string) bool {
	if !e.sw.IsEnabled(ctx) {
		e.rec.Decision(ctx, checkComment, string(ReasonDisabled))
		return true
	}
	ok := e.window(ctx, commentKey(userID), e.policy.CommentMax, e.policy.CommentWindow)
	e.rec.Decision(ctx, checkComment, outcome(ok))
	return ok
}

// CheckAnalysisRateLimit implements Limiter. Unlike the other checks it fails closed:
// when the analysis log cannot be counted the analysis is refused.
func (e *Engine) CheckAnalysisRateLimit(ctx context.Context, userID string) bool {
	if !e.sw.IsEnabled(ctx) {
		e.rec.Decision(ctx, checkAnalysis, string(ReasonDisabled))
		return true
	}
	since := e.clock().Add(-e.policy.AnalysisWindow)
	n, err := e.analyses.CountSince(ctx, userID, since)
	if err != nil {
		e.log.Warn("analysis count failed; denying", zap.String("user_id", userID), zap.Error(err))
		e.rec.Decision(ctx, checkAnalysis, "error")
		return false
	}
	ok := n < e.policy.AnalysisMax
	e.rec.Decision(ctx, checkAnalysis, outcome(ok))
	return ok
}

// window applies the fixed-window counter at key.
func (e *Engine) window(ctx context.Context, key string, limit int64, window time.Duration) bool {
	v, ok := e.store.Get(ctx, key)
	if !ok {
		e.store.Set(ctx, key, "1", kv.WithExpiry(window))
		return true
	}
	n, ok := v.Int()
	if !ok {
		// Garbage under a counter key: restart the window rather than lock the client out.
		e.store.Set(ctx, key, "1", kv.WithExpiry(window))
		return true
	}
	if n < limit {
		e.incr(ctx, key, window)
		return true
	}
	return false
}

// incr bumps the counter at key. A result of 1 means the key expired between the
// read and the increment and the store created it without a deadline, so the
// window is started again.
func (e *Engine) incr(ctx context.Context, key string, window time.Duration) int64 {
	n := e.store.Incr(ctx, key)
	if n == 1 {
		e.store.Set(ctx, key, "1", kv.WithExpiry(window))
	}
	return n
}

func outcome(allowed bool) string {
	if allowed {
		return string(ReasonAllowed)
	}
	return "denied"
}
