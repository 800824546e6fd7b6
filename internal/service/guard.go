// Package service composes the limiter, the heuristics and the analysis log
// into the operations exposed by the transports.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/riskguard/internal/errs"
	"github.com/and161185/riskguard/internal/heuristics"
	"github.com/and161185/riskguard/internal/limiter"
	"github.com/and161185/riskguard/internal/logging"
	"github.com/and161185/riskguard/internal/model"
	"github.com/and161185/riskguard/internal/repository"
)

// Switch reads and writes the global rate-limit flag.
type Switch interface {
	IsEnabled(ctx context.Context) bool
	SetEnabled(ctx context.Context, enabled bool) bool
}

// Guard is the operation set used by the HTTP and gRPC layers.
type Guard interface {
	// CheckRequest returns ErrLockedOut or ErrRateLimited (wrapped with a retry hint) when denied.
	CheckRequest(ctx context.Context, ip, route string) error
	// RecordFailure counts a failed attempt and reports whether it caused a lockout.
	RecordFailure(ctx context.Context, ip, route string) bool
	// ResetFailures clears the failure counter after a success.
	ResetFailures(ctx context.Context, ip, route string)
	// ScreenComment validates a comment and consumes one unit of the author's quota.
	ScreenComment(ctx context.Context, userID, text string) error
	// StartAnalysis checks the analysis quota and records a new run.
	StartAnalysis(ctx context.Context, userID string) (model.Analysis, error)
	// RateLimitEnabled reports the global flag.
	RateLimitEnabled(ctx context.Context) bool
	// SetRateLimitEnabled persists the global flag.
	SetRateLimitEnabled(ctx context.Context, enabled bool) error
}

// GuardService implements Guard.
type GuardService struct {
	lim      limiter.Limiter
	sw       Switch
	analyses repository.AnalysisLog
	now      func() time.Time
	log      *zap.Logger
}

var _ Guard = (*GuardService)(nil)

// NewGuardService wires the service. analyses may be nil when no analysis log is configured;
// StartAnalysis then fails with the limiter's closed decision before any write.
func NewGuardService(lim limiter.Limiter, sw Switch, analyses repository.AnalysisLog, log *zap.Logger) *GuardService {
	return &GuardService{
		lim:      lim,
		sw:       sw,
		analyses: analyses,
		now:      time.Now,
		log:      logging.OrNop(log),
	}
}

// CheckRequest applies the per-(ip, route) policy.
func (s *GuardService) CheckRequest(ctx context.Context, ip, route string) error {
	d := s.lim.Evaluate(ctx, ip, route)
	if d.Allowed {
		return nil
	}
	if d.Reason == limiter.ReasonLockedOut {
		return errs.Retry(errs.ErrLockedOut, d.RetryAfter)
	}
	return errs.Retry(errs.ErrRateLimited, d.RetryAfter)
}

// RecordFailure counts a failed attempt for (ip, route).
func (s *GuardService) RecordFailure(ctx context.Context, ip, route string) bool {
	return s.lim.RecordFailedAttempt(ctx, ip, route)
}

// ResetFailures clears the failure counter for (ip, route).
func (s *GuardService) ResetFailures(ctx context.Context, ip, route string) {
	s.lim.ResetFailedAttempts(ctx, ip, route)
}

// ScreenComment rejects empty, suspicious and spam text before counting against the quota,
// so rejected payloads are free.
func (s *GuardService) ScreenComment(ctx context.Context, userID, text string) error {
	if userID == "" || strings.TrimSpace(text) == "" {
		return errs.ErrInvalidInput
	}
	if len(text) > heuristics.MaxTextBytes {
		return fmt.Errorf("comment exceeds %d bytes: %w", heuristics.MaxTextBytes, errs.ErrInvalidInput)
	}
	v := heuristics.Classify(text)
	if v.Suspicious {
		s.log.Info("suspicious comment rejected", zap.String("user_id", userID))
		return errs.ErrSuspiciousInput
	}
	if v.Spam {
		s.log.Info("spam comment rejected", zap.String("user_id", userID))
		return errs.ErrSpam
	}
	if !s.lim.CheckCommentRateLimit(ctx, userID) {
		return errs.Retry(errs.ErrRateLimited, s.lim.Policy().CommentWindow)
	}
	return nil
}

// StartAnalysis records a new analysis run for userID if the quota allows it.
func (s *GuardService) StartAnalysis(ctx context.Context, userID string) (model.Analysis, error) {
	if userID == "" {
		return model.Analysis{}, errs.ErrInvalidInput
	}
	if !s.lim.CheckAnalysisRateLimit(ctx, userID) {
		return model.Analysis{}, errs.Retry(errs.ErrRateLimited, s.lim.Policy().AnalysisWindow)
	}
	if s.analyses == nil {
		return model.Analysis{}, fmt.Errorf("start analysis: %w", limiter.ErrNoAnalysisLog)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Analysis{}, err
	}
	a := model.Analysis{ID: id, UserID: userID, CreatedAt: s.now().UTC()}
	if err := s.analyses.Record(ctx, a); err != nil {
		return model.Analysis{}, fmt.Errorf("start analysis: %w", err)
	}
	return a, nil
}

// RateLimitEnabled reports the global flag.
func (s *GuardService) RateLimitEnabled(ctx context.Context) bool {
	return s.sw.IsEnabled(ctx)
}

// SetRateLimitEnabled persists the flag. A failed write returns errs.ErrUnavailable.
func (s *GuardService) SetRateLimitEnabled(ctx context.Context, enabled bool) error {
	if !s.sw.SetEnabled(ctx, enabled) {
		return errs.ErrUnavailable
	}
	s.log.Info("rate limiting toggled", zap.Bool("enabled", enabled))
	return nil
}
