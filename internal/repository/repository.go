// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/riskguard/internal/model"
)

// AnalysisLog records analysis runs and counts them per user.
type AnalysisLog interface {
	// Record inserts a new analysis row.
	Record(ctx context.Context, a model.Analysis) error
	// CountSince returns the number of runs for userID created at or after since.
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
}
