package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/riskguard/internal/errs"
	"github.com/and161185/riskguard/internal/model"
)

// AnalysisRepo implements repository.AnalysisLog on the analyses table.
type AnalysisRepo struct{ db *DB }

// NewAnalysisRepo constructs an analysis repository.
func NewAnalysisRepo(db *DB) *AnalysisRepo { return &AnalysisRepo{db: db} }

// Record inserts a row. A duplicate id maps to errs.ErrConflict.
func (r *AnalysisRepo) Record(ctx context.Context, a model.Analysis) error {
	const q = `
INSERT INTO analyses (id, user_id, created_at)
VALUES ($1, $2, $3)`
	_, err := r.db.Pool.Exec(ctx, q, a.ID, a.UserID, a.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("record analysis: %w", err)
	}
	return nil
}

// CountSince counts rows for userID with created_at >= since.
func (r *AnalysisRepo) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	const q = `
SELECT count(*) FROM analyses
WHERE user_id=$1 AND created_at >= $2`
	var n int64
	if err := r.db.Pool.QueryRow(ctx, q, userID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count analyses: %w", err)
	}
	return int(n), nil
}
