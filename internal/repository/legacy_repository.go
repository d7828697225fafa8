package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LegacyRepository writes results for the lab and mazen exam tracks into
// their historical per-track tables. Scores there are kept for external
// reporting pipelines that predate the shared best_scores table.
type LegacyRepository struct {
	pool *pgxpool.Pool
}

// NewLegacyRepository creates a new LegacyRepository.
func NewLegacyRepository(pool *pgxpool.Pool) *LegacyRepository {
	return &LegacyRepository{pool: pool}
}

// RecordLabResult upserts a lab track score, keeping the best one.
func (r *LegacyRepository) RecordLabResult(ctx context.Context, userID int64, displayName string, score, total int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO lab_results (user_id, display_name, score, total_questions, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		 	display_name = EXCLUDED.display_name,
		 	score = GREATEST(lab_results.score, EXCLUDED.score),
		 	total_questions = EXCLUDED.total_questions,
		 	updated_at = NOW()`,
		userID, displayName, score, total)
	return err
}

// RecordMazenResult upserts a mazen track score, keeping the best one.
func (r *LegacyRepository) RecordMazenResult(ctx context.Context, userID int64, displayName string, score, total int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO mazen_results (user_id, display_name, score, total_questions, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		 	display_name = EXCLUDED.display_name,
		 	score = GREATEST(mazen_results.score, EXCLUDED.score),
		 	total_questions = EXCLUDED.total_questions,
		 	updated_at = NOW()`,
		userID, displayName, score, total)
	return err
}
