package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mishalinitiative/quizbot/internal/model"
)

// ScoreRepository handles best-attempt records.
type ScoreRepository struct {
	pool *pgxpool.Pool
}

// NewScoreRepository creates a new ScoreRepository.
func NewScoreRepository(pool *pgxpool.Pool) *ScoreRepository {
	return &ScoreRepository{pool: pool}
}

// GetBest retrieves the best-score record for (user, exam key).
func (r *ScoreRepository) GetBest(ctx context.Context, userID int64, examKey string) (*model.BestScoreRecord, error) {
	rec := &model.BestScoreRecord{UserID: userID, ExamKey: examKey}
	err := r.pool.QueryRow(ctx,
		`SELECT best_score, total_questions, attempt_count, last_attempt_at
		 FROM best_scores
		 WHERE user_id = $1 AND exam_key = $2`, userID, examKey,
	).Scan(&rec.BestScore, &rec.TotalQuestions, &rec.AttemptCount, &rec.LastAttemptAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// RecordAttempt upserts a completed attempt: best_score only ever grows,
// attempt_count always increments.
func (r *ScoreRepository) RecordAttempt(ctx context.Context, userID int64, displayName, examKey string, score, total int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO best_scores (user_id, display_name, exam_key, best_score, total_questions, attempt_count, last_attempt_at)
		 VALUES ($1, $2, $3, $4, $5, 1, NOW())
		 ON CONFLICT (user_id, exam_key) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   best_score = GREATEST(best_scores.best_score, EXCLUDED.best_score),
		   total_questions = EXCLUDED.total_questions,
		   attempt_count = best_scores.attempt_count + 1,
		   last_attempt_at = NOW()`,
		userID, displayName, examKey, score, total)
	return err
}

// ListByUser retrieves all best-score records for a user.
func (r *ScoreRepository) ListByUser(ctx context.Context, userID int64) ([]model.BestScoreRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exam_key, best_score, total_questions, attempt_count, last_attempt_at
		 FROM best_scores
		 WHERE user_id = $1
		 ORDER BY last_attempt_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.BestScoreRecord
	for rows.Next() {
		rec := model.BestScoreRecord{UserID: userID}
		if err := rows.Scan(&rec.ExamKey, &rec.BestScore, &rec.TotalQuestions, &rec.AttemptCount, &rec.LastAttemptAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
