package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mishalinitiative/quizbot/internal/model"
)

// ProgressRepository handles the per-user quiz state row.
type ProgressRepository struct {
	pool *pgxpool.Pool
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(pool *pgxpool.Pool) *ProgressRepository {
	return &ProgressRepository{pool: pool}
}

// Get retrieves a user's progress row.
func (r *ProgressRepository) Get(ctx context.Context, userID int64) (*model.UserProgress, error) {
	p := &model.UserProgress{UserID: userID}
	var answered, cleanup []byte

	err := r.pool.QueryRow(ctx,
		`SELECT display_name, exam_key, stage, unit_id, level, question_index,
		        score, answered, question_msg_ref, status_msg_ref, cleanup_refs,
		        started_at, updated_at
		 FROM user_progress
		 WHERE user_id = $1`, userID,
	).Scan(&p.DisplayName, &p.ExamKey, &p.Stage, &p.UnitID, &p.Level, &p.QuestionIndex,
		&p.Score, &answered, &p.QuestionMsgRef, &p.StatusMsgRef, &cleanup,
		&p.StartedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(answered, &p.Answered); err != nil {
		return nil, fmt.Errorf("decode answered map: %w", err)
	}
	if len(cleanup) > 0 {
		if err := json.Unmarshal(cleanup, &p.CleanupRefs); err != nil {
			return nil, fmt.Errorf("decode cleanup refs: %w", err)
		}
	}
	return p, nil
}

// Upsert writes the full mutable progress state in one statement.
func (r *ProgressRepository) Upsert(ctx context.Context, p *model.UserProgress) error {
	if p.Answered == nil {
		p.Answered = map[string]bool{}
	}
	answered, err := json.Marshal(p.Answered)
	if err != nil {
		return fmt.Errorf("encode answered map: %w", err)
	}
	cleanup, err := json.Marshal(p.CleanupRefs)
	if err != nil {
		return fmt.Errorf("encode cleanup refs: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO user_progress
		   (user_id, display_name, exam_key, stage, unit_id, level, question_index,
		    score, answered, question_msg_ref, status_msg_ref, cleanup_refs,
		    started_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   exam_key = EXCLUDED.exam_key,
		   stage = EXCLUDED.stage,
		   unit_id = EXCLUDED.unit_id,
		   level = EXCLUDED.level,
		   question_index = EXCLUDED.question_index,
		   score = EXCLUDED.score,
		   answered = EXCLUDED.answered,
		   question_msg_ref = EXCLUDED.question_msg_ref,
		   status_msg_ref = EXCLUDED.status_msg_ref,
		   cleanup_refs = EXCLUDED.cleanup_refs,
		   started_at = EXCLUDED.started_at,
		   updated_at = NOW()`,
		p.UserID, p.DisplayName, p.ExamKey, p.Stage, p.UnitID, p.Level, p.QuestionIndex,
		p.Score, answered, p.QuestionMsgRef, p.StatusMsgRef, cleanup, p.StartedAt)
	return err
}

// CountUsers returns the number of known users.
func (r *ProgressRepository) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_progress`).Scan(&n)
	return n, err
}
