package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mishalinitiative/quizbot/internal/model"
)

// StatisticRepository handles the append-only completed-attempt log.
type StatisticRepository struct {
	pool *pgxpool.Pool
}

// NewStatisticRepository creates a new StatisticRepository.
func NewStatisticRepository(pool *pgxpool.Pool) *StatisticRepository {
	return &StatisticRepository{pool: pool}
}

// Insert appends one completed-attempt row.
func (r *StatisticRepository) Insert(ctx context.Context, s *model.ExamStatistic) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_statistics (id, exam_id, user_id, score, total_questions, elapsed_seconds, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.ExamID, s.UserID, s.Score, s.TotalQuestions, s.ElapsedSeconds, s.CompletedAt)
	return err
}

// BulkInsert appends a batch of completed-attempt rows in one statement.
func (r *StatisticRepository) BulkInsert(ctx context.Context, batch []*model.ExamStatistic) error {
	n := len(batch)
	if n == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, n)
	examIDs := make([]string, 0, n)
	userIDs := make([]int64, 0, n)
	scores := make([]int, 0, n)
	totals := make([]int, 0, n)
	elapsed := make([]int, 0, n)
	completed := make([]time.Time, 0, n)

	for _, s := range batch {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		ids = append(ids, s.ID)
		examIDs = append(examIDs, s.ExamID)
		userIDs = append(userIDs, s.UserID)
		scores = append(scores, s.Score)
		totals = append(totals, s.TotalQuestions)
		elapsed = append(elapsed, s.ElapsedSeconds)
		completed = append(completed, s.CompletedAt)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_statistics (id, exam_id, user_id, score, total_questions, elapsed_seconds, completed_at)
		 SELECT * FROM UNNEST(
		   $1::uuid[], $2::text[], $3::bigint[], $4::int[], $5::int[], $6::int[], $7::timestamptz[]
		 ) AS u (id, exam_id, user_id, score, total_questions, elapsed_seconds, completed_at)`,
		ids, examIDs, userIDs, scores, totals, elapsed, completed)
	return err
}

// Aggregate computes the derived per-exam reporting view.
func (r *StatisticRepository) Aggregate(ctx context.Context, examID string) (*model.ExamAggregate, error) {
	agg := &model.ExamAggregate{ExamID: examID}
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(AVG(score), 0),
		        COALESCE(MAX(score), 0),
		        COALESCE(MIN(score), 0),
		        COALESCE(AVG(elapsed_seconds), 0)
		 FROM exam_statistics
		 WHERE exam_id = $1`, examID,
	).Scan(&agg.Attempts, &agg.AvgScore, &agg.MaxScore, &agg.MinScore, &agg.AvgElapsedSecs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return agg, nil
}

// CountAttempts returns the total number of logged attempts.
func (r *StatisticRepository) CountAttempts(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exam_statistics`).Scan(&n)
	return n, err
}

// Recent retrieves the latest completed attempts for the dashboard feed.
func (r *StatisticRepository) Recent(ctx context.Context, limit int) ([]model.ExamStatistic, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, user_id, score, total_questions, elapsed_seconds, completed_at
		 FROM exam_statistics
		 ORDER BY completed_at DESC
		 LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []model.ExamStatistic
	for rows.Next() {
		var s model.ExamStatistic
		if err := rows.Scan(&s.ID, &s.ExamID, &s.UserID, &s.Score, &s.TotalQuestions, &s.ElapsedSeconds, &s.CompletedAt); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
