package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mishalinitiative/quizbot/internal/model"
)

// BadgeRepository handles idempotent badge awards.
type BadgeRepository struct {
	pool *pgxpool.Pool
}

// NewBadgeRepository creates a new BadgeRepository.
func NewBadgeRepository(pool *pgxpool.Pool) *BadgeRepository {
	return &BadgeRepository{pool: pool}
}

// Award inserts a badge for the user. Re-awarding is a no-op.
func (r *BadgeRepository) Award(ctx context.Context, userID int64, badgeID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_badges (user_id, badge_id, earned_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id, badge_id) DO NOTHING`,
		userID, badgeID)
	return err
}

// ListByUser retrieves a user's badges in award order.
func (r *BadgeRepository) ListByUser(ctx context.Context, userID int64) ([]model.Badge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT badge_id, earned_at
		 FROM user_badges
		 WHERE user_id = $1
		 ORDER BY earned_at ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var badges []model.Badge
	for rows.Next() {
		b := model.Badge{UserID: userID}
		if err := rows.Scan(&b.BadgeID, &b.EarnedAt); err != nil {
			return nil, err
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}
