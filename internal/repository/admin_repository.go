package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mishalinitiative/quizbot/internal/model"
)

// AdminRepository handles dashboard admin data access.
type AdminRepository struct {
	pool *pgxpool.Pool
}

// NewAdminRepository creates a new AdminRepository.
func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

// GetByEmail retrieves an admin by email.
func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (*model.DashboardAdmin, error) {
	admin := &model.DashboardAdmin{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at
		 FROM dashboard_admins WHERE email = $1`, email,
	).Scan(&admin.ID, &admin.Name, &admin.Email, &admin.PasswordHash, &admin.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return admin, nil
}

// Create inserts a new admin account.
func (r *AdminRepository) Create(ctx context.Context, name, email, passwordHash string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO dashboard_admins (name, email, password_hash, created_at)
		 VALUES ($1, $2, $3, NOW())`,
		name, email, passwordHash)
	return err
}
