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

// MenuRepository handles persisted menu configuration blobs.
type MenuRepository struct {
	pool *pgxpool.Pool
}

// NewMenuRepository creates a new MenuRepository.
func NewMenuRepository(pool *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{pool: pool}
}

// Get retrieves one menu blob by key.
func (r *MenuRepository) Get(ctx context.Context, key string) (*model.Menu, error) {
	var blob []byte
	err := r.pool.QueryRow(ctx,
		`SELECT config FROM menus WHERE menu_key = $1`, key,
	).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	menu := &model.Menu{Key: key}
	if err := json.Unmarshal(blob, menu); err != nil {
		return nil, fmt.Errorf("decode menu %s: %w", key, err)
	}
	menu.Key = key
	return menu, nil
}

// Upsert writes a menu blob.
func (r *MenuRepository) Upsert(ctx context.Context, menu *model.Menu) error {
	blob, err := json.Marshal(menu)
	if err != nil {
		return fmt.Errorf("encode menu %s: %w", menu.Key, err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO menus (menu_key, config, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (menu_key) DO UPDATE SET config = EXCLUDED.config, updated_at = NOW()`,
		menu.Key, blob)
	return err
}
