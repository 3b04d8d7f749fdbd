package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AdminKeyRepo struct {
	pool *pgxpool.Pool
}

func NewAdminKeyRepo(pool *pgxpool.Pool) *AdminKeyRepo {
	return &AdminKeyRepo{pool: pool}
}

// Create stores a new admin key hash. The raw key is never persisted.
func (r *AdminKeyRepo) Create(ctx context.Context, keyHash, label string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO admin_keys (id, key_hash, label, is_active)
		VALUES ($1, $2, $3, TRUE)
	`, id, keyHash, label)
	return id, err
}

// IsActiveKeyHash reports whether an active admin key with this hash exists.
func (r *AdminKeyRepo) IsActiveKeyHash(ctx context.Context, keyHash string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM admin_keys WHERE key_hash = $1 AND is_active = TRUE)
	`, keyHash).Scan(&ok)
	return ok, err
}

// Revoke deactivates a key.
func (r *AdminKeyRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "UPDATE admin_keys SET is_active = FALSE WHERE id = $1", id)
	return err
}
