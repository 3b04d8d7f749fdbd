package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agoramarket/backend/internal/models"
)

type ValidationRepo struct {
	pool *pgxpool.Pool
}

func NewValidationRepo(pool *pgxpool.Pool) *ValidationRepo {
	return &ValidationRepo{pool: pool}
}

// Upsert writes the current state of a validation request.
func (r *ValidationRepo) Upsert(ctx context.Context, req *models.ValidationRequest) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO validations (id, agent_id, task_id, requester, validation_type, request_uri, validator_address, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status
	`, req.ID, req.AgentID, req.TaskID.Hex(), req.Requester.Hex(), string(req.ValidationType), req.RequestURI, req.ValidatorAddress.Hex(), string(req.Status), req.Timestamp)
	return err
}

// CountByStatus returns projected request counts per status.
func (r *ValidationRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, "SELECT status, COUNT(*) FROM validations GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
