package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agoramarket/backend/internal/models"
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// Upsert writes the current state of a task.
func (r *TaskRepo) Upsert(ctx context.Context, t *models.Task) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tasks (id, agent_id, client_address, skill, complexity, description, files_uri, result_uri, deadline, price, status, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			result_uri = EXCLUDED.result_uri,
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at
	`, t.ID.Hex(), t.AgentID, t.ClientAddress.Hex(), t.Skill, t.Complexity, t.Description, t.FilesURI, t.ResultURI, t.Deadline, t.Price, string(t.Status), t.CreatedAt, nullableTime(t.CompletedAt))
	return err
}

// CountByStatus returns projected task counts per lifecycle status.
func (r *TaskRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, "SELECT status, COUNT(*) FROM tasks GROUP BY status")
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
