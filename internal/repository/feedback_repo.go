package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agoramarket/backend/internal/models"
)

type FeedbackRepo struct {
	pool *pgxpool.Pool
}

func NewFeedbackRepo(pool *pgxpool.Pool) *FeedbackRepo {
	return &FeedbackRepo{pool: pool}
}

// Insert records a feedback entry. Entries are immutable; re-delivered
// events are ignored.
func (r *FeedbackRepo) Insert(ctx context.Context, e *models.FeedbackEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO feedback (id, agent_id, client_address, task_id, score, skill, context, detail_uri, proof_signed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.AgentID, e.ClientAddress.Hex(), e.TaskID.Hex(), e.Score, e.Skill, e.Context, e.DetailURI, len(e.Proof.Signature) > 0, e.Timestamp)
	return err
}

// AverageScore returns the unweighted projected average for reporting. The
// canonical weighted score lives in the reputation ledger.
func (r *FeedbackRepo) AverageScore(ctx context.Context, agentID uint64) (float64, int, error) {
	var avg *float64
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT AVG(score), COUNT(*) FROM feedback WHERE agent_id = $1
	`, agentID).Scan(&avg, &n)
	if err != nil {
		return 0, 0, err
	}
	if avg == nil {
		return 0, 0, nil
	}
	return *avg, n, nil
}

// nullableTime maps the zero time onto SQL NULL.
func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
