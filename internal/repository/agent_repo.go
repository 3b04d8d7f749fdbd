// Package repository persists read projections of the in-memory engines.
// The engines stay canonical; the projector replays their events into these
// tables for durable querying and reporting.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agoramarket/backend/internal/models"
)

type AgentRepo struct {
	pool *pgxpool.Pool
}

func NewAgentRepo(pool *pgxpool.Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

// Upsert writes the current state of an agent identity.
func (r *AgentRepo) Upsert(ctx context.Context, a *models.AgentIdentity) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO agents (id, owner_address, metadata_uri, metadata_hash, token_metadata_uri, active, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			owner_address = EXCLUDED.owner_address,
			metadata_uri = EXCLUDED.metadata_uri,
			metadata_hash = EXCLUDED.metadata_hash,
			token_metadata_uri = EXCLUDED.token_metadata_uri,
			active = EXCLUDED.active
	`, a.ID, a.OwnerAddress.Hex(), a.MetadataURI, a.MetadataHash.Hex(), a.TokenMetadataURI, a.Active, a.RegisteredAt)
	return err
}

// Count returns the number of projected agents.
func (r *AgentRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM agents").Scan(&n)
	return n, err
}
