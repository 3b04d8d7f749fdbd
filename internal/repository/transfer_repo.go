package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TransferEntry is one journaled fund movement: escrow locks and releases,
// refunds, stake deposits, rewards, slashes, and fee withdrawals.
type TransferEntry struct {
	EntryType string
	TaskID    string
	Address   string
	Amount    int64
	At        time.Time
}

type TransferRepo struct {
	pool *pgxpool.Pool
}

func NewTransferRepo(pool *pgxpool.Pool) *TransferRepo {
	return &TransferRepo{pool: pool}
}

// Insert appends a journal entry.
func (r *TransferRepo) Insert(ctx context.Context, e *TransferEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transfer_journal (entry_type, task_id, address, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.EntryType, e.TaskID, e.Address, e.Amount, e.At)
	return err
}

// SumByType returns the journaled total for one entry type.
func (r *TransferRepo) SumByType(ctx context.Context, entryType string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transfer_journal WHERE entry_type = $1
	`, entryType).Scan(&total)
	return total, err
}
