package auth

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new account and returns the created Account.
func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName string, address common.Address) (*Account, error) {
	acc := &Account{
		Email:       email,
		DisplayName: displayName,
		Address:     address,
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, password_hash, display_name, wallet_address)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, email, passwordHash, displayName, address.Hex())
	if err := row.Scan(&acc.ID, &acc.CreatedAt); err != nil {
		return nil, err
	}
	return acc, nil
}

// GetByEmail returns the account and password hash for login. Returns nil if not found.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, string, error) {
	var acc Account
	var passwordHash, address string
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, wallet_address, password_hash, created_at
		FROM accounts WHERE email = $1
	`, email)
	if err := row.Scan(&acc.ID, &acc.Email, &acc.DisplayName, &address, &passwordHash, &acc.CreatedAt); err != nil {
		if err.Error() == "no rows in result set" {
			return nil, "", nil
		}
		return nil, "", err
	}
	acc.Address = common.HexToAddress(address)
	return &acc, passwordHash, nil
}

// GetByAddress returns the account bound to a wallet address, or nil.
func (r *Repository) GetByAddress(ctx context.Context, address common.Address) (*Account, error) {
	var acc Account
	var stored string
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, wallet_address, created_at
		FROM accounts WHERE wallet_address = $1
	`, address.Hex())
	if err := row.Scan(&acc.ID, &acc.Email, &acc.DisplayName, &stored, &acc.CreatedAt); err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, err
	}
	acc.Address = common.HexToAddress(stored)
	return &acc, nil
}
