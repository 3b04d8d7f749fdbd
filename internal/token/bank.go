// Package token is the fungible-token transfer capability the settlement
// engines consume. The engines only ever call allowance checks and transfers;
// the production deployment swaps Bank for an adapter over the real token
// ledger.
package token

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoramarket/backend/internal/models"
)

// ErrInsufficientAllowance is returned when a TransferFrom exceeds the
// spender's approved allowance.
var ErrInsufficientAllowance = fmt.Errorf("insufficient allowance: %w", models.ErrInsufficientFunds)

// Ledger is the transfer capability interface. All operations are atomic:
// a failed transfer moves nothing.
type Ledger interface {
	BalanceOf(addr common.Address) int64
	Allowance(owner, spender common.Address) int64
	Approve(owner, spender common.Address, amount int64) error
	TransferFrom(spender, from, to common.Address, amount int64) error
	Transfer(from, to common.Address, amount int64) error
}

// Bank is the in-memory Ledger used by tests and the standalone mode.
type Bank struct {
	mu         sync.Mutex
	balances   map[common.Address]int64
	allowances map[common.Address]map[common.Address]int64
}

var _ Ledger = (*Bank)(nil)

// NewBank returns an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances:   make(map[common.Address]int64),
		allowances: make(map[common.Address]map[common.Address]int64),
	}
}

// Mint credits addr out of thin air. Test and bootstrap helper.
func (b *Bank) Mint(addr common.Address, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] += amount
}

// BalanceOf implements Ledger.
func (b *Bank) BalanceOf(addr common.Address) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[addr]
}

// Allowance implements Ledger.
func (b *Bank) Allowance(owner, spender common.Address) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allowances[owner][spender]
}

// Approve implements Ledger. It sets (not adds to) the allowance.
func (b *Bank) Approve(owner, spender common.Address, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("approve: negative amount: %w", models.ErrInvalidInput)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allowances[owner] == nil {
		b.allowances[owner] = make(map[common.Address]int64)
	}
	b.allowances[owner][spender] = amount
	return nil
}

// TransferFrom implements Ledger: spender moves amount from `from` to `to`
// within the approved allowance. Allowance and balance are checked and
// updated under one lock so a failure moves nothing.
func (b *Bank) TransferFrom(spender, from, to common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer from: non-positive amount: %w", models.ErrInvalidInput)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.allowances[from][spender] < amount {
		return fmt.Errorf("transfer %d from %s: %w", amount, from, ErrInsufficientAllowance)
	}
	if b.balances[from] < amount {
		return fmt.Errorf("transfer %d from %s: %w", amount, from, models.ErrInsufficientFunds)
	}
	b.allowances[from][spender] -= amount
	b.balances[from] -= amount
	b.balances[to] += amount
	return nil
}

// Transfer implements Ledger: from moves its own funds to `to`.
func (b *Bank) Transfer(from, to common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer: non-positive amount: %w", models.ErrInvalidInput)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balances[from] < amount {
		return fmt.Errorf("transfer %d from %s: %w", amount, from, models.ErrInsufficientFunds)
	}
	b.balances[from] -= amount
	b.balances[to] += amount
	return nil
}
