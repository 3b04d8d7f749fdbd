package models

import (
	"errors"
	"fmt"
)

// Shared failure taxonomy. Every caller-visible failure from the core engines
// unwraps to exactly one of these sentinels so handlers can map them to
// transport status codes without string matching.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientStake = errors.New("insufficient stake")
	ErrAlreadyDone       = errors.New("already done")
	ErrExpired           = errors.New("expired")
	ErrInvalidProof      = errors.New("invalid proof")
)

// InvalidStatusError reports a lifecycle operation attempted from the wrong
// status. It unwraps to ErrInvalidStatus and carries both sides for
// diagnostics.
type InvalidStatusError struct {
	Current  string
	Expected string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status %q (expected %q)", e.Current, e.Expected)
}

func (e *InvalidStatusError) Unwrap() error { return ErrInvalidStatus }

// NewInvalidStatus is a convenience constructor used at state-machine entry
// points.
func NewInvalidStatus(current, expected string) error {
	return &InvalidStatusError{Current: current, Expected: expected}
}
