package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TaskStatus is the lifecycle state of a marketplace task. Transitions are
// validated at every entry point; anything outside the table below fails with
// InvalidStatusError.
type TaskStatus string

const (
	TaskStatusOpen      TaskStatus = "OPEN"
	TaskStatusAccepted  TaskStatus = "ACCEPTED"
	TaskStatusCompleted TaskStatus = "COMPLETED"
	TaskStatusValidated TaskStatus = "VALIDATED"
	TaskStatusDisputed  TaskStatus = "DISPUTED"
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

// Amounts are 6-decimal fixed point, carried as int64 micro-units.
const (
	// FeeBasisPoints is the marketplace fee taken from the agent payout on
	// release: 2.5%.
	FeeBasisPoints = 250

	// MinComplexity and MaxComplexity bound the task complexity multiplier.
	MinComplexity = 1
	MaxComplexity = 10
)

// Timing windows for the task lifecycle.
const (
	// AutoReleaseWindow is how long a COMPLETED task waits for client action
	// before escrow auto-releases to the agent.
	AutoReleaseWindow = 7 * 24 * time.Hour

	// CancelWindow is how long an OPEN task must sit unaccepted before the
	// client may cancel it for a full refund.
	CancelWindow = 24 * time.Hour

	// FeedbackAuthWindow is how long a client may submit feedback after a
	// task is validated.
	FeedbackAuthWindow = 30 * 24 * time.Hour
)

// FeeFor returns the marketplace fee for an escrow amount, floored.
func FeeFor(amount int64) int64 {
	return amount * FeeBasisPoints / 10000
}

// Task is a unit of work a client commissions from an agent. Price is fixed
// at creation (basePrice × complexity) and never recomputed.
type Task struct {
	ID            common.Hash    `json:"id"`
	AgentID       uint64         `json:"agent_id"`
	ClientAddress common.Address `json:"client_address"`
	Skill         string         `json:"skill"`
	Complexity    int            `json:"complexity"`
	Description   string         `json:"description"`
	FilesURI      string         `json:"files_uri"`
	Deadline      time.Time      `json:"deadline"`
	Price         int64          `json:"price"`
	Status        TaskStatus     `json:"status"`
	ResultURI     string         `json:"result_uri,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   time.Time      `json:"completed_at,omitzero"`
}

// Escrow holds the client's funds between task creation and payout/refund.
// Released is a one-way latch: every release path must check-and-set it
// before moving funds, and a second attempt fails with ErrAlreadyDone.
type Escrow struct {
	TaskID        common.Hash    `json:"task_id"`
	Amount        int64          `json:"amount"`
	ClientAddress common.Address `json:"client_address"`
	AgentID       uint64         `json:"agent_id"`
	Released      bool           `json:"released"`
	AutoReleaseAt time.Time      `json:"auto_release_at,omitzero"`
}
