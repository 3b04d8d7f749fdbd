// Package marketplace orchestrates the task lifecycle and owns the escrow of
// client funds, fee accounting, and payout. It consumes identity for owner
// checks, the token ledger for fund movement, and the reputation ledger for
// post-release feedback authorization.
package marketplace

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/agoramarket/backend/internal/events"
	"github.com/agoramarket/backend/internal/models"
)

// OwnerLookup resolves agent ownership and activity. Satisfied by
// *identity.Store.
type OwnerLookup interface {
	OwnerOf(agentID uint64) (common.Address, error)
	IsActive(agentID uint64) (bool, error)
}

// TokenLedger is the subset of the token capability the engine uses for
// escrow custody.
type TokenLedger interface {
	Allowance(owner, spender common.Address) int64
	TransferFrom(spender, from, to common.Address, amount int64) error
	Transfer(from, to common.Address, amount int64) error
}

// FeedbackAuthorizer opens the post-release feedback window. Satisfied by
// *reputation.Ledger.
type FeedbackAuthorizer interface {
	AuthorizeFeedback(caller common.Address, agentID uint64, client common.Address, taskID common.Hash, expiresAt time.Time) error
}

// Engine is the marketplace component. Every command operation runs under the
// write lock from first check to last mutation, which is the single-writer
// serialization point that makes the escrow latch race-free.
type Engine struct {
	mu       sync.RWMutex
	tasks    map[common.Hash]*models.Task
	escrows  map[common.Hash]*models.Escrow
	listings map[uint64]*models.AgentListing
	byAgent  map[uint64][]common.Hash
	byClient map[common.Address][]common.Hash

	owners     OwnerLookup
	token      TokenLedger
	reputation FeedbackAuthorizer
	custody    common.Address
	admin      common.Address

	fees int64
	seq  uint64

	bus    *events.Bus
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithBus attaches the notification bus.
func WithBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine returns a marketplace engine. custody is the engine's own address
// holding escrowed funds; admin is the only caller allowed to withdraw
// accumulated fees.
func NewEngine(owners OwnerLookup, token TokenLedger, reputation FeedbackAuthorizer, custody, admin common.Address, opts ...Option) *Engine {
	e := &Engine{
		tasks:      make(map[common.Hash]*models.Task),
		escrows:    make(map[common.Hash]*models.Escrow),
		listings:   make(map[uint64]*models.AgentListing),
		byAgent:    make(map[uint64][]common.Hash),
		byClient:   make(map[common.Address][]common.Hash),
		owners:     owners,
		token:      token,
		reputation: reputation,
		custody:    custody,
		admin:      admin,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CustodyAddress returns the engine's escrow custody address. Clients approve
// this address before creating tasks.
func (e *Engine) CustodyAddress() common.Address { return e.custody }

// CreateTask commissions work from a listed agent, locking price = basePrice
// × complexity in escrow. The task id is derived from (client, agent,
// creation time, sequence) so two near-simultaneous tasks never collide.
func (e *Engine) CreateTask(caller common.Address, agentID uint64, skill, description, filesURI string, complexity int, deadline time.Time) (common.Hash, error) {
	if complexity < models.MinComplexity || complexity > models.MaxComplexity {
		return common.Hash{}, fmt.Errorf("complexity %d outside [%d,%d]: %w", complexity, models.MinComplexity, models.MaxComplexity, models.ErrInvalidInput)
	}
	if description == "" || skill == "" {
		return common.Hash{}, fmt.Errorf("create task: empty skill or description: %w", models.ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if !deadline.After(now) {
		return common.Hash{}, fmt.Errorf("deadline %s is in the past: %w", deadline, models.ErrInvalidInput)
	}

	active, err := e.owners.IsActive(agentID)
	if err != nil {
		return common.Hash{}, err
	}
	listing := e.listings[agentID]
	if !active || listing == nil || !listing.IsActive {
		return common.Hash{}, fmt.Errorf("agent %d is not accepting tasks: %w", agentID, models.ErrInvalidInput)
	}

	price := listing.BasePrice * int64(complexity)
	if e.token.Allowance(caller, e.custody) < price {
		return common.Hash{}, fmt.Errorf("price %d exceeds approved allowance: %w", price, models.ErrInsufficientFunds)
	}

	id := e.deriveTaskID(caller, agentID, now)
	if err := e.token.TransferFrom(e.custody, caller, e.custody, price); err != nil {
		return common.Hash{}, fmt.Errorf("lock escrow: %w", err)
	}

	task := &models.Task{
		ID:            id,
		AgentID:       agentID,
		ClientAddress: caller,
		Skill:         skill,
		Complexity:    complexity,
		Description:   description,
		FilesURI:      filesURI,
		Deadline:      deadline,
		Price:         price,
		Status:        models.TaskStatusOpen,
		CreatedAt:     now,
	}
	e.tasks[id] = task
	e.escrows[id] = &models.Escrow{
		TaskID:        id,
		Amount:        price,
		ClientAddress: caller,
		AgentID:       agentID,
	}
	e.byAgent[agentID] = append(e.byAgent[agentID], id)
	e.byClient[caller] = append(e.byClient[caller], id)

	e.bus.Publish(events.Event{Type: events.TaskCreated, At: now, AgentID: agentID, TaskID: id, Address: caller, Amount: price})
	return id, nil
}

// AcceptTask moves an OPEN task to ACCEPTED. Agent owner only.
func (e *Engine) AcceptTask(caller common.Address, taskID common.Hash) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.agentTask(caller, taskID, models.TaskStatusOpen)
	if err != nil {
		return err
	}
	task.Status = models.TaskStatusAccepted

	e.bus.Publish(events.Event{Type: events.TaskAccepted, At: e.now(), AgentID: task.AgentID, TaskID: taskID, Address: caller})
	return nil
}

// CompleteTask reports delivery of an ACCEPTED task and stamps the
// auto-release deadline. Agent owner only.
func (e *Engine) CompleteTask(caller common.Address, taskID common.Hash, resultURI string) error {
	if resultURI == "" {
		return fmt.Errorf("complete task: empty result URI: %w", models.ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.agentTask(caller, taskID, models.TaskStatusAccepted)
	if err != nil {
		return err
	}

	now := e.now()
	task.Status = models.TaskStatusCompleted
	task.ResultURI = resultURI
	task.CompletedAt = now
	e.escrows[taskID].AutoReleaseAt = now.Add(models.AutoReleaseWindow)

	e.bus.Publish(events.Event{Type: events.TaskCompleted, At: now, AgentID: task.AgentID, TaskID: taskID, Address: caller})
	return nil
}

// ValidateAndRelease is the client's verdict on a COMPLETED task. Approval
// releases escrow to the agent (minus fee), opens the client's feedback
// window, and moves the task to VALIDATED. Rejection moves it to DISPUTED
// with no fund movement.
func (e *Engine) ValidateAndRelease(caller common.Address, taskID common.Hash, approved bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	if caller != task.ClientAddress {
		return fmt.Errorf("caller %s is not the task client: %w", caller, models.ErrUnauthorized)
	}
	if e.escrows[taskID].Released {
		return fmt.Errorf("escrow for task %s already released: %w", taskID, models.ErrAlreadyDone)
	}
	if task.Status != models.TaskStatusCompleted {
		return models.NewInvalidStatus(string(task.Status), string(models.TaskStatusCompleted))
	}

	now := e.now()
	if !approved {
		task.Status = models.TaskStatusDisputed
		e.bus.Publish(events.Event{Type: events.TaskDisputed, At: now, AgentID: task.AgentID, TaskID: taskID, Address: caller})
		return nil
	}
	return e.releaseToAgent(task, now)
}

// DisputeTask flags a COMPLETED or VALIDATED task as DISPUTED. Client only.
// Resolution of marketplace disputes is external; only the status moves here.
func (e *Engine) DisputeTask(caller common.Address, taskID common.Hash) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	if caller != task.ClientAddress {
		return fmt.Errorf("caller %s is not the task client: %w", caller, models.ErrUnauthorized)
	}
	if task.Status != models.TaskStatusCompleted && task.Status != models.TaskStatusValidated {
		return models.NewInvalidStatus(string(task.Status), "COMPLETED or VALIDATED")
	}

	task.Status = models.TaskStatusDisputed
	e.bus.Publish(events.Event{Type: events.TaskDisputed, At: e.now(), AgentID: task.AgentID, TaskID: taskID, Address: caller})
	return nil
}

// CancelTask refunds an OPEN task in full once the 24-hour acceptance window
// has elapsed. Client only, no fee.
func (e *Engine) CancelTask(caller common.Address, taskID common.Hash) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	if caller != task.ClientAddress {
		return fmt.Errorf("caller %s is not the task client: %w", caller, models.ErrUnauthorized)
	}
	if e.escrows[taskID].Released {
		return fmt.Errorf("escrow for task %s already released: %w", taskID, models.ErrAlreadyDone)
	}
	if task.Status != models.TaskStatusOpen {
		return models.NewInvalidStatus(string(task.Status), string(models.TaskStatusOpen))
	}

	now := e.now()
	if now.Before(task.CreatedAt.Add(models.CancelWindow)) {
		return fmt.Errorf("cancellation window opens at %s: %w", task.CreatedAt.Add(models.CancelWindow), models.ErrExpired)
	}

	escrow := e.escrows[taskID]
	if escrow.Released {
		return fmt.Errorf("escrow for task %s already released: %w", taskID, models.ErrAlreadyDone)
	}
	escrow.Released = true

	if err := e.token.Transfer(e.custody, task.ClientAddress, escrow.Amount); err != nil {
		escrow.Released = false
		return fmt.Errorf("refund escrow: %w", err)
	}
	task.Status = models.TaskStatusCancelled

	e.bus.Publish(events.Event{Type: events.TaskCancelled, At: now, AgentID: task.AgentID, TaskID: taskID, Address: caller})
	e.bus.Publish(events.Event{Type: events.EscrowRefunded, At: now, TaskID: taskID, Address: task.ClientAddress, Amount: escrow.Amount})
	return nil
}

// AutoReleaseEscrow pays the agent for a COMPLETED task nobody validated
// within the review window. Callable by anyone once the deadline has passed;
// the payout is identical to client approval.
func (e *Engine) AutoReleaseEscrow(taskID common.Hash) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	if e.escrows[taskID].Released {
		return fmt.Errorf("escrow for task %s already released: %w", taskID, models.ErrAlreadyDone)
	}
	if task.Status != models.TaskStatusCompleted {
		return models.NewInvalidStatus(string(task.Status), string(models.TaskStatusCompleted))
	}

	now := e.now()
	if now.Before(e.escrows[taskID].AutoReleaseAt) {
		return fmt.Errorf("auto-release opens at %s: %w", e.escrows[taskID].AutoReleaseAt, models.ErrExpired)
	}
	return e.releaseToAgent(task, now)
}

// WithdrawFees pays the accumulated marketplace fees to the administrator.
func (e *Engine) WithdrawFees(caller, to common.Address) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.admin {
		return 0, fmt.Errorf("caller %s may not withdraw fees: %w", caller, models.ErrUnauthorized)
	}
	if e.fees == 0 {
		return 0, nil
	}

	amount := e.fees
	if err := e.token.Transfer(e.custody, to, amount); err != nil {
		return 0, fmt.Errorf("withdraw fees: %w", err)
	}
	e.fees = 0

	e.bus.Publish(events.Event{Type: events.FeesWithdrawn, At: e.now(), Address: to, Amount: amount})
	return amount, nil
}

// releaseToAgent opens the client's feedback window, moves escrow to the
// agent owner minus the marketplace fee, and finalizes the task. Callers hold
// the write lock and have verified the task is COMPLETED.
//
// Release and feedback authorization commit together: the authorization is
// recorded before any fund movement, so a downstream failure aborts the whole
// operation. The released latch is checked-and-set before the transfer; a
// transfer failure restores it (the recorded authorization is overwritten on
// retry) so funds are never stranded.
func (e *Engine) releaseToAgent(task *models.Task, now time.Time) error {
	escrow := e.escrows[task.ID]
	if escrow.Released {
		return fmt.Errorf("escrow for task %s already released: %w", task.ID, models.ErrAlreadyDone)
	}

	agentOwner, err := e.owners.OwnerOf(task.AgentID)
	if err != nil {
		return err
	}

	if err := e.reputation.AuthorizeFeedback(e.custody, task.AgentID, task.ClientAddress, task.ID, now.Add(models.FeedbackAuthWindow)); err != nil {
		return fmt.Errorf("authorize feedback for task %s: %w", task.ID, err)
	}

	escrow.Released = true
	fee := models.FeeFor(escrow.Amount)
	agentAmount := escrow.Amount - fee

	if err := e.token.Transfer(e.custody, agentOwner, agentAmount); err != nil {
		escrow.Released = false
		return fmt.Errorf("release escrow: %w", err)
	}
	e.fees += fee

	task.Status = models.TaskStatusValidated
	if listing := e.listings[task.AgentID]; listing != nil {
		listing.TotalTasksCompleted++
		listing.TotalEarnings += agentAmount
	}

	e.logger.Info("escrow released", "task_id", task.ID, "agent_id", task.AgentID, "payout", agentAmount, "fee", fee)
	e.bus.Publish(events.Event{Type: events.EscrowReleased, At: now, AgentID: task.AgentID, TaskID: task.ID, Address: agentOwner, Amount: agentAmount})
	e.bus.Publish(events.Event{Type: events.TaskValidated, At: now, AgentID: task.AgentID, TaskID: task.ID, Address: task.ClientAddress})
	return nil
}

// agentTask fetches taskID, checks caller owns its agent and the task is in
// want. Callers hold the write lock.
func (e *Engine) agentTask(caller common.Address, taskID common.Hash, want models.TaskStatus) (*models.Task, error) {
	task, ok := e.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	owner, err := e.owners.OwnerOf(task.AgentID)
	if err != nil {
		return nil, err
	}
	if caller != owner {
		return nil, fmt.Errorf("caller %s does not own agent %d: %w", caller, task.AgentID, models.ErrUnauthorized)
	}
	if task.Status != want {
		return nil, models.NewInvalidStatus(string(task.Status), string(want))
	}
	return task, nil
}

// deriveTaskID hashes (client, agent, creation time, sequence) into a unique
// id. The sequence number keeps two tasks in the same nanosecond distinct.
func (e *Engine) deriveTaskID(client common.Address, agentID uint64, now time.Time) common.Hash {
	e.seq++
	buf := make([]byte, 0, common.AddressLength+24)
	buf = append(buf, client.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, agentID)
	buf = binary.BigEndian.AppendUint64(buf, uint64(now.UnixNano()))
	buf = binary.BigEndian.AppendUint64(buf, e.seq)
	return crypto.Keccak256Hash(buf)
}
