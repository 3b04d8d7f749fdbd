// Package reputation stores feedback entries per agent, validates payment
// evidence, and computes the weighted, time-decayed aggregate scores clients
// use to pick agents.
package reputation

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/agoramarket/backend/internal/events"
	"github.com/agoramarket/backend/internal/models"
	"github.com/agoramarket/backend/internal/proofs"
)

// OwnerLookup resolves the current owner of an agent identity. Satisfied by
// *identity.Store; tests substitute a fake.
type OwnerLookup interface {
	OwnerOf(agentID uint64) (common.Address, error)
}

type authKey struct {
	agentID uint64
	client  common.Address
	taskID  common.Hash
}

type authorization struct {
	expiresAt time.Time
	consumed  bool
}

// Ledger is the reputation component. Command operations serialize on the
// write lock; score calculations take the read lock and observe a consistent
// snapshot.
type Ledger struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*models.FeedbackEntry
	byAgent map[uint64][]uuid.UUID
	byTask  map[common.Hash]uuid.UUID
	auths   map[authKey]*authorization

	owners      OwnerLookup
	verifier    proofs.PaymentVerifier
	networkID   uint64
	authorizers map[common.Address]bool

	bus *events.Bus
	now func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithBus attaches the notification bus.
func WithBus(bus *events.Bus) Option {
	return func(l *Ledger) { l.bus = bus }
}

// WithVerifier overrides the payment-proof verifier. Tests inject doubles.
func WithVerifier(v proofs.PaymentVerifier) Option {
	return func(l *Ledger) { l.verifier = v }
}

// WithAuthorizer allows addr (typically the marketplace engine) to open
// feedback authorizations on behalf of agent owners.
func WithAuthorizer(addr common.Address) Option {
	return func(l *Ledger) { l.authorizers[addr] = true }
}

// NewLedger returns an empty reputation ledger bound to networkID for payment
// proof validation.
func NewLedger(owners OwnerLookup, networkID uint64, opts ...Option) *Ledger {
	l := &Ledger{
		entries:     make(map[uuid.UUID]*models.FeedbackEntry),
		byAgent:     make(map[uint64][]uuid.UUID),
		byTask:      make(map[common.Hash]uuid.UUID),
		auths:       make(map[authKey]*authorization),
		owners:      owners,
		verifier:    proofs.RecoveryVerifier{},
		networkID:   networkID,
		authorizers: make(map[common.Address]bool),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AuthorizeFeedback opens a one-time-use feedback window for client on
// (agentID, taskID). Callable by the agent's owner or a configured
// marketplace authorizer.
func (l *Ledger) AuthorizeFeedback(caller common.Address, agentID uint64, client common.Address, taskID common.Hash, expiresAt time.Time) error {
	if client == (common.Address{}) || taskID == (common.Hash{}) {
		return fmt.Errorf("authorize feedback: empty client or task: %w", models.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !expiresAt.After(now) {
		return fmt.Errorf("authorize feedback: window already closed: %w", models.ErrInvalidInput)
	}

	owner, err := l.owners.OwnerOf(agentID)
	if err != nil {
		return err
	}
	if caller != owner && !l.authorizers[caller] {
		return fmt.Errorf("caller %s may not authorize feedback for agent %d: %w", caller, agentID, models.ErrUnauthorized)
	}

	l.auths[authKey{agentID: agentID, client: client, taskID: taskID}] = &authorization{expiresAt: expiresAt}

	l.bus.Publish(events.Event{Type: events.FeedbackAuthorized, At: now, AgentID: agentID, TaskID: taskID, Address: client})
	return nil
}

// SubmitFeedback records a feedback entry for (agentID, taskID) from caller.
// The entry is immutable once stored. The proof must pass basic validity and
// name (caller, agent owner) as (payer, payee); an invalid signature only
// down-weights, it never rejects.
func (l *Ledger) SubmitFeedback(caller common.Address, agentID uint64, taskID common.Hash, score uint8, skill, context, detailURI string, contentHash common.Hash, proof models.PaymentProof) (uuid.UUID, error) {
	if score > models.MaxFeedbackScore {
		return uuid.Nil, fmt.Errorf("score %d exceeds %d: %w", score, models.MaxFeedbackScore, models.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	owner, err := l.owners.OwnerOf(agentID)
	if err != nil {
		return uuid.Nil, err
	}

	key := authKey{agentID: agentID, client: caller, taskID: taskID}
	auth, ok := l.auths[key]
	if !ok || auth.consumed {
		return uuid.Nil, fmt.Errorf("no live feedback authorization for task %s: %w", taskID, models.ErrUnauthorized)
	}
	if now.After(auth.expiresAt) {
		return uuid.Nil, fmt.Errorf("feedback authorization for task %s lapsed: %w", taskID, models.ErrExpired)
	}

	if _, exists := l.byTask[taskID]; exists {
		return uuid.Nil, fmt.Errorf("feedback for task %s: %w", taskID, models.ErrAlreadyDone)
	}

	if err := l.verifier.CheckBasic(proof); err != nil {
		return uuid.Nil, err
	}
	if proof.Payer != caller || proof.Payee != owner {
		return uuid.Nil, fmt.Errorf("payment proof parties do not match client and agent owner: %w", models.ErrInvalidProof)
	}

	entry := &models.FeedbackEntry{
		ID:            uuid.New(),
		AgentID:       agentID,
		ClientAddress: caller,
		TaskID:        taskID,
		Score:         score,
		Skill:         skill,
		Context:       context,
		DetailURI:     detailURI,
		ContentHash:   contentHash,
		Proof:         proof,
		Timestamp:     now,
	}
	l.entries[entry.ID] = entry
	l.byAgent[agentID] = append(l.byAgent[agentID], entry.ID)
	l.byTask[taskID] = entry.ID
	auth.consumed = true

	l.bus.Publish(events.Event{Type: events.FeedbackRegistered, At: now, AgentID: agentID, TaskID: taskID, RecordID: entry.ID, Address: caller})
	return entry.ID, nil
}

// GetFeedbackHistory returns a copy window of an agent's entries in
// submission order, clamping limit at the remaining count.
func (l *Ledger) GetFeedbackHistory(agentID uint64, offset, limit int) []models.FeedbackEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := l.byAgent[agentID]
	if offset < 0 || limit <= 0 || offset >= len(ids) {
		return nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	out := make([]models.FeedbackEntry, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, *l.entries[id])
	}
	return out
}

// GetFeedbackByTask returns the single entry recorded for taskID.
func (l *Ledger) GetFeedbackByTask(taskID common.Hash) (models.FeedbackEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	id, ok := l.byTask[taskID]
	if !ok {
		return models.FeedbackEntry{}, fmt.Errorf("feedback for task %s: %w", taskID, models.ErrNotFound)
	}
	return *l.entries[id], nil
}

// PruneExpiredAuthorizations drops authorizations whose window lapsed before
// now and returns how many were removed. Called by the background sweep.
func (l *Ledger) PruneExpiredAuthorizations() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	pruned := 0
	for key, auth := range l.auths {
		if auth.consumed || now.After(auth.expiresAt) {
			delete(l.auths, key)
			pruned++
		}
	}
	return pruned
}
