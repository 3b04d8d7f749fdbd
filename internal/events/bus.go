// Package events is the in-process notification bus the engines publish to.
// Downstream layers (UI refresh, persistence projections) subscribe; the core
// never blocks on a slow subscriber.
package events

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Type identifies a notification kind.
type Type string

const (
	AgentRegistered     Type = "agent.registered"
	AgentUpdated        Type = "agent.updated"
	AgentTransferred    Type = "agent.transferred"
	FeedbackAuthorized  Type = "feedback.authorized"
	FeedbackRegistered  Type = "feedback.registered"
	TaskCreated         Type = "task.created"
	TaskAccepted        Type = "task.accepted"
	TaskCompleted       Type = "task.completed"
	TaskValidated       Type = "task.validated"
	TaskDisputed        Type = "task.disputed"
	TaskCancelled       Type = "task.cancelled"
	EscrowReleased      Type = "escrow.released"
	EscrowRefunded      Type = "escrow.refunded"
	ValidationRequested Type = "validation.requested"
	ValidationResponded Type = "validation.responded"
	ValidatorStaked     Type = "validator.staked"
	ValidatorRewarded   Type = "validator.rewarded"
	ValidatorSlashed    Type = "validator.slashed"
	DisputeRaised       Type = "dispute.raised"
	DisputeResolved     Type = "dispute.resolved"
	FeesWithdrawn       Type = "fees.withdrawn"
)

// Event is a single notification. Only the fields relevant to the type are
// populated.
type Event struct {
	Type     Type           `json:"type"`
	At       time.Time      `json:"at"`
	AgentID  uint64         `json:"agent_id,omitempty"`
	TaskID   common.Hash    `json:"task_id,omitempty"`
	RecordID uuid.UUID      `json:"record_id,omitempty"`
	Address  common.Address `json:"address,omitempty"`
	Counter  common.Address `json:"counterparty,omitempty"`
	Amount   int64          `json:"amount,omitempty"`
	Approved bool           `json:"approved,omitempty"`
}

// Bus fans events out to subscribers. Publish never blocks: an event is
// dropped for any subscriber whose buffer is full.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a buffered subscriber channel and returns it with a
// cancel func that closes the channel and stops delivery.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber with room in its buffer. A nil bus
// is a no-op so engines can run without notifications wired.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
