// Package identity issues and owns agent identities. Every other component
// resolves "who owns agent X" through this package, making it the single
// source of truth for owner authorization.
package identity

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/agoramarket/backend/internal/events"
	"github.com/agoramarket/backend/internal/models"
)

// ErrDuplicateOwner is returned when an address that already owns a live
// identity tries to register or receive another one.
var ErrDuplicateOwner = fmt.Errorf("address already owns an identity: %w", models.ErrAlreadyDone)

// Store issues agent identities and maintains the owner reverse index.
// Command operations serialize on the write lock; queries take the read lock
// and return value copies.
type Store struct {
	mu      sync.RWMutex
	byID    map[uint64]*models.AgentIdentity
	byOwner map[common.Address]uint64
	nextID  uint64

	bus *events.Bus
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source. Tests pass a fixed clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBus attaches the notification bus.
func WithBus(bus *events.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// NewStore returns an empty identity store. IDs start at 1.
func NewStore(opts ...Option) *Store {
	s := &Store{
		byID:    make(map[uint64]*models.AgentIdentity),
		byOwner: make(map[common.Address]uint64),
		nextID:  1,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a new identity owned by caller. It fails with
// ErrDuplicateOwner if caller already owns one, and with ErrInvalidInput if
// any argument is empty or zero.
func (s *Store) Register(caller common.Address, metadataURI string, metadataHash common.Hash, tokenMetadataURI string) (uint64, error) {
	if caller == (common.Address{}) || metadataURI == "" || tokenMetadataURI == "" || metadataHash == (common.Hash{}) {
		return 0, fmt.Errorf("register: empty argument: %w", models.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byOwner[caller]; ok {
		return 0, fmt.Errorf("register %s: %w", caller, ErrDuplicateOwner)
	}

	now := s.now()
	id := s.nextID
	s.nextID++
	s.byID[id] = &models.AgentIdentity{
		ID:               id,
		OwnerAddress:     caller,
		MetadataURI:      metadataURI,
		MetadataHash:     metadataHash,
		TokenMetadataURI: tokenMetadataURI,
		RegisteredAt:     now,
		Active:           true,
	}
	s.byOwner[caller] = id

	s.bus.Publish(events.Event{Type: events.AgentRegistered, At: now, AgentID: id, Address: caller})
	return id, nil
}

// UpdateCard replaces the agent-card reference. Owner only.
func (s *Store) UpdateCard(caller common.Address, id uint64, newURI string, newHash common.Hash) error {
	if newURI == "" || newHash == (common.Hash{}) {
		return fmt.Errorf("update card: empty argument: %w", models.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	agent, err := s.ownedBy(caller, id)
	if err != nil {
		return err
	}
	agent.MetadataURI = newURI
	agent.MetadataHash = newHash

	s.bus.Publish(events.Event{Type: events.AgentUpdated, At: s.now(), AgentID: id, Address: caller})
	return nil
}

// SetActive toggles the identity's active flag. Owner only. Identities are
// never deleted; deactivation is the terminal form of retirement.
func (s *Store) SetActive(caller common.Address, id uint64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, err := s.ownedBy(caller, id)
	if err != nil {
		return err
	}
	agent.Active = active

	s.bus.Publish(events.Event{Type: events.AgentUpdated, At: s.now(), AgentID: id, Address: caller})
	return nil
}

// Transfer moves ownership of id to newOwner, atomically retargeting the
// reverse index. The new owner must not already hold an identity.
func (s *Store) Transfer(caller common.Address, id uint64, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return fmt.Errorf("transfer: zero new owner: %w", models.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	agent, err := s.ownedBy(caller, id)
	if err != nil {
		return err
	}
	if _, ok := s.byOwner[newOwner]; ok {
		return fmt.Errorf("transfer to %s: %w", newOwner, ErrDuplicateOwner)
	}

	delete(s.byOwner, agent.OwnerAddress)
	agent.OwnerAddress = newOwner
	s.byOwner[newOwner] = id

	s.bus.Publish(events.Event{Type: events.AgentTransferred, At: s.now(), AgentID: id, Address: newOwner, Counter: caller})
	return nil
}

// VerifyCardHash reports whether content hashes (Keccak-256) to the stored
// metadata hash. Pure comparison, no state change.
func (s *Store) VerifyCardHash(id uint64, content []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.byID[id]
	if !ok {
		return false, fmt.Errorf("agent %d: %w", id, models.ErrNotFound)
	}
	return crypto.Keccak256Hash(content) == agent.MetadataHash, nil
}

// OwnerOf resolves the current owner of id. This is the OwnerLookup
// capability the other components consume for authorization checks.
func (s *Store) OwnerOf(id uint64) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.byID[id]
	if !ok {
		return common.Address{}, fmt.Errorf("agent %d: %w", id, models.ErrNotFound)
	}
	return agent.OwnerAddress, nil
}

// IsActive reports whether id exists and is active.
func (s *Store) IsActive(id uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.byID[id]
	if !ok {
		return false, fmt.Errorf("agent %d: %w", id, models.ErrNotFound)
	}
	return agent.Active, nil
}

// GetByID returns a copy of the identity.
func (s *Store) GetByID(id uint64) (models.AgentIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.byID[id]
	if !ok {
		return models.AgentIdentity{}, fmt.Errorf("agent %d: %w", id, models.ErrNotFound)
	}
	return *agent, nil
}

// GetByOwner resolves the identity currently held by owner.
func (s *Store) GetByOwner(owner common.Address) (models.AgentIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byOwner[owner]
	if !ok {
		return models.AgentIdentity{}, fmt.Errorf("owner %s: %w", owner, models.ErrNotFound)
	}
	return *s.byID[id], nil
}

// List returns a copy window of identities ordered by id. The limit clamps at
// the remaining count rather than erroring past the end.
func (s *Store) List(offset, limit int) []models.AgentIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset < 0 || limit <= 0 || uint64(offset) >= s.nextID-1 {
		return nil
	}
	out := make([]models.AgentIdentity, 0, limit)
	// IDs are dense starting at 1, so the window is a direct scan.
	for id := uint64(offset) + 1; id < s.nextID && len(out) < limit; id++ {
		out = append(out, *s.byID[id])
	}
	return out
}

// Count returns the number of issued identities.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// ownedBy fetches id and checks caller is the owner. Callers hold the write
// lock.
func (s *Store) ownedBy(caller common.Address, id uint64) (*models.AgentIdentity, error) {
	agent, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("agent %d: %w", id, models.ErrNotFound)
	}
	if agent.OwnerAddress != caller {
		return nil, fmt.Errorf("caller %s is not the owner of agent %d: %w", caller, id, models.ErrUnauthorized)
	}
	return agent, nil
}
