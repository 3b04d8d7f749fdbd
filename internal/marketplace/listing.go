package marketplace

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoramarket/backend/internal/events"
	"github.com/agoramarket/backend/internal/models"
)

// ListAgent creates or replaces the agent's marketplace listing. Identity
// owner only. Accumulator fields survive re-creation.
func (e *Engine) ListAgent(caller common.Address, agentID uint64, category string, basePrice int64, skills []string, validationTypes []models.ValidationType) error {
	if category == "" || basePrice <= 0 || len(skills) == 0 {
		return fmt.Errorf("list agent: empty category, skills, or non-positive base price: %w", models.ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkListingOwner(caller, agentID); err != nil {
		return err
	}

	listing := &models.AgentListing{
		AgentID:                  agentID,
		IsActive:                 true,
		Category:                 category,
		BasePrice:                basePrice,
		Skills:                   append([]string(nil), skills...),
		SupportedValidationTypes: append([]models.ValidationType(nil), validationTypes...),
	}
	if prev := e.listings[agentID]; prev != nil {
		listing.TotalTasksCompleted = prev.TotalTasksCompleted
		listing.TotalEarnings = prev.TotalEarnings
	}
	e.listings[agentID] = listing

	e.bus.Publish(events.Event{Type: events.AgentUpdated, At: e.now(), AgentID: agentID, Address: caller})
	return nil
}

// UpdateAgentListing mutates an existing listing in place. Identity owner
// only.
func (e *Engine) UpdateAgentListing(caller common.Address, agentID uint64, active bool, category string, basePrice int64, skills []string, validationTypes []models.ValidationType) error {
	if category == "" || basePrice <= 0 || len(skills) == 0 {
		return fmt.Errorf("update listing: empty category, skills, or non-positive base price: %w", models.ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkListingOwner(caller, agentID); err != nil {
		return err
	}
	listing := e.listings[agentID]
	if listing == nil {
		return fmt.Errorf("listing for agent %d: %w", agentID, models.ErrNotFound)
	}

	listing.IsActive = active
	listing.Category = category
	listing.BasePrice = basePrice
	listing.Skills = append([]string(nil), skills...)
	listing.SupportedValidationTypes = append([]models.ValidationType(nil), validationTypes...)

	e.bus.Publish(events.Event{Type: events.AgentUpdated, At: e.now(), AgentID: agentID, Address: caller})
	return nil
}

func (e *Engine) checkListingOwner(caller common.Address, agentID uint64) error {
	owner, err := e.owners.OwnerOf(agentID)
	if err != nil {
		return err
	}
	if caller != owner {
		return fmt.Errorf("caller %s does not own agent %d: %w", caller, agentID, models.ErrUnauthorized)
	}
	return nil
}
