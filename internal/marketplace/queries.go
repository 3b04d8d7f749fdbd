package marketplace

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoramarket/backend/internal/models"
)

// GetTask returns a copy of the task.
func (e *Engine) GetTask(taskID common.Hash) (models.Task, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return models.Task{}, fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	return *task, nil
}

// GetEscrow returns a copy of the escrow record for a task.
func (e *Engine) GetEscrow(taskID common.Hash) (models.Escrow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	escrow, ok := e.escrows[taskID]
	if !ok {
		return models.Escrow{}, fmt.Errorf("escrow for task %s: %w", taskID, models.ErrNotFound)
	}
	return *escrow, nil
}

// GetTasksByAgent returns a copy window of an agent's tasks in creation
// order, clamping limit at the remaining count.
func (e *Engine) GetTasksByAgent(agentID uint64, offset, limit int) []models.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.copyTasks(e.byAgent[agentID], offset, limit)
}

// GetTasksByClient returns a copy window of a client's tasks in creation
// order.
func (e *Engine) GetTasksByClient(client common.Address, offset, limit int) []models.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.copyTasks(e.byClient[client], offset, limit)
}

// GetAgentListing returns a copy of the agent's listing.
func (e *Engine) GetAgentListing(agentID uint64) (models.AgentListing, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	listing, ok := e.listings[agentID]
	if !ok {
		return models.AgentListing{}, fmt.Errorf("listing for agent %d: %w", agentID, models.ErrNotFound)
	}
	out := *listing
	out.Skills = append([]string(nil), listing.Skills...)
	out.SupportedValidationTypes = append([]models.ValidationType(nil), listing.SupportedValidationTypes...)
	return out, nil
}

// ActiveListings returns copies of every listing currently accepting tasks,
// in agent id order.
func (e *Engine) ActiveListings() []models.AgentListing {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.AgentListing, 0, len(e.listings))
	for _, listing := range e.listings {
		if !listing.IsActive {
			continue
		}
		l := *listing
		l.Skills = append([]string(nil), listing.Skills...)
		l.SupportedValidationTypes = append([]models.ValidationType(nil), listing.SupportedValidationTypes...)
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// AccumulatedFees returns the fee balance awaiting admin withdrawal.
func (e *Engine) AccumulatedFees() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fees
}

// DueForAutoRelease returns up to limit task ids whose auto-release deadline
// has passed. Consumed by the background release worker.
func (e *Engine) DueForAutoRelease(limit int) []common.Hash {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now()
	var due []common.Hash
	for id, task := range e.tasks {
		if task.Status != models.TaskStatusCompleted {
			continue
		}
		if at := e.escrows[id].AutoReleaseAt; !at.IsZero() && !now.Before(at) {
			due = append(due, id)
			if limit > 0 && len(due) >= limit {
				break
			}
		}
	}
	return due
}

func (e *Engine) copyTasks(ids []common.Hash, offset, limit int) []models.Task {
	if offset < 0 || limit <= 0 || offset >= len(ids) {
		return nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	out := make([]models.Task, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, *e.tasks[id])
	}
	return out
}
