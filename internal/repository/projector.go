package repository

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/agoramarket/backend/internal/events"
	"github.com/agoramarket/backend/internal/models"
)

// IdentityReader is the engine-side lookup the projector replays agent
// events against.
type IdentityReader interface {
	GetByID(id uint64) (models.AgentIdentity, error)
}

type TaskReader interface {
	GetTask(id common.Hash) (models.Task, error)
}

type FeedbackReader interface {
	GetFeedbackByTask(taskID common.Hash) (models.FeedbackEntry, error)
}

type ValidationReader interface {
	GetRequest(id uuid.UUID) (models.ValidationRequest, error)
}

// Projector consumes the engine event stream and maintains the persistence
// projections. Events carry identifiers only; the projector reads the full
// record back from the engine, so a dropped or re-delivered event converges
// on the same row.
type Projector struct {
	Agents      *AgentRepo
	Tasks       *TaskRepo
	Feedback    *FeedbackRepo
	Validations *ValidationRepo
	Transfers   *TransferRepo

	Identity   IdentityReader
	Market     TaskReader
	Reputation FeedbackReader
	Validation ValidationReader

	Logger *slog.Logger
}

// Run applies events until the channel closes or ctx is done. Projection
// errors are logged, never fatal: the engines stay canonical.
func (p *Projector) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := p.apply(ctx, ev); err != nil {
				p.Logger.Warn("projection failed", "type", ev.Type, "error", err)
			}
		}
	}
}

func (p *Projector) apply(ctx context.Context, ev events.Event) error {
	switch ev.Type {
	case events.AgentRegistered, events.AgentUpdated, events.AgentTransferred:
		ident, err := p.Identity.GetByID(ev.AgentID)
		if err != nil {
			return err
		}
		return p.Agents.Upsert(ctx, &ident)

	case events.TaskCreated:
		if err := p.upsertTask(ctx, ev.TaskID); err != nil {
			return err
		}
		return p.journal(ctx, "escrow_lock", ev)
	case events.TaskAccepted, events.TaskCompleted, events.TaskValidated, events.TaskDisputed, events.TaskCancelled:
		return p.upsertTask(ctx, ev.TaskID)

	case events.EscrowReleased:
		return p.journal(ctx, "escrow_release", ev)
	case events.EscrowRefunded:
		return p.journal(ctx, "escrow_refund", ev)
	case events.FeesWithdrawn:
		return p.journal(ctx, "fee_withdrawal", ev)
	case events.ValidatorStaked:
		return p.journal(ctx, "stake_deposit", ev)
	case events.ValidatorRewarded:
		return p.journal(ctx, "validator_reward", ev)
	case events.ValidatorSlashed:
		return p.journal(ctx, "stake_slash", ev)

	case events.FeedbackRegistered:
		entry, err := p.Reputation.GetFeedbackByTask(ev.TaskID)
		if err != nil {
			return err
		}
		return p.Feedback.Insert(ctx, &entry)

	case events.ValidationRequested, events.ValidationResponded, events.DisputeRaised, events.DisputeResolved:
		req, err := p.Validation.GetRequest(ev.RecordID)
		if err != nil {
			return err
		}
		return p.Validations.Upsert(ctx, &req)
	}
	return nil
}

func (p *Projector) upsertTask(ctx context.Context, id common.Hash) error {
	task, err := p.Market.GetTask(id)
	if err != nil {
		return err
	}
	return p.Tasks.Upsert(ctx, &task)
}

func (p *Projector) journal(ctx context.Context, entryType string, ev events.Event) error {
	taskID := ""
	if ev.TaskID != (common.Hash{}) {
		taskID = ev.TaskID.Hex()
	}
	return p.Transfers.Insert(ctx, &TransferEntry{
		EntryType: entryType,
		TaskID:    taskID,
		Address:   ev.Address.Hex(),
		Amount:    ev.Amount,
		At:        ev.At,
	})
}
