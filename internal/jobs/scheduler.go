// Package jobs turns engine events into queued work: when a task completes,
// a release job is scheduled for the exact moment its review window closes.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/riverqueue/river"

	"github.com/agoramarket/backend/internal/events"
	"github.com/agoramarket/backend/internal/execution"
	"github.com/agoramarket/backend/internal/models"
)

// InsertFunc inserts a job into the queue. Wired to the River client after
// construction (breaks the init cycle, same as the client owning the
// workers that this package schedules).
type InsertFunc func(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) error

// EscrowReader resolves the auto-release deadline for a completed task.
// Satisfied by *marketplace.Engine.
type EscrowReader interface {
	GetEscrow(taskID common.Hash) (models.Escrow, error)
}

// Scheduler listens to the engine event stream and enqueues the release job
// for every completed task.
type Scheduler struct {
	insert InsertFunc
	market EscrowReader
	logger *slog.Logger
}

func NewScheduler(insert InsertFunc, market EscrowReader, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{insert: insert, market: market, logger: logger}
}

// Run consumes events until the channel closes or ctx is done. A missed
// insert is not fatal: the periodic sweep catches any task the per-task job
// never fired for.
func (s *Scheduler) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type != events.TaskCompleted {
				continue
			}
			if err := s.scheduleRelease(ctx, ev.TaskID); err != nil {
				s.logger.Warn("schedule auto-release", "task_id", ev.TaskID, "error", err)
			}
		}
	}
}

func (s *Scheduler) scheduleRelease(ctx context.Context, taskID common.Hash) error {
	escrow, err := s.market.GetEscrow(taskID)
	if err != nil {
		return err
	}
	at := escrow.AutoReleaseAt
	if at.IsZero() {
		at = time.Now().Add(models.AutoReleaseWindow)
	}
	return s.insert(ctx, execution.AutoReleaseTaskArgs{TaskID: taskID}, &river.InsertOpts{
		ScheduledAt: at,
	})
}
