// Package execution runs the background side of the marketplace on the job
// queue: releasing escrow for tasks nobody validated in time and sweeping
// expired feedback authorizations.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/riverqueue/river"

	"github.com/agoramarket/backend/internal/models"
)

// ReleaseEngine is the marketplace subset the workers drive.
type ReleaseEngine interface {
	DueForAutoRelease(limit int) []common.Hash
	AutoReleaseEscrow(taskID common.Hash) error
}

// AuthorizationPruner expires stale feedback windows. Satisfied by
// *reputation.Ledger.
type AuthorizationPruner interface {
	PruneExpiredAuthorizations() int
}

// AutoReleaseTaskArgs releases a single task's escrow. Scheduled at the
// task's auto-release deadline when it completes.
type AutoReleaseTaskArgs struct {
	TaskID common.Hash `json:"task_id"`
}

func (AutoReleaseTaskArgs) Kind() string { return "auto_release_task" }

type AutoReleaseTaskWorker struct {
	river.WorkerDefaults[AutoReleaseTaskArgs]
	market ReleaseEngine
	logger *slog.Logger
}

func NewAutoReleaseTaskWorker(market ReleaseEngine, logger *slog.Logger) *AutoReleaseTaskWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoReleaseTaskWorker{market: market, logger: logger}
}

func (w *AutoReleaseTaskWorker) Work(ctx context.Context, job *river.Job[AutoReleaseTaskArgs]) error {
	err := w.market.AutoReleaseEscrow(job.Args.TaskID)
	switch {
	case err == nil:
		w.logger.Info("escrow auto-released", "task_id", job.Args.TaskID)
		return nil
	case errors.Is(err, models.ErrInvalidStatus), errors.Is(err, models.ErrAlreadyDone):
		// The client validated, disputed, or another release won. Done.
		return nil
	case errors.Is(err, models.ErrExpired):
		// Too early: the job fired before the deadline. Retry later.
		return fmt.Errorf("auto-release window not open for %s: %w", job.Args.TaskID, err)
	default:
		return fmt.Errorf("auto-release %s: %w", job.Args.TaskID, err)
	}
}

// AutoReleaseSweepArgs scans for every due task. Runs periodically as a
// safety net behind the per-task jobs.
type AutoReleaseSweepArgs struct {
	BatchSize int `json:"batch_size"`
}

func (AutoReleaseSweepArgs) Kind() string { return "auto_release_sweep" }

type AutoReleaseSweepWorker struct {
	river.WorkerDefaults[AutoReleaseSweepArgs]
	market ReleaseEngine
	logger *slog.Logger
}

func NewAutoReleaseSweepWorker(market ReleaseEngine, logger *slog.Logger) *AutoReleaseSweepWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoReleaseSweepWorker{market: market, logger: logger}
}

func (w *AutoReleaseSweepWorker) Work(ctx context.Context, job *river.Job[AutoReleaseSweepArgs]) error {
	batch := job.Args.BatchSize
	if batch <= 0 {
		batch = 100
	}
	released := 0
	for _, id := range w.market.DueForAutoRelease(batch) {
		if err := w.market.AutoReleaseEscrow(id); err != nil {
			// Another path released it between scan and call; next sweep
			// confirms.
			w.logger.Warn("sweep release skipped", "task_id", id, "error", err)
			continue
		}
		released++
	}
	if released > 0 {
		w.logger.Info("auto-release sweep", "released", released)
	}
	return nil
}

// AuthorizationSweepArgs prunes expired feedback authorizations.
type AuthorizationSweepArgs struct{}

func (AuthorizationSweepArgs) Kind() string { return "authorization_sweep" }

type AuthorizationSweepWorker struct {
	river.WorkerDefaults[AuthorizationSweepArgs]
	reputation AuthorizationPruner
	logger     *slog.Logger
}

func NewAuthorizationSweepWorker(reputation AuthorizationPruner, logger *slog.Logger) *AuthorizationSweepWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationSweepWorker{reputation: reputation, logger: logger}
}

func (w *AuthorizationSweepWorker) Work(ctx context.Context, job *river.Job[AuthorizationSweepArgs]) error {
	if pruned := w.reputation.PruneExpiredAuthorizations(); pruned > 0 {
		w.logger.Info("feedback authorizations pruned", "count", pruned)
	}
	return nil
}
