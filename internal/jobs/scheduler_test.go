package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/riverqueue/river"

	"github.com/agoramarket/backend/internal/events"
	"github.com/agoramarket/backend/internal/execution"
	"github.com/agoramarket/backend/internal/models"
)

type insertedJob struct {
	args river.JobArgs
	opts *river.InsertOpts
}

type mockEscrows struct {
	escrows map[common.Hash]models.Escrow
}

func (m mockEscrows) GetEscrow(taskID common.Hash) (models.Escrow, error) {
	e, ok := m.escrows[taskID]
	if !ok {
		return models.Escrow{}, models.ErrNotFound
	}
	return e, nil
}

func TestScheduler_SchedulesReleaseAtDeadline(t *testing.T) {
	taskID := common.HexToHash("0x01")
	releaseAt := time.Now().Add(7 * 24 * time.Hour).Truncate(time.Second)

	var inserted []insertedJob
	s := NewScheduler(func(_ context.Context, args river.JobArgs, opts *river.InsertOpts) error {
		inserted = append(inserted, insertedJob{args: args, opts: opts})
		return nil
	}, mockEscrows{escrows: map[common.Hash]models.Escrow{
		taskID: {TaskID: taskID, AutoReleaseAt: releaseAt},
	}}, nil)

	ch := make(chan events.Event, 4)
	ch <- events.Event{Type: events.TaskCreated, TaskID: taskID}
	ch <- events.Event{Type: events.TaskCompleted, TaskID: taskID}
	close(ch)
	s.Run(context.Background(), ch)

	if len(inserted) != 1 {
		t.Fatalf("inserted %d jobs, want 1 (only the completion event schedules)", len(inserted))
	}
	args, ok := inserted[0].args.(execution.AutoReleaseTaskArgs)
	if !ok {
		t.Fatalf("args type = %T, want AutoReleaseTaskArgs", inserted[0].args)
	}
	if args.TaskID != taskID {
		t.Errorf("task id = %s, want %s", args.TaskID, taskID)
	}
	if !inserted[0].opts.ScheduledAt.Equal(releaseAt) {
		t.Errorf("scheduled at %v, want %v", inserted[0].opts.ScheduledAt, releaseAt)
	}
}

func TestScheduler_UnknownTaskIsNotFatal(t *testing.T) {
	var inserted int
	s := NewScheduler(func(context.Context, river.JobArgs, *river.InsertOpts) error {
		inserted++
		return nil
	}, mockEscrows{escrows: map[common.Hash]models.Escrow{}}, nil)

	ch := make(chan events.Event, 2)
	ch <- events.Event{Type: events.TaskCompleted, TaskID: common.HexToHash("0x02")}
	close(ch)
	s.Run(context.Background(), ch)

	if inserted != 0 {
		t.Fatalf("inserted %d jobs, want 0", inserted)
	}
}
