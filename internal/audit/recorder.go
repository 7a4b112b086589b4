// Package audit writes the append-only status history of tasks.
package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sf7293/tmanager/internal/domain"
	"github.com/sf7293/tmanager/internal/errval"
)

type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends one history row for a realized transition. It must run inside the
// transaction that persisted the task so that both commit or neither does. Storage
// errors keep their classification; anything unclassified becomes a persistence failure.
func (r *Recorder) Record(ctx context.Context, tx domain.StorageTx, task *domain.Task, actor *domain.Actor, previous, current domain.TaskStatus) (*domain.TaskHistoryRecord, error) {
	if previous == current {
		return nil, fmt.Errorf("%w: refusing to record a no-op transition %s -> %s for task %d", errval.ErrInternal, previous, current, task.ID)
	}

	record := &domain.TaskHistoryRecord{
		TaskID:         task.ID,
		UserID:         actor.UserID(),
		PreviousStatus: previous,
		CurrentStatus:  current,
	}
	if err := tx.InsertTaskHistory(ctx, record); err != nil {
		slog.ErrorContext(ctx, "error occurred while inserting task history", "task_id", task.ID, "error", err)
		if errval.IsKnown(err) {
			return nil, fmt.Errorf("insert task history: %w", err)
		}
		return nil, fmt.Errorf("%w: insert task history: %v", errval.ErrPersistence, err)
	}

	slog.InfoContext(ctx, "Task status change is recorded", "task_id", task.ID, "history_id", record.ID, "previous_status", previous, "current_status", current, "user_id", record.UserID)
	return record, nil
}
