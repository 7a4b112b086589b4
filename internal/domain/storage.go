package domain

import (
	"context"
	"time"
)

type Storage interface {
	Ping(ctx context.Context) (err error)
	GetTaskByID(ctx context.Context, ID int32) (*Task, error)
	GetBoardByID(ctx context.Context, ID int32) (*Board, error)
	GetTaskHistory(ctx context.Context, taskID int32) ([]*TaskHistoryRecord, error)
	// GetOpenTasksDueBy returns to_do and in_progress tasks whose due date is on or before day.
	GetOpenTasksDueBy(ctx context.Context, day time.Time) ([]*Task, error)
	DeleteTask(ctx context.Context, ID int32) error
	DeleteBoard(ctx context.Context, ID int32) error
	// RunInTx commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(tx StorageTx) error) error
}

// StorageTx is the write side available inside a transaction.
type StorageTx interface {
	// LockTaskByID loads the task and holds its row lock until the transaction ends.
	LockTaskByID(ctx context.Context, ID int32) (*Task, error)
	UpdateTask(ctx context.Context, task *Task) error
	// InsertTaskHistory fills in ID and CreatedAt of the record.
	InsertTaskHistory(ctx context.Context, record *TaskHistoryRecord) error
}
