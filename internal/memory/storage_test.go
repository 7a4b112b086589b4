package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sf7293/tmanager/internal/domain"
	"github.com/sf7293/tmanager/internal/errval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Storage, status domain.TaskStatus, due time.Time) *domain.Task {
	t.Helper()
	ctx := context.Background()

	board, err := s.InsertBoard(ctx, &domain.Board{Title: "Development backend.", Description: "board"})
	require.NoError(t, err)

	task, err := s.InsertTask(ctx, &domain.Task{
		BoardID:      board.ID,
		Title:        "Do homework!",
		Description:  "task",
		Status:       status,
		Priority:     domain.Ordinary,
		DueDate:      due,
		Participants: []domain.User{{ID: 1, Username: "alice", Email: "alice@example.com"}},
	})
	require.NoError(t, err)

	return task
}

func TestStorage_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	task := seed(t, s, domain.ToDo, time.Date(2026, 10, 20, 15, 0, 0, 0, time.UTC))

	got, err := s.GetTaskByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Do homework!", got.Title)
	assert.Nil(t, got.PreviousStatus)
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC), got.DueDate)

	got.Title = "mutated"
	again, _ := s.GetTaskByID(ctx, task.ID)
	assert.Equal(t, "Do homework!", again.Title)

	_, err = s.GetTaskByID(ctx, 999)
	assert.ErrorIs(t, err, errval.ErrNotFound)

	_, err = s.InsertTask(ctx, &domain.Task{BoardID: 42})
	assert.ErrorIs(t, err, errval.ErrNotFound)
}

func TestStorage_TxCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	task := seed(t, s, domain.ToDo, time.Now())

	err := s.RunInTx(ctx, func(tx domain.StorageTx) error {
		locked, err := tx.LockTaskByID(ctx, task.ID)
		if err != nil {
			return err
		}
		locked.Status = domain.InProgress
		if err := tx.UpdateTask(ctx, locked); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	got, _ := s.GetTaskByID(ctx, task.ID)
	assert.Equal(t, domain.ToDo, got.Status)

	err = s.RunInTx(ctx, func(tx domain.StorageTx) error {
		locked, err := tx.LockTaskByID(ctx, task.ID)
		if err != nil {
			return err
		}
		prev := locked.Status
		locked.Status = domain.InProgress
		locked.PreviousStatus = &prev
		if err := tx.UpdateTask(ctx, locked); err != nil {
			return err
		}
		return tx.InsertTaskHistory(ctx, &domain.TaskHistoryRecord{TaskID: task.ID, PreviousStatus: prev, CurrentStatus: domain.InProgress})
	})
	require.NoError(t, err)

	got, _ = s.GetTaskByID(ctx, task.ID)
	assert.Equal(t, domain.InProgress, got.Status)
	assert.Equal(t, domain.ToDo, *got.PreviousStatus)

	history, err := s.GetTaskHistory(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(1), history[0].ID)
	assert.False(t, history[0].CreatedAt.IsZero())
}

func TestStorage_UpdateRequiresLock(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	task := seed(t, s, domain.ToDo, time.Now())

	err := s.RunInTx(ctx, func(tx domain.StorageTx) error {
		return tx.UpdateTask(ctx, task)
	})
	assert.Error(t, err)
}

func TestStorage_RowLockSerializesTransactions(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	task := seed(t, s, domain.ToDo, time.Now())

	entered := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.RunInTx(ctx, func(tx domain.StorageTx) error {
			_, err := tx.LockTaskByID(ctx, task.ID)
			close(entered)
			<-release
			return err
		})
	}()
	<-entered

	acquired := make(chan struct{})
	go func() {
		_ = s.RunInTx(ctx, func(tx domain.StorageTx) error {
			_, err := tx.LockTaskByID(ctx, task.ID)
			close(acquired)
			return err
		})
	}()

	select {
	case <-acquired:
		t.Fatal("second transaction acquired the row lock while it was held")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	wg.Wait()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second transaction never acquired the row lock")
	}
}

func TestStorage_GetOpenTasksDueBy(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	now := time.Date(2026, 10, 15, 9, 15, 0, 0, time.UTC)

	dueToday := seed(t, s, domain.ToDo, now)
	overdue := seed(t, s, domain.InProgress, now.AddDate(0, 0, -3))
	seed(t, s, domain.Done, now.AddDate(0, 0, -1))
	seed(t, s, domain.ToDo, now.AddDate(0, 0, 1))

	tasks, err := s.GetOpenTasksDueBy(ctx, now)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, dueToday.ID, tasks[0].ID)
	assert.Equal(t, overdue.ID, tasks[1].ID)
}

func TestStorage_HistorySurvivesDeletion(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	task := seed(t, s, domain.ToDo, time.Now())

	history, err := s.GetTaskHistory(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	userID := int32(1)
	require.NoError(t, s.RunInTx(ctx, func(tx domain.StorageTx) error {
		return tx.InsertTaskHistory(ctx, &domain.TaskHistoryRecord{TaskID: task.ID, UserID: &userID, PreviousStatus: domain.ToDo, CurrentStatus: domain.InProgress})
	}))

	require.NoError(t, s.DeleteBoard(ctx, task.BoardID))
	_, err = s.GetTaskByID(ctx, task.ID)
	assert.ErrorIs(t, err, errval.ErrNotFound)

	s.RemoveUser(userID)
	history, err = s.GetTaskHistory(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].UserID)

	_, err = s.GetTaskHistory(ctx, 12345)
	assert.ErrorIs(t, err, errval.ErrNotFound)
	assert.ErrorIs(t, s.DeleteTask(ctx, task.ID), errval.ErrNotFound)
}
