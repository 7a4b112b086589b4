package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sf7293/tmanager/internal/audit"
	"github.com/sf7293/tmanager/internal/domain"
	"github.com/sf7293/tmanager/internal/errval"
)

// Notifier is the asynchronous side of a status change.
type Notifier interface {
	NotifyTransition(ctx context.Context, task *domain.Task, actor *domain.Actor, previous, current domain.TaskStatus) (*domain.NotificationBatch, error)
}

type ServerLogic struct {
	storage        domain.Storage
	recorder       *audit.Recorder
	notifier       Notifier
	taskLock       domain.DistributedLock
	taskLockTTL    time.Duration
	enqueueTimeout time.Duration
	notifications  sync.WaitGroup
}

// NewServerLogic wires the task mutation path. taskLock may be nil, in which case
// concurrent updates of one task are serialized by the storage row lock alone.
func NewServerLogic(storage domain.Storage, recorder *audit.Recorder, notifier Notifier, taskLock domain.DistributedLock, taskLockTTL, enqueueTimeout time.Duration) *ServerLogic {
	return &ServerLogic{
		storage:        storage,
		recorder:       recorder,
		notifier:       notifier,
		taskLock:       taskLock,
		taskLockTTL:    taskLockTTL,
		enqueueTimeout: enqueueTimeout,
	}
}

func taskLockKey(taskID int32) string {
	return "lock:task:" + strconv.FormatInt(int64(taskID), 10)
}

type statusChange struct {
	previous domain.TaskStatus
	current  domain.TaskStatus
}

// UpdateTask applies update to the task on behalf of actor. A status change is
// validated against the workflow, persisted together with its history record and
// then handed to the notifier without waiting for it.
func (s *ServerLogic) UpdateTask(ctx context.Context, taskID int32, actor *domain.Actor, update domain.TaskUpdate) (*domain.Task, error) {
	if err := validateUpdate(update); err != nil {
		slog.InfoContext(ctx, "task update rejected", "task_id", taskID, "error", err.Error())
		return nil, err
	}

	if s.taskLock != nil {
		key := taskLockKey(taskID)
		token, acquired, err := s.taskLock.Lock(ctx, key, s.taskLockTTL)
		switch {
		case err != nil:
			slog.ErrorContext(ctx, "error occurred while taking the task lock, relying on the row lock", "task_id", taskID, "error", err)
		case !acquired:
			slog.InfoContext(ctx, "task is being updated by another request", "task_id", taskID)
			return nil, fmt.Errorf("%w: task %d is being updated by another request", errval.ErrConflict, taskID)
		default:
			defer func() {
				if err := s.taskLock.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
					slog.ErrorContext(ctx, "error occurred while releasing the task lock", "task_id", taskID, "error", err)
				}
			}()
		}
	}

	var updated *domain.Task
	var change *statusChange
	err := s.storage.RunInTx(ctx, func(tx domain.StorageTx) error {
		task, err := tx.LockTaskByID(ctx, taskID)
		if err != nil {
			return err
		}
		if !actor.CanChange(task) {
			return fmt.Errorf("%w: %s is neither a participant of task %d nor staff", errval.ErrForbidden, actor.DisplayName(), taskID)
		}

		previous := task.Status
		if update.Status != nil {
			if err := domain.ValidateTransition(previous, *update.Status); err != nil {
				return err
			}
		}

		applyUpdate(task, update)
		if update.Status != nil {
			task.PreviousStatus = &previous
			change = &statusChange{previous: previous, current: task.Status}
		} else {
			task.PreviousStatus = nil
		}

		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		if change != nil {
			if _, err := s.recorder.Record(ctx, tx, task, actor, change.previous, change.current); err != nil {
				return err
			}
		}

		updated = task
		return nil
	})
	if err != nil {
		err = asTaxonomyError(err)
		if errors.Is(err, errval.ErrPersistence) || errors.Is(err, errval.ErrInternal) {
			slog.ErrorContext(ctx, "error occurred while updating task", "task_id", taskID, "error", err)
		} else {
			slog.InfoContext(ctx, "task update rejected", "task_id", taskID, "error", err.Error())
		}
		return nil, err
	}

	if change != nil {
		s.notifyAsync(ctx, updated.Clone(), actor, *change)
	}

	return updated, nil
}

// notifyAsync hands the notification off outside the committed transaction.
// The request context is detached so that a finished request does not cancel it.
func (s *ServerLogic) notifyAsync(ctx context.Context, task *domain.Task, actor *domain.Actor, change statusChange) {
	detached := context.WithoutCancel(ctx)
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()

		enqueueCtx, cancel := context.WithTimeout(detached, s.enqueueTimeout)
		defer cancel()
		if _, err := s.notifier.NotifyTransition(enqueueCtx, task, actor, change.previous, change.current); err != nil {
			slog.ErrorContext(enqueueCtx, "Error occurred while handing off the transition notification", "task_id", task.ID, "error", err.Error())
		}
	}()
}

// Wait blocks until every pending notification hand-off has finished
func (s *ServerLogic) Wait() {
	s.notifications.Wait()
}

func (s *ServerLogic) GetTask(ctx context.Context, taskID int32) (*domain.Task, error) {
	task, err := s.storage.GetTaskByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) {
			slog.Info("task not found with the given id", "id", taskID)
			return nil, errval.ErrNotFound
		}

		slog.ErrorContext(ctx, "error occurred while calling storage.GetTaskByID", "error", err)
		return nil, asTaxonomyError(err)
	}

	return task, nil
}

func (s *ServerLogic) GetTaskHistory(ctx context.Context, taskID int32) ([]*domain.TaskHistoryRecord, error) {
	history, err := s.storage.GetTaskHistory(ctx, taskID)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) {
			slog.Info("history not found for the given task id", "task_id", taskID)
			return nil, errval.ErrNotFound
		}

		slog.ErrorContext(ctx, "error occurred while calling storage.GetTaskHistory", "error", err)
		return nil, asTaxonomyError(err)
	}

	return history, nil
}

func (s *ServerLogic) GetBoard(ctx context.Context, boardID int32) (*domain.Board, error) {
	board, err := s.storage.GetBoardByID(ctx, boardID)
	if err != nil {
		if errors.Is(err, errval.ErrNotFound) {
			slog.Info("board not found with the given id", "id", boardID)
			return nil, errval.ErrNotFound
		}

		slog.ErrorContext(ctx, "error occurred while calling storage.GetBoardByID", "error", err)
		return nil, asTaxonomyError(err)
	}

	return board, nil
}

// DeleteTask is staff only; the history of the task is kept
func (s *ServerLogic) DeleteTask(ctx context.Context, taskID int32, actor *domain.Actor) error {
	if !actor.CanDestroy() {
		return fmt.Errorf("%w: only staff can delete tasks", errval.ErrForbidden)
	}

	if err := s.storage.DeleteTask(ctx, taskID); err != nil {
		if !errors.Is(err, errval.ErrNotFound) {
			slog.ErrorContext(ctx, "error occurred while calling storage.DeleteTask", "task_id", taskID, "error", err)
		}
		return asTaxonomyError(err)
	}

	slog.InfoContext(ctx, "Task is deleted", "task_id", taskID, "user_id", actor.ID)
	return nil
}

// DeleteBoard is staff only and removes the tasks of the board with it
func (s *ServerLogic) DeleteBoard(ctx context.Context, boardID int32, actor *domain.Actor) error {
	if !actor.CanDestroy() {
		return fmt.Errorf("%w: only staff can delete boards", errval.ErrForbidden)
	}

	if err := s.storage.DeleteBoard(ctx, boardID); err != nil {
		if !errors.Is(err, errval.ErrNotFound) {
			slog.ErrorContext(ctx, "error occurred while calling storage.DeleteBoard", "board_id", boardID, "error", err)
		}
		return asTaxonomyError(err)
	}

	slog.InfoContext(ctx, "Board is deleted", "board_id", boardID, "user_id", actor.ID)
	return nil
}

func validateUpdate(update domain.TaskUpdate) error {
	if update.IsEmpty() {
		return fmt.Errorf("%w: no fields to update", errval.ErrValidation)
	}
	if update.Title != nil {
		if *update.Title == "" {
			return fmt.Errorf("%w: title must not be empty", errval.ErrValidation)
		}
		if utf8.RuneCountInString(*update.Title) > domain.MaxTitleLength {
			return fmt.Errorf("%w: title must be at most %d characters", errval.ErrValidation, domain.MaxTitleLength)
		}
	}
	if update.Description != nil && *update.Description == "" {
		return fmt.Errorf("%w: description must not be empty", errval.ErrValidation)
	}
	if update.Priority != nil && !update.Priority.IsKnown() {
		return fmt.Errorf("%w: unknown priority %q", errval.ErrValidation, *update.Priority)
	}
	if update.Tags != nil {
		for _, tag := range *update.Tags {
			if !tag.IsKnown() {
				return fmt.Errorf("%w: unknown tag %q", errval.ErrValidation, tag)
			}
		}
	}
	if update.DueDate != nil && update.DueDate.IsZero() {
		return fmt.Errorf("%w: due date must be set", errval.ErrValidation)
	}
	if update.Status != nil && !update.Status.IsKnown() {
		return fmt.Errorf("%w: unknown status %q", errval.ErrValidation, *update.Status)
	}

	return nil
}

func applyUpdate(task *domain.Task, update domain.TaskUpdate) {
	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Description != nil {
		task.Description = *update.Description
	}
	if update.Status != nil {
		task.Status = *update.Status
	}
	if update.Priority != nil {
		task.Priority = *update.Priority
	}
	if update.Tags != nil {
		task.Tags = dedupeTags(*update.Tags)
	}
	if update.DueDate != nil {
		task.DueDate = domain.CivilDate(*update.DueDate)
	}
}

func dedupeTags(tags []domain.TaskTag) []domain.TaskTag {
	out := make([]domain.TaskTag, 0, len(tags))
	seen := make(map[domain.TaskTag]struct{}, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	return out
}

// asTaxonomyError keeps errors that already carry a sentinel and reports anything
// else coming out of the store as a persistence failure.
func asTaxonomyError(err error) error {
	if errval.IsKnown(err) {
		return err
	}

	return fmt.Errorf("%w: %v", errval.ErrPersistence, err)
}
