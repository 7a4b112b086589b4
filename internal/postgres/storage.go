package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sf7293/tmanager/internal/domain"
	"github.com/sf7293/tmanager/internal/errval"
)

type storage struct {
	queries *Queries
	pool    *pgxpool.Pool
}

func NewStorage(ctx context.Context, dsn string) (*storage, error) {
	var pool *pgxpool.Pool
	var err error

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	err = backoff.Retry(func() error {
		if pool, err = pgxpool.ConnectConfig(ctx, config); err != nil {
			slog.ErrorContext(ctx, "failed to connect to postgres database.. retrying...", "error", err)
			return err
		}

		if err = pool.Ping(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to ping postgres database connection.. retrying...", "error", err)
			pool.Close()
			return err
		}

		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(3*time.Second), 5), ctx))

	if err != nil {
		return nil, err
	}

	return &storage{
		queries: New(pool),
		pool:    pool,
	}, nil
}

func (s *storage) Ping(ctx context.Context) (err error) {
	return s.pool.Ping(ctx)
}

func (s *storage) Close() {
	s.pool.Close()
}

func (s *storage) GetTaskByID(ctx context.Context, ID int32) (*domain.Task, error) {
	task, err := s.queries.GetTaskByID(ctx, ID)
	if err != nil {
		return nil, mapError(err)
	}

	tasks, err := s.withRelations(ctx, s.queries, []Task{task})
	if err != nil {
		return nil, mapError(err)
	}

	return tasks[0], nil
}

func (s *storage) GetBoardByID(ctx context.Context, ID int32) (*domain.Board, error) {
	board, err := s.queries.GetBoardByID(ctx, ID)
	if err != nil {
		return nil, mapError(err)
	}

	return &domain.Board{
		ID:          board.ID,
		Title:       board.Title,
		Description: board.Description,
		CreatedAt:   board.CreatedAt.Time,
		UpdatedAt:   board.UpdatedAt.Time,
	}, nil
}

func (s *storage) GetTaskHistory(ctx context.Context, taskID int32) ([]*domain.TaskHistoryRecord, error) {
	items, err := s.queries.GetTaskHistory(ctx, taskID)
	if err != nil {
		return nil, mapError(err)
	}

	if len(items) == 0 {
		exists, err := s.queries.TaskExists(ctx, taskID)
		if err != nil {
			return nil, mapError(err)
		}
		if !exists {
			return nil, errval.ErrNotFound
		}
	}

	return convertTaskHistories(items), nil
}

func (s *storage) GetOpenTasksDueBy(ctx context.Context, day time.Time) ([]*domain.Task, error) {
	tasks, err := s.queries.GetOpenTasksDueBy(ctx, toDate(day))
	if err != nil {
		return nil, mapError(err)
	}

	converted, err := s.withRelations(ctx, s.queries, tasks)
	if err != nil {
		return nil, mapError(err)
	}

	return converted, nil
}

// DeleteTask removes the task with its tags and participants; task_history has no
// foreign key on tasks and is left as it is.
func (s *storage) DeleteTask(ctx context.Context, ID int32) error {
	affected, err := s.queries.DeleteTask(ctx, ID)
	if err != nil {
		return mapError(err)
	}
	if affected == 0 {
		return errval.ErrNotFound
	}

	return nil
}

func (s *storage) DeleteBoard(ctx context.Context, ID int32) error {
	affected, err := s.queries.DeleteBoard(ctx, ID)
	if err != nil {
		return mapError(err)
	}
	if affected == 0 {
		return errval.ErrNotFound
	}

	return nil
}

// RunInTx runs fn in a READ COMMITTED transaction. Row locks taken through the
// StorageTx are held until commit or rollback.
func (s *storage) RunInTx(ctx context.Context, fn func(tx domain.StorageTx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError(err)
	}

	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Error("Error occurred while rolling back transaction", "error", rbErr.Error())
		}
	}()

	if err = fn(&storageTx{storage: s, queries: s.queries.WithTx(tx)}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return mapError(err)
	}

	return nil
}

type storageTx struct {
	storage *storage
	queries *Queries
}

func (t *storageTx) LockTaskByID(ctx context.Context, ID int32) (*domain.Task, error) {
	task, err := t.queries.LockTaskByID(ctx, ID)
	if err != nil {
		return nil, mapError(err)
	}

	tasks, err := t.storage.withRelations(ctx, t.queries, []Task{task})
	if err != nil {
		return nil, mapError(err)
	}

	return tasks[0], nil
}

func (t *storageTx) UpdateTask(ctx context.Context, task *domain.Task) error {
	previous := pgtype.Varchar{Status: pgtype.Null}
	if task.PreviousStatus != nil {
		previous = pgtype.Varchar{String: string(*task.PreviousStatus), Status: pgtype.Present}
	}

	affected, err := t.queries.UpdateTask(ctx, UpdateTaskParams{
		ID:             task.ID,
		Title:          task.Title,
		Description:    task.Description,
		Status:         string(task.Status),
		PreviousStatus: previous,
		Priority:       string(task.Priority),
		DueTo:          toDate(task.DueDate),
	})
	if err != nil {
		return mapError(err)
	}
	if affected == 0 {
		return errval.ErrNotFound
	}

	if err := t.queries.DeleteTaskTags(ctx, task.ID); err != nil {
		return mapError(err)
	}
	for _, tag := range task.Tags {
		if err := t.queries.InsertTaskTag(ctx, task.ID, string(tag)); err != nil {
			return mapError(err)
		}
	}

	return nil
}

func (t *storageTx) InsertTaskHistory(ctx context.Context, record *domain.TaskHistoryRecord) error {
	userID := pgtype.Int4{Status: pgtype.Null}
	if record.UserID != nil {
		userID = pgtype.Int4{Int: *record.UserID, Status: pgtype.Present}
	}

	id, createdAt, err := t.queries.InsertTaskHistory(ctx, InsertTaskHistoryParams{
		TaskID:         record.TaskID,
		UserID:         userID,
		PreviousStatus: string(record.PreviousStatus),
		CurrentStatus:  string(record.CurrentStatus),
	})
	if err != nil {
		return mapError(err)
	}

	record.ID = id
	record.CreatedAt = createdAt.Time

	return nil
}

// withRelations loads tags and participants of tasks with one query each
func (s *storage) withRelations(ctx context.Context, queries *Queries, tasks []Task) ([]*domain.Task, error) {
	converted := make([]*domain.Task, 0, len(tasks))
	if len(tasks) == 0 {
		return converted, nil
	}

	ids := make([]int32, 0, len(tasks))
	byID := make(map[int32]*domain.Task, len(tasks))
	for _, task := range tasks {
		c := convertTask(task)
		converted = append(converted, c)
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	tags, err := queries.GetTaskTags(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, tag := range tags {
		if task, ok := byID[tag.TaskID]; ok {
			task.Tags = append(task.Tags, domain.TaskTag(tag.Tag))
		}
	}

	participants, err := queries.GetTaskParticipants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		if task, ok := byID[p.TaskID]; ok {
			task.Participants = append(task.Participants, domain.User{
				ID:       p.UserID,
				Username: p.Username,
				Email:    p.Email.String,
				IsStaff:  p.IsStaff,
			})
		}
	}

	return converted, nil
}

// mapError translates driver errors into the errval taxonomy
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errval.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.LockNotAvailable, pgerrcode.DeadlockDetected:
			return fmt.Errorf("%w: %s", errval.ErrConflict, pgErr.Message)
		case pgerrcode.ForeignKeyViolation, pgerrcode.CheckViolation, pgerrcode.StringDataRightTruncationDataException:
			return fmt.Errorf("%w: %s", errval.ErrValidation, pgErr.Message)
		}
	}

	return fmt.Errorf("%w: %v", errval.ErrPersistence, err)
}

func toDate(t time.Time) pgtype.Date {
	return pgtype.Date{Time: domain.CivilDate(t), Status: pgtype.Present}
}

func convertTask(task Task) *domain.Task {
	castedItem := &domain.Task{
		ID:           task.ID,
		BoardID:      task.BoardID,
		Title:        task.Title,
		Description:  task.Description,
		Status:       domain.TaskStatus(task.Status),
		Priority:     domain.TaskPriority(task.Priority),
		Tags:         []domain.TaskTag{},
		Participants: []domain.User{},
		DueDate:      task.DueTo.Time,
		CreatedAt:    task.CreatedAt.Time,
	}
	if task.PreviousStatus.Status == pgtype.Present {
		previous := domain.TaskStatus(task.PreviousStatus.String)
		castedItem.PreviousStatus = &previous
	}

	return castedItem
}

func convertTaskHistory(item TaskHistory) *domain.TaskHistoryRecord {
	castedItem := &domain.TaskHistoryRecord{
		ID:             item.ID,
		TaskID:         item.TaskID,
		PreviousStatus: domain.TaskStatus(item.PreviousStatus),
		CurrentStatus:  domain.TaskStatus(item.CurrentStatus),
		CreatedAt:      item.CreatedAt.Time,
	}
	if item.UserID.Status == pgtype.Present {
		userID := item.UserID.Int
		castedItem.UserID = &userID
	}

	return castedItem
}

func convertTaskHistories(items []TaskHistory) []*domain.TaskHistoryRecord {
	castedItems := []*domain.TaskHistoryRecord{}
	for _, item := range items {
		castedItems = append(castedItems, convertTaskHistory(item))
	}

	return castedItems
}
