// Package memory is a process-local implementation of domain.Storage, used for
// local development (STORAGE_BACKEND=memory) and as the store behind tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sf7293/tmanager/internal/domain"
	"github.com/sf7293/tmanager/internal/errval"
)

type Storage struct {
	mu            sync.Mutex
	tasks         map[int32]*domain.Task
	boards        map[int32]*domain.Board
	history       []*domain.TaskHistoryRecord
	rowLocks      map[int32]*sync.Mutex
	nextTaskID    int32
	nextBoardID   int32
	nextHistoryID int64
	now           func() time.Time
}

func NewStorage() *Storage {
	return &Storage{
		tasks:    map[int32]*domain.Task{},
		boards:   map[int32]*domain.Board{},
		rowLocks: map[int32]*sync.Mutex{},
		now:      time.Now,
	}
}

// WithClock replaces the clock used for created_at timestamps
func (s *Storage) WithClock(now func() time.Time) *Storage {
	s.now = now
	return s
}

func (s *Storage) Ping(ctx context.Context) error {
	return ctx.Err()
}

// InsertBoard stores a board and assigns its ID
func (s *Storage) InsertBoard(_ context.Context, board *domain.Board) (*domain.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextBoardID++
	stored := *board
	stored.ID = s.nextBoardID
	stored.CreatedAt = s.now()
	stored.UpdatedAt = stored.CreatedAt
	s.boards[stored.ID] = &stored

	out := stored
	return &out, nil
}

// InsertTask stores a task on an existing board and assigns its ID
func (s *Storage) InsertTask(_ context.Context, task *domain.Task) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.boards[task.BoardID]; !ok {
		return nil, fmt.Errorf("board %d: %w", task.BoardID, errval.ErrNotFound)
	}

	s.nextTaskID++
	stored := task.Clone()
	stored.ID = s.nextTaskID
	stored.PreviousStatus = nil
	stored.DueDate = domain.CivilDate(task.DueDate)
	stored.CreatedAt = s.now()
	s.tasks[stored.ID] = stored

	return stored.Clone(), nil
}

func (s *Storage) GetTaskByID(_ context.Context, ID int32) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[ID]
	if !ok {
		return nil, errval.ErrNotFound
	}

	return task.Clone(), nil
}

func (s *Storage) GetBoardByID(_ context.Context, ID int32) (*domain.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[ID]
	if !ok {
		return nil, errval.ErrNotFound
	}
	out := *board

	return &out, nil
}

func (s *Storage) GetTaskHistory(_ context.Context, taskID int32) ([]*domain.TaskHistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := []*domain.TaskHistoryRecord{}
	for _, r := range s.history {
		if r.TaskID == taskID {
			out := *r
			records = append(records, &out)
		}
	}

	if _, ok := s.tasks[taskID]; !ok && len(records) == 0 {
		return nil, errval.ErrNotFound
	}

	return records, nil
}

func (s *Storage) GetOpenTasksDueBy(_ context.Context, day time.Time) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := domain.CivilDate(day)
	tasks := []*domain.Task{}
	for _, t := range s.tasks {
		if t.Status.IsOpen() && !t.DueDate.After(cutoff) {
			tasks = append(tasks, t.Clone())
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	return tasks, nil
}

// DeleteTask removes the task; its audit trail is kept
func (s *Storage) DeleteTask(_ context.Context, ID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[ID]; !ok {
		return errval.ErrNotFound
	}
	delete(s.tasks, ID)

	return nil
}

// DeleteBoard removes the board together with its tasks
func (s *Storage) DeleteBoard(_ context.Context, ID int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.boards[ID]; !ok {
		return errval.ErrNotFound
	}
	delete(s.boards, ID)
	for id, t := range s.tasks {
		if t.BoardID == ID {
			delete(s.tasks, id)
		}
	}

	return nil
}

// RemoveUser emulates ON DELETE SET NULL of the history user reference
func (s *Storage) RemoveUser(userID int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.history {
		if r.UserID != nil && *r.UserID == userID {
			r.UserID = nil
		}
	}
	for _, t := range s.tasks {
		kept := t.Participants[:0]
		for _, p := range t.Participants {
			if p.ID != userID {
				kept = append(kept, p)
			}
		}
		t.Participants = kept
	}
}

func (s *Storage) RunInTx(ctx context.Context, fn func(tx domain.StorageTx) error) error {
	t := &tx{s: s, pending: map[int32]*domain.Task{}}
	defer t.release()

	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", errval.ErrPersistence, err)
	}

	t.commit()
	return nil
}

func (s *Storage) rowLock(ID int32) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.rowLocks[ID]
	if !ok {
		l = &sync.Mutex{}
		s.rowLocks[ID] = l
	}

	return l
}

type tx struct {
	s       *Storage
	held    []*sync.Mutex
	pending map[int32]*domain.Task
	history []*domain.TaskHistoryRecord
}

func (t *tx) LockTaskByID(_ context.Context, ID int32) (*domain.Task, error) {
	if task, ok := t.pending[ID]; ok {
		return task.Clone(), nil
	}

	l := t.s.rowLock(ID)
	l.Lock()
	t.held = append(t.held, l)

	t.s.mu.Lock()
	task, ok := t.s.tasks[ID]
	t.s.mu.Unlock()
	if !ok {
		return nil, errval.ErrNotFound
	}

	locked := task.Clone()
	t.pending[ID] = locked

	return locked.Clone(), nil
}

func (t *tx) UpdateTask(_ context.Context, task *domain.Task) error {
	if _, ok := t.pending[task.ID]; !ok {
		return fmt.Errorf("task %d was not locked in this transaction", task.ID)
	}

	stored := task.Clone()
	stored.DueDate = domain.CivilDate(task.DueDate)
	t.pending[task.ID] = stored

	return nil
}

func (t *tx) InsertTaskHistory(_ context.Context, record *domain.TaskHistoryRecord) error {
	t.s.mu.Lock()
	t.s.nextHistoryID++
	record.ID = t.s.nextHistoryID
	record.CreatedAt = t.s.now()
	t.s.mu.Unlock()

	stored := *record
	t.history = append(t.history, &stored)

	return nil
}

func (t *tx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for id, task := range t.pending {
		if _, ok := t.s.tasks[id]; ok {
			t.s.tasks[id] = task
		}
	}
	t.s.history = append(t.s.history, t.history...)
}

func (t *tx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
	t.held = nil
}
