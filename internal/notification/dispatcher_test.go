package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sf7293/tmanager/internal/domain"
	"github.com/sf7293/tmanager/internal/errval"
	"github.com/sf7293/tmanager/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu      sync.Mutex
	batches []domain.NotificationBatch
	err     error
}

func (q *recordingQueue) Enqueue(_ context.Context, batch domain.NotificationBatch) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.batches = append(q.batches, batch)
	return nil
}

func (q *recordingQueue) calls() []domain.NotificationBatch {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.NotificationBatch(nil), q.batches...)
}

type fakeLock struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func (l *fakeLock) Ping(context.Context) error { return nil }
func (l *fakeLock) Close() error               { return nil }

func (l *fakeLock) Lock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if l.keys[key] {
		return "", false, nil
	}
	l.keys[key] = true
	return "token", true, nil
}

func (l *fakeLock) Unlock(_ context.Context, key, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key)
	return nil
}

var sweepNow = time.Date(2026, 10, 15, 9, 15, 0, 0, time.UTC)

func seedTask(t *testing.T, s *memory.Storage, title string, status domain.TaskStatus, due time.Time, participants ...domain.User) *domain.Task {
	t.Helper()
	ctx := context.Background()
	board, err := s.InsertBoard(ctx, &domain.Board{Title: "board"})
	require.NoError(t, err)
	task, err := s.InsertTask(ctx, &domain.Task{BoardID: board.ID, Title: title, Status: status, DueDate: due, Participants: participants})
	require.NoError(t, err)
	return task
}

func newTestDispatcher(queue domain.NotificationQueue, storage domain.Storage) *Dispatcher {
	d := NewDispatcher(queue, storage)
	d.newID = func() string { return "batch-1" }
	d.now = func() time.Time { return sweepNow }
	return d
}

func TestTransitionJob(t *testing.T) {
	task := &domain.Task{ID: 3, Title: "Do homework!", Participants: []domain.User{
		{ID: 1, Email: "alice@example.com"},
		{ID: 2},
	}}

	job, ok := TransitionJob(task, &domain.Actor{ID: 1, Username: "alice"}, domain.ToDo, domain.InProgress)
	require.True(t, ok)
	assert.Equal(t, int32(3), job.TaskID)
	assert.Equal(t, "Status of task Do homework! has been changed", job.Subject)
	assert.Equal(t, "User alice changed status of task from to_do to in_progress.", job.Body)
	assert.Equal(t, []string{"alice@example.com"}, job.Recipients)

	_, ok = TransitionJob(&domain.Task{Participants: []domain.User{{ID: 2}}}, nil, domain.ToDo, domain.InProgress)
	assert.False(t, ok)
}

func TestDispatcher_NotifyTransition(t *testing.T) {
	queue := &recordingQueue{}
	d := newTestDispatcher(queue, memory.NewStorage())
	task := &domain.Task{ID: 3, Title: "t", Participants: []domain.User{{ID: 1, Email: "a@example.com"}, {ID: 2, Email: "b@example.com"}}}

	batch, err := d.NotifyTransition(context.Background(), task, nil, domain.InProgress, domain.Done)
	require.NoError(t, err)
	require.NotNil(t, batch)

	calls := queue.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "batch-1", calls[0].ID)
	assert.Equal(t, domain.TransitionNotification, calls[0].Kind)
	require.Len(t, calls[0].Jobs, 1)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, calls[0].Jobs[0].Recipients)
	assert.Contains(t, calls[0].Jobs[0].Body, "User system changed")
}

func TestDispatcher_NotifyTransition_NoRecipients(t *testing.T) {
	queue := &recordingQueue{}
	d := newTestDispatcher(queue, memory.NewStorage())

	batch, err := d.NotifyTransition(context.Background(), &domain.Task{ID: 1, Participants: []domain.User{{ID: 1}}}, nil, domain.ToDo, domain.InProgress)
	assert.NoError(t, err)
	assert.Nil(t, batch)
	assert.Empty(t, queue.calls())
}

func TestDispatcher_NotifyTransition_EnqueueFailure(t *testing.T) {
	queue := &recordingQueue{err: errors.New("broker unreachable")}
	d := newTestDispatcher(queue, memory.NewStorage())

	_, err := d.NotifyTransition(context.Background(), &domain.Task{ID: 1, Participants: []domain.User{{ID: 1, Email: "a@example.com"}}}, nil, domain.ToDo, domain.InProgress)
	assert.ErrorIs(t, err, errval.ErrDelivery)
}

func TestDispatcher_RunDailySweep_TwoEligibleTasksOneBatch(t *testing.T) {
	storage := memory.NewStorage()
	first := seedTask(t, storage, "Write report", domain.ToDo, sweepNow, domain.User{ID: 1, Email: "alice@example.com"})
	second := seedTask(t, storage, "Fix bug", domain.InProgress, sweepNow.AddDate(0, 0, -2), domain.User{ID: 2, Email: "bob@example.com"})
	seedTask(t, storage, "Shipped", domain.Done, sweepNow.AddDate(0, 0, -1), domain.User{ID: 3, Email: "carol@example.com"})
	seedTask(t, storage, "Next week", domain.ToDo, sweepNow.AddDate(0, 0, 7), domain.User{ID: 4, Email: "dave@example.com"})
	seedTask(t, storage, "Nobody to mail", domain.ToDo, sweepNow, domain.User{ID: 5})

	queue := &recordingQueue{}
	d := newTestDispatcher(queue, storage)

	batch, err := d.RunDailySweep(context.Background(), sweepNow)
	require.NoError(t, err)
	require.NotNil(t, batch)

	calls := queue.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.DailySweepNotification, calls[0].Kind)
	require.Len(t, calls[0].Jobs, 2)
	assert.Equal(t, first.ID, calls[0].Jobs[0].TaskID)
	assert.Equal(t, []string{"alice@example.com"}, calls[0].Jobs[0].Recipients)
	assert.Equal(t, "Task Write report is still to_do; it was due on 2026-10-15.", calls[0].Jobs[0].Body)
	assert.Equal(t, second.ID, calls[0].Jobs[1].TaskID)
	assert.Equal(t, "Reminder: task Fix bug is due", calls[0].Jobs[1].Subject)
}

func TestDispatcher_RunDailySweep_NothingDue(t *testing.T) {
	storage := memory.NewStorage()
	seedTask(t, storage, "Nobody to mail", domain.ToDo, sweepNow, domain.User{ID: 5})

	queue := &recordingQueue{}
	batch, err := newTestDispatcher(queue, storage).RunDailySweep(context.Background(), sweepNow)
	assert.NoError(t, err)
	assert.Nil(t, batch)
	assert.Empty(t, queue.calls())
}

func TestDispatcher_DailySweepEntryPoint_OncePerDay(t *testing.T) {
	storage := memory.NewStorage()
	seedTask(t, storage, "Write report", domain.ToDo, sweepNow, domain.User{ID: 1, Email: "alice@example.com"})

	queue := &recordingQueue{}
	lock := &fakeLock{keys: map[string]bool{}}
	d := newTestDispatcher(queue, storage)

	sweep := d.DailySweepEntryPoint(context.Background(), func() time.Time { return sweepNow }, time.UTC, lock)
	sweep()
	sweep()

	assert.Len(t, queue.calls(), 1)
	assert.True(t, lock.keys["sweep:daily:2026-10-15"])
}

func TestDispatcher_DailySweepEntryPoint_FailedSweepReleasesLock(t *testing.T) {
	storage := memory.NewStorage()
	seedTask(t, storage, "Write report", domain.ToDo, sweepNow, domain.User{ID: 1, Email: "alice@example.com"})

	queue := &recordingQueue{err: errors.New("broker unreachable")}
	lock := &fakeLock{keys: map[string]bool{}}
	d := newTestDispatcher(queue, storage)

	sweep := d.DailySweepEntryPoint(context.Background(), func() time.Time { return sweepNow }, time.UTC, lock)
	sweep()
	assert.Empty(t, queue.calls())
	assert.False(t, lock.keys["sweep:daily:2026-10-15"])

	queue.mu.Lock()
	queue.err = nil
	queue.mu.Unlock()

	sweep()
	assert.Len(t, queue.calls(), 1)
	assert.True(t, lock.keys["sweep:daily:2026-10-15"])

	sweep()
	assert.Len(t, queue.calls(), 1)
}

func TestDispatcher_DailySweepEntryPoint_LockFailureStillSweeps(t *testing.T) {
	storage := memory.NewStorage()
	seedTask(t, storage, "Write report", domain.ToDo, sweepNow, domain.User{ID: 1, Email: "alice@example.com"})

	queue := &recordingQueue{}
	d := newTestDispatcher(queue, storage)

	d.DailySweepEntryPoint(context.Background(), func() time.Time { return sweepNow }, time.UTC, &fakeLock{err: errors.New("redis down")})()
	assert.Len(t, queue.calls(), 1)

	d.DailySweepEntryPoint(context.Background(), func() time.Time { return sweepNow }, time.UTC, nil)()
	assert.Len(t, queue.calls(), 2)
}

func TestDispatcher_DailySweepEntryPoint_UsesSweepTimezone(t *testing.T) {
	storage := memory.NewStorage()
	// Due on the 16th: at 2026-10-15 20:00 UTC it is already the 16th in UTC+5.
	seedTask(t, storage, "Tomorrow in UTC", domain.ToDo, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), domain.User{ID: 1, Email: "alice@example.com"})

	queue := &recordingQueue{}
	d := newTestDispatcher(queue, storage)
	clock := func() time.Time { return time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC) }

	d.DailySweepEntryPoint(context.Background(), clock, time.UTC, nil)()
	assert.Empty(t, queue.calls())

	d.DailySweepEntryPoint(context.Background(), clock, time.FixedZone("ALMT", 5*60*60), nil)()
	assert.Len(t, queue.calls(), 1)
}
