// Package notification builds the emails sent to task participants and moves
// them through a queue to the mail transport, off the request path.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sf7293/tmanager/internal/domain"
	"github.com/sf7293/tmanager/internal/errval"
)

const dueDateLayout = "2006-01-02"

type Dispatcher struct {
	queue   domain.NotificationQueue
	storage domain.Storage
	newID   func() string
	now     func() time.Time
}

func NewDispatcher(queue domain.NotificationQueue, storage domain.Storage) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		storage: storage,
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// TransitionJob builds the message for a status change; ok is false when no participant has an email
func TransitionJob(task *domain.Task, actor *domain.Actor, previous, current domain.TaskStatus) (job domain.NotificationJob, ok bool) {
	recipients := task.ParticipantEmails()
	if len(recipients) == 0 {
		return domain.NotificationJob{}, false
	}

	return domain.NotificationJob{
		TaskID:     task.ID,
		Subject:    fmt.Sprintf("Status of task %s has been changed", task.Title),
		Body:       fmt.Sprintf("User %s changed status of task from %s to %s.", actor.DisplayName(), previous, current),
		Recipients: recipients,
	}, true
}

// ReminderJob builds the daily sweep message for an open, due task
func ReminderJob(task *domain.Task) (job domain.NotificationJob, ok bool) {
	recipients := task.ParticipantEmails()
	if len(recipients) == 0 {
		return domain.NotificationJob{}, false
	}

	return domain.NotificationJob{
		TaskID:     task.ID,
		Subject:    fmt.Sprintf("Reminder: task %s is due", task.Title),
		Body:       fmt.Sprintf("Task %s is still %s; it was due on %s.", task.Title, task.Status, task.DueDate.Format(dueDateLayout)),
		Recipients: recipients,
	}, true
}

// NotifyTransition enqueues one job for the participants of task. It returns a nil batch
// and no error when nobody can be mailed. Enqueue failures are returned wrapped in
// errval.ErrDelivery for the caller to log; they never concern the committed mutation.
func (d *Dispatcher) NotifyTransition(ctx context.Context, task *domain.Task, actor *domain.Actor, previous, current domain.TaskStatus) (*domain.NotificationBatch, error) {
	job, ok := TransitionJob(task, actor, previous, current)
	if !ok {
		slog.InfoContext(ctx, "No participant with an email, skipping transition notification", "task_id", task.ID)
		return nil, nil
	}

	batch := d.newBatch(domain.TransitionNotification, []domain.NotificationJob{job})
	if err := d.queue.Enqueue(ctx, batch); err != nil {
		return nil, fmt.Errorf("%w: enqueue transition notification for task %d: %v", errval.ErrDelivery, task.ID, err)
	}

	slog.InfoContext(ctx, "Transition notification is enqueued", "task_id", task.ID, "batch_id", batch.ID, "recipients_count", len(job.Recipients))
	return &batch, nil
}

// RunDailySweep reminds the participants of every to_do or in_progress task due on or
// before now's calendar date. All reminders leave in a single batch; tasks without
// mailable participants are skipped. Reads are point-in-time and take no task locks.
func (d *Dispatcher) RunDailySweep(ctx context.Context, now time.Time) (*domain.NotificationBatch, error) {
	tasks, err := d.storage.GetOpenTasksDueBy(ctx, now)
	if err != nil {
		slog.ErrorContext(ctx, "error occurred while fetching open tasks for the daily sweep", "error", err)
		return nil, fmt.Errorf("%w: fetch open tasks: %v", errval.ErrPersistence, err)
	}

	jobs := make([]domain.NotificationJob, 0, len(tasks))
	skipped := 0
	for _, task := range tasks {
		job, ok := ReminderJob(task)
		if !ok {
			skipped++
			continue
		}
		jobs = append(jobs, job)
	}
	slog.InfoContext(ctx, "Daily sweep selected tasks", "day", domain.CivilDate(now).Format(dueDateLayout), "tasks_count", len(tasks), "jobs_count", len(jobs), "skipped_without_recipients", skipped)

	if len(jobs) == 0 {
		return nil, nil
	}

	batch := d.newBatch(domain.DailySweepNotification, jobs)
	if err := d.queue.Enqueue(ctx, batch); err != nil {
		return nil, fmt.Errorf("%w: enqueue daily sweep: %v", errval.ErrDelivery, err)
	}

	slog.InfoContext(ctx, "Daily sweep batch is enqueued", "batch_id", batch.ID, "jobs_count", len(jobs))
	return &batch, nil
}

func (d *Dispatcher) newBatch(kind domain.NotificationKind, jobs []domain.NotificationJob) domain.NotificationBatch {
	return domain.NotificationBatch{
		ID:        d.newID(),
		Kind:      kind,
		CreatedAt: d.now().UTC(),
		Jobs:      jobs,
	}
}
