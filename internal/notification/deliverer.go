package notification

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/sf7293/tmanager/internal/domain"
	"github.com/sf7293/tmanager/pkg/email"
)

type DeliveryReport struct {
	Sent   int
	Failed int
}

// Deliverer hands queued jobs to the mail transport. Every failure ends here:
// it is logged and counted, never returned.
type Deliverer struct {
	mailer     domain.Mailer
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

func NewDeliverer(mailer domain.Mailer, maxRetries uint64) *Deliverer {
	return &Deliverer{
		mailer:     mailer,
		maxRetries: maxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

func (d *Deliverer) Deliver(ctx context.Context, batch domain.NotificationBatch) DeliveryReport {
	report := DeliveryReport{}
	for i, job := range batch.Jobs {
		if err := d.deliverJob(ctx, job); err != nil {
			report.Failed++
			slog.ErrorContext(ctx, "Notification could not be delivered", "batch_id", batch.ID, "kind", batch.Kind, "task_id", job.TaskID, "item_index", i, "permanent", email.IsPermanent(err), "error", err.Error())
			continue
		}
		report.Sent++
	}

	slog.InfoContext(ctx, "Notification batch is processed", "batch_id", batch.ID, "kind", batch.Kind, "sent", report.Sent, "failed", report.Failed)
	return report
}

func (d *Deliverer) deliverJob(ctx context.Context, job domain.NotificationJob) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := d.mailer.Send(ctx, job.Subject, job.Body, job.Recipients)
		if err == nil {
			return nil
		}
		if email.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		slog.WarnContext(ctx, "Mail transport failed, retrying", "task_id", job.TaskID, "attempt", attempt, "error", err.Error())
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(d.newBackOff(), d.maxRetries), ctx)
	return backoff.Retry(operation, policy)
}

// HandleMessage adapts Deliver to a broker consumer callback receiving JSON batches
func (d *Deliverer) HandleMessage(ctx context.Context) func(string) {
	return func(body string) {
		batch := domain.NotificationBatch{}
		if err := json.Unmarshal([]byte(body), &batch); err != nil {
			slog.ErrorContext(ctx, "There was an error in unmarshalling the notification batch, dropping it", "error", err.Error())
			return
		}
		slog.InfoContext(ctx, "Notification batch is picked up from the queue", "batch_id", batch.ID, "jobs_count", len(batch.Jobs))

		d.Deliver(ctx, batch)
	}
}
