package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sf7293/tmanager/configs"
	"github.com/sf7293/tmanager/internal/domain"
	"github.com/sf7293/tmanager/internal/notification"
	"github.com/sf7293/tmanager/internal/rabbitmq"
	"github.com/sf7293/tmanager/pkg/email"
)

// NotificationQueue is the enqueue side chosen by NOTIFICATION_QUEUE_BACKEND.
type NotificationQueue struct {
	Queue domain.NotificationQueue
	// Broker is the connected message broker, nil for the local backend.
	Broker domain.Queue
	Checks []HealthCheck
	// Close stops local workers after draining them, or closes the broker connection.
	Close func()
}

// NewDeliverer builds the mail transport and the retrying deliverer on top of it
func NewDeliverer(cfg *configs.Config) (*notification.Deliverer, error) {
	mailer, err := email.NewMailer(cfg.Mail, slog.Default())
	if err != nil {
		return nil, err
	}

	return notification.NewDeliverer(mailer, cfg.Notification.MaxRetries), nil
}

// OpenNotificationQueue connects the broker, or starts the in-process queue and
// its delivery workers, which live until Close.
func OpenNotificationQueue(ctx context.Context, cfg *configs.Config) (*NotificationQueue, error) {
	switch cfg.Notification.QueueBackend {
	case configs.QueueBackendRabbitMQ:
		rabbitClient, err := rabbitmq.NewRabbitMQClient(cfg.RabbitMQ.ToRabbitConnectionUri(), []string{cfg.RabbitMQ.NotificationsQueueName})
		if err != nil {
			return nil, err
		}
		slog.Info("RabbitMQ has been initialized successfully")

		return &NotificationQueue{
			Queue:  notification.NewBrokerQueue(rabbitClient, cfg.RabbitMQ.NotificationsQueueName),
			Broker: rabbitClient,
			Checks: []HealthCheck{QueueCheck("rabbitmq", rabbitClient.IsHealthy)},
			Close: func() {
				if err := rabbitClient.Close(); err != nil {
					slog.Error("An error occurred while closing RabbitMQ connection", "error", err.Error())
				}
			},
		}, nil
	case configs.QueueBackendLocal:
		deliverer, err := NewDeliverer(cfg)
		if err != nil {
			return nil, err
		}

		localQueue := notification.NewLocalQueue(cfg.Notification.LocalBuffer, slog.Default())
		localQueue.Start(context.WithoutCancel(ctx), cfg.Notification.LocalWorkers, func(ctx context.Context, batch domain.NotificationBatch) {
			deliverer.Deliver(ctx, batch)
		})
		slog.Info("Local notification queue has been started", "workers", cfg.Notification.LocalWorkers, "buffer", cfg.Notification.LocalBuffer)

		return &NotificationQueue{Queue: localQueue, Close: localQueue.Close}, nil
	default:
		return nil, fmt.Errorf("unrecognized notification queue backend %q", cfg.Notification.QueueBackend)
	}
}
