package domain

import "context"

type Queue interface {
	IsHealthy() bool
	PublishMessage(ctx context.Context, queueName, body string) error
	ConsumeMessages(ctx context.Context, consumerName, queueName string, handler func(string)) error
	Close() error
}

// NotificationQueue accepts batches for asynchronous delivery. Implementations
// must not wait for delivery itself.
type NotificationQueue interface {
	Enqueue(ctx context.Context, batch NotificationBatch) error
}
