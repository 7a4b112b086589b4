package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sf7293/tmanager/internal/domain"
)

var (
	ErrQueueClosed = errors.New("notification queue is closed")
	ErrQueueFull   = errors.New("notification queue is full")
)

// BrokerQueue publishes batches as JSON messages to a durable broker queue.
type BrokerQueue struct {
	broker    domain.Queue
	queueName string
}

func NewBrokerQueue(broker domain.Queue, queueName string) *BrokerQueue {
	return &BrokerQueue{broker: broker, queueName: queueName}
}

func (q *BrokerQueue) Enqueue(ctx context.Context, batch domain.NotificationBatch) error {
	marshalledBatch, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal notification batch: %w", err)
	}

	return q.broker.PublishMessage(ctx, q.queueName, string(marshalledBatch))
}

// LocalQueue is an in-process buffered queue drained by a pool of workers.
// Enqueue never blocks: a full buffer rejects the batch.
type LocalQueue struct {
	batches chan domain.NotificationBatch
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	logger  *slog.Logger
}

func NewLocalQueue(size int, logger *slog.Logger) *LocalQueue {
	if size <= 0 {
		size = 1
	}

	return &LocalQueue{
		batches: make(chan domain.NotificationBatch, size),
		logger:  logger.With("component", "local_notification_queue"),
	}
}

func (q *LocalQueue) Enqueue(_ context.Context, batch domain.NotificationBatch) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.batches <- batch:
		q.logger.Debug("notification batch enqueued", "batch_id", batch.ID, "queue_len", len(q.batches), "queue_cap", cap(q.batches))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.batches))
	}
}

// Start launches workerCount goroutines feeding batches to handle until Close
func (q *LocalQueue) Start(ctx context.Context, workerCount int, handle func(ctx context.Context, batch domain.NotificationBatch)) {
	if workerCount <= 0 {
		q.logger.Warn("invalid worker count specified, using default", "specified_count", workerCount, "default_count", 1)
		workerCount = 1
	}

	for i := 0; i < workerCount; i++ {
		q.wg.Add(1)
		go func(workerID int) {
			defer q.wg.Done()
			q.logger.Debug("notification worker started", "worker_id", workerID)
			for batch := range q.batches {
				handle(ctx, batch)
			}
			q.logger.Debug("notification worker stopped", "worker_id", workerID)
		}(i)
	}
}

// Close stops accepting batches and waits for the workers to drain what is buffered
func (q *LocalQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.batches)
	}
	q.mu.Unlock()

	q.wg.Wait()
	q.logger.Info("local notification queue closed")
}
