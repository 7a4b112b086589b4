package domain

import "time"

type NotificationKind string

const (
	TransitionNotification NotificationKind = "transition"
	DailySweepNotification NotificationKind = "daily_sweep"
)

// NotificationJob is one message to be mailed; it is never persisted.
type NotificationJob struct {
	TaskID     int32    `json:"task_id"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Recipients []string `json:"recipients"`
}

// NotificationBatch is the unit handed to the queue: a transition produces a
// batch of one, a daily sweep produces a single batch with every reminder.
type NotificationBatch struct {
	ID        string            `json:"id"`
	Kind      NotificationKind  `json:"kind"`
	CreatedAt time.Time         `json:"created_at"`
	Jobs      []NotificationJob `json:"jobs"`
}
