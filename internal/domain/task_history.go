package domain

import "time"

// TaskHistoryRecord is one append-only entry of a task's audit trail.
// UserID is nil when the change was anonymous or the user was deleted later.
type TaskHistoryRecord struct {
	ID             int64      `json:"id"`
	TaskID         int32      `json:"task_id"`
	UserID         *int32     `json:"user_id"`
	PreviousStatus TaskStatus `json:"previous_status"`
	CurrentStatus  TaskStatus `json:"current_status"`
	CreatedAt      time.Time  `json:"created_at"`
}
