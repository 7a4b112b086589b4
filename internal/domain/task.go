package domain

import (
	"slices"
	"time"
)

type TaskStatus string

const (
	ToDo       TaskStatus = "to_do"
	InProgress TaskStatus = "in_progress"
	Done       TaskStatus = "done"
)

// Statuses is the ordered reference set of task statuses.
var Statuses = []TaskStatus{ToDo, InProgress, Done}

func (s TaskStatus) IsKnown() bool {
	return slices.Contains(Statuses, s)
}

// IsOpen reports whether the daily sweep still reminds participants about tasks in this status
func (s TaskStatus) IsOpen() bool {
	return s == ToDo || s == InProgress
}

type TaskPriority string

const (
	Urgently TaskPriority = "urgently"
	Ordinary TaskPriority = "ordinary"
)

func (p TaskPriority) IsKnown() bool {
	return p == Urgently || p == Ordinary
}

type TaskTag string

const (
	Backend  TaskTag = "backend"
	Frontend TaskTag = "frontend"
	Testing  TaskTag = "testing"
	Deploy   TaskTag = "deploy"
)

func (t TaskTag) IsKnown() bool {
	switch t {
	case Backend, Frontend, Testing, Deploy:
		return true
	default:
		return false
	}
}

const MaxTitleLength = 50

type User struct {
	ID       int32  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"-"`
	IsStaff  bool   `json:"-"`
}

type Board struct {
	ID          int32     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Task struct {
	ID             int32        `json:"id"`
	BoardID        int32        `json:"board_id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Status         TaskStatus   `json:"status"`
	PreviousStatus *TaskStatus  `json:"-"`
	Priority       TaskPriority `json:"priority"`
	Tags           []TaskTag    `json:"tags"`
	Participants   []User       `json:"participants"`
	DueDate        time.Time    `json:"due_to"`
	CreatedAt      time.Time    `json:"created_at"`
}

func (t *Task) HasParticipant(userID int32) bool {
	for _, p := range t.Participants {
		if p.ID == userID {
			return true
		}
	}

	return false
}

// ParticipantEmails returns the de-duplicated participant addresses, skipping participants without one
func (t *Task) ParticipantEmails() []string {
	emails := make([]string, 0, len(t.Participants))
	seen := make(map[string]struct{}, len(t.Participants))
	for _, p := range t.Participants {
		if p.Email == "" {
			continue
		}
		if _, ok := seen[p.Email]; ok {
			continue
		}
		seen[p.Email] = struct{}{}
		emails = append(emails, p.Email)
	}

	return emails
}

// Clone returns a deep copy so that callers can mutate it without touching stored state
func (t *Task) Clone() *Task {
	c := *t
	if t.PreviousStatus != nil {
		prev := *t.PreviousStatus
		c.PreviousStatus = &prev
	}
	c.Tags = slices.Clone(t.Tags)
	c.Participants = slices.Clone(t.Participants)

	return &c
}

// TaskUpdate carries the caller-proposed fields; nil means "leave unchanged".
// previous_status is deliberately absent: it is never caller-writable.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *TaskStatus
	Priority    *TaskPriority
	Tags        *[]TaskTag
	DueDate     *time.Time
}

func (u TaskUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil && u.Priority == nil && u.Tags == nil && u.DueDate == nil
}

// CivilDate truncates t to its calendar date in t's own location, expressed as UTC midnight.
// Due dates are stored in this form.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
