package postgres

import (
	"github.com/jackc/pgtype"
)

type Task struct {
	ID             int32
	BoardID        int32
	Title          string
	Description    string
	Status         string
	PreviousStatus pgtype.Varchar
	Priority       string
	DueTo          pgtype.Date
	CreatedAt      pgtype.Timestamptz
}

type Board struct {
	ID          int32
	Title       string
	Description string
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

type TaskParticipant struct {
	TaskID   int32
	UserID   int32
	Username string
	Email    pgtype.Varchar
	IsStaff  bool
}

type TaskTag struct {
	TaskID int32
	Tag    string
}

type TaskHistory struct {
	ID             int64
	TaskID         int32
	UserID         pgtype.Int4
	CreatedAt      pgtype.Timestamptz
	PreviousStatus string
	CurrentStatus  string
}
