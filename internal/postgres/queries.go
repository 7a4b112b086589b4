package postgres

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const taskColumns = `id, board_id, title, description, status, previous_status, priority, due_to, created_at`

func scanTask(row pgx.Row) (Task, error) {
	var i Task
	err := row.Scan(
		&i.ID,
		&i.BoardID,
		&i.Title,
		&i.Description,
		&i.Status,
		&i.PreviousStatus,
		&i.Priority,
		&i.DueTo,
		&i.CreatedAt,
	)
	return i, err
}

func scanTasks(rows pgx.Rows) ([]Task, error) {
	defer rows.Close()
	items := []Task{}
	for rows.Next() {
		i, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getTaskByID = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

func (q *Queries) GetTaskByID(ctx context.Context, id int32) (Task, error) {
	return scanTask(q.db.QueryRow(ctx, getTaskByID, id))
}

const lockTaskByID = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 FOR UPDATE`

func (q *Queries) LockTaskByID(ctx context.Context, id int32) (Task, error) {
	return scanTask(q.db.QueryRow(ctx, lockTaskByID, id))
}

const getOpenTasksDueBy = `SELECT ` + taskColumns + `
FROM tasks
WHERE status IN ('to_do', 'in_progress')
  AND due_to <= $1
ORDER BY id`

func (q *Queries) GetOpenTasksDueBy(ctx context.Context, day pgtype.Date) ([]Task, error) {
	rows, err := q.db.Query(ctx, getOpenTasksDueBy, day)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

const taskExists = `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`

func (q *Queries) TaskExists(ctx context.Context, id int32) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, taskExists, id).Scan(&exists)
	return exists, err
}

type UpdateTaskParams struct {
	ID             int32
	Title          string
	Description    string
	Status         string
	PreviousStatus pgtype.Varchar
	Priority       string
	DueTo          pgtype.Date
}

const updateTask = `UPDATE tasks
SET title = $2, description = $3, status = $4, previous_status = $5, priority = $6, due_to = $7
WHERE id = $1`

func (q *Queries) UpdateTask(ctx context.Context, arg UpdateTaskParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateTask,
		arg.ID,
		arg.Title,
		arg.Description,
		arg.Status,
		arg.PreviousStatus,
		arg.Priority,
		arg.DueTo,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteTask = `DELETE FROM tasks WHERE id = $1`

func (q *Queries) DeleteTask(ctx context.Context, id int32) (int64, error) {
	result, err := q.db.Exec(ctx, deleteTask, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getBoardByID = `SELECT id, title, description, created_at, updated_at FROM boards WHERE id = $1`

func (q *Queries) GetBoardByID(ctx context.Context, id int32) (Board, error) {
	var i Board
	err := q.db.QueryRow(ctx, getBoardByID, id).Scan(
		&i.ID,
		&i.Title,
		&i.Description,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const deleteBoard = `DELETE FROM boards WHERE id = $1`

func (q *Queries) DeleteBoard(ctx context.Context, id int32) (int64, error) {
	result, err := q.db.Exec(ctx, deleteBoard, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getTaskTags = `SELECT task_id, tag FROM task_tags WHERE task_id = ANY($1::int[]) ORDER BY task_id, tag`

func (q *Queries) GetTaskTags(ctx context.Context, taskIDs []int32) ([]TaskTag, error) {
	rows, err := q.db.Query(ctx, getTaskTags, taskIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []TaskTag{}
	for rows.Next() {
		var i TaskTag
		if err := rows.Scan(&i.TaskID, &i.Tag); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteTaskTags = `DELETE FROM task_tags WHERE task_id = $1`

func (q *Queries) DeleteTaskTags(ctx context.Context, taskID int32) error {
	_, err := q.db.Exec(ctx, deleteTaskTags, taskID)
	return err
}

const insertTaskTag = `INSERT INTO task_tags (task_id, tag) VALUES ($1, $2) ON CONFLICT DO NOTHING`

func (q *Queries) InsertTaskTag(ctx context.Context, taskID int32, tag string) error {
	_, err := q.db.Exec(ctx, insertTaskTag, taskID, tag)
	return err
}

const getTaskParticipants = `SELECT tp.task_id, u.id, u.username, u.email, u.is_staff
FROM task_participants tp
         JOIN users u ON u.id = tp.user_id
WHERE tp.task_id = ANY($1::int[])
ORDER BY tp.task_id, u.id`

func (q *Queries) GetTaskParticipants(ctx context.Context, taskIDs []int32) ([]TaskParticipant, error) {
	rows, err := q.db.Query(ctx, getTaskParticipants, taskIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []TaskParticipant{}
	for rows.Next() {
		var i TaskParticipant
		if err := rows.Scan(&i.TaskID, &i.UserID, &i.Username, &i.Email, &i.IsStaff); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type InsertTaskHistoryParams struct {
	TaskID         int32
	UserID         pgtype.Int4
	PreviousStatus string
	CurrentStatus  string
}

const insertTaskHistory = `INSERT INTO task_history (task_id, user_id, previous_status, current_status)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`

func (q *Queries) InsertTaskHistory(ctx context.Context, arg InsertTaskHistoryParams) (int64, pgtype.Timestamptz, error) {
	var id int64
	var createdAt pgtype.Timestamptz
	err := q.db.QueryRow(ctx, insertTaskHistory,
		arg.TaskID,
		arg.UserID,
		arg.PreviousStatus,
		arg.CurrentStatus,
	).Scan(&id, &createdAt)
	return id, createdAt, err
}

const getTaskHistory = `SELECT id, task_id, user_id, created_at, previous_status, current_status
FROM task_history
WHERE task_id = $1
ORDER BY created_at, id`

func (q *Queries) GetTaskHistory(ctx context.Context, taskID int32) ([]TaskHistory, error) {
	rows, err := q.db.Query(ctx, getTaskHistory, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []TaskHistory{}
	for rows.Next() {
		var i TaskHistory
		if err := rows.Scan(
			&i.ID,
			&i.TaskID,
			&i.UserID,
			&i.CreatedAt,
			&i.PreviousStatus,
			&i.CurrentStatus,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
