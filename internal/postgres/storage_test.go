package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/sf7293/tmanager/internal/domain"
	"github.com/sf7293/tmanager/internal/errval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, errval.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), errval.ErrNotFound},
		{"serialization failure", &pgconn.PgError{Code: pgerrcode.SerializationFailure}, errval.ErrConflict},
		{"lock timeout", &pgconn.PgError{Code: pgerrcode.LockNotAvailable}, errval.ErrConflict},
		{"deadlock", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, errval.ErrConflict},
		{"check violation", &pgconn.PgError{Code: pgerrcode.CheckViolation}, errval.ErrValidation},
		{"title too long", &pgconn.PgError{Code: pgerrcode.StringDataRightTruncationDataException}, errval.ErrValidation},
		{"other server error", &pgconn.PgError{Code: pgerrcode.RaiseException}, errval.ErrPersistence},
		{"connection error", errors.New("connection refused"), errval.ErrPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.err), tt.want)
		})
	}

	assert.NoError(t, mapError(nil))
}

func TestConvertTask(t *testing.T) {
	due := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	task := convertTask(Task{
		ID:             5,
		BoardID:        2,
		Title:          "Deploy",
		Description:    "to prod",
		Status:         "in_progress",
		PreviousStatus: pgtype.Varchar{String: "to_do", Status: pgtype.Present},
		Priority:       "urgently",
		DueTo:          pgtype.Date{Time: due, Status: pgtype.Present},
		CreatedAt:      pgtype.Timestamptz{Time: created, Status: pgtype.Present},
	})

	assert.Equal(t, int32(5), task.ID)
	assert.Equal(t, domain.InProgress, task.Status)
	require.NotNil(t, task.PreviousStatus)
	assert.Equal(t, domain.ToDo, *task.PreviousStatus)
	assert.Equal(t, domain.Urgently, task.Priority)
	assert.Equal(t, due, task.DueDate)
	assert.Empty(t, task.Tags)

	fresh := convertTask(Task{ID: 6, Status: "to_do", PreviousStatus: pgtype.Varchar{Status: pgtype.Null}})
	assert.Nil(t, fresh.PreviousStatus)
}

func TestConvertTaskHistories(t *testing.T) {
	records := convertTaskHistories([]TaskHistory{
		{ID: 1, TaskID: 5, UserID: pgtype.Int4{Int: 3, Status: pgtype.Present}, PreviousStatus: "to_do", CurrentStatus: "in_progress"},
		{ID: 2, TaskID: 5, UserID: pgtype.Int4{Status: pgtype.Null}, PreviousStatus: "in_progress", CurrentStatus: "done"},
	})

	require.Len(t, records, 2)
	require.NotNil(t, records[0].UserID)
	assert.Equal(t, int32(3), *records[0].UserID)
	assert.Nil(t, records[1].UserID)
	assert.Equal(t, domain.Done, records[1].CurrentStatus)

	assert.Empty(t, convertTaskHistories(nil))
}

func TestToDate(t *testing.T) {
	almaty := time.FixedZone("ALMT", 5*60*60)
	date := toDate(time.Date(2026, 10, 15, 1, 30, 0, 0, almaty))

	assert.Equal(t, pgtype.Present, date.Status)
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), date.Time)
}
