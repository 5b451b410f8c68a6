package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oferp-dev/sg-attendance-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAbsenceRepositoryCreateRecordTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAbsenceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO absence_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO trainee_absences")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO trainee_absences")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	record := &models.AbsenceRecord{
		Date:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		GroupID: "group-1",
	}
	events := []models.TraineeAbsence{
		{TraineeID: "CEF1", Status: models.StatusAbsent, AbsenceHours: 8},
		{TraineeID: "CEF2", Status: models.StatusPresent},
	}
	require.NoError(t, repo.CreateRecord(context.Background(), record, events))

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, record.ID, events[0].AbsenceRecordID)
	assert.Equal(t, 1, events[0].Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAbsenceRepositoryCreateRecordRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAbsenceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO absence_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO trainee_absences")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	record := &models.AbsenceRecord{Date: time.Now(), GroupID: "group-1"}
	events := []models.TraineeAbsence{{TraineeID: "CEF1", Status: models.StatusAbsent}}
	require.Error(t, repo.CreateRecord(context.Background(), record, events))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAbsenceRepositoryUpdateEventVersionGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAbsenceRepository(db)

	event := &models.TraineeAbsence{
		ID:     "event-1",
		Status: models.StatusAbsent,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE trainee_absences SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	updated, err := repo.UpdateEvent(context.Background(), event, 1)
	require.NoError(t, err)
	assert.True(t, updated)

	// A stale version matches no row.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE trainee_absences SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	updated, err = repo.UpdateEvent(context.Background(), event, 1)
	require.NoError(t, err)
	assert.False(t, updated)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAbsenceRepositoryMarkJustified(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAbsenceRepository(db)

	comment := "certificat médical"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE trainee_absences SET is_justified = TRUE")).
		WithArgs("event-1", comment).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkJustified(context.Background(), "event-1", &comment))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAbsenceRepositoryEventsForTraineeRange(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAbsenceRepository(db)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"trainee_id", "date", "start_time", "end_time", "status", "is_justified"}).
		AddRow("CEF1", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), "08:30", "13:30", "absent", false).
		AddRow("CEF1", time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), nil, nil, "late", false)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT ta.trainee_id, ar.date, ar.start_time, ar.end_time")).
		WithArgs("CEF1", from, to).
		WillReturnRows(rows)

	events, err := repo.EventsForTrainee(context.Background(), "CEF1", &from, &to)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.StatusAbsent, events[0].Status)
	require.NotNil(t, events[0].StartTime)
	assert.Equal(t, "08:30", *events[0].StartTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAbsenceRepositoryWeeklyEvents(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAbsenceRepository(db)

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 5)

	rows := sqlmock.NewRows([]string{"trainee_id", "last_name", "first_name", "date", "status", "is_justified", "absence_hours"}).
		AddRow("CEF1", "ALAMI", "Mehdi", start, "absent", false, 8.0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT ta.trainee_id, t.last_name, t.first_name")).
		WithArgs("group-1", start, end).
		WillReturnRows(rows)

	result, err := repo.WeeklyEvents(context.Background(), "group-1", start, end)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, 8.0, result[0].AbsenceHours)
	require.NoError(t, mock.ExpectationsWereMet())
}
