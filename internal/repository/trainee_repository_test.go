package repository

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oferp-dev/sg-attendance-api/internal/models"
)

func TestTraineeRepositoryListWithSearch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTraineeRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "last_name", "first_name", "group_id", "phone", "created_at", "updated_at", "group_name"}).
		AddRow("CEF123", "ALAMI", "Mehdi", "group-1", nil, now, now, "DEV101")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT t.id, t.last_name, t.first_name, t.group_id, t.phone")).
		WithArgs("group-1", "%ala%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM trainees t")).
		WithArgs("group-1", "%ala%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	result, total, err := repo.List(context.Background(), models.TraineeFilter{
		GroupID: "group-1",
		Search:  "ala",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, result, 1)
	assert.Equal(t, "CEF123", result[0].ID)
	require.NotNil(t, result[0].GroupName)
	assert.Equal(t, "DEV101", *result[0].GroupName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTraineeRepositoryListByGroupHasNoLimit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTraineeRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "last_name", "first_name", "group_id", "phone", "created_at", "updated_at", "group_name"})
	for i := 0; i < 250; i++ {
		rows.AddRow(fmt.Sprintf("CEF%03d", i), "NOM", "Prenom", "group-1", nil, now, now, "DEV101")
	}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE t.group_id = $1")).
		WithArgs("group-1").
		WillReturnRows(rows)

	result, err := repo.ListByGroup(context.Background(), "group-1")
	require.NoError(t, err)
	assert.Len(t, result, 250)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTraineeRepositoryUpsertOnConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTraineeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id)")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	trainee := &models.Trainee{
		ID:        "CEF123",
		LastName:  "ALAMI",
		FirstName: "Mehdi",
		GroupID:   "group-1",
	}
	require.NoError(t, repo.Upsert(context.Background(), trainee))
	assert.False(t, trainee.CreatedAt.IsZero())
	assert.False(t, trainee.UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTraineeRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTraineeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM trainees WHERE id = $1")).
		WithArgs("CEF123").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "CEF123"))
	require.NoError(t, mock.ExpectationsWereMet())
}
