package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oferp-dev/sg-attendance-api/internal/dto"
	"github.com/oferp-dev/sg-attendance-api/internal/models"
	"github.com/oferp-dev/sg-attendance-api/internal/scoring"
	appErrors "github.com/oferp-dev/sg-attendance-api/pkg/errors"
)

type absenceRepoStub struct {
	records map[string]*models.AbsenceRecord
	events  map[string]*models.TraineeAbsence
}

func newAbsenceRepoStub() *absenceRepoStub {
	return &absenceRepoStub{
		records: map[string]*models.AbsenceRecord{},
		events:  map[string]*models.TraineeAbsence{},
	}
}

func (s *absenceRepoStub) ListRecords(ctx context.Context, filter models.AbsenceRecordFilter) ([]models.AbsenceRecordDetail, int, error) {
	result := make([]models.AbsenceRecordDetail, 0, len(s.records))
	for _, record := range s.records {
		result = append(result, models.AbsenceRecordDetail{AbsenceRecord: *record})
	}
	return result, len(result), nil
}

func (s *absenceRepoStub) FindRecordByID(ctx context.Context, id string) (*models.AbsenceRecordDetail, error) {
	record, ok := s.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := &models.AbsenceRecordDetail{AbsenceRecord: *record}
	for _, event := range s.events {
		if event.AbsenceRecordID == id {
			detail.Students = append(detail.Students, models.TraineeAbsenceDetail{TraineeAbsence: *event})
		}
	}
	return detail, nil
}

func (s *absenceRepoStub) StudentsForRecord(ctx context.Context, recordID string) ([]models.TraineeAbsenceDetail, error) {
	detail, err := s.FindRecordByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return detail.Students, nil
}

func (s *absenceRepoStub) CreateRecord(ctx context.Context, record *models.AbsenceRecord, events []models.TraineeAbsence) error {
	s.records[record.ID] = record
	for i := range events {
		event := events[i]
		s.events[event.ID] = &event
	}
	return nil
}

func (s *absenceRepoStub) UpdateRecord(ctx context.Context, record *models.AbsenceRecord) error {
	if _, ok := s.records[record.ID]; !ok {
		return sql.ErrNoRows
	}
	s.records[record.ID] = record
	return nil
}

func (s *absenceRepoStub) DeleteRecord(ctx context.Context, id string) error {
	delete(s.records, id)
	return nil
}

func (s *absenceRepoStub) withWindow(event *models.TraineeAbsence) *models.TraineeAbsenceWithWindow {
	result := &models.TraineeAbsenceWithWindow{TraineeAbsence: *event}
	if record, ok := s.records[event.AbsenceRecordID]; ok {
		result.Date = record.Date
		result.StartTime = record.StartTime
		result.EndTime = record.EndTime
	}
	return result
}

func (s *absenceRepoStub) FindEventByID(ctx context.Context, id string) (*models.TraineeAbsenceWithWindow, error) {
	event, ok := s.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s.withWindow(event), nil
}

func (s *absenceRepoStub) FindEventByRecordAndTrainee(ctx context.Context, recordID, traineeID string) (*models.TraineeAbsenceWithWindow, error) {
	for _, event := range s.events {
		if event.AbsenceRecordID == recordID && event.TraineeID == traineeID {
			return s.withWindow(event), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *absenceRepoStub) UpdateEvent(ctx context.Context, event *models.TraineeAbsence, expectedVersion int) (bool, error) {
	stored, ok := s.events[event.ID]
	if !ok || stored.Version != expectedVersion {
		return false, nil
	}
	updated := *event
	if stored.OriginalStatus != nil {
		updated.OriginalStatus = stored.OriginalStatus
	}
	updated.Version = stored.Version + 1
	s.events[event.ID] = &updated
	return true, nil
}

func (s *absenceRepoStub) MarkValidated(ctx context.Context, id, validatedBy string, at time.Time) error {
	event, ok := s.events[id]
	if !ok {
		return sql.ErrNoRows
	}
	event.IsValidated = true
	event.ValidatedBy = &validatedBy
	event.ValidatedAt = &at
	return nil
}

func (s *absenceRepoStub) MarkJustified(ctx context.Context, id string, comment *string) error {
	event, ok := s.events[id]
	if !ok {
		return sql.ErrNoRows
	}
	event.IsJustified = true
	event.AbsenceHours = 0
	if comment != nil {
		event.JustificationComment = comment
	}
	return nil
}

type cacheInvalidatorStub struct {
	patterns []string
}

func (s *cacheInvalidatorStub) DeleteByPattern(ctx context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	return nil
}

func strPtr(v string) *string { return &v }

func statusPtr(v models.AttendanceStatus) *models.AttendanceStatus { return &v }

func boolPtr(v bool) *bool { return &v }

func newTestAbsenceService(repo *absenceRepoStub) (*AbsenceService, *cacheInvalidatorStub) {
	cache := &cacheInvalidatorStub{}
	svc := NewAbsenceService(repo, cache, scoring.New(scoring.DefaultPolicy()), nil, nil)
	return svc, cache
}

func TestAbsenceServiceCreatePricesEvents(t *testing.T) {
	repo := newAbsenceRepoStub()
	svc, cache := newTestAbsenceService(repo)

	record, err := svc.Create(context.Background(), dto.CreateAbsenceRecordRequest{
		Date:      "2026-03-02",
		GroupID:   "9f8b4a3c-2d1e-4f6a-8b7c-0d9e8f7a6b5c",
		StartTime: strPtr("08:30"),
		EndTime:   strPtr("13:30"),
		Students: []dto.SessionStudent{
			{TraineeID: "CEF100", Status: models.StatusAbsent},
			{TraineeID: "CEF101", Status: models.StatusLate},
			{TraineeID: "CEF102", Status: models.StatusPresent},
		},
	})
	require.NoError(t, err)
	require.Len(t, record.Students, 3)

	byTrainee := map[string]models.TraineeAbsenceDetail{}
	for _, student := range record.Students {
		byTrainee[student.TraineeID] = student
	}
	assert.Equal(t, 5.0, byTrainee["CEF100"].AbsenceHours)
	assert.Equal(t, 0.0, byTrainee["CEF101"].AbsenceHours)
	assert.Equal(t, 0.0, byTrainee["CEF102"].AbsenceHours)
	assert.Equal(t, 1, byTrainee["CEF100"].Version)
	assert.NotEmpty(t, cache.patterns)
}

func TestAbsenceServiceCreateFullDayWithoutWindow(t *testing.T) {
	repo := newAbsenceRepoStub()
	svc, _ := newTestAbsenceService(repo)

	record, err := svc.Create(context.Background(), dto.CreateAbsenceRecordRequest{
		Date:    "2026-03-02",
		GroupID: "9f8b4a3c-2d1e-4f6a-8b7c-0d9e8f7a6b5c",
		Students: []dto.SessionStudent{
			{TraineeID: "CEF100", Status: models.StatusAbsent},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 8.0, record.Students[0].AbsenceHours)
}

func TestAbsenceServiceCreateRejectsDuplicateTrainee(t *testing.T) {
	repo := newAbsenceRepoStub()
	svc, _ := newTestAbsenceService(repo)

	_, err := svc.Create(context.Background(), dto.CreateAbsenceRecordRequest{
		Date:    "2026-03-02",
		GroupID: "9f8b4a3c-2d1e-4f6a-8b7c-0d9e8f7a6b5c",
		Students: []dto.SessionStudent{
			{TraineeID: "CEF100", Status: models.StatusAbsent},
			{TraineeID: "CEF100", Status: models.StatusLate},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func seedRecordWithAbsence(t *testing.T, svc *AbsenceService) *models.AbsenceRecordDetail {
	t.Helper()
	record, err := svc.Create(context.Background(), dto.CreateAbsenceRecordRequest{
		Date:      "2026-03-02",
		GroupID:   "9f8b4a3c-2d1e-4f6a-8b7c-0d9e8f7a6b5c",
		StartTime: strPtr("08:30"),
		EndTime:   strPtr("13:30"),
		Students: []dto.SessionStudent{
			{TraineeID: "CEF100", Status: models.StatusAbsent},
		},
	})
	require.NoError(t, err)
	return record
}

func TestAbsenceServicePatchEventStaleVersion(t *testing.T) {
	repo := newAbsenceRepoStub()
	svc, _ := newTestAbsenceService(repo)
	record := seedRecordWithAbsence(t, svc)

	_, err := svc.PatchEvent(context.Background(), record.ID, "CEF100", dto.PatchEventRequest{
		IsJustified: boolPtr(true),
		Version:     7,
	}, "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStaleVersion.Code, appErrors.FromError(err).Code)
}

func TestAbsenceServicePatchEventJustifiesAndBumpsVersion(t *testing.T) {
	repo := newAbsenceRepoStub()
	svc, _ := newTestAbsenceService(repo)
	record := seedRecordWithAbsence(t, svc)

	event, err := svc.PatchEvent(context.Background(), record.ID, "CEF100", dto.PatchEventRequest{
		IsJustified:          boolPtr(true),
		JustificationComment: strPtr("certificat médical"),
		Version:              1,
	}, "user-1")
	require.NoError(t, err)
	assert.True(t, event.IsJustified)
	assert.Equal(t, 0.0, event.AbsenceHours)
	assert.Equal(t, 2, event.Version)
	require.NotNil(t, event.EditedBy)
	assert.Equal(t, "user-1", *event.EditedBy)
}

func TestAbsenceServicePatchEventRejectsJustifyingNonAbsence(t *testing.T) {
	repo := newAbsenceRepoStub()
	svc, _ := newTestAbsenceService(repo)

	record, err := svc.Create(context.Background(), dto.CreateAbsenceRecordRequest{
		Date:      "2026-03-02",
		GroupID:   "9f8b4a3c-2d1e-4f6a-8b7c-0d9e8f7a6b5c",
		StartTime: strPtr("08:30"),
		EndTime:   strPtr("13:30"),
		Students: []dto.SessionStudent{
			{TraineeID: "CEF100", Status: models.StatusPresent},
			{TraineeID: "CEF101", Status: models.StatusLate},
		},
	})
	require.NoError(t, err)

	for _, traineeID := range []string{"CEF100", "CEF101"} {
		_, err := svc.PatchEvent(context.Background(), record.ID, traineeID, dto.PatchEventRequest{
			IsJustified: boolPtr(true),
			Version:     1,
		}, "user-1")
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrNotAbsence.Code, appErrors.FromError(err).Code)

		stored, err := repo.FindEventByRecordAndTrainee(context.Background(), record.ID, traineeID)
		require.NoError(t, err)
		assert.False(t, stored.IsJustified)
	}
}

func TestAbsenceServicePatchEventClearsJustificationOnStatusChange(t *testing.T) {
	repo := newAbsenceRepoStub()
	svc, _ := newTestAbsenceService(repo)
	record := seedRecordWithAbsence(t, svc)

	event, err := svc.PatchEvent(context.Background(), record.ID, "CEF100", dto.PatchEventRequest{
		IsJustified: boolPtr(true),
		Version:     1,
	}, "user-1")
	require.NoError(t, err)
	require.True(t, event.IsJustified)

	// Reclassifying a justified absence as present drops the flag.
	event, err = svc.PatchEvent(context.Background(), record.ID, "CEF100", dto.PatchEventRequest{
		Status:  statusPtr(models.StatusPresent),
		Version: 2,
	}, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPresent, event.Status)
	assert.False(t, event.IsJustified)
	assert.Equal(t, 0.0, event.AbsenceHours)
}

func TestAbsenceServicePatchEventFreezesOriginalStatus(t *testing.T) {
	repo := newAbsenceRepoStub()
	svc, _ := newTestAbsenceService(repo)
	record := seedRecordWithAbsence(t, svc)

	event, err := svc.PatchEvent(context.Background(), record.ID, "CEF100", dto.PatchEventRequest{
		Status:  statusPtr(models.StatusLate),
		Version: 1,
	}, "user-1")
	require.NoError(t, err)
	require.NotNil(t, event.OriginalStatus)
	assert.Equal(t, models.StatusAbsent, *event.OriginalStatus)
	assert.Equal(t, models.StatusLate, event.Status)
	assert.Equal(t, 0.0, event.AbsenceHours)

	// A later edit back to absent must not overwrite the frozen origin.
	event, err = svc.PatchEvent(context.Background(), record.ID, "CEF100", dto.PatchEventRequest{
		Status:  statusPtr(models.StatusAbsent),
		Version: 2,
	}, "user-1")
	require.NoError(t, err)
	require.NotNil(t, event.OriginalStatus)
	assert.Equal(t, models.StatusAbsent, *event.OriginalStatus)
	assert.Equal(t, 5.0, event.AbsenceHours)
}

func TestAbsenceServiceBulkJustifyPartialFailure(t *testing.T) {
	repo := newAbsenceRepoStub()
	svc, _ := newTestAbsenceService(repo)

	record, err := svc.Create(context.Background(), dto.CreateAbsenceRecordRequest{
		Date:    "2026-03-02",
		GroupID: "9f8b4a3c-2d1e-4f6a-8b7c-0d9e8f7a6b5c",
		Students: []dto.SessionStudent{
			{TraineeID: "CEF100", Status: models.StatusAbsent},
			{TraineeID: "CEF101", Status: models.StatusPresent},
		},
	})
	require.NoError(t, err)

	var absentID, presentID string
	for _, student := range record.Students {
		if student.Status == models.StatusAbsent {
			absentID = student.ID
		} else {
			presentID = student.ID
		}
	}

	result, err := svc.BulkJustify(context.Background(), dto.BulkJustifyRequest{
		IDs:     []string{absentID, presentID, "missing"},
		Comment: strPtr("convocation"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	require.Len(t, result.Errors, 2)

	justified, err := repo.FindEventByID(context.Background(), absentID)
	require.NoError(t, err)
	assert.True(t, justified.IsJustified)
	assert.Equal(t, 0.0, justified.AbsenceHours)
}

func TestAbsenceServiceBulkValidate(t *testing.T) {
	repo := newAbsenceRepoStub()
	svc, _ := newTestAbsenceService(repo)
	record := seedRecordWithAbsence(t, svc)
	eventID := record.Students[0].ID

	result, err := svc.BulkValidate(context.Background(), dto.BulkEventIDsRequest{
		IDs: []string{eventID, "missing"},
	}, "sg-user")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "missing", result.Errors[0].ID)

	validated, err := repo.FindEventByID(context.Background(), eventID)
	require.NoError(t, err)
	assert.True(t, validated.IsValidated)
	require.NotNil(t, validated.ValidatedBy)
	assert.Equal(t, "sg-user", *validated.ValidatedBy)
}

func TestAbsenceServiceUpdateReprices(t *testing.T) {
	repo := newAbsenceRepoStub()
	svc, _ := newTestAbsenceService(repo)
	record := seedRecordWithAbsence(t, svc)

	updated, err := svc.Update(context.Background(), record.ID, dto.UpdateAbsenceRecordRequest{
		Date:      "2026-03-02",
		StartTime: strPtr("08:30"),
		EndTime:   strPtr("10:30"),
	})
	require.NoError(t, err)
	require.Len(t, updated.Students, 1)
	assert.Equal(t, 2.0, updated.Students[0].AbsenceHours)
}
