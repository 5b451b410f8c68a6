package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oferp-dev/sg-attendance-api/internal/dto"
	"github.com/oferp-dev/sg-attendance-api/internal/models"
	"github.com/oferp-dev/sg-attendance-api/pkg/config"
	"github.com/oferp-dev/sg-attendance-api/pkg/jobs"
	"github.com/oferp-dev/sg-attendance-api/pkg/storage"
)

type weeklyEventsStub struct {
	rows  []models.WeeklyEventRow
	calls int
}

func (s *weeklyEventsStub) WeeklyEvents(ctx context.Context, groupID string, start, end time.Time) ([]models.WeeklyEventRow, error) {
	s.calls++
	return s.rows, nil
}

type reportGroupStub struct {
	group *models.Group
}

func (s *reportGroupStub) FindByID(ctx context.Context, id string) (*models.Group, error) {
	if s.group == nil || s.group.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.group, nil
}

type reportJobsStub struct {
	jobs map[string]*models.ReportJob
}

func newReportJobsStub() *reportJobsStub {
	return &reportJobsStub{jobs: map[string]*models.ReportJob{}}
}

func (s *reportJobsStub) Create(ctx context.Context, job *models.ReportJob) error {
	s.jobs[job.ID] = job
	return nil
}

func (s *reportJobsStub) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (s *reportJobsStub) MarkProcessing(ctx context.Context, id string) error {
	s.jobs[id].Status = models.ReportStatusProcessing
	return nil
}

func (s *reportJobsStub) MarkFinished(ctx context.Context, id, resultURL string, at time.Time) error {
	job := s.jobs[id]
	job.Status = models.ReportStatusFinished
	job.ResultURL = &resultURL
	job.FinishedAt = &at
	return nil
}

func (s *reportJobsStub) MarkFailed(ctx context.Context, id, message string, at time.Time) error {
	job := s.jobs[id]
	job.Status = models.ReportStatusFailed
	job.ErrorMessage = &message
	job.FinishedAt = &at
	return nil
}

const reportGroupID = "9f8b4a3c-2d1e-4f6a-8b7c-0d9e8f7a6b5c"

func weeklyFixtures() (*weeklyEventsStub, *reportGroupStub, *traineeRepoStub) {
	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	events := &weeklyEventsStub{rows: []models.WeeklyEventRow{
		{TraineeID: "CEF1", LastName: "ALAMI", FirstName: "Mehdi", Date: monday, Status: models.StatusAbsent, AbsenceHours: 8},
		{TraineeID: "CEF1", LastName: "ALAMI", FirstName: "Mehdi", Date: monday.AddDate(0, 0, 2), Status: models.StatusLate},
		{TraineeID: "CEF2", LastName: "RACHIDI", FirstName: "Leila", Date: monday.AddDate(0, 0, 4), Status: models.StatusAbsent, IsJustified: true},
	}}
	groups := &reportGroupStub{group: &models.Group{ID: reportGroupID, Name: "DEV101"}}

	trainees := newTraineeRepoStub()
	trainees.trainees["CEF1"] = &models.Trainee{ID: "CEF1", LastName: "ALAMI", FirstName: "Mehdi", GroupID: reportGroupID}
	trainees.trainees["CEF2"] = &models.Trainee{ID: "CEF2", LastName: "RACHIDI", FirstName: "Leila", GroupID: reportGroupID}
	trainees.trainees["CEF3"] = &models.Trainee{ID: "CEF3", LastName: "BERRADA", FirstName: "Nadia", GroupID: reportGroupID}
	return events, groups, trainees
}

func newTestReportService(t *testing.T, events *weeklyEventsStub, groups *reportGroupStub, trainees *traineeRepoStub, cache *cacheStub) *ReportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	cfg := config.ReportsConfig{
		CacheTTL:      time.Minute,
		SignedURLTTL:  time.Hour,
		WorkerRetries: 3,
	}
	var cacheDep reportCache
	if cache != nil {
		cacheDep = cache
	}
	return NewReportService(events, groups, trainees, newReportJobsStub(), cacheDep, store, signer, cfg, nil)
}

func TestWeekRange(t *testing.T) {
	wednesday := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	start, end := WeekRange(wednesday)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC), end)

	sunday := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	start, _ = WeekRange(sunday)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), start)

	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	start, _ = WeekRange(monday)
	assert.Equal(t, monday, start)
}

func TestReportServiceWeeklyGrid(t *testing.T) {
	events, groups, trainees := weeklyFixtures()
	svc := newTestReportService(t, events, groups, trainees, nil)

	report, err := svc.Weekly(context.Background(), reportGroupID, "2026-03-04")
	require.NoError(t, err)

	assert.Equal(t, "DEV101", report.GroupName)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), report.StartDate)
	require.Len(t, report.Rows, 3)

	byID := map[string]models.WeeklyReportRow{}
	for _, row := range report.Rows {
		byID[row.TraineeID] = row
	}

	mehdi := byID["CEF1"]
	assert.Equal(t, 8.0, mehdi.TotalHours)
	assert.Equal(t, models.StatusAbsent, mehdi.Days["Lundi"].Status)
	assert.Equal(t, 8.0, mehdi.Days["Lundi"].AbsenceHours)
	assert.Equal(t, models.StatusLate, mehdi.Days["Mercredi"].Status)

	leila := byID["CEF2"]
	assert.True(t, leila.Days["Vendredi"].IsJustified)
	assert.Equal(t, 0.0, leila.TotalHours)

	// A trainee with no events still gets an empty row.
	nadia := byID["CEF3"]
	assert.Empty(t, nadia.Days)
	assert.Equal(t, 0.0, nadia.TotalHours)
}

func TestReportServiceWeeklyCoversLargeGroups(t *testing.T) {
	events, groups, trainees := weeklyFixtures()
	for i := 0; i < 250; i++ {
		id := fmt.Sprintf("CEF9%03d", i)
		trainees.trainees[id] = &models.Trainee{ID: id, LastName: "NOM", FirstName: "Prenom", GroupID: reportGroupID}
	}
	svc := newTestReportService(t, events, groups, trainees, nil)

	report, err := svc.Weekly(context.Background(), reportGroupID, "2026-03-04")
	require.NoError(t, err)
	assert.Len(t, report.Rows, 253)
}

func TestReportServiceWeeklyUsesCache(t *testing.T) {
	events, groups, trainees := weeklyFixtures()
	cache := newCacheStub()
	svc := newTestReportService(t, events, groups, trainees, cache)

	_, err := svc.Weekly(context.Background(), reportGroupID, "2026-03-04")
	require.NoError(t, err)
	_, err = svc.Weekly(context.Background(), reportGroupID, "2026-03-04")
	require.NoError(t, err)

	assert.Equal(t, 1, events.calls)
	assert.Equal(t, 1, cache.sets)
}

func TestReportServiceUnknownGroup(t *testing.T) {
	events, groups, trainees := weeklyFixtures()
	svc := newTestReportService(t, events, groups, trainees, nil)

	_, err := svc.Weekly(context.Background(), "00000000-0000-4000-8000-000000000000", "")
	require.Error(t, err)
}

func TestReportServiceRunExportJob(t *testing.T) {
	events, groups, trainees := weeklyFixtures()
	svc := newTestReportService(t, events, groups, trainees, nil)
	jobsRepo := svc.jobsRepo.(*reportJobsStub)

	job := &models.ReportJob{
		ID: "job-1",
		Params: models.ReportJobParams{
			GroupID:   reportGroupID,
			StartDate: "2026-03-02",
			EndDate:   "2026-03-07",
			Format:    models.ReportFormatCSV,
		},
		Status:    models.ReportStatusQueued,
		CreatedBy: "sg-user",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, jobsRepo.Create(context.Background(), job))

	err := svc.RunExportJob(context.Background(), jobs.Job{ID: "job-1", Type: "weekly_export", Payload: job.Params})
	require.NoError(t, err)

	stored := jobsRepo.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFinished, stored.Status)
	require.NotNil(t, stored.ResultURL)
	assert.True(t, strings.HasPrefix(*stored.ResultURL, "/api/v1/reports/download/"))

	token := strings.TrimPrefix(*stored.ResultURL, "/api/v1/reports/download/")
	file, name, err := svc.Download(context.Background(), token)
	require.NoError(t, err)
	defer file.Close()
	assert.Contains(t, name, ".csv")
}

func TestReportServiceDownloadRejectsBadToken(t *testing.T) {
	events, groups, trainees := weeklyFixtures()
	svc := newTestReportService(t, events, groups, trainees, nil)

	_, _, err := svc.Download(context.Background(), "not-a-token")
	require.Error(t, err)
}

func TestReportServiceExportWithoutQueue(t *testing.T) {
	events, groups, trainees := weeklyFixtures()
	svc := newTestReportService(t, events, groups, trainees, nil)

	_, err := svc.Export(context.Background(), reportGroupID, dto.ExportReportRequest{
		Week:   "2026-03-04",
		Format: models.ReportFormatCSV,
	}, "sg-user")
	require.Error(t, err)
}
