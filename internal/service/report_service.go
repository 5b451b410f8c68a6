package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oferp-dev/sg-attendance-api/internal/dto"
	"github.com/oferp-dev/sg-attendance-api/internal/models"
	"github.com/oferp-dev/sg-attendance-api/pkg/config"
	appErrors "github.com/oferp-dev/sg-attendance-api/pkg/errors"
	"github.com/oferp-dev/sg-attendance-api/pkg/export"
	"github.com/oferp-dev/sg-attendance-api/pkg/jobs"
	"github.com/oferp-dev/sg-attendance-api/pkg/storage"
)

// dayLabels are the weekly grid columns, Monday through Saturday.
// Sunday is not a training day and never appears.
var dayLabels = []string{"Lundi", "Mardi", "Mercredi", "Jeudi", "Vendredi", "Samedi"}

type reportEventRepository interface {
	WeeklyEvents(ctx context.Context, groupID string, start, end time.Time) ([]models.WeeklyEventRow, error)
}

type reportGroupRepository interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
}

type reportTraineeRepository interface {
	ListByGroup(ctx context.Context, groupID string) ([]models.TraineeDetail, error)
}

type reportJobRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkFinished(ctx context.Context, id, resultURL string, at time.Time) error
	MarkFailed(ctx context.Context, id, message string, at time.Time) error
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ReportService builds the weekly Mon-Sat absence grid and runs
// asynchronous CSV/PDF exports with signed download links.
type ReportService struct {
	events   reportEventRepository
	groups   reportGroupRepository
	trainees reportTraineeRepository
	jobsRepo reportJobRepository
	cache    reportCache

	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	storage *storage.LocalStorage
	signer  *storage.SignedURLSigner
	queue   *jobs.Queue

	cfg    config.ReportsConfig
	logger *zap.Logger
}

// NewReportService constructs a ReportService. Call SetQueue before
// enqueuing exports; the queue handler is the service's RunExportJob.
func NewReportService(
	events reportEventRepository,
	groups reportGroupRepository,
	trainees reportTraineeRepository,
	jobsRepo reportJobRepository,
	cache reportCache,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	cfg config.ReportsConfig,
	logger *zap.Logger,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		events:   events,
		groups:   groups,
		trainees: trainees,
		jobsRepo: jobsRepo,
		cache:    cache,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		storage:  store,
		signer:   signer,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetQueue attaches the worker queue used for export jobs.
func (s *ReportService) SetQueue(queue *jobs.Queue) {
	s.queue = queue
}

// WeekRange snaps any date to its Monday-to-Saturday training week.
func WeekRange(anchor time.Time) (time.Time, time.Time) {
	anchor = anchor.Truncate(24 * time.Hour)
	offset := int(anchor.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset = 6
	}
	start := anchor.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 5)
}

// Weekly assembles the weekly absence grid for a group. Every trainee
// of the group gets a row even with no recorded event. The grid is
// cached per group and week start.
func (s *ReportService) Weekly(ctx context.Context, groupID, week string) (*models.WeeklyReport, error) {
	anchor := time.Now().UTC()
	if week != "" {
		parsed, err := time.Parse("2006-01-02", week)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid week date")
		}
		anchor = parsed
	}
	start, end := WeekRange(anchor)

	cacheKey := fmt.Sprintf("report:%s:%s", groupID, start.Format("2006-01-02"))
	if s.cache != nil {
		var cached models.WeeklyReport
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch group")
	}

	roster, err := s.trainees.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list trainees")
	}

	rows, err := s.events.WeeklyEvents(ctx, groupID, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly events")
	}

	index := make(map[string]*models.WeeklyReportRow, len(roster))
	report := &models.WeeklyReport{
		GroupID:   groupID,
		GroupName: group.Name,
		StartDate: start,
		EndDate:   end,
		Rows:      make([]models.WeeklyReportRow, 0, len(roster)),
	}
	for _, trainee := range roster {
		report.Rows = append(report.Rows, models.WeeklyReportRow{
			TraineeID: trainee.ID,
			LastName:  trainee.LastName,
			FirstName: trainee.FirstName,
			Days:      map[string]models.WeeklyReportCell{},
		})
		index[trainee.ID] = &report.Rows[len(report.Rows)-1]
	}

	for _, ev := range rows {
		row, ok := index[ev.TraineeID]
		if !ok {
			continue
		}
		label, ok := dayLabel(ev.Date)
		if !ok {
			continue
		}
		cell := row.Days[label]
		cell.AbsenceHours += ev.AbsenceHours
		cell.IsJustified = ev.IsJustified
		if severity(ev.Status) > severity(cell.Status) {
			cell.Status = ev.Status
		}
		row.Days[label] = cell
		row.TotalHours += ev.AbsenceHours
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, report, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache weekly report", zap.Error(err))
		}
	}
	return report, nil
}

// Export queues an asynchronous weekly-sheet export and returns the job
// handle immediately.
func (s *ReportService) Export(ctx context.Context, groupID string, req dto.ExportReportRequest, createdBy string) (*dto.ExportReportResponse, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export queue is not running")
	}
	if _, err := s.groups.FindByID(ctx, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch group")
	}

	anchor := time.Now().UTC()
	if req.Week != "" {
		parsed, err := time.Parse("2006-01-02", req.Week)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid week date")
		}
		anchor = parsed
	}
	start, end := WeekRange(anchor)

	job := &models.ReportJob{
		ID: uuid.NewString(),
		Params: models.ReportJobParams{
			GroupID:   groupID,
			StartDate: start.Format("2006-01-02"),
			EndDate:   end.Format("2006-01-02"),
			Format:    req.Format,
		},
		Status:    models.ReportStatusQueued,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.jobsRepo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if err := s.queue.Enqueue(jobs.Job{
		ID:       job.ID,
		Type:     "weekly_export",
		Payload:  job.Params,
		Enqueued: time.Now().UTC(),
	}); err != nil {
		now := time.Now().UTC()
		if markErr := s.jobsRepo.MarkFailed(ctx, job.ID, "queue is full", now); markErr != nil {
			s.logger.Error("failed to mark export job failed", zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue export job")
	}

	return &dto.ExportReportResponse{JobID: job.ID, Status: models.ReportStatusQueued}, nil
}

// JobStatus returns the current state of an export job.
func (s *ReportService) JobStatus(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.jobsRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch export job")
	}
	return job, nil
}

// RunExportJob is the queue handler: it renders the weekly sheet,
// persists the file and signs a download link. A returned error makes
// the queue retry; the job row is marked failed on the last attempt.
func (s *ReportService) RunExportJob(ctx context.Context, job jobs.Job) error {
	params, ok := job.Payload.(models.ReportJobParams)
	if !ok {
		s.fail(ctx, job.ID, "invalid job payload")
		return nil
	}

	if err := s.jobsRepo.MarkProcessing(ctx, job.ID); err != nil {
		s.logger.Warn("failed to mark export job processing", zap.String("job_id", job.ID), zap.Error(err))
	}

	report, err := s.Weekly(ctx, params.GroupID, params.StartDate)
	if err != nil {
		return s.retryOrFail(ctx, job, "failed to build weekly report", err)
	}

	data := s.dataset(report)
	var payload []byte
	var filename string
	switch params.Format {
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(data)
		filename = fmt.Sprintf("weekly_%s_%s.pdf", report.GroupName, params.StartDate)
	default:
		payload, err = s.csv.Render(data)
		filename = fmt.Sprintf("weekly_%s_%s.csv", report.GroupName, params.StartDate)
	}
	if err != nil {
		return s.retryOrFail(ctx, job, "failed to render export", err)
	}

	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return s.retryOrFail(ctx, job, "failed to persist export", err)
	}

	token, _, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return s.retryOrFail(ctx, job, "failed to sign download link", err)
	}

	resultURL := "/api/v1/reports/download/" + token
	if err := s.jobsRepo.MarkFinished(ctx, job.ID, resultURL, time.Now().UTC()); err != nil {
		return s.retryOrFail(ctx, job, "failed to finish export job", err)
	}

	s.logger.Info("weekly export finished",
		zap.String("job_id", job.ID),
		zap.String("group_id", params.GroupID),
		zap.String("format", string(params.Format)))
	return nil
}

// Download resolves a signed token to the stored export file.
func (s *ReportService) Download(ctx context.Context, token string) (*os.File, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download link")
	}

	job, err := s.JobStatus(ctx, jobID)
	if err != nil {
		return nil, "", err
	}
	if job.Status != models.ReportStatusFinished {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export is not ready")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	return file, relPath, nil
}

// StartCleanup periodically removes expired export files. It blocks
// until the context is cancelled.
func (s *ReportService) StartCleanup(ctx context.Context) {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.storage.CleanupOlderThan(s.cfg.SignedURLTTL)
			if err != nil {
				s.logger.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}

func (s *ReportService) retryOrFail(ctx context.Context, job jobs.Job, message string, err error) error {
	if job.Attempt >= s.cfg.WorkerRetries {
		s.fail(ctx, job.ID, message)
	}
	return fmt.Errorf("%s: %w", message, err)
}

func (s *ReportService) fail(ctx context.Context, jobID, message string) {
	if err := s.jobsRepo.MarkFailed(ctx, jobID, message, time.Now().UTC()); err != nil {
		s.logger.Error("failed to mark export job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// dataset flattens the weekly grid into an exportable table.
func (s *ReportService) dataset(report *models.WeeklyReport) export.Dataset {
	headers := append([]string{"Stagiaire", "CEF"}, dayLabels...)
	headers = append(headers, "Total (h)")

	rows := make([]map[string]string, 0, len(report.Rows))
	for _, row := range report.Rows {
		line := map[string]string{
			"Stagiaire": row.LastName + " " + row.FirstName,
			"CEF":       row.TraineeID,
			"Total (h)": fmt.Sprintf("%.1f", row.TotalHours),
		}
		for _, label := range dayLabels {
			line[label] = renderCell(row.Days[label])
		}
		rows = append(rows, line)
	}

	return export.Dataset{
		Title: fmt.Sprintf("Feuille d'absences - %s", report.GroupName),
		Subtitle: fmt.Sprintf("Semaine du %s au %s",
			report.StartDate.Format("02/01/2006"), report.EndDate.Format("02/01/2006")),
		Headers: headers,
		Rows:    rows,
	}
}

func renderCell(cell models.WeeklyReportCell) string {
	switch cell.Status {
	case models.StatusAbsent:
		if cell.IsJustified {
			return "AJ"
		}
		return fmt.Sprintf("A %.1fh", cell.AbsenceHours)
	case models.StatusLate:
		return "R"
	case models.StatusPresent:
		return "P"
	default:
		return ""
	}
}

func dayLabel(date time.Time) (string, bool) {
	switch date.Weekday() {
	case time.Monday:
		return "Lundi", true
	case time.Tuesday:
		return "Mardi", true
	case time.Wednesday:
		return "Mercredi", true
	case time.Thursday:
		return "Jeudi", true
	case time.Friday:
		return "Vendredi", true
	case time.Saturday:
		return "Samedi", true
	default:
		return "", false
	}
}

func severity(status models.AttendanceStatus) int {
	switch status {
	case models.StatusAbsent:
		return 3
	case models.StatusLate:
		return 2
	case models.StatusPresent:
		return 1
	default:
		return 0
	}
}
