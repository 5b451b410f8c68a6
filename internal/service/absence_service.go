package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oferp-dev/sg-attendance-api/internal/dto"
	"github.com/oferp-dev/sg-attendance-api/internal/models"
	"github.com/oferp-dev/sg-attendance-api/internal/scoring"
	appErrors "github.com/oferp-dev/sg-attendance-api/pkg/errors"
)

type absenceRepository interface {
	ListRecords(ctx context.Context, filter models.AbsenceRecordFilter) ([]models.AbsenceRecordDetail, int, error)
	FindRecordByID(ctx context.Context, id string) (*models.AbsenceRecordDetail, error)
	StudentsForRecord(ctx context.Context, recordID string) ([]models.TraineeAbsenceDetail, error)
	CreateRecord(ctx context.Context, record *models.AbsenceRecord, events []models.TraineeAbsence) error
	UpdateRecord(ctx context.Context, record *models.AbsenceRecord) error
	DeleteRecord(ctx context.Context, id string) error
	FindEventByID(ctx context.Context, id string) (*models.TraineeAbsenceWithWindow, error)
	FindEventByRecordAndTrainee(ctx context.Context, recordID, traineeID string) (*models.TraineeAbsenceWithWindow, error)
	UpdateEvent(ctx context.Context, event *models.TraineeAbsence, expectedVersion int) (bool, error)
	MarkValidated(ctx context.Context, id, validatedBy string, at time.Time) error
	MarkJustified(ctx context.Context, id string, comment *string) error
}

type cacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AbsenceService records sessions and manages per-trainee attendance
// events, including justification, validation and concurrent edits.
type AbsenceService struct {
	repo       absenceRepository
	cache      cacheInvalidator
	aggregator *scoring.Aggregator
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewAbsenceService constructs an AbsenceService.
func NewAbsenceService(repo absenceRepository, cache cacheInvalidator, aggregator *scoring.Aggregator, validate *validator.Validate, logger *zap.Logger) *AbsenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if aggregator == nil {
		aggregator = scoring.New(scoring.DefaultPolicy())
	}
	return &AbsenceService{repo: repo, cache: cache, aggregator: aggregator, validator: validate, logger: logger}
}

// List returns absence records matching the filter.
func (s *AbsenceService) List(ctx context.Context, filter models.AbsenceRecordFilter) ([]models.AbsenceRecordDetail, *models.Pagination, error) {
	records, total, err := s.repo.ListRecords(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list absence records")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 50
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one absence record with its per-trainee events.
func (s *AbsenceService) Get(ctx context.Context, id string) (*models.AbsenceRecordDetail, error) {
	record, err := s.repo.FindRecordByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "absence record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch absence record")
	}
	return record, nil
}

// Create opens an attendance sheet for a session and prices each
// unjustified absence against the session window.
func (s *AbsenceService) Create(ctx context.Context, req dto.CreateAbsenceRecordRequest) (*models.AbsenceRecordDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid absence payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date")
	}

	now := time.Now().UTC()
	record := &models.AbsenceRecord{
		ID:        uuid.NewString(),
		Date:      date,
		GroupID:   req.GroupID,
		TeacherID: req.TeacherID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		CreatedAt: now,
		UpdatedAt: now,
	}

	events := make([]models.TraineeAbsence, 0, len(req.Students))
	seen := map[string]bool{}
	for _, student := range req.Students {
		if seen[student.TraineeID] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate trainee in session")
		}
		seen[student.TraineeID] = true

		var hours float64
		if student.Status == models.StatusAbsent {
			hours = s.aggregator.SessionHours(req.StartTime, req.EndTime)
		}
		events = append(events, models.TraineeAbsence{
			ID:              uuid.NewString(),
			AbsenceRecordID: record.ID,
			TraineeID:       student.TraineeID,
			Status:          student.Status,
			AbsenceHours:    hours,
			Version:         1,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	if err := s.repo.CreateRecord(ctx, record, events); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create absence record")
	}
	s.invalidateDerived(ctx, record.GroupID)

	return s.Get(ctx, record.ID)
}

// Update edits session metadata and re-prices unjustified absences when
// the window changed.
func (s *AbsenceService) Update(ctx context.Context, id string, req dto.UpdateAbsenceRecordRequest) (*models.AbsenceRecordDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid absence payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date")
	}

	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	windowChanged := !equalWindow(detail.StartTime, req.StartTime) || !equalWindow(detail.EndTime, req.EndTime)

	record := detail.AbsenceRecord
	record.Date = date
	record.TeacherID = req.TeacherID
	record.StartTime = req.StartTime
	record.EndTime = req.EndTime
	record.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateRecord(ctx, &record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update absence record")
	}

	if windowChanged {
		for i := range detail.Students {
			event := detail.Students[i].TraineeAbsence
			if event.Status != models.StatusAbsent || event.IsJustified {
				continue
			}
			event.AbsenceHours = s.aggregator.SessionHours(req.StartTime, req.EndTime)
			if _, err := s.repo.UpdateEvent(ctx, &event, event.Version); err != nil {
				s.logger.Warn("failed to re-price event after window change",
					zap.String("event_id", event.ID), zap.Error(err))
			}
		}
	}

	s.invalidateDerived(ctx, record.GroupID)
	return s.Get(ctx, id)
}

// Delete removes a session record and its events.
func (s *AbsenceService) Delete(ctx context.Context, id string) error {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRecord(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete absence record")
	}
	s.invalidateDerived(ctx, detail.GroupID)
	return nil
}

// PatchEvent applies a partial edit to one trainee's event inside a
// record. The caller-supplied version must match the stored stamp;
// concurrent edits lose with a precondition failure. The first status
// edit freezes the original classification.
func (s *AbsenceService) PatchEvent(ctx context.Context, recordID, traineeID string, req dto.PatchEventRequest, editorID string) (*models.TraineeAbsence, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid patch payload")
	}

	current, err := s.repo.FindEventByRecordAndTrainee(ctx, recordID, traineeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch attendance event")
	}

	event := current.TraineeAbsence
	if req.Status != nil && *req.Status != event.Status {
		if event.OriginalStatus == nil {
			original := event.Status
			event.OriginalStatus = &original
		}
		event.Status = *req.Status
	}
	if req.IsJustified != nil {
		if *req.IsJustified && event.Status != models.StatusAbsent {
			return nil, appErrors.Clone(appErrors.ErrNotAbsence, "only absences can be justified")
		}
		event.IsJustified = *req.IsJustified
	}
	if req.JustificationComment != nil {
		event.JustificationComment = req.JustificationComment
	}
	if req.HasEntrySlip != nil {
		event.HasEntrySlip = *req.HasEntrySlip
	}
	if event.Status != models.StatusAbsent {
		// Justification only applies to absences.
		event.IsJustified = false
	}

	if event.Status == models.StatusAbsent && !event.IsJustified {
		event.AbsenceHours = s.aggregator.SessionHours(current.StartTime, current.EndTime)
	} else {
		event.AbsenceHours = 0
	}

	now := time.Now().UTC()
	event.EditedBy = &editorID
	event.EditedAt = &now
	event.UpdatedAt = now

	updated, err := s.repo.UpdateEvent(ctx, &event, req.Version)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance event")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrStaleVersion, "attendance event was modified by another user")
	}

	s.invalidateDerivedForTrainee(ctx, traineeID)
	refreshed, err := s.repo.FindEventByID(ctx, event.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch attendance event")
	}
	return &refreshed.TraineeAbsence, nil
}

// BulkValidate marks a set of events as validated by a supervisor. The
// call reports per-item failures instead of aborting the batch.
func (s *AbsenceService) BulkValidate(ctx context.Context, req dto.BulkEventIDsRequest, validatedBy string) (*dto.BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}

	result := &dto.BulkResult{}
	now := time.Now().UTC()
	for _, id := range req.IDs {
		if _, err := s.repo.FindEventByID(ctx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				result.Errors = append(result.Errors, models.BulkItemError{ID: id, Error: "attendance event not found"})
				continue
			}
			result.Errors = append(result.Errors, models.BulkItemError{ID: id, Error: "failed to fetch attendance event"})
			continue
		}
		if err := s.repo.MarkValidated(ctx, id, validatedBy, now); err != nil {
			result.Errors = append(result.Errors, models.BulkItemError{ID: id, Error: "failed to validate"})
			continue
		}
		result.Updated++
	}

	if result.Updated > 0 {
		s.invalidateDerived(ctx, "")
	}
	return result, nil
}

// BulkJustify justifies a set of absence events, zeroing their hours.
// Events whose status is not absent are rejected individually.
func (s *AbsenceService) BulkJustify(ctx context.Context, req dto.BulkJustifyRequest) (*dto.BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}

	result := &dto.BulkResult{}
	for _, id := range req.IDs {
		event, err := s.repo.FindEventByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				result.Errors = append(result.Errors, models.BulkItemError{ID: id, Error: "attendance event not found"})
				continue
			}
			result.Errors = append(result.Errors, models.BulkItemError{ID: id, Error: "failed to fetch attendance event"})
			continue
		}
		if event.Status != models.StatusAbsent {
			result.Errors = append(result.Errors, models.BulkItemError{ID: id, Error: appErrors.ErrNotAbsence.Message})
			continue
		}
		if err := s.repo.MarkJustified(ctx, id, req.Comment); err != nil {
			result.Errors = append(result.Errors, models.BulkItemError{ID: id, Error: "failed to justify"})
			continue
		}
		result.Updated++
	}

	if result.Updated > 0 {
		s.invalidateDerived(ctx, "")
	}
	return result, nil
}

// invalidateDerived drops cached weekly reports and disciplinary
// assessments after a mutation. Cache errors are logged, not returned.
func (s *AbsenceService) invalidateDerived(ctx context.Context, groupID string) {
	if s.cache == nil {
		return
	}
	pattern := "report:*"
	if groupID != "" {
		pattern = "report:" + groupID + ":*"
	}
	if err := s.cache.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("failed to invalidate report cache", zap.Error(err))
	}
	if err := s.cache.DeleteByPattern(ctx, "discipline:*"); err != nil {
		s.logger.Warn("failed to invalidate discipline cache", zap.Error(err))
	}
}

func (s *AbsenceService) invalidateDerivedForTrainee(ctx context.Context, traineeID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "discipline:"+traineeID); err != nil {
		s.logger.Warn("failed to invalidate discipline cache", zap.Error(err))
	}
	if err := s.cache.DeleteByPattern(ctx, "report:*"); err != nil {
		s.logger.Warn("failed to invalidate report cache", zap.Error(err))
	}
}

func equalWindow(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
