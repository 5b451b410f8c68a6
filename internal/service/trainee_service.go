package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oferp-dev/sg-attendance-api/internal/dto"
	"github.com/oferp-dev/sg-attendance-api/internal/models"
	"github.com/oferp-dev/sg-attendance-api/internal/roster"
	"github.com/oferp-dev/sg-attendance-api/pkg/config"
	appErrors "github.com/oferp-dev/sg-attendance-api/pkg/errors"
)

type traineeRepository interface {
	List(ctx context.Context, filter models.TraineeFilter) ([]models.TraineeDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.TraineeDetail, error)
	Create(ctx context.Context, trainee *models.Trainee) error
	Update(ctx context.Context, trainee *models.Trainee) error
	Upsert(ctx context.Context, trainee *models.Trainee) error
	Delete(ctx context.Context, id string) error
}

type traineeGroupRepository interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
	FindByName(ctx context.Context, name string) (*models.Group, error)
	Create(ctx context.Context, group *models.Group) error
}

// TraineeService manages trainees and roster imports.
type TraineeService struct {
	repo      traineeRepository
	groups    traineeGroupRepository
	validator *validator.Validate
	logger    *zap.Logger
	importCfg config.ImportConfig
}

// NewTraineeService constructs a TraineeService.
func NewTraineeService(repo traineeRepository, groups traineeGroupRepository, validate *validator.Validate, logger *zap.Logger, importCfg config.ImportConfig) *TraineeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TraineeService{repo: repo, groups: groups, validator: validate, logger: logger, importCfg: importCfg}
}

// List returns trainees matching the filter.
func (s *TraineeService) List(ctx context.Context, filter models.TraineeFilter) ([]models.TraineeDetail, *models.Pagination, error) {
	trainees, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list trainees")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 50
	}
	return trainees, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a trainee by id (CEF code).
func (s *TraineeService) Get(ctx context.Context, id string) (*models.TraineeDetail, error) {
	trainee, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "trainee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch trainee")
	}
	return trainee, nil
}

// Create registers a trainee in an existing group.
func (s *TraineeService) Create(ctx context.Context, req dto.CreateTraineeRequest) (*models.Trainee, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trainee payload")
	}
	if _, err := s.groups.FindByID(ctx, req.GroupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch group")
	}

	now := time.Now().UTC()
	trainee := &models.Trainee{
		ID:        strings.TrimSpace(req.ID),
		LastName:  req.LastName,
		FirstName: req.FirstName,
		GroupID:   req.GroupID,
		Phone:     req.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, trainee); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create trainee")
	}
	return trainee, nil
}

// Update edits a trainee.
func (s *TraineeService) Update(ctx context.Context, id string, req dto.UpdateTraineeRequest) (*models.Trainee, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trainee payload")
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	trainee := detail.Trainee
	trainee.LastName = req.LastName
	trainee.FirstName = req.FirstName
	trainee.GroupID = req.GroupID
	trainee.Phone = req.Phone
	trainee.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, &trainee); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update trainee")
	}
	return &trainee, nil
}

// Delete removes a trainee and, by cascade, its attendance events.
func (s *TraineeService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete trainee")
	}
	return nil
}

// ImportRoster ingests a raw delimited roster export. The first row is
// treated as a header; column roles are resolved by synonym matching
// with positional and content-based fallbacks. Rows import
// independently: a failing row lands in the response errors without
// aborting the rest, and re-importing an existing id overwrites it.
func (s *TraineeService) ImportRoster(ctx context.Context, req dto.ImportRosterRequest) (*dto.ImportRosterResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import payload")
	}

	rows := roster.SplitRows(req.Content)
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "roster file is empty")
	}
	if s.importCfg.MaxRows > 0 && len(rows) > s.importCfg.MaxRows {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("roster exceeds the %d row limit", s.importCfg.MaxRows))
	}

	startRow := req.StartRow
	if startRow < 1 {
		startRow = 1
	}
	if startRow >= len(rows) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_row is beyond the end of the file")
	}

	sample := rows[0]
	if len(rows) > startRow {
		sample = rows[startRow]
	}
	mapping, err := roster.Resolve(rows[startRow-1], sample)
	if err != nil {
		var unresolvable *roster.UnresolvableSchemeError
		if errors.As(err, &unresolvable) {
			return nil, appErrors.Clone(appErrors.ErrUnresolvableScheme,
				fmt.Sprintf("could not locate identity columns, headers: [%s]", strings.Join(unresolvable.Headers, ", ")))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve roster scheme")
	}

	var fixedGroupID string
	if req.GroupID != nil {
		group, gerr := s.groups.FindByID(ctx, *req.GroupID)
		if gerr != nil {
			if errors.Is(gerr, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "target group not found")
			}
			return nil, appErrors.Wrap(gerr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch group")
		}
		fixedGroupID = group.ID
	}

	lines := roster.BuildTrainees(rows, mapping, startRow)

	resp := &dto.ImportRosterResponse{
		Mapping: map[string]int{
			"id":         mapping.ID,
			"last_name":  mapping.LastName,
			"first_name": mapping.FirstName,
			"group":      mapping.Group,
			"phone":      mapping.Phone,
		},
	}

	groupIDs := map[string]string{}
	now := time.Now().UTC()
	for _, line := range lines {
		groupID := fixedGroupID
		if groupID == "" {
			groupID, err = s.resolveGroup(ctx, line.GroupName, groupIDs, resp)
			if err != nil {
				resp.Skipped++
				resp.Errors = append(resp.Errors, dto.ImportRowError{Row: line.SourceRow, Error: err.Error()})
				continue
			}
		}

		var phone *string
		if line.Phone != "" {
			p := line.Phone
			phone = &p
		}
		trainee := &models.Trainee{
			ID:        line.ID,
			LastName:  line.LastName,
			FirstName: line.FirstName,
			GroupID:   groupID,
			Phone:     phone,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Upsert(ctx, trainee); err != nil {
			resp.Skipped++
			resp.Errors = append(resp.Errors, dto.ImportRowError{Row: line.SourceRow, Error: "failed to save trainee"})
			s.logger.Warn("roster row import failed", zap.String("trainee_id", line.ID), zap.Error(err))
			continue
		}
		if strings.HasPrefix(line.ID, "GEN") {
			if resp.Generated == nil {
				resp.Generated = map[string]string{}
			}
			resp.Generated[line.ID] = strings.TrimSpace(line.LastName + " " + line.FirstName)
		}
		resp.Imported++
	}

	s.logger.Info("roster imported",
		zap.Int("imported", resp.Imported),
		zap.Int("skipped", resp.Skipped),
		zap.Int("groups_created", len(resp.CreatedGroups)))
	return resp, nil
}

// resolveGroup maps a roster group label to a stored group, creating it
// on first sight. Labels are cached per import run.
func (s *TraineeService) resolveGroup(ctx context.Context, name string, seen map[string]string, resp *dto.ImportRosterResponse) (string, error) {
	if name == "" {
		if s.importCfg.DefaultGroupID != "" {
			return s.importCfg.DefaultGroupID, nil
		}
		return "", errors.New("row has no group and no target group was provided")
	}
	if id, ok := seen[name]; ok {
		return id, nil
	}

	group, err := s.groups.FindByName(ctx, name)
	if err == nil {
		seen[name] = group.ID
		return group.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", errors.New("failed to resolve group")
	}

	now := time.Now().UTC()
	created := &models.Group{
		ID:        uuid.NewString(),
		Name:      name,
		Field:     name,
		Year:      now.Year(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.groups.Create(ctx, created); err != nil {
		return "", errors.New("failed to create group")
	}
	seen[name] = created.ID
	resp.CreatedGroups = append(resp.CreatedGroups, name)
	return created.ID, nil
}
