package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/oferp-dev/sg-attendance-api/internal/models"
	"github.com/oferp-dev/sg-attendance-api/internal/scoring"
	appErrors "github.com/oferp-dev/sg-attendance-api/pkg/errors"
)

type disciplineEventRepository interface {
	EventsForTrainee(ctx context.Context, traineeID string, from, to *time.Time) ([]models.AttendanceEvent, error)
}

type traineeFinder interface {
	FindByID(ctx context.Context, id string) (*models.TraineeDetail, error)
}

type assessmentCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DisciplineService computes disciplinary assessments from a trainee's
// attendance history.
type DisciplineService struct {
	events     disciplineEventRepository
	trainees   traineeFinder
	cache      assessmentCache
	aggregator *scoring.Aggregator
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewDisciplineService constructs a DisciplineService.
func NewDisciplineService(events disciplineEventRepository, trainees traineeFinder, cache assessmentCache, aggregator *scoring.Aggregator, cacheTTL time.Duration, logger *zap.Logger) *DisciplineService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if aggregator == nil {
		aggregator = scoring.New(scoring.DefaultPolicy())
	}
	return &DisciplineService{events: events, trainees: trainees, cache: cache, aggregator: aggregator, cacheTTL: cacheTTL, logger: logger}
}

// Assess returns the trainee's cumulative hours, disciplinary note and
// sanction tier. Full-history assessments are cached; date-bounded ones
// always recompute.
func (s *DisciplineService) Assess(ctx context.Context, traineeID string, from, to *time.Time) (*models.DisciplinaryAssessment, error) {
	if _, err := s.trainees.FindByID(ctx, traineeID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "trainee not found")
	}

	cacheable := from == nil && to == nil && s.cache != nil
	cacheKey := "discipline:" + traineeID
	if cacheable {
		var cached models.DisciplinaryAssessment
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	events, err := s.events.EventsForTrainee(ctx, traineeID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance events")
	}

	assessment := s.aggregator.Assess(traineeID, events)

	if cacheable {
		if err := s.cache.Set(ctx, cacheKey, assessment, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache assessment", zap.String("trainee_id", traineeID), zap.Error(err))
		}
	}
	return &assessment, nil
}
