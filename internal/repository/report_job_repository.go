package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/oferp-dev/sg-attendance-api/internal/models"
)

// ReportJobRepository persists weekly-sheet export jobs.
type ReportJobRepository struct {
	db *sqlx.DB
}

// NewReportJobRepository constructs the repository.
func NewReportJobRepository(db *sqlx.DB) *ReportJobRepository {
	return &ReportJobRepository{db: db}
}

// Create inserts a queued job.
func (r *ReportJobRepository) Create(ctx context.Context, job *models.ReportJob) error {
	query := `INSERT INTO report_jobs (id, params, status, created_by, created_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, job.ID, job.Params, job.Status, job.CreatedBy, job.CreatedAt); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID loads a job by primary key.
func (r *ReportJobRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	var job models.ReportJob
	query := `SELECT id, params, status, result_url, created_by, created_at, finished_at, error_message
FROM report_jobs WHERE id = $1`
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkProcessing transitions a job into the processing state.
func (r *ReportJobRepository) MarkProcessing(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE report_jobs SET status = $2 WHERE id = $1`, id, models.ReportStatusProcessing); err != nil {
		return fmt.Errorf("mark report job processing: %w", err)
	}
	return nil
}

// MarkFinished records the signed result URL of a completed job.
func (r *ReportJobRepository) MarkFinished(ctx context.Context, id, resultURL string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE report_jobs SET status = $2, result_url = $3, finished_at = $4 WHERE id = $1`,
		id, models.ReportStatusFinished, resultURL, at); err != nil {
		return fmt.Errorf("mark report job finished: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure.
func (r *ReportJobRepository) MarkFailed(ctx context.Context, id, message string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE report_jobs SET status = $2, error_message = $3, finished_at = $4 WHERE id = $1`,
		id, models.ReportStatusFailed, message, at); err != nil {
		return fmt.Errorf("mark report job failed: %w", err)
	}
	return nil
}
