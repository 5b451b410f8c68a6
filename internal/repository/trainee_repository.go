package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/oferp-dev/sg-attendance-api/internal/models"
)

// TraineeRepository handles persistence for trainees. Trainee ids are
// CEF codes supplied by the caller, never generated here.
type TraineeRepository struct {
	db *sqlx.DB
}

// NewTraineeRepository constructs the repository.
func NewTraineeRepository(db *sqlx.DB) *TraineeRepository {
	return &TraineeRepository{db: db}
}

// List returns trainees matching the filter with group context.
func (r *TraineeRepository) List(ctx context.Context, filter models.TraineeFilter) ([]models.TraineeDetail, int, error) {
	base := `FROM trainees t LEFT JOIN groups g ON g.id = t.group_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.GroupID != "" {
		where = append(where, fmt.Sprintf("t.group_id = $%d", len(args)+1))
		args = append(args, filter.GroupID)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(t.last_name ILIKE $%d OR t.first_name ILIKE $%d OR t.id ILIKE $%d)",
			len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"last_name":  "t.last_name",
		"first_name": "t.first_name",
		"created_at": "t.created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "t.last_name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT t.id, t.last_name, t.first_name, t.group_id, t.phone, t.created_at, t.updated_at,
        g.name AS group_name
        %s WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var rows []models.TraineeDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list trainees: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count trainees: %w", err)
	}
	return rows, total, nil
}

// ListByGroup returns the full roster of a group, unpaginated. Report
// assembly needs every trainee regardless of group size.
func (r *TraineeRepository) ListByGroup(ctx context.Context, groupID string) ([]models.TraineeDetail, error) {
	query := `SELECT t.id, t.last_name, t.first_name, t.group_id, t.phone, t.created_at, t.updated_at,
        g.name AS group_name
        FROM trainees t LEFT JOIN groups g ON g.id = t.group_id
        WHERE t.group_id = $1
        ORDER BY t.last_name ASC, t.first_name ASC`
	var rows []models.TraineeDetail
	if err := r.db.SelectContext(ctx, &rows, query, groupID); err != nil {
		return nil, fmt.Errorf("list group roster: %w", err)
	}
	return rows, nil
}

// FindByID loads a trainee with group context.
func (r *TraineeRepository) FindByID(ctx context.Context, id string) (*models.TraineeDetail, error) {
	var trainee models.TraineeDetail
	query := `SELECT t.id, t.last_name, t.first_name, t.group_id, t.phone, t.created_at, t.updated_at,
        g.name AS group_name
        FROM trainees t LEFT JOIN groups g ON g.id = t.group_id WHERE t.id = $1`
	if err := r.db.GetContext(ctx, &trainee, query, id); err != nil {
		return nil, err
	}
	return &trainee, nil
}

// Create inserts a new trainee.
func (r *TraineeRepository) Create(ctx context.Context, trainee *models.Trainee) error {
	now := time.Now().UTC()
	trainee.CreatedAt = now
	trainee.UpdatedAt = now
	query := `INSERT INTO trainees (id, last_name, first_name, group_id, phone, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query, trainee.ID, trainee.LastName, trainee.FirstName, trainee.GroupID, trainee.Phone, trainee.CreatedAt, trainee.UpdatedAt); err != nil {
		return fmt.Errorf("create trainee: %w", err)
	}
	return nil
}

// Update persists changes to an existing trainee.
func (r *TraineeRepository) Update(ctx context.Context, trainee *models.Trainee) error {
	trainee.UpdatedAt = time.Now().UTC()
	query := `UPDATE trainees SET last_name = $2, first_name = $3, group_id = $4, phone = $5, updated_at = $6 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, trainee.ID, trainee.LastName, trainee.FirstName, trainee.GroupID, trainee.Phone, trainee.UpdatedAt); err != nil {
		return fmt.Errorf("update trainee: %w", err)
	}
	return nil
}

// Upsert inserts a trainee or, when the CEF code already exists,
// refreshes its identity fields. Imports rely on last-one-wins.
func (r *TraineeRepository) Upsert(ctx context.Context, trainee *models.Trainee) error {
	now := time.Now().UTC()
	if trainee.CreatedAt.IsZero() {
		trainee.CreatedAt = now
	}
	trainee.UpdatedAt = now
	query := `INSERT INTO trainees (id, last_name, first_name, group_id, phone, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id)
DO UPDATE SET last_name = EXCLUDED.last_name, first_name = EXCLUDED.first_name,
	group_id = EXCLUDED.group_id, phone = EXCLUDED.phone, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, trainee.ID, trainee.LastName, trainee.FirstName, trainee.GroupID, trainee.Phone, trainee.CreatedAt, trainee.UpdatedAt); err != nil {
		return fmt.Errorf("upsert trainee: %w", err)
	}
	return nil
}

// Delete removes a trainee; their attendance events cascade.
func (r *TraineeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM trainees WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete trainee: %w", err)
	}
	return nil
}
