package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/oferp-dev/sg-attendance-api/internal/models"
)

// AbsenceRepository handles persistence for absence records and the
// per-trainee attendance events they own.
type AbsenceRepository struct {
	db *sqlx.DB
}

// NewAbsenceRepository constructs the repository.
func NewAbsenceRepository(db *sqlx.DB) *AbsenceRepository {
	return &AbsenceRepository{db: db}
}

// ListRecords returns absence records matching the filter, without
// their nested student rows.
func (r *AbsenceRepository) ListRecords(ctx context.Context, filter models.AbsenceRecordFilter) ([]models.AbsenceRecordDetail, int, error) {
	base := `FROM absence_records ar
JOIN groups g ON g.id = ar.group_id
LEFT JOIN teachers te ON te.id = ar.teacher_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.GroupID != "" {
		where = append(where, fmt.Sprintf("ar.group_id = $%d", len(args)+1))
		args = append(args, filter.GroupID)
	}
	if filter.Date != nil {
		where = append(where, fmt.Sprintf("ar.date = $%d", len(args)+1))
		args = append(args, *filter.Date)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("ar.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("ar.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"date":       "ar.date",
		"created_at": "ar.created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "ar.date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT ar.id, ar.date, ar.group_id, ar.teacher_id, ar.start_time, ar.end_time, ar.created_at, ar.updated_at,
        g.name AS group_name, te.full_name AS teacher_name
        %s WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var rows []models.AbsenceRecordDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list absence records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count absence records: %w", err)
	}
	return rows, total, nil
}

// FindRecordByID loads one record together with its student rows.
func (r *AbsenceRepository) FindRecordByID(ctx context.Context, id string) (*models.AbsenceRecordDetail, error) {
	var record models.AbsenceRecordDetail
	query := `SELECT ar.id, ar.date, ar.group_id, ar.teacher_id, ar.start_time, ar.end_time, ar.created_at, ar.updated_at,
        g.name AS group_name, te.full_name AS teacher_name
        FROM absence_records ar
        JOIN groups g ON g.id = ar.group_id
        LEFT JOIN teachers te ON te.id = ar.teacher_id
        WHERE ar.id = $1`
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}

	students, err := r.StudentsForRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	record.Students = students
	return &record, nil
}

// StudentsForRecord returns the per-trainee rows of one session.
func (r *AbsenceRepository) StudentsForRecord(ctx context.Context, recordID string) ([]models.TraineeAbsenceDetail, error) {
	query := `SELECT ta.id, ta.absence_record_id, ta.trainee_id, ta.status, ta.is_justified, ta.justification_comment,
        ta.has_entry_slip, ta.is_validated, ta.validated_by, ta.validated_at, ta.edited_by, ta.edited_at,
        ta.original_status, ta.absence_hours, ta.version, ta.created_at, ta.updated_at,
        t.last_name AS trainee_last_name, t.first_name AS trainee_first_name
        FROM trainee_absences ta
        JOIN trainees t ON t.id = ta.trainee_id
        WHERE ta.absence_record_id = $1
        ORDER BY t.last_name, t.first_name`
	var rows []models.TraineeAbsenceDetail
	if err := r.db.SelectContext(ctx, &rows, query, recordID); err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}
	return rows, nil
}

// CreateRecord inserts a session record together with its events in a
// single transaction.
func (r *AbsenceRepository) CreateRecord(ctx context.Context, record *models.AbsenceRecord, events []models.TraineeAbsence) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = now
	record.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create absence record: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	recordQuery := `INSERT INTO absence_records (id, date, group_id, teacher_id, start_time, end_time, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(ctx, recordQuery,
		record.ID, record.Date, record.GroupID, record.TeacherID, record.StartTime, record.EndTime, record.CreatedAt, record.UpdatedAt); err != nil {
		return fmt.Errorf("create absence record: %w", err)
	}

	eventQuery := `INSERT INTO trainee_absences (id, absence_record_id, trainee_id, status, is_justified, justification_comment,
	has_entry_slip, is_validated, absence_hours, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	for i := range events {
		ev := &events[i]
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		ev.AbsenceRecordID = record.ID
		ev.Version = 1
		ev.CreatedAt = now
		ev.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, eventQuery,
			ev.ID, ev.AbsenceRecordID, ev.TraineeID, ev.Status, ev.IsJustified, ev.JustificationComment,
			ev.HasEntrySlip, ev.IsValidated, ev.AbsenceHours, ev.Version, ev.CreatedAt, ev.UpdatedAt); err != nil {
			return fmt.Errorf("create trainee absence for %s: %w", ev.TraineeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create absence record: %w", err)
	}
	committed = true
	return nil
}

// UpdateRecord persists session-level changes.
func (r *AbsenceRepository) UpdateRecord(ctx context.Context, record *models.AbsenceRecord) error {
	record.UpdatedAt = time.Now().UTC()
	query := `UPDATE absence_records SET date = $2, group_id = $3, teacher_id = $4, start_time = $5, end_time = $6, updated_at = $7
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query,
		record.ID, record.Date, record.GroupID, record.TeacherID, record.StartTime, record.EndTime, record.UpdatedAt); err != nil {
		return fmt.Errorf("update absence record: %w", err)
	}
	return nil
}

// DeleteRecord removes a session; its events cascade.
func (r *AbsenceRepository) DeleteRecord(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM absence_records WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete absence record: %w", err)
	}
	return nil
}

// FindEventByID loads one event together with its session window.
func (r *AbsenceRepository) FindEventByID(ctx context.Context, id string) (*models.TraineeAbsenceWithWindow, error) {
	var event models.TraineeAbsenceWithWindow
	query := `SELECT ta.id, ta.absence_record_id, ta.trainee_id, ta.status, ta.is_justified, ta.justification_comment,
        ta.has_entry_slip, ta.is_validated, ta.validated_by, ta.validated_at, ta.edited_by, ta.edited_at,
        ta.original_status, ta.absence_hours, ta.version, ta.created_at, ta.updated_at,
        ar.date, ar.start_time, ar.end_time
        FROM trainee_absences ta
        JOIN absence_records ar ON ar.id = ta.absence_record_id
        WHERE ta.id = $1`
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// FindEventByRecordAndTrainee locates the event of one trainee inside
// one session.
func (r *AbsenceRepository) FindEventByRecordAndTrainee(ctx context.Context, recordID, traineeID string) (*models.TraineeAbsenceWithWindow, error) {
	var event models.TraineeAbsenceWithWindow
	query := `SELECT ta.id, ta.absence_record_id, ta.trainee_id, ta.status, ta.is_justified, ta.justification_comment,
        ta.has_entry_slip, ta.is_validated, ta.validated_by, ta.validated_at, ta.edited_by, ta.edited_at,
        ta.original_status, ta.absence_hours, ta.version, ta.created_at, ta.updated_at,
        ar.date, ar.start_time, ar.end_time
        FROM trainee_absences ta
        JOIN absence_records ar ON ar.id = ta.absence_record_id
        WHERE ta.absence_record_id = $1 AND ta.trainee_id = $2`
	if err := r.db.GetContext(ctx, &event, query, recordID, traineeID); err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateEvent writes the mutable event fields guarded by the version
// stamp. It reports false when no row matched the id/version pair;
// original_status keeps its first value once set.
func (r *AbsenceRepository) UpdateEvent(ctx context.Context, event *models.TraineeAbsence, expectedVersion int) (bool, error) {
	event.UpdatedAt = time.Now().UTC()
	query := `UPDATE trainee_absences SET status = $2, is_justified = $3, justification_comment = $4,
	has_entry_slip = $5, is_validated = $6, validated_by = $7, validated_at = $8,
	edited_by = $9, edited_at = $10, original_status = COALESCE(original_status, $11),
	absence_hours = $12, version = version + 1, updated_at = $13
WHERE id = $1 AND version = $14`
	res, err := r.db.ExecContext(ctx, query,
		event.ID, event.Status, event.IsJustified, event.JustificationComment,
		event.HasEntrySlip, event.IsValidated, event.ValidatedBy, event.ValidatedAt,
		event.EditedBy, event.EditedAt, event.OriginalStatus,
		event.AbsenceHours, event.UpdatedAt, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("update trainee absence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update trainee absence: %w", err)
	}
	return affected > 0, nil
}

// MarkValidated stamps the administrative sign-off on one event.
func (r *AbsenceRepository) MarkValidated(ctx context.Context, id, validatedBy string, at time.Time) error {
	query := `UPDATE trainee_absences SET is_validated = TRUE, validated_by = $2, validated_at = $3,
	version = version + 1, updated_at = $3
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, validatedBy, at); err != nil {
		return fmt.Errorf("validate trainee absence: %w", err)
	}
	return nil
}

// MarkJustified flags an absence as justified and zeroes its hour cost.
func (r *AbsenceRepository) MarkJustified(ctx context.Context, id string, comment *string) error {
	query := `UPDATE trainee_absences SET is_justified = TRUE, justification_comment = COALESCE($2, justification_comment),
	absence_hours = 0, version = version + 1, updated_at = NOW()
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, comment); err != nil {
		return fmt.Errorf("justify trainee absence: %w", err)
	}
	return nil
}

// EventsForTrainee returns the flattened event history of one trainee,
// ordered by session date, optionally bounded by a date range.
func (r *AbsenceRepository) EventsForTrainee(ctx context.Context, traineeID string, from, to *time.Time) ([]models.AttendanceEvent, error) {
	where := []string{"ta.trainee_id = $1"}
	args := []interface{}{traineeID}
	if from != nil {
		where = append(where, fmt.Sprintf("ar.date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		where = append(where, fmt.Sprintf("ar.date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	query := fmt.Sprintf(`SELECT ta.trainee_id, ar.date, ar.start_time, ar.end_time, ta.status, ta.is_justified
        FROM trainee_absences ta
        JOIN absence_records ar ON ar.id = ta.absence_record_id
        WHERE %s
        ORDER BY ar.date ASC`, strings.Join(where, " AND "))

	var events []models.AttendanceEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("list trainee events: %w", err)
	}
	return events, nil
}

// WeeklyEvents returns every event of a group inside the date range,
// joined with trainee identity for the weekly grid.
func (r *AbsenceRepository) WeeklyEvents(ctx context.Context, groupID string, start, end time.Time) ([]models.WeeklyEventRow, error) {
	query := `SELECT ta.trainee_id, t.last_name, t.first_name, ar.date, ta.status, ta.is_justified, ta.absence_hours
        FROM trainee_absences ta
        JOIN absence_records ar ON ar.id = ta.absence_record_id
        JOIN trainees t ON t.id = ta.trainee_id
        WHERE ar.group_id = $1 AND ar.date >= $2 AND ar.date <= $3
        ORDER BY t.last_name, t.first_name, ar.date`
	var rows []models.WeeklyEventRow
	if err := r.db.SelectContext(ctx, &rows, query, groupID, start, end); err != nil {
		return nil, fmt.Errorf("list weekly events: %w", err)
	}
	return rows, nil
}
