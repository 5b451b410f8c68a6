package dto

import "github.com/oferp-dev/sg-attendance-api/internal/models"

// SessionStudent pairs a trainee with the status observed during a session.
type SessionStudent struct {
	TraineeID string                  `json:"trainee_id" validate:"required"`
	Status    models.AttendanceStatus `json:"status" validate:"required,oneof=absent late present"`
}

// CreateAbsenceRecordRequest opens an attendance sheet for one session.
// Date uses the 2006-01-02 layout, times use 15:04. A record with no
// window is priced as a full training day.
type CreateAbsenceRecordRequest struct {
	Date      string           `json:"date" validate:"required,datetime=2006-01-02"`
	GroupID   string           `json:"group_id" validate:"required,uuid4"`
	TeacherID *string          `json:"teacher_id" validate:"omitempty,uuid4"`
	StartTime *string          `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime   *string          `json:"end_time" validate:"omitempty,datetime=15:04"`
	Students  []SessionStudent `json:"students" validate:"required,min=1,dive"`
}

// UpdateAbsenceRecordRequest edits session metadata, not its events.
type UpdateAbsenceRecordRequest struct {
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	TeacherID *string `json:"teacher_id" validate:"omitempty,uuid4"`
	StartTime *string `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime   *string `json:"end_time" validate:"omitempty,datetime=15:04"`
}

// PatchEventRequest carries a partial update of one attendance event.
// Version must match the stored row or the update is rejected.
type PatchEventRequest struct {
	Status               *models.AttendanceStatus `json:"status" validate:"omitempty,oneof=absent late present"`
	IsJustified          *bool                    `json:"is_justified"`
	JustificationComment *string                  `json:"justification_comment" validate:"omitempty,max=512"`
	HasEntrySlip         *bool                    `json:"has_entry_slip"`
	Version              int                      `json:"version" validate:"required,min=1"`
}

// BulkEventIDsRequest targets a set of attendance events by id.
type BulkEventIDsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// BulkJustifyRequest justifies a set of attendance events, optionally
// attaching the same comment to each.
type BulkJustifyRequest struct {
	IDs     []string `json:"ids" validate:"required,min=1,dive,required"`
	Comment *string  `json:"comment" validate:"omitempty,max=512"`
}

// BulkResult reports per-item outcomes of a bulk operation. The call
// succeeds as a whole even when individual items fail.
type BulkResult struct {
	Updated int                    `json:"updated"`
	Errors  []models.BulkItemError `json:"errors,omitempty"`
}
