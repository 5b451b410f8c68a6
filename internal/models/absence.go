package models

import "time"

// AttendanceStatus classifies a trainee's presence for one session.
type AttendanceStatus string

const (
	StatusAbsent  AttendanceStatus = "absent"
	StatusLate    AttendanceStatus = "late"
	StatusPresent AttendanceStatus = "present"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusAbsent, StatusLate, StatusPresent:
		return true
	default:
		return false
	}
}

// AbsenceRecord represents one recorded class session for a group.
// StartTime and EndTime use the "15:04" wall-clock format; both are
// nil when the record covers a whole day.
type AbsenceRecord struct {
	ID        string    `db:"id" json:"id"`
	Date      time.Time `db:"date" json:"date"`
	GroupID   string    `db:"group_id" json:"group_id"`
	TeacherID *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	StartTime *string   `db:"start_time" json:"start_time,omitempty"`
	EndTime   *string   `db:"end_time" json:"end_time,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AbsenceRecordDetail extends a record with group/teacher metadata and
// the per-trainee rows captured for the session.
type AbsenceRecordDetail struct {
	AbsenceRecord
	GroupName   string                 `db:"group_name" json:"group_name"`
	TeacherName *string                `db:"teacher_name" json:"teacher_name,omitempty"`
	Students    []TraineeAbsenceDetail `json:"students"`
}

// AbsenceRecordFilter scopes listing queries.
type AbsenceRecordFilter struct {
	GroupID   string
	Date      *time.Time
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// TraineeAbsence is one attendance event for a trainee within a session.
// OriginalStatus keeps the first-ever classification when a supervisor
// later edits the status; it is write-once. Version is the optimistic
// concurrency stamp bumped on every update.
type TraineeAbsence struct {
	ID                   string            `db:"id" json:"id"`
	AbsenceRecordID      string            `db:"absence_record_id" json:"absence_record_id"`
	TraineeID            string            `db:"trainee_id" json:"trainee_id"`
	Status               AttendanceStatus  `db:"status" json:"status"`
	IsJustified          bool              `db:"is_justified" json:"is_justified"`
	JustificationComment *string           `db:"justification_comment" json:"justification_comment,omitempty"`
	HasEntrySlip         bool              `db:"has_entry_slip" json:"has_entry_slip"`
	IsValidated          bool              `db:"is_validated" json:"is_validated"`
	ValidatedBy          *string           `db:"validated_by" json:"validated_by,omitempty"`
	ValidatedAt          *time.Time        `db:"validated_at" json:"validated_at,omitempty"`
	EditedBy             *string           `db:"edited_by" json:"edited_by,omitempty"`
	EditedAt             *time.Time        `db:"edited_at" json:"edited_at,omitempty"`
	OriginalStatus       *AttendanceStatus `db:"original_status" json:"original_status,omitempty"`
	AbsenceHours         float64           `db:"absence_hours" json:"absence_hours"`
	Version              int               `db:"version" json:"version"`
	CreatedAt            time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time         `db:"updated_at" json:"updated_at"`
}

// TraineeAbsenceDetail adds trainee identity to an event row.
type TraineeAbsenceDetail struct {
	TraineeAbsence
	TraineeLastName  string `db:"trainee_last_name" json:"trainee_last_name"`
	TraineeFirstName string `db:"trainee_first_name" json:"trainee_first_name"`
}

// TraineeAbsencePatch carries the mutable event fields. Nil members are
// left untouched. Version must match the stored stamp or the patch is
// rejected with a precondition failure.
type TraineeAbsencePatch struct {
	Status               *AttendanceStatus
	IsJustified          *bool
	JustificationComment *string
	HasEntrySlip         *bool
	IsValidated          *bool
	EditedBy             *string
	Version              int
}

// TraineeAbsenceWithWindow pairs an event with its session window so a
// patched event can be re-priced without a second lookup.
type TraineeAbsenceWithWindow struct {
	TraineeAbsence
	Date      time.Time `db:"date" json:"date"`
	StartTime *string   `db:"start_time" json:"start_time,omitempty"`
	EndTime   *string   `db:"end_time" json:"end_time,omitempty"`
}

// WeeklyEventRow is one event joined with trainee identity, the raw
// material of the weekly report grid.
type WeeklyEventRow struct {
	TraineeID    string           `db:"trainee_id" json:"trainee_id"`
	LastName     string           `db:"last_name" json:"last_name"`
	FirstName    string           `db:"first_name" json:"first_name"`
	Date         time.Time        `db:"date" json:"date"`
	Status       AttendanceStatus `db:"status" json:"status"`
	IsJustified  bool             `db:"is_justified" json:"is_justified"`
	AbsenceHours float64          `db:"absence_hours" json:"absence_hours"`
}

// AttendanceEvent is the flattened per-event view fed to the
// disciplinary aggregation: session window from the absence record
// joined with the trainee's classification.
type AttendanceEvent struct {
	TraineeID   string           `db:"trainee_id" json:"trainee_id"`
	Date        time.Time        `db:"date" json:"date"`
	StartTime   *string          `db:"start_time" json:"start_time,omitempty"`
	EndTime     *string          `db:"end_time" json:"end_time,omitempty"`
	Status      AttendanceStatus `db:"status" json:"status"`
	IsJustified bool             `db:"is_justified" json:"is_justified"`
}

// BulkItemError reports an individual failure inside a bulk operation.
type BulkItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}
