package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// WeeklyReportCell holds one trainee/day slot of the weekly sheet.
type WeeklyReportCell struct {
	Status       AttendanceStatus `json:"status"`
	AbsenceHours float64          `json:"absence_hours"`
	IsJustified  bool             `json:"is_justified"`
}

// WeeklyReportRow is the per-trainee line of the weekly grid. Days is
// keyed by weekday name, Monday through Saturday; Sunday never appears.
type WeeklyReportRow struct {
	TraineeID  string                      `json:"trainee_id"`
	LastName   string                      `json:"last_name"`
	FirstName  string                      `json:"first_name"`
	Days       map[string]WeeklyReportCell `json:"days"`
	TotalHours float64                     `json:"total_hours"`
}

// WeeklyReport is the printable Mon-Sat absence grid for one group.
type WeeklyReport struct {
	GroupID   string            `json:"group_id"`
	GroupName string            `json:"group_name"`
	StartDate time.Time         `json:"start_date"`
	EndDate   time.Time         `json:"end_date"`
	Rows      []WeeklyReportRow `json:"rows"`
}

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus captures background export job lifecycle states.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// ReportJob is the persisted metadata of one weekly-sheet export.
type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// ReportJobParams stores request-scoped options persisted as JSONB.
type ReportJobParams struct {
	GroupID   string       `json:"groupId"`
	StartDate string       `json:"startDate"`
	EndDate   string       `json:"endDate"`
	Format    ReportFormat `json:"format"`
}

// Value marshals params to JSON for persistence.
func (p ReportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal report job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ReportJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = ReportJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ReportJobParams", value)
	}
	if len(data) == 0 {
		*p = ReportJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal report job params: %w", err)
	}
	return nil
}
