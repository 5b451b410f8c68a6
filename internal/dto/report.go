package dto

import "github.com/oferp-dev/sg-attendance-api/internal/models"

// WeeklyReportRequest selects the week to report on. Week is any date
// inside the target week (2006-01-02); the service snaps it to the
// Monday through Saturday range.
type WeeklyReportRequest struct {
	Week string `form:"week" validate:"omitempty,datetime=2006-01-02"`
}

// ExportReportRequest queues an asynchronous weekly sheet export.
type ExportReportRequest struct {
	Week   string              `json:"week" validate:"omitempty,datetime=2006-01-02"`
	Format models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportReportResponse acknowledges a queued export job.
type ExportReportResponse struct {
	JobID  string              `json:"job_id"`
	Status models.ReportStatus `json:"status"`
}
