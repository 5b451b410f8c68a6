package handler

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/oferp-dev/sg-attendance-api/internal/dto"
	"github.com/oferp-dev/sg-attendance-api/internal/service"
	appErrors "github.com/oferp-dev/sg-attendance-api/pkg/errors"
	"github.com/oferp-dev/sg-attendance-api/pkg/response"
)

// ReportHandler exposes the weekly absence grid and its exports.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs a ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Weekly returns the Monday-to-Saturday grid for a group. The week
// query parameter can be any date inside the target week.
func (h *ReportHandler) Weekly(c *gin.Context) {
	report, err := h.reports.Weekly(c.Request.Context(), c.Param("id"), c.Query("week"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export queues an asynchronous CSV or PDF export of the weekly grid.
func (h *ReportHandler) Export(c *gin.Context) {
	claims := currentUser(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ExportReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.reports.Export(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, result, nil)
}

// JobStatus reports the state of a queued export.
func (h *ReportHandler) JobStatus(c *gin.Context) {
	job, err := h.reports.JobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download streams a finished export through its signed token.
func (h *ReportHandler) Download(c *gin.Context) {
	file, name, err := h.reports.Download(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	contentType := "text/csv"
	if filepath.Ext(name) == ".pdf" {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", "attachment; filename=\""+filepath.Base(name)+"\"")
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file); err != nil {
		c.Abort()
	}
}
