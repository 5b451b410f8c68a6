package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oferp-dev/sg-attendance-api/internal/dto"
	"github.com/oferp-dev/sg-attendance-api/internal/models"
	"github.com/oferp-dev/sg-attendance-api/internal/service"
	appErrors "github.com/oferp-dev/sg-attendance-api/pkg/errors"
	"github.com/oferp-dev/sg-attendance-api/pkg/response"
)

// TraineeHandler wires trainee management, roster import and the
// disciplinary assessment endpoint.
type TraineeHandler struct {
	trainees   *service.TraineeService
	discipline *service.DisciplineService
	metrics    *service.MetricsService
}

// NewTraineeHandler constructs a TraineeHandler.
func NewTraineeHandler(trainees *service.TraineeService, discipline *service.DisciplineService, metrics *service.MetricsService) *TraineeHandler {
	return &TraineeHandler{trainees: trainees, discipline: discipline, metrics: metrics}
}

// List returns trainees matching optional filters.
func (h *TraineeHandler) List(c *gin.Context) {
	filter := models.TraineeFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		GroupID:   c.Query("group_id"),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	trainees, pagination, err := h.trainees.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trainees, pagination)
}

// Get returns a trainee.
func (h *TraineeHandler) Get(c *gin.Context) {
	trainee, err := h.trainees.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trainee, nil)
}

// Create registers a trainee.
func (h *TraineeHandler) Create(c *gin.Context) {
	var req dto.CreateTraineeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	trainee, err := h.trainees.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, trainee)
}

// Update edits a trainee.
func (h *TraineeHandler) Update(c *gin.Context) {
	var req dto.UpdateTraineeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	trainee, err := h.trainees.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trainee, nil)
}

// Delete removes a trainee.
func (h *TraineeHandler) Delete(c *gin.Context) {
	if err := h.trainees.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "deleted"}, nil)
}

// Import ingests a raw delimited roster export.
func (h *TraineeHandler) Import(c *gin.Context) {
	var req dto.ImportRosterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.trainees.ImportRoster(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.AddImportedRows(result.Imported)
	response.JSON(c, http.StatusOK, result, nil)
}

// Discipline returns the trainee's cumulative hours, note and sanction.
func (h *TraineeHandler) Discipline(c *gin.Context) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from date"))
			return
		}
		from = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to date"))
			return
		}
		to = &parsed
	}

	assessment, err := h.discipline.Assess(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}
