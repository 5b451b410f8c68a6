package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/oferp-dev/sg-attendance-api/internal/middleware"
	"github.com/oferp-dev/sg-attendance-api/internal/models"
	"github.com/oferp-dev/sg-attendance-api/internal/service"
	"github.com/oferp-dev/sg-attendance-api/pkg/config"
	"github.com/oferp-dev/sg-attendance-api/pkg/logger"
	corsmiddleware "github.com/oferp-dev/sg-attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/oferp-dev/sg-attendance-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler wired into the router.
type Handlers struct {
	Auth     *AuthHandler
	Groups   *GroupHandler
	Teachers *TeacherHandler
	Trainees *TraineeHandler
	Absences *AbsenceHandler
	Reports  *ReportHandler
	Metrics  *MetricsHandler
}

// NewRouter assembles the gin engine with middleware and all routes.
func NewRouter(cfg *config.Config, logr *zap.Logger, authSvc *service.AuthService, metricsSvc *service.MetricsService, h Handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), h.Auth.Logout)
		auth.GET("/me", middleware.JWT(authSvc), h.Auth.Me)
	}

	// Download links are authorized by their HMAC token, not a JWT, so
	// they can be opened from a browser.
	api.GET("/reports/download/:token", h.Reports.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	sg := middleware.RBAC(models.RoleAdmin, models.RoleSG)
	admin := middleware.RBAC(models.RoleAdmin)

	groups := protected.Group("/groups")
	{
		groups.GET("", sg, h.Groups.List)
		groups.GET("/:id", sg, h.Groups.Get)
		groups.POST("", admin, h.Groups.Create)
		groups.PUT("/:id", admin, h.Groups.Update)
		groups.DELETE("/:id", admin, h.Groups.Delete)

		groups.GET("/:id/weekly-report", sg, h.Reports.Weekly)
		groups.POST("/:id/weekly-report/export", sg, h.Reports.Export)
	}

	teachers := protected.Group("/teachers")
	{
		teachers.GET("", sg, h.Teachers.List)
		teachers.GET("/:id", sg, h.Teachers.Get)
		teachers.POST("", admin, h.Teachers.Create)
		teachers.PUT("/:id", admin, h.Teachers.Update)
		teachers.DELETE("/:id", admin, h.Teachers.Delete)
	}

	trainees := protected.Group("/trainees")
	{
		trainees.GET("", sg, h.Trainees.List)
		trainees.GET("/:id", sg, h.Trainees.Get)
		trainees.POST("", sg, h.Trainees.Create)
		trainees.PUT("/:id", sg, h.Trainees.Update)
		trainees.DELETE("/:id", admin, h.Trainees.Delete)
		trainees.POST("/import", sg, h.Trainees.Import)
		trainees.GET("/:id/discipline", sg, h.Trainees.Discipline)
	}

	absences := protected.Group("/absences")
	{
		absences.GET("", sg, h.Absences.List)
		absences.GET("/:id", sg, h.Absences.Get)
		absences.POST("", sg, h.Absences.Create)
		absences.PUT("/:id", sg, h.Absences.Update)
		absences.DELETE("/:id", admin, h.Absences.Delete)
		absences.PATCH("/:id/students/:traineeId", sg, h.Absences.PatchEvent)
		absences.POST("/validate", sg, h.Absences.Validate)
		absences.POST("/justify", sg, h.Absences.Justify)
	}

	reports := protected.Group("/reports")
	{
		reports.GET("/jobs/:id", sg, h.Reports.JobStatus)
	}

	return r
}
