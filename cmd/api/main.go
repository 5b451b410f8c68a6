package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/oferp-dev/sg-attendance-api/api/swagger"
	"github.com/oferp-dev/sg-attendance-api/internal/handler"
	"github.com/oferp-dev/sg-attendance-api/internal/repository"
	"github.com/oferp-dev/sg-attendance-api/internal/scoring"
	"github.com/oferp-dev/sg-attendance-api/internal/service"
	"github.com/oferp-dev/sg-attendance-api/pkg/cache"
	"github.com/oferp-dev/sg-attendance-api/pkg/config"
	"github.com/oferp-dev/sg-attendance-api/pkg/database"
	"github.com/oferp-dev/sg-attendance-api/pkg/jobs"
	"github.com/oferp-dev/sg-attendance-api/pkg/logger"
	"github.com/oferp-dev/sg-attendance-api/pkg/storage"
)

// @title SG Attendance API
// @version 1.0.0
// @description Attendance management backend for vocational training centers
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	validate := validator.New()
	aggregator := scoring.New(scoring.Policy{
		FullDayHours:     cfg.Scoring.FullDayHours,
		LateThreshold:    cfg.Scoring.LateThreshold,
		LatePenaltyHours: cfg.Scoring.LatePenaltyHours,
	})

	userRepo := repository.NewUserRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	traineeRepo := repository.NewTraineeRepository(db)
	absenceRepo := repository.NewAbsenceRepository(db)
	jobRepo := repository.NewReportJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "sg-attendance-api",
	})
	groupSvc := service.NewGroupService(groupRepo, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, validate, logr)
	traineeSvc := service.NewTraineeService(traineeRepo, groupRepo, validate, logr, cfg.Import)
	absenceSvc := service.NewAbsenceService(absenceRepo, cacheRepo, aggregator, validate, logr)
	disciplineSvc := service.NewDisciplineService(absenceRepo, traineeRepo, cacheRepo, aggregator, cfg.Scoring.CacheTTL, logr)
	reportSvc := service.NewReportService(absenceRepo, groupRepo, traineeRepo, jobRepo, cacheRepo, store, signer, cfg.Reports, logr)
	metricsSvc := service.NewMetricsService()

	exportQueue := jobs.NewQueue("weekly_export", reportSvc.RunExportJob, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	})
	reportSvc.SetQueue(exportQueue)
	exportQueue.Start()
	defer exportQueue.Stop()

	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go reportSvc.StartCleanup(cleanupCtx)

	router := handler.NewRouter(cfg, logr, authSvc, metricsSvc, handler.Handlers{
		Auth:     handler.NewAuthHandler(authSvc),
		Groups:   handler.NewGroupHandler(groupSvc),
		Teachers: handler.NewTeacherHandler(teacherSvc),
		Trainees: handler.NewTraineeHandler(traineeSvc, disciplineSvc, metricsSvc),
		Absences: handler.NewAbsenceHandler(absenceSvc),
		Reports:  handler.NewReportHandler(reportSvc),
		Metrics:  handler.NewMetricsHandler(metricsSvc, db),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Info("server stopped", zap.String("addr", srv.Addr))
}
