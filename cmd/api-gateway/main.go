package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/scholarship-api/api/swagger"
	"github.com/noah-isme/scholarship-api/internal/eligibility"
	"github.com/noah-isme/scholarship-api/internal/handler"
	"github.com/noah-isme/scholarship-api/internal/middleware"
	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/internal/repository"
	"github.com/noah-isme/scholarship-api/internal/service"
	"github.com/noah-isme/scholarship-api/pkg/cache"
	"github.com/noah-isme/scholarship-api/pkg/config"
	"github.com/noah-isme/scholarship-api/pkg/database"
	"github.com/noah-isme/scholarship-api/pkg/jobs"
	"github.com/noah-isme/scholarship-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/scholarship-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/scholarship-api/pkg/middleware/requestid"
	"github.com/noah-isme/scholarship-api/pkg/storage"
)

// @title Scholarship Application API
// @version 1.0.0
// @description Submission eligibility and state-transition engine for the scholarship program.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	cacheEnabled := true
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		cacheEnabled = false
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	uploadStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare upload storage", "error", err)
	}
	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare report storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	recommendationRepo := repository.NewRecommendationRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	reportRepo := repository.NewReportRepository(db)

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cacheEnabled {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Evaluations.RankingsCacheTTL, logr, true)
	}

	emailSvc := service.NewEmailService(service.NewLogEmailSender(logr), cfg.Email, logr)
	emailSvc.Start(ctx)
	defer emailSvc.Stop()

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
	})
	userSvc := service.NewUserService(userRepo, auditRepo, validate, logr)

	policy := eligibility.Policy{
		MinGPA:         cfg.Eligibility.MinGPA,
		EssayMinWords:  cfg.Eligibility.EssayMinWords,
		EssayMaxWords:  cfg.Eligibility.EssayMaxWords,
		ResidencyState: cfg.Eligibility.ResidencyState,
	}
	applicationSvc := service.NewApplicationService(applicationRepo, recommendationRepo, userRepo, auditRepo, emailSvc, policy, validate, logr)
	recommendationSvc := service.NewRecommendationService(recommendationRepo, applicationRepo, auditRepo, emailSvc, cfg.Recommendations, validate, logr)
	evaluationSvc := service.NewEvaluationService(evaluationRepo, applicationRepo, auditRepo, cacheSvc, cfg.Evaluations, validate, logr)

	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Applications:    applicationRepo,
		Recommendations: recommendationRepo,
		Evaluations:     evaluationSvc,
		Cache:           cacheSvc,
		Logger:          logr,
		Config:          service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
	})

	exportSvc := service.NewExportService(service.ExportServiceParams{
		Rankings:        evaluationSvc,
		Applications:    applicationRepo,
		Recommendations: recommendationRepo,
		Storage:         reportStore,
		Signer:          signer,
		Config:          service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Reports.ResultTTL},
		Logger:          logr,
	})

	reportWorker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.MaxRetries, logr)
	reportQueue := jobs.NewQueue("reports", reportWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.QueueWorkers,
		MaxRetries: cfg.Reports.MaxRetries,
		Logger:     logr,
	})
	reportQueue.Start(ctx)
	defer reportQueue.Stop()

	reportSvc := service.NewReportService(reportRepo, reportQueue, exportSvc, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.ResultTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
		MaxRetries:      cfg.Reports.MaxRetries,
	})
	reportSvc.RecoverPendingJobs(ctx)
	reportSvc.StartCleanup(ctx)

	uploadSvc := service.NewUploadService(uploadStore, signer, cfg.Uploads, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	applicationHandler := handler.NewApplicationHandler(applicationSvc)
	recommendationHandler := handler.NewRecommendationHandler(recommendationSvc)
	evaluationHandler := handler.NewEvaluationHandler(evaluationSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	uploadHandler := handler.NewUploadHandler(uploadSvc)
	auditHandler := handler.NewAuditHandler(auditRepo)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.POST("/auth/forgot-password", authHandler.ForgotPassword)
	api.POST("/auth/reset-password", authHandler.ResetPassword)

	// Recommender portal and export downloads authenticate with opaque
	// tokens, not sessions. Claims are attached when a session is present
	// so audit rows can name the actor.
	tokenRoutes := api.Group("", middleware.OptionalJWT(authSvc))
	tokenRoutes.GET("/recommend/:token", recommendationHandler.View)
	tokenRoutes.POST("/recommend/:token", recommendationHandler.SubmitLetter)
	tokenRoutes.GET("/export/:token", reportHandler.DownloadReport)
	tokenRoutes.GET("/files/:token", uploadHandler.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.GET("/auth/me", authHandler.Me)
	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/change-password", authHandler.ChangePassword)

	authed.POST("/files", uploadHandler.Upload)

	apps := authed.Group("/applications")
	apps.POST("", middleware.RequireRoles(models.RoleApplicant), applicationHandler.Create)
	apps.GET("/me", middleware.RequireRoles(models.RoleApplicant), applicationHandler.Mine)
	apps.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleCommittee), applicationHandler.List)
	apps.GET("/:id", applicationHandler.Get)
	apps.PUT("/:id/steps/:step", applicationHandler.UpdateStep)
	apps.POST("/:id/steps/:step/complete", applicationHandler.CompleteStep)
	apps.GET("/:id/checklist", applicationHandler.Checklist)
	apps.POST("/:id/submit", applicationHandler.Submit)
	apps.POST("/:id/withdraw", applicationHandler.Withdraw)
	apps.PATCH("/:id/status", middleware.RequireRoles(models.RoleAdmin), applicationHandler.SetStatus)

	apps.POST("/:id/recommendations", recommendationHandler.Invite)
	apps.GET("/:id/recommendations", recommendationHandler.ListByApplication)

	recs := authed.Group("/recommendations")
	recs.POST("/:id/resend", recommendationHandler.Resend)
	recs.POST("/:id/remind", recommendationHandler.Remind)
	recs.POST("/:id/cancel", recommendationHandler.Cancel)

	apps.PUT("/:id/evaluations", middleware.RequireRoles(models.RoleCommittee, models.RoleAdmin), evaluationHandler.Submit)
	apps.GET("/:id/evaluations", middleware.RequireRoles(models.RoleAdmin), evaluationHandler.ListByApplication)
	apps.GET("/:id/evaluations/me", middleware.RequireRoles(models.RoleCommittee, models.RoleAdmin), evaluationHandler.Mine)

	evals := authed.Group("/evaluations", middleware.RequireRoles(models.RoleCommittee, models.RoleAdmin))
	evals.GET("/rankings", evaluationHandler.Rankings)
	evals.GET("/progress", evaluationHandler.Progress)
	evals.GET("/stats", evaluationHandler.MyStats)

	if cfg.Dashboard.Enabled {
		authed.GET("/dashboard/admin", middleware.RequireRoles(models.RoleAdmin), dashboardHandler.Admin)
	}

	reports := authed.Group("/reports", middleware.RequireRoles(models.RoleAdmin, models.RoleCommittee))
	reports.POST("", middleware.Audit(auditRepo, models.AuditActionReportRequested, "report"), reportHandler.GenerateReport)
	reports.GET("/:id", reportHandler.ReportStatus)

	admin := authed.Group("", middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/users", userHandler.List)
	admin.POST("/users", userHandler.Create)
	admin.GET("/users/:id", userHandler.Get)
	admin.PUT("/users/:id", userHandler.Update)
	admin.DELETE("/users/:id", userHandler.Delete)
	admin.GET("/audit-logs", auditHandler.List)
	admin.GET("/metrics", metricsHandler.Summary)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
