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

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/lifedrop/lifedrop-api/api/swagger"
	"github.com/lifedrop/lifedrop-api/internal/handler"
	"github.com/lifedrop/lifedrop-api/internal/middleware"
	"github.com/lifedrop/lifedrop-api/internal/models"
	"github.com/lifedrop/lifedrop-api/internal/repository"
	"github.com/lifedrop/lifedrop-api/internal/service"
	"github.com/lifedrop/lifedrop-api/pkg/cache"
	"github.com/lifedrop/lifedrop-api/pkg/config"
	"github.com/lifedrop/lifedrop-api/pkg/database"
	"github.com/lifedrop/lifedrop-api/pkg/export"
	"github.com/lifedrop/lifedrop-api/pkg/jobs"
	"github.com/lifedrop/lifedrop-api/pkg/logger"
	corsmiddleware "github.com/lifedrop/lifedrop-api/pkg/middleware/cors"
	reqidmiddleware "github.com/lifedrop/lifedrop-api/pkg/middleware/requestid"
	"github.com/lifedrop/lifedrop-api/pkg/storage"
)

// @title LifeDrop API
// @version 1.0.0
// @description Blood donation tracking backend
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	donationRepo := repository.NewDonationRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	hospitalRepo := repository.NewHospitalRepository(db)
	reportRepo := repository.NewReportRepository(db)

	// Services.
	metricsService := service.NewMetricsService()

	var cacheService *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.Enabled)
	} else {
		cacheService = service.NewCacheService(nil, metricsService, cfg.Dashboard.CacheTTL, logr, false)
	}

	authService := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "lifedrop-api",
	})

	notificationWorker := service.NewNotificationWorker(service.NewLogNotificationSender(logr), logr)
	notificationQueue := jobs.NewQueue("notifications", notificationWorker.Handle, jobs.QueueConfig{
		Workers: cfg.Donations.NotifyWorkers,
		Logger:  logr,
	})
	notificationQueue.Start(ctx)
	defer notificationQueue.Stop()

	donationService := service.NewDonationService(donationRepo, userRepo, notificationQueue, metricsService, nil, logr, service.DonationConfig{
		AnnualLimit:           cfg.Donations.AnnualLimit,
		MilestoneNotification: cfg.Donations.MilestoneNotification,
	})
	appointmentService := service.NewAppointmentService(appointmentRepo, donationRepo, hospitalRepo, userRepo, metricsService, nil, logr)
	hospitalService := service.NewHospitalService(hospitalRepo, logr)
	userService := service.NewUserService(userRepo, nil, logr)

	dashboardService := service.NewDashboardService(service.DashboardServiceParams{
		Donations:    donationRepo,
		Appointments: appointmentRepo,
		Users:        userRepo,
		Cache:        cacheService,
		Logger:       logr,
		Config: service.DashboardServiceConfig{
			CacheTTL:    cfg.Dashboard.CacheTTL,
			AnnualLimit: cfg.Donations.AnnualLimit,
		},
	})

	// Handlers.
	authHandler := handler.NewAuthHandler(authService)
	donationHandler := handler.NewDonationHandler(donationService, dashboardService)
	appointmentHandler := handler.NewAppointmentHandler(appointmentService, dashboardService)
	hospitalHandler := handler.NewHospitalHandler(hospitalService)
	userHandler := handler.NewUserHandler(userService)
	dashboardHandler := handler.NewDashboardHandler(dashboardService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	var reportHandler *handler.ReportHandler
	var reportService *service.ReportService
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		localStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exportService := service.NewExportService(donationRepo, appointmentRepo, localStorage, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		}, logr, export.NewCSVExporter(), export.NewPDFExporter())

		reportWorker := service.NewReportWorker(reportRepo, exportService, cfg.Reports.WorkerRetries, logr)
		reportQueue = jobs.NewQueue("reports", reportWorker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportQueue.Start(ctx)
		defer reportQueue.Stop()

		reportService = service.NewReportService(reportRepo, reportQueue, exportService, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})
		reportService.RecoverPendingJobs(ctx)
		reportService.StartCleanup(ctx)
		reportHandler = handler.NewReportHandler(reportService)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
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

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)

		authed := auth.Group("")
		authed.Use(middleware.JWT(authService))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	donations := api.Group("/donations")
	donations.Use(middleware.JWT(authService))
	{
		donations.GET("", donationHandler.List)
		donations.POST("", middleware.RequireRoles(models.RoleDonor), middleware.Audit(userRepo, models.AuditActionDonationSubmit, "donations"), donationHandler.Submit)
		donations.GET("/streaks", middleware.RequireRoles(models.RoleDonor), donationHandler.Streaks)
		donations.PUT("/:id/approve", middleware.RequireRoles(models.RoleAdmin), donationHandler.Approve)
		donations.PUT("/:id/reject", middleware.RequireRoles(models.RoleAdmin), donationHandler.Reject)
	}

	appointments := api.Group("/appointments")
	appointments.Use(middleware.JWT(authService))
	{
		appointments.GET("", appointmentHandler.List)
		appointments.POST("", middleware.RequireRoles(models.RoleDonor), appointmentHandler.Book)
	}

	hospitals := api.Group("/hospitals")
	hospitals.Use(middleware.JWT(authService))
	{
		hospitals.GET("", hospitalHandler.List)
		hospitals.GET("/:id", hospitalHandler.Get)
	}

	users := api.Group("/users")
	users.Use(middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin))
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.POST("", userHandler.Create)
		users.PUT("/:id/status", userHandler.ToggleStatus)
	}

	if cfg.Dashboard.Enabled {
		dashboard := api.Group("/dashboard")
		dashboard.Use(middleware.JWT(authService))
		dashboard.GET("/donor", middleware.RequireRoles(models.RoleDonor), dashboardHandler.Donor)
		dashboard.GET("/admin", middleware.RequireRoles(models.RoleAdmin), dashboardHandler.Admin)

		api.GET("/metrics/summary", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)
	}

	if reportHandler != nil {
		reports := api.Group("/reports")
		reports.GET("/download/:token", reportHandler.Download)

		authedReports := reports.Group("")
		authedReports.Use(middleware.JWT(authService))
		authedReports.POST("", middleware.Audit(userRepo, models.AuditActionReportRequested, "reports"), reportHandler.Create)
		authedReports.GET("/:id", reportHandler.Status)
	}

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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
