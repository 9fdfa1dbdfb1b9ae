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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/slotwise/timetable-merge-api/api/swagger"
	"github.com/slotwise/timetable-merge-api/internal/handler"
	"github.com/slotwise/timetable-merge-api/internal/middleware"
	"github.com/slotwise/timetable-merge-api/internal/models"
	"github.com/slotwise/timetable-merge-api/internal/repository"
	"github.com/slotwise/timetable-merge-api/internal/service"
	"github.com/slotwise/timetable-merge-api/pkg/cache"
	"github.com/slotwise/timetable-merge-api/pkg/config"
	"github.com/slotwise/timetable-merge-api/pkg/database"
	"github.com/slotwise/timetable-merge-api/pkg/logger"
	corsmiddleware "github.com/slotwise/timetable-merge-api/pkg/middleware/cors"
	reqidmiddleware "github.com/slotwise/timetable-merge-api/pkg/middleware/requestid"
	"github.com/slotwise/timetable-merge-api/pkg/storage"
)

// @title Timetable Merge API
// @version 0.1.0
// @description Consolidates timetable fragments into a single conflict-minimised weekly grid
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, running without cache", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	runRepo := repository.NewRunRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsService := service.NewMetricsService()
	authService := service.NewAuthService(cfg.Auth.Accounts, nil, logr, service.AuthConfig{
		Secret:     cfg.Auth.Secret,
		Expiration: cfg.Auth.Expiration,
		Issuer:     cfg.Auth.Issuer,
	})
	resolutionService := service.NewResolutionService(runRepo, cacheRepo, db, metricsService, nil, logr, service.ResolutionConfig{
		MaxRows:  cfg.Resolver.MaxRows,
		CacheTTL: cfg.Resolver.CacheTTL,
	})
	exportService := service.NewExportService(runRepo, files, signer, metricsService, nil, logr, service.ExportConfig{
		APIPrefix:  cfg.APIPrefix,
		ResultTTL:  cfg.Exports.SignedURLTTL,
		JobTTL:     cfg.Exports.JobTTL,
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exportService.Start(ctx)
	defer exportService.Stop()
	go cleanupLoop(ctx, exportService, cfg.Exports.CleanupInterval)

	authHandler := handler.NewAuthHandler(authService)
	resolutionHandler := handler.NewResolutionHandler(resolutionService)
	exportHandler := handler.NewExportHandler(exportService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Scrape)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/token", authHandler.Token)
	api.GET("/export/download/:token", exportHandler.Download)

	protected := api.Group("", middleware.JWT(authService))
	protected.GET("/resolutions", resolutionHandler.List)
	protected.GET("/resolutions/:id", resolutionHandler.Get)
	protected.GET("/resolutions/:id/conflicts", resolutionHandler.Conflicts)
	protected.GET("/exports/:id", exportHandler.Status)

	writers := protected.Group("", middleware.RequireRoles(models.RoleAdmin, models.RoleScheduler))
	writers.POST("/resolutions", resolutionHandler.Resolve)
	writers.POST("/exports", exportHandler.Create)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}

func cleanupLoop(ctx context.Context, exports *service.ExportService, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			exports.Cleanup()
		}
	}
}
