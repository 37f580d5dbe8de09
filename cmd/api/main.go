package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/atelierhq/studio-cms-api/api/swagger"
	"github.com/atelierhq/studio-cms-api/internal/handler"
	"github.com/atelierhq/studio-cms-api/internal/middleware"
	"github.com/atelierhq/studio-cms-api/internal/repository"
	"github.com/atelierhq/studio-cms-api/internal/service"
	"github.com/atelierhq/studio-cms-api/pkg/cache"
	"github.com/atelierhq/studio-cms-api/pkg/config"
	"github.com/atelierhq/studio-cms-api/pkg/database"
	"github.com/atelierhq/studio-cms-api/pkg/export"
	"github.com/atelierhq/studio-cms-api/pkg/logger"
	corsmiddleware "github.com/atelierhq/studio-cms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/atelierhq/studio-cms-api/pkg/middleware/requestid"
	"github.com/atelierhq/studio-cms-api/pkg/storage"
)

// @title Studio CMS API
// @version 1.0.0
// @description Content API for the studio marketing site
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
		logr.Sugar().Warnw("redis unavailable, content cache disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	uploadStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare upload storage", "error", err)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	contentRepo := repository.NewContentRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	uploadRepo := repository.NewUploadRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	metricsSvc := service.NewMetricsService()
	notifierSvc := service.NewNotifierService(logr, cfg.Webhook)
	notifierSvc.Start()
	defer notifierSvc.Stop()

	authSvc := service.NewAuthService(userRepo, auditRepo, validate, logr, cfg.JWT)
	userSvc := service.NewUserService(userRepo, auditRepo, validate, logr)
	contentSvc := service.NewContentService(contentRepo, cacheRepo, notifierSvc, metricsSvc, validate, logr, cfg.Content)
	auditSvc := service.NewAuditService(auditRepo, export.NewCSVExporter(), export.NewPDFExporter(), logr, cfg.Exports)
	uploadSvc := service.NewUploadService(uploadRepo, uploadStore, auditRepo, logr, cfg.Uploads)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	contentHandler := handler.NewContentHandler(contentSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	uploadHandler := handler.NewUploadHandler(uploadSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsSvc.Handler())

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.Static("/uploads", uploadStore.Dir())

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
			auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
			auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		}

		content := api.Group("/content")
		{
			content.GET("", middleware.WithResponseMeta(), contentHandler.GetDocument)
			content.GET("/:key", contentHandler.Get)

			write := content.Group("", middleware.JWT(authSvc), middleware.RBAC(service.RolesFor(service.ActionContentWrite)...))
			{
				write.PUT("", contentHandler.Upsert)
				write.POST("", contentHandler.BulkUpsert)
				write.PATCH("", contentHandler.UpdateAtPath)
				write.GET("/:key/versions", contentHandler.ListVersions)
				write.POST("/:key/versions/:version/restore", contentHandler.Restore)
			}
		}

		users := api.Group("/users", middleware.JWT(authSvc))
		{
			users.GET("", middleware.RBAC(service.RolesFor(service.ActionUsersList)...), userHandler.List)
			users.POST("", middleware.RBAC(service.RolesFor(service.ActionUsersCreate)...), userHandler.Create)
			users.GET("/:id", middleware.RBAC(append(service.RolesFor(service.ActionUsersList), middleware.SelfMarker)...), userHandler.Get)
			users.PUT("/:id", middleware.RBAC(append(service.RolesFor(service.ActionUsersList), middleware.SelfMarker)...), userHandler.Update)
			users.DELETE("/:id", middleware.RBAC(service.RolesFor(service.ActionUsersDelete)...), userHandler.Delete)
		}

		audit := api.Group("/audit", middleware.JWT(authSvc), middleware.RBAC(service.RolesFor(service.ActionAuditRead)...))
		{
			audit.GET("", auditHandler.List)
			audit.GET("/export", auditHandler.Export)
		}

		uploads := api.Group("/uploads", middleware.JWT(authSvc), middleware.RBAC(service.RolesFor(service.ActionUploadsWrite)...))
		{
			uploads.GET("", uploadHandler.List)
			uploads.POST("", uploadHandler.Create)
			uploads.GET("/:filename", uploadHandler.Get)
			uploads.DELETE("/:filename", uploadHandler.Delete)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
