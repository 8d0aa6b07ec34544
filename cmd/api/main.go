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

	_ "github.com/noah-isme/exam-market-api/api/swagger"
	"github.com/noah-isme/exam-market-api/internal/handler"
	"github.com/noah-isme/exam-market-api/internal/middleware"
	"github.com/noah-isme/exam-market-api/internal/models"
	"github.com/noah-isme/exam-market-api/internal/repository"
	"github.com/noah-isme/exam-market-api/internal/service"
	"github.com/noah-isme/exam-market-api/pkg/cache"
	"github.com/noah-isme/exam-market-api/pkg/config"
	"github.com/noah-isme/exam-market-api/pkg/database"
	"github.com/noah-isme/exam-market-api/pkg/lock"
	"github.com/noah-isme/exam-market-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/exam-market-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/exam-market-api/pkg/middleware/requestid"
)

// @title Exam Market API
// @version 1.0.0
// @description Course and exam marketplace with payment-backed registration
// @BasePath /api
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
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	userRepo := repository.NewUserRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	pendingRepo := repository.NewPendingCountRepository(redisClient)

	locks := lock.NewManager(redisClient, cfg.Lock, logr)
	metricsSvc := service.NewMetricsService()
	strategies := service.NewStrategyRegistry(paymentRepo)

	authSvc := service.NewAuthService(userRepo, cfg.JWT, logr)
	catalogSvc := service.NewCatalogService(catalogRepo, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, logr)
	registrationSvc := service.NewRegistrationService(
		db, catalogRepo, registrationRepo, paymentRepo,
		strategies, pendingRepo, locks, metricsSvc, logr,
	)
	counterSync := service.NewCounterSyncService(
		pendingRepo, registrationRepo, catalogRepo,
		metricsSvc, cfg.CountSync.Interval, logr,
	)

	authHandler := handler.NewAuthHandler(authSvc)
	testHandler := handler.NewCatalogHandler(models.ItemTypeTest, catalogSvc, registrationSvc)
	courseHandler := handler.NewCatalogHandler(models.ItemTypeCourse, catalogSvc, registrationSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, registrationSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

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
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "redis unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/signup", authHandler.Signup)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	protected.GET("/me", authHandler.Me)
	protected.GET("/me/payments", paymentHandler.List)
	protected.GET("/me/payments/export", paymentHandler.Export)
	protected.POST("/payments/:id/cancel", paymentHandler.Cancel)

	tests := protected.Group("/tests")
	tests.GET("", testHandler.List)
	tests.GET("/:id", testHandler.Get)
	tests.POST("/:id/apply", testHandler.Apply)
	tests.POST("/:id/complete", testHandler.Complete)

	courses := protected.Group("/courses")
	courses.GET("", courseHandler.List)
	courses.GET("/:id", courseHandler.Get)
	courses.POST("/:id/enroll", courseHandler.Apply)
	courses.POST("/:id/complete", courseHandler.Complete)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.CountSync.Enabled {
		go counterSync.Run(ctx)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
