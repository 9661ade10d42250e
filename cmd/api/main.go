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

	"github.com/noah-isme/course-market-api/internal/handler"
	"github.com/noah-isme/course-market-api/internal/middleware"
	"github.com/noah-isme/course-market-api/internal/repository"
	"github.com/noah-isme/course-market-api/internal/service"
	"github.com/noah-isme/course-market-api/pkg/cache"
	"github.com/noah-isme/course-market-api/pkg/config"
	"github.com/noah-isme/course-market-api/pkg/database"
	"github.com/noah-isme/course-market-api/pkg/jobs"
	"github.com/noah-isme/course-market-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-market-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-market-api/pkg/middleware/requestid"
	"github.com/noah-isme/course-market-api/pkg/payment"
	"github.com/noah-isme/course-market-api/pkg/storage"
)

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
		logr.Sugar().Warnw("redis unavailable, catalog caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "course-market-api",
	})
	courseSvc := service.NewCourseService(courseRepo, cacheRepo, cfg.Catalog.CacheTTL, validate, logr)
	lessonSvc := service.NewLessonService(lessonRepo, courseRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, lessonRepo, cfg.Payments.StrictProgress, logr)

	stripeClient := payment.NewStripeClient(cfg.Payments.SecretKey, cfg.Payments.WebhookSecret, cfg.Payments.SignatureTolerance, logr)

	store, err := storage.NewLocalStorage(cfg.Receipts.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare receipt storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Receipts.SignedURLSecret, cfg.Receipts.SignedURLTTL)

	paymentSvc := service.NewPaymentService(paymentRepo, enrollmentRepo, courseRepo, userRepo, store, signer, metricsSvc,
		service.PaymentServiceConfig{
			ReceiptsEnabled: cfg.Receipts.Enabled,
			Currency:        cfg.Payments.Currency,
		},
		jobs.QueueConfig{
			Workers:    cfg.Receipts.WorkerConcurrency,
			MaxRetries: cfg.Receipts.WorkerRetries,
		}, logr)

	checkoutSvc := service.NewCheckoutService(enrollmentRepo, courseRepo, paymentRepo, stripeClient, metricsSvc, service.CheckoutConfig{
		Currency:   cfg.Payments.Currency,
		SuccessURL: cfg.Payments.SuccessURL,
		CancelURL:  cfg.Payments.CancelURL,
	}, logr)
	webhookSvc := service.NewWebhookService(stripeClient, paymentRepo, enrollmentRepo, paymentSvc, metricsSvc, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paymentSvc.StartWorkers(ctx)
	defer paymentSvc.StopWorkers()

	if cfg.Receipts.CleanupInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Receipts.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					paymentSvc.CleanupReceipts(cfg.Receipts.SignedURLTTL * 48)
				}
			}
		}()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		Course:     handler.NewCourseHandler(courseSvc, lessonSvc),
		Lesson:     handler.NewLessonHandler(lessonSvc),
		Enrollment: handler.NewEnrollmentHandler(enrollmentSvc),
		Payment:    handler.NewPaymentHandler(checkoutSvc, webhookSvc, paymentSvc),
	}, authSvc, metricsSvc)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
