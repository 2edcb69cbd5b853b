package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studyhub-io/studyhub-api/internal/handler"
	"github.com/studyhub-io/studyhub-api/internal/repository"
	"github.com/studyhub-io/studyhub-api/internal/router"
	"github.com/studyhub-io/studyhub-api/internal/service"
	"github.com/studyhub-io/studyhub-api/pkg/cache"
	"github.com/studyhub-io/studyhub-api/pkg/config"
	"github.com/studyhub-io/studyhub-api/pkg/database"
	"github.com/studyhub-io/studyhub-api/pkg/llm"
	"github.com/studyhub-io/studyhub-api/pkg/logger"
	"github.com/studyhub-io/studyhub-api/pkg/storage"
	"github.com/studyhub-io/studyhub-api/pkg/ws"
)

// @title StudyHub API
// @version 1.0.0
// @description Backend for the StudyHub student study-materials platform
// @BasePath /api/v1
// @schemes http
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close() //nolint:errcheck

	// Storage: staged uploads live on local disk, finished files go to the
	// object store with a bounded local fallback when it is unreachable.
	staging, err := storage.NewLocalStore(filepath.Join(cfg.Uploads.StagingDir, "staging"))
	if err != nil {
		logr.Fatal("failed to init staging store", zap.Error(err))
	}
	fallbackLocal, err := storage.NewLocalStore(filepath.Join(cfg.Uploads.StagingDir, "fallback"))
	if err != nil {
		logr.Fatal("failed to init fallback store", zap.Error(err))
	}
	objectStore, err := storage.NewObjectStore(ctx, cfg.ObjectStore)
	if err != nil {
		logr.Fatal("failed to init object store", zap.Error(err))
	}
	files := storage.NewFallbackStore(objectStore, fallbackLocal, cfg.Uploads.FallbackMaxSizeBytes, logr)

	uploadSigner := storage.NewSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	uploadRepo := repository.NewUploadRepository(db)
	chatRepo := repository.NewChatRepository(db)
	quizRepo := repository.NewQuizRepository(db)
	flagRepo := repository.NewFlagRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	gemini := llm.NewGemini(cfg.LLM, logr)
	hub := ws.NewHub(logr)
	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "studyhub-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	catalogSvc := service.NewCatalogService(catalogRepo, validate, logr)

	uploadSvc := service.NewUploadService(uploadRepo, staging, files, uploadSigner, cfg.Uploads, validate, logr)
	uploadSvc.SetMetrics(metricsSvc)

	materialSvc := service.NewMaterialService(materialRepo, userRepo, catalogRepo, uploadSvc, files, uploadSigner, validate, logr)
	chatSvc := service.NewChatService(chatRepo, materialSvc, gemini, cfg.Chat, validate, logr)
	quizSvc := service.NewQuizService(quizRepo, materialSvc, gemini, cfg.Quiz, validate, logr)
	moderationSvc := service.NewModerationService(flagRepo, materialSvc, userRepo, userRepo, validate, logr)

	pipelineSvc := service.NewPipelineService(materialRepo, userRepo, files, gemini, hub, cfg.Pipeline, logr)
	pipelineSvc.SetMetrics(metricsSvc)
	materialSvc.SetIngestEnqueuer(pipelineSvc.Enqueue)
	pipelineSvc.Start(ctx)
	defer pipelineSvc.Stop()

	adminSvc := service.NewAdminService(statsRepo, materialRepo, flagRepo, cacheRepo, materialSvc, userRepo, cfg.AdminStats, validate, logr)
	adminSvc.SetMetrics(metricsSvc)
	adminSvc.RegisterQueue(pipelineSvc)

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		reportStore, err := storage.NewLocalStore(cfg.Reports.StorageDir)
		if err != nil {
			logr.Fatal("failed to init report store", zap.Error(err))
		}
		reportSigner := storage.NewSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc = service.NewReportService(repository.NewReportRepository(db), statsRepo, materialRepo, flagRepo, reportStore, reportSigner, cfg.Reports, validate, logr)
		reportSvc.Start(ctx)
		defer reportSvc.Stop()
		reportSvc.Recover(ctx)
		adminSvc.RegisterQueue(reportSvc)

		go func() {
			ticker := time.NewTicker(cfg.Reports.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					reportSvc.CleanupFinished(ctx, cfg.Reports.SignedURLTTL)
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(cfg.Uploads.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := uploadSvc.SweepExpired(ctx); n > 0 {
					logr.Info("swept expired upload sessions", zap.Int("count", n))
				}
			}
		}
	}()

	handlers := router.Handlers{
		Auth:     handler.NewAuthHandler(authSvc),
		Users:    handler.NewUserHandler(userSvc),
		Catalog:  handler.NewCatalogHandler(catalogSvc),
		Material: handler.NewMaterialHandler(materialSvc, uploadSvc, moderationSvc),
		Uploads:  handler.NewUploadHandler(uploadSvc),
		Chat:     handler.NewChatHandler(chatSvc),
		Quiz:     handler.NewQuizHandler(quizSvc),
		Admin:    handler.NewAdminHandler(adminSvc, moderationSvc),
		Reports:  handler.NewReportHandler(reportSvc),
		WS:       handler.NewWSHandler(hub, logr),
		Metrics:  handler.NewMetricsHandler(metricsSvc),
	}

	engine := router.Setup(cfg, logr, handlers, authSvc, metricsSvc, userRepo)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
