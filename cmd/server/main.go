package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/example/genimage/internal/config"
	"github.com/example/genimage/internal/database"
	"github.com/example/genimage/internal/gemini"
	"github.com/example/genimage/internal/quota"
	"github.com/example/genimage/internal/repository"
	"github.com/example/genimage/internal/server"
	"github.com/example/genimage/internal/service"
	"github.com/example/genimage/internal/storage"
	"github.com/example/genimage/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	generator, err := gemini.NewClient(ctx, cfg, logr)
	if err != nil {
		log.Fatalf("gemini client: %v", err)
	}

	blobs, err := storage.NewStore(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
	})
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	rateLimitRepo := repository.NewRateLimitRepository(db)

	policy := quota.Policy{FailOpen: cfg.QuotaFailOpen}
	userGuard := quota.NewUserGuard(requestRepo, quota.Limits{Minute: cfg.UserMinuteLimit, Daily: cfg.UserDailyLimit}, policy, logr)
	globalGuard := quota.NewGlobalGuard(rateLimitRepo, quota.Limits{Minute: cfg.BackendMinuteLimit, Daily: cfg.BackendDailyLimit}, policy, logr)

	authService := service.NewAuthService(cfg, userRepo)
	generationService := service.NewGenerationService(cfg, logr, requestRepo, userGuard, globalGuard, generator, blobs)
	requestService := service.NewRequestService(requestRepo)

	srv := server.NewServer(cfg, logr, authService, generationService, requestService)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}
}
