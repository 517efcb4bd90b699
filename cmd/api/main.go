package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/evidia-go-api/internal/config"
	"github.com/noah-isme/evidia-go-api/internal/database"
	"github.com/noah-isme/evidia-go-api/internal/handler"
	"github.com/noah-isme/evidia-go-api/internal/middleware"
	"github.com/noah-isme/evidia-go-api/internal/repository"
	"github.com/noah-isme/evidia-go-api/internal/router"
	"github.com/noah-isme/evidia-go-api/internal/service"
	"github.com/noah-isme/evidia-go-api/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not configured, result caching disabled")
	}

	blobs, err := buildStorage(cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialise blob storage: %v", err)
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unreachable, audit events stay local")
		} else {
			defer natsConn.Close()
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	evidenceRepo := repository.NewEvidenceRepository(db)
	gradingRepo := repository.NewGradingRepository(db)
	resultRepo := repository.NewResultRepository(db)
	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	reportRepo := repository.NewReportRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	activityService := service.NewActivityService(activityRepo, natsConn, cfg.AuditSubject, logger)
	activityService.Start(ctx)

	resultService := service.NewResultService(resultRepo, redisClient, cfg.ResultCacheTTL, logger)
	evidenceService := service.NewEvidenceService(
		evidenceRepo, userRepo, categoryRepo, reportRepo,
		blobs, validate, activityService,
		cfg.PublicBaseURL, cfg.MaxUploadMB, logger,
	)
	gradingService := service.NewGradingService(
		gradingRepo, evidenceRepo, blobs, validate,
		activityService, resultService, logger,
	)

	evidenceHandler := handler.NewEvidenceHandler(evidenceService, logger)
	gradingHandler := handler.NewGradingHandler(gradingService, resultService, logger)
	activityHandler := handler.NewActivityHandler(activityService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		EvidenceHandler: evidenceHandler,
		GradingHandler:  gradingHandler,
		ActivityHandler: activityHandler,
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func buildStorage(cfg config.Config, logger zerolog.Logger) (storage.BlobStorage, error) {
	switch cfg.StorageDriver {
	case "cloudinary":
		return storage.NewCloudinary(storage.CloudinaryConfig{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
	case "memory":
		return storage.NewMemory(), nil
	default:
		return storage.NewLocal(cfg.UploadDir, logger)
	}
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
