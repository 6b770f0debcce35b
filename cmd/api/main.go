package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/supermarks-api/internal/config"
	"github.com/noah-isme/supermarks-api/internal/database"
	"github.com/noah-isme/supermarks-api/internal/grading"
	"github.com/noah-isme/supermarks-api/internal/handler"
	"github.com/noah-isme/supermarks-api/internal/middleware"
	"github.com/noah-isme/supermarks-api/internal/observability"
	"github.com/noah-isme/supermarks-api/internal/ocr"
	"github.com/noah-isme/supermarks-api/internal/pipeline"
	"github.com/noah-isme/supermarks-api/internal/repository"
	"github.com/noah-isme/supermarks-api/internal/router"
	"github.com/noah-isme/supermarks-api/internal/service"
	"github.com/noah-isme/supermarks-api/internal/storage"
	"github.com/noah-isme/supermarks-api/pkg/pdfraster"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx := context.Background()

	db, err := database.Connect(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to connect to database")
	}

	probes := map[string]handler.HealthProbe{"database": databaseProbe(db)}

	store, err := buildStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StorageBackend).Msg("failed to initialise artifact store")
	}

	converter, err := buildConverter(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("converter", cfg.PDFConverter).Msg("failed to initialise pdf converter")
	}
	if closer, ok := converter.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	if err := converter.Available(ctx); err != nil {
		// PDF submissions fail with this hint until a converter is installed.
		logger.Warn().Err(err).Str("converter", converter.Name()).Str("hint", pipeline.HintFor(err)).Msg("pdf converter unavailable")
	}

	locker := pipeline.Locker(pipeline.NewMemoryLocker(cfg.LockWaitTimeout))
	keyLocker := pipeline.Locker(pipeline.NewMemoryLocker(cfg.LockWaitTimeout))
	if cfg.LockBackend == "redis" {
		redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()

		locker = pipeline.NewRedisLocker(redisClient, pipeline.RedisLockerConfig{
			TTL:         cfg.LockTTL,
			WaitTimeout: cfg.LockWaitTimeout,
			Logger:      logger,
		})
		keyLocker = pipeline.NewRedisLocker(redisClient, pipeline.RedisLockerConfig{
			Prefix:      "supermarks:lock:exam_key",
			TTL:         cfg.LockTTL,
			WaitTimeout: cfg.LockWaitTimeout,
			Logger:      logger,
		})
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	publisher := pipeline.Publisher(pipeline.NopPublisher{})
	if cfg.NATSURL != "" {
		conn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer conn.Drain()

		publisher = pipeline.NewNATSPublisher(conn, cfg.EventsSubjectPrefix, logger)
		probes["nats"] = natsProbe(conn)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	examRepo := repository.NewExamRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	pipelineRepo := repository.NewPipelineRepository(db)
	answerKeyRepo := repository.NewAnswerKeyRepository(db)

	pageBuilder := pipeline.NewPageBuilder(converter, cfg.PDFDPI)

	examService := service.NewExamService(examRepo, validate, logger)
	submissionService := service.NewSubmissionService(submissionRepo, examRepo, store, validate, cfg.UploadMaxMB, logger)
	pipelineService := service.NewPipelineService(service.PipelineDependencies{
		Repo:      pipelineRepo,
		Store:     store,
		Pages:     pageBuilder,
		OCR:       buildProviders(cfg, logger),
		Graders:   grading.DefaultRegistry(),
		Locker:    locker,
		Publisher: publisher,
		Logger:    logger,
	})
	answerKeyService := service.NewAnswerKeyService(service.AnswerKeyDependencies{
		Repo:        answerKeyRepo,
		Exams:       examRepo,
		Store:       store,
		Pages:       pageBuilder,
		Locker:      keyLocker,
		UploadMaxMB: cfg.UploadMaxMB,
		Logger:      logger,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		// Several files may share one upload request.
		BodyLimit: int(cfg.UploadLimitBytes()) * 4,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSAllowOrigins,
		AccessLog:    cfg.AccessLog,
	})
	app.Get("/metrics", observability.MetricsHandler())
	router.Register(app, cfg, router.Dependencies{
		ExamHandler:       handler.NewExamHandler(examService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		PipelineHandler:   handler.NewPipelineHandler(pipelineService, logger),
		AnswerKeyHandler:  handler.NewAnswerKeyHandler(answerKeyService, logger),
		HealthProbes:      probes,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	logger.Info().
		Str("address", cfg.HTTPAddress()).
		Str("storage", cfg.StorageBackend).
		Str("pdf_converter", converter.Name()).
		Int("pdf_dpi", pageBuilder.DPI()).
		Str("lock", cfg.LockBackend).
		Msg("supermarks api started")

	waitForShutdown(app, logger)
}

func buildStore(cfg config.Config, logger zerolog.Logger) (storage.Store, error) {
	if cfg.StorageBackend == "cloudinary" {
		return storage.NewCloudinary(storage.CloudinaryConfig{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
	}
	return storage.NewLocal(cfg.DataDir, logger)
}

func buildConverter(cfg config.Config, logger zerolog.Logger) (pdfraster.Converter, error) {
	switch cfg.PDFConverter {
	case "docker":
		return pdfraster.NewDocker(pdfraster.DockerConfig{
			Host:          cfg.DockerHost,
			Image:         cfg.PDFDockerImage,
			Timeout:       cfg.PDFTimeout,
			MemoryLimitMB: int64(cfg.PDFMemoryMB),
			Logger:        logger,
		})
	case "none":
		return pdfraster.Disabled{}, nil
	default:
		return pdfraster.NewPoppler(cfg.PDFTimeout, logger), nil
	}
}

// buildProviders registers every OCR engine. Engines that are not configured resolve to an
// unavailable error carrying setup instructions.
func buildProviders(cfg config.Config, logger zerolog.Logger) *ocr.Registry {
	registry := ocr.NewRegistry()
	registry.Register(ocr.StubName, func() (ocr.Provider, error) { return ocr.Stub{}, nil })
	registry.Register(ocr.Pix2TextName, ocr.NewPix2TextFactory(cfg.Pix2TextURL, 0, logger))
	registry.Register(ocr.TesseractName, ocr.NewTesseractFactory(cfg.TesseractLanguages, logger))
	registry.Register(ocr.OpenAIName, ocr.NewOpenAIFactory(ocr.OpenAIConfig{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIModel,
		Logger: logger,
	}))
	return registry
}

func databaseProbe(db *gorm.DB) handler.HealthProbe {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

func natsProbe(conn *nats.Conn) handler.HealthProbe {
	return func(context.Context) error {
		if !conn.IsConnected() {
			return errors.New("nats disconnected")
		}
		return nil
	}
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
