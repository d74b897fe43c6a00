package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/complaint-service/internal/api/http"
	"github.com/spec-kit/complaint-service/internal/api/http/handlers"
	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/classifier"
	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/persistence"
	"github.com/spec-kit/complaint-service/internal/repository"
	"github.com/spec-kit/complaint-service/internal/service"
	"github.com/spec-kit/complaint-service/internal/storage"
	"github.com/spec-kit/complaint-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	pool := pg.PoolHandle()
	if pool == nil {
		logger.Fatal("POSTGRES_DSN is required")
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	blobs, err := storage.OpenBlobStore(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("failed to open blob store", zap.Error(err))
	}
	defer blobs.Close() //nolint:errcheck

	gate, err := auth.NewDefaultGate()
	if err != nil {
		logger.Fatal("failed to build authorization gate", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(pool)
	complaintRepo := repository.NewComplaintRepository(pool)
	historyRepo := repository.NewHistoryRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, redis, logger, cfg.Events)
	worker.StartNotificationWorker(notificationService)
	historyService := service.NewHistoryService(historyRepo, complaintRepo, gate, logger)
	historyService.RegisterHandlers(dispatcher)

	eventWorker := worker.NewEventStreamWorker(redis, cfg.Events.Channel, logger)
	go func() {
		if err := eventWorker.Run(ctx); err != nil {
			logger.Warn("event stream worker stopped", zap.Error(err))
		}
	}()

	authService := service.NewAuthService(*cfg, userRepo, logger)
	if err := authService.EnsureSuperadmin(ctx, cfg.Auth.SuperadminEmail, cfg.Auth.SuperadminPassword); err != nil {
		logger.Fatal("failed to bootstrap superadmin", zap.Error(err))
	}
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		ComplaintRepo: complaintRepo,
		Blobs:         blobs,
		Classifier:    classifier.New(cfg.Classifier.URL, cfg.Classifier.Timeout(), logger),
		Gate:          gate,
		Dispatcher:    dispatcher,
		Logger:        logger,
	})
	userService := service.NewUserService(userRepo, gate)
	statsService := service.NewStatsService(complaintRepo, userRepo, gate)

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: cfg.Storage.MaxUploadBytes(),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
		"postgres": pg,
		"redis":    redis,
		"blob":     blobs,
	}, metrics)
	healthHandler.SetEventCounter(eventWorker)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Users:          handlers.NewUsersHandler(authService, userService),
		Complaints:     handlers.NewComplaintsHandler(lifecycle),
		Stats:          handlers.NewStatsHandler(statsService),
		History:        handlers.NewHistoryHandler(historyService),
		Media:          handlers.NewMediaHandler(blobs),
		AuthMiddleware: authMiddleware,
		Gate:           gate,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
