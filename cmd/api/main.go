package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/qline/queue-service/internal/api/http"
	"github.com/qline/queue-service/internal/api/http/handlers"
	"github.com/qline/queue-service/internal/auth"
	"github.com/qline/queue-service/internal/config"
	"github.com/qline/queue-service/internal/events"
	"github.com/qline/queue-service/internal/observability"
	"github.com/qline/queue-service/internal/persistence"
	"github.com/qline/queue-service/internal/repository"
	"github.com/qline/queue-service/internal/service"
	"github.com/qline/queue-service/internal/worker"
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

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	queueRepo := repository.NewQueueRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()

	queueService := service.NewQueueService(queueRepo, dispatcher, logger, cfg.Queue.SaveAttempts)
	authService := service.NewAuthService(*cfg, staffRepo)
	notificationService := service.NewNotificationService(dispatcher, redis.Client, logger, cfg.Notification)
	notificationService.RegisterHandlers()

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), staffRepo)

	sweeper := worker.NewNoShowSweeper(queueRepo, queueService, logger, cfg.Queue.SweepInterval())
	if err := sweeper.Start(ctx); err != nil {
		logger.Fatal("failed to start no-show sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Queues:         handlers.NewQueuesHandler(queueService),
		Staff:          handlers.NewStaffHandler(authService),
		StaffQueues:    handlers.NewStaffQueuesHandler(queueService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
