package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/inventory-notifier/internal/config"
	"github.com/kursadbilgin/inventory-notifier/internal/handler"
	"github.com/kursadbilgin/inventory-notifier/internal/infra/postgresql"
	"github.com/kursadbilgin/inventory-notifier/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/inventory-notifier/internal/observability"
	"github.com/kursadbilgin/inventory-notifier/internal/queue"
	"github.com/kursadbilgin/inventory-notifier/internal/repository"
	"github.com/kursadbilgin/inventory-notifier/internal/service"
	"github.com/kursadbilgin/inventory-notifier/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, postgresql.PoolOptions{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rmq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rmq.Close()

	metrics := observability.NewMetrics()

	notificationService, err := service.NewNotificationService(
		repository.NewGormNotificationRepo(db),
		repository.NewGormDeliveryRepo(db),
		service.NewActiveUsersPolicy(repository.NewGormUserRepo(db)),
		logger,
		metrics,
	)
	if err != nil {
		logger.Fatal("notification service initialization failed", zap.Error(err))
	}

	revisionService, err := service.NewRevisionService(repository.NewGormRevisionRepo(db), logger, metrics)
	if err != nil {
		logger.Fatal("revision service initialization failed", zap.Error(err))
	}

	worker, err := service.NewIntakeWorker(
		notificationService,
		revisionService,
		queue.NewRabbitMQConsumer(rmq, cfg.WorkerPrefetch, logger),
		cfg.WorkerConcurrency,
		logger,
		metrics,
	)
	if err != nil {
		logger.Fatal("intake worker initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:               "inventory-notifier-worker",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, handler.PostgresCheck(sqlDB), handler.RabbitMQCheck(rmq.Ping))

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("inventory-notifier worker started",
			zap.Int("concurrency", cfg.WorkerConcurrency),
			zap.Int("prefetch", cfg.WorkerPrefetch),
		)
		return worker.Start(groupCtx)
	})
	g.Go(func() error {
		return app.Listen(fmt.Sprintf(":%d", cfg.WorkerHealthPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("inventory-notifier worker shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("inventory-notifier worker stopped with error", zap.Error(err))
	}
}
