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
	infraredis "github.com/kursadbilgin/inventory-notifier/internal/infra/redis"
	"github.com/kursadbilgin/inventory-notifier/internal/observability"
	"github.com/kursadbilgin/inventory-notifier/internal/ratelimit"
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

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	var limiter ratelimit.RateLimiter = ratelimit.Unlimited{}
	if cfg.PollRateLimitPerSec > 0 {
		limiter, err = infraredis.NewRedisRateLimiter(rdb, cfg.PollRateLimitPerSec)
		if err != nil {
			logger.Fatal("poll rate limiter initialization failed", zap.Error(err))
		}
	}

	metrics := observability.NewMetrics()

	users := repository.NewGormUserRepo(db)
	notificationService, err := service.NewNotificationService(
		repository.NewGormNotificationRepo(db),
		repository.NewGormDeliveryRepo(db),
		service.NewActiveUsersPolicy(users),
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

	app := fiber.New(fiber.Config{
		AppName:               "inventory-notifier-api",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(handler.RequestContext())
	app.Use(metrics.HTTPMiddleware())

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, handler.PostgresCheck(sqlDB), handler.RedisCheck(rdb))

	pollInterval := time.Duration(cfg.PollIntervalSeconds) * time.Second
	pollThrottle := handler.PollThrottle(limiter, logger, metrics)
	if err := handler.RegisterNotificationRoutes(app, notificationService, pollInterval, pollThrottle); err != nil {
		logger.Fatal("notification routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterRevisionRoutes(app, revisionService); err != nil {
		logger.Fatal("revision routes registration failed", zap.Error(err))
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("inventory-notifier api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("inventory-notifier api shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("inventory-notifier api stopped with error", zap.Error(err))
	}
}
