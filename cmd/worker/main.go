package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/analytics-hub/authhub/internal/app"
	"github.com/analytics-hub/authhub/internal/authz"
	"github.com/analytics-hub/authhub/internal/grants"
	"github.com/analytics-hub/authhub/internal/menu"
	"github.com/analytics-hub/authhub/internal/platform/cache"
	"github.com/analytics-hub/authhub/internal/platform/db"
	"github.com/analytics-hub/authhub/internal/shared"
	"github.com/analytics-hub/authhub/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	authzCache := authz.NewCache(redisClient, cfg.AuthzCacheTTL)
	if err := authzCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("subscribe cache invalidation", slog.Any("error", err))
	}

	auditLogger := shared.NewAuditLogger(pool)
	grantsRepo := grants.NewRepository(pool)
	menuRepo := menu.NewRepository(pool)
	menuService := menu.NewService(menuRepo, grantsRepo, authzCache, auditLogger)

	sweepJob := jobs.NewExpirySweepJob(grantsRepo, authzCache, logger, nil)
	warmupJob := jobs.NewMenuWarmupJob(menuService, grantsRepo, logger, nil)

	sweepTask, err := jobs.NewExpirySweepTask("")
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewMenuWarmupTask(0)
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskGrantsExpirySweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskMenuCacheWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ExpirySweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.MenuWarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
