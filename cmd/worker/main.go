package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"stockledger/m/internal/clock"
	"stockledger/m/internal/config"
	"stockledger/m/internal/database"
	"stockledger/m/internal/jobs"
	"stockledger/m/internal/ledger"
	"stockledger/m/internal/logging"
	"stockledger/m/internal/migrations"
	"stockledger/m/internal/reportcache"
	"stockledger/m/internal/stock"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)

	if cfg.RedisAddr == "" {
		logger.Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}

	db, err := database.Connect(ctx, cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()
	if err := migrations.Run(ctx, db); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	clk := clock.New()
	sales := ledger.NewService(stock.NewStore(db, clk), ledger.NewRepository(db), ledger.Options{
		Cache:    reportcache.New(redisClient, cfg.ReportCacheTTL),
		Clock:    clk,
		Location: cfg.Location(),
		Logger:   logger,
	})

	auditTask, err := jobs.NewAuditTask(jobs.AuditPayload{MaxLogged: 50})
	if err != nil {
		logger.Error("build audit task", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Location:  cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerAudit, Handler: (&jobs.AuditJob{Auditor: sales, Logger: logger}).Handle},
			{Type: jobs.TaskReportWarmup, Handler: (&jobs.WarmupJob{Warmer: sales, Logger: logger}).Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.AuditCron, Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.WarmupCron, Task: jobs.NewWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	client := jobs.NewClient(redisOpts)
	if _, err := client.EnqueueWarmup(ctx); err != nil {
		logger.Warn("enqueue startup warmup", slog.Any("error", err))
	}
	if _, err := client.EnqueueAudit(ctx, jobs.AuditPayload{MaxLogged: 50}); err != nil {
		logger.Warn("enqueue startup audit", slog.Any("error", err))
	}
	if err := client.Close(); err != nil {
		logger.Warn("close job client", slog.Any("error", err))
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
