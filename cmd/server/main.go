package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"stockledger/m/internal/api"
	"stockledger/m/internal/clock"
	"stockledger/m/internal/config"
	"stockledger/m/internal/database"
	"stockledger/m/internal/ledger"
	"stockledger/m/internal/logging"
	"stockledger/m/internal/migrations"
	"stockledger/m/internal/reportcache"
	"stockledger/m/internal/seed"
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

	clk := clock.New()
	store := stock.NewStore(db, clk)

	if cfg.SeedProductsCSV != "" {
		if _, err := seed.LoadProducts(ctx, store, cfg.SeedProductsCSV, logger); err != nil {
			logger.Warn("seed products", slog.Any("error", err))
		}
	}

	opts := ledger.Options{Clock: clk, Location: cfg.Location(), Logger: logger}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		cache := reportcache.New(redisClient, cfg.ReportCacheTTL)
		if err := cache.Ping(ctx); err != nil {
			logger.Warn("redis ping, reports fall back to direct builds", slog.Any("error", err))
		}
		opts.Cache = cache
	}
	sales := ledger.NewService(store, ledger.NewRepository(db), opts)

	credential, err := cfg.AdminCredential()
	if err != nil {
		logger.Error("admin credential", slog.Any("error", err))
		os.Exit(1)
	}
	auth := api.NewAuthenticator(cfg.AdminUsername, credential, cfg.Secret, cfg.TokenTTL, clk)
	handler := api.New(store, sales, auth, api.Options{
		Logger:         logger,
		Clock:          clk,
		RequestTimeout: cfg.RequestTimeout,
		Production:     cfg.IsProduction(),
		AllowedOrigins: cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("driver", cfg.DBDriver),
			slog.String("ledger_tz", cfg.Location().String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
