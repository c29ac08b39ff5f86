package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rollcall/server/internal/config"
	"rollcall/server/internal/engine"
	internalhttp "rollcall/server/internal/http"
	"rollcall/server/internal/jobs"
	"rollcall/server/internal/logging"
	"rollcall/server/internal/model"
	"rollcall/server/internal/store"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defaults := model.Settings{
		CheckinInterval: time.Minute,
		TimerDuration:   cfg.TimerDuration,
	}

	var st store.Store
	switch cfg.StoreBackend {
	case "memory":
		st = store.NewMemory(defaults)
		logger.Info("using in-memory store")
	default:
		pool, err := store.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db connection failed", zap.Error(err))
		}
		defer pool.Close()
		if err := store.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
		st = store.NewPostgres(pool)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Fatal("redis ping failed", zap.Error(err))
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
	}

	eng := engine.New(st, engine.SystemClock(), engine.Config{
		TimerDuration:    cfg.TimerDuration,
		CheckinRetention: cfg.CheckinRetention,
		DeviceIdleLimit:  cfg.DeviceIdleLimit,
	}, logger)

	jobs.StartTimerTick(ctx, eng, cfg.TickInterval, logger)
	jobs.StartSweeps(ctx, eng, cfg.SweepInterval, logger)

	server := internalhttp.NewServer(cfg, eng, redisClient, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}
