package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "provisioning-worker/docs"
	"provisioning-worker/internal/backoff"
	"provisioning-worker/internal/config"
	"provisioning-worker/internal/notify"
	"provisioning-worker/internal/repository/postgresql"
	"provisioning-worker/internal/service"
	httptransport "provisioning-worker/internal/transport/http"
)

// @title Provisioning Worker API
// @version 1.0
// @description Job queue, webhook intake and dead-letter administration for the license provisioning pipeline.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if cfg.RunMigrations {
		if err := postgresql.Migrate(cfg.PostgresDSN); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	db, err := postgresql.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	jobs := postgresql.NewJobRepository(db)
	events := postgresql.NewEventRepository(db)

	var waker service.Waker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, workers will rely on polling", zap.Error(err))
		} else {
			waker = notify.NewPublisher(rdb, logger)
		}
	}

	queue := service.NewQueueService(jobs, events, waker, backoff.Default(), cfg.MaxAttempts, logger)
	h := httptransport.NewHandler(queue, events, logger)

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           httptransport.Routes(h, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("api listening", zap.String("addr", cfg.APIAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("serve", zap.Error(err))
	}
}

func newLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
