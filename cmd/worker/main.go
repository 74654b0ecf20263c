package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"provisioning-worker/internal/backoff"
	"provisioning-worker/internal/config"
	"provisioning-worker/internal/entity"
	"provisioning-worker/internal/handler"
	"provisioning-worker/internal/mailer"
	"provisioning-worker/internal/notify"
	"provisioning-worker/internal/repository/postgresql"
	"provisioning-worker/internal/scheduler"
	"provisioning-worker/internal/service"
	"provisioning-worker/internal/worker"
)

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
	licenses := postgresql.NewLicenseRepository(db)
	events := postgresql.NewEventRepository(db)

	// Redis only shortens poll latency; the pool runs on pure polling
	// without it.
	var (
		waker service.Waker
		wake  <-chan struct{}
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, falling back to polling", zap.Error(err))
		} else {
			waker = notify.NewPublisher(rdb, logger)
			sub := notify.NewSubscriber(ctx, rdb)
			defer sub.Close()
			wake = sub.Chan()
		}
	}

	queue := service.NewQueueService(jobs, events, waker, backoff.Default(), cfg.MaxAttempts, logger)
	emails := service.NewEmailEnqueuer(queue)

	var m handler.Mailer
	if cfg.EmailProviderURL != "" {
		m = mailer.NewClient(cfg.EmailProviderURL, cfg.EmailAPIKey, cfg.EmailFrom)
	}

	registry := handler.NewRegistry()
	registry.Register(entity.TypeLicenseProvision, handler.NewProvisionHandler(licenses, events, logger))
	registry.Register(entity.TypeLicenseSuspend, handler.NewSuspendHandler(licenses, events, logger))
	registry.Register(entity.TypeLicenseReactivate, handler.NewSuspendHandler(licenses, events, logger))
	registry.Register(entity.TypeEmailSend, handler.NewEmailHandler(m, events, logger))
	registry.Register(entity.TypeTenantSetup, handler.NewTenantSetupHandler(licenses, events, emails, logger))
	registry.Register(entity.TypeWebhookProcess, handler.NewWebhookHandler(queue, events, logger))

	// Reaper: rescue jobs stuck in processing after a worker crash.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := queue.RequeueStale(ctx, cfg.StaleAfter); err != nil {
					logger.Error("requeue stale", zap.Error(err))
				}
			}
		}
	}()

	sched := scheduler.New(licenses, emails, cfg.ExpiryScanWindow, logger)
	if err := sched.Start(cfg.ExpiryScanCron); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}
	defer sched.Stop()

	pool := worker.NewPool(queue, registry, cfg.Workers, cfg.ClaimBatchSize, cfg.PollInterval, wake, logger)
	pool.Run(ctx)
}

func newLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
