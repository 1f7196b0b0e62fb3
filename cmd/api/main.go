// @title       SMS Gateway API
// @version     1.0
// @description Idempotent SMS submission, rate-limited dispatch and signed delivery receipts.
// @BasePath    /
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	redisCache "github.com/oggyb/sms-gateway/internal/cache/redis"
	"github.com/oggyb/sms-gateway/internal/config"
	"github.com/oggyb/sms-gateway/internal/db/gormdb"
	"github.com/oggyb/sms-gateway/internal/handler"
	"github.com/oggyb/sms-gateway/internal/logging"
	"github.com/oggyb/sms-gateway/internal/notification"
	"github.com/oggyb/sms-gateway/internal/queue"
	"github.com/oggyb/sms-gateway/internal/ratelimit"
	mesgRepo "github.com/oggyb/sms-gateway/internal/repository/gorm/message"
	routes "github.com/oggyb/sms-gateway/internal/router"
	"github.com/oggyb/sms-gateway/internal/scheduler"
	"github.com/oggyb/sms-gateway/internal/server"
	"github.com/oggyb/sms-gateway/internal/service"
	"github.com/oggyb/sms-gateway/internal/signature"
	"github.com/oggyb/sms-gateway/internal/sms"
	"github.com/oggyb/sms-gateway/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("sms gateway exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment/.env.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.App.LogLevel, cfg.App.LogFormat).
		With("app", cfg.App.Name, "env", cfg.App.Env)
	slog.SetDefault(logger)

	// Cancelled on SIGINT/SIGTERM (Ctrl+C, docker stop etc.).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init cache and queue.
	rdb := redisCache.Dial(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer rdb.Close()
	cache := redisCache.New(rdb)
	if err := cache.Ping(ctx); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	dispatchQueue := queue.NewRedisQueue(rdb, "dispatch").WithLease(cfg.Worker.Lease)

	// Init DB.
	db, err := gormdb.New(cfg.PostgresDSN(), gormdb.Options{MaxOpenConns: cfg.DB.MaxOpenConns})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer db.Close()
	if cfg.DB.AutoMigrate {
		if err := mesgRepo.Migrate(db.Conn().(*gorm.DB)); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Init SMS provider.
	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var limiter ratelimit.Limiter
	switch cfg.Gateway.RateLimitBackend {
	case "local":
		limiter = ratelimit.NewLocal(float64(cfg.Gateway.ThroughputPerSec))
	default:
		limiter = ratelimit.NewShared(cache, "dispatch", cfg.Gateway.ThroughputPerSec)
	}

	notifier := notification.Multi{notification.NewLogNotifier(logger)}
	if cfg.Monitor.AlertWebhookURL != "" {
		notifier = append(notifier, notification.NewWebhookNotifier(cfg.Monitor.AlertWebhookURL, nil))
	}

	// Repository and services.
	msgRepository := mesgRepo.NewRepository(db)
	msgSvc := service.NewMessageService(msgRepository, dispatchQueue, cfg.Gateway.SenderWhitelist, logger)
	dispatcher := service.NewDispatcher(
		msgRepository,
		provider,
		dispatchQueue,
		limiter,
		service.RetryPolicy{
			MaxRetries: cfg.Retry.Max,
			BaseDelay:  cfg.Retry.BaseDelay,
			MaxDelay:   cfg.Retry.MaxDelay,
		},
		logger,
	)
	dlr := service.NewDLRProcessor(msgRepository, signature.NewVerifier(cfg.Gateway.WebhookSecret), logger)
	monitor := service.NewOverdueMonitor(
		msgRepository,
		notifier,
		cache,
		cfg.DLRTimeout(),
		cfg.Monitor.AlertCooldown,
		cfg.Monitor.BatchSize,
		logger,
	)

	// Background work.
	pool := worker.NewPool(dispatchQueue, dispatcher.Handle, worker.Options{
		Workers:            cfg.Worker.Concurrency,
		PollInterval:       cfg.Worker.PollInterval,
		TaskTimeout:        cfg.Worker.TaskTimeout,
		LeaseCheckInterval: cfg.Worker.LeaseCheckInterval,
	}, logger)
	cron := scheduler.NewSchedulerService(
		"overdue_dlr",
		monitor,
		cfg.Scheduler.Interval,
		cfg.Scheduler.BatchTimeout,
		logger,
	)

	// HTTP dependencies & server wiring.
	deps := routes.AppDeps{
		Home: handler.NewHomeHandler(map[string]handler.Pinger{
			"postgres": db,
			"redis":    cache,
		}, logger),
		Message: handler.NewMessageHandler(msgSvc, logger),
		DLR:     handler.NewDLRHandler(dlr, logger),
		Admin:   handler.NewAdminHandler(cron, dispatchQueue, logger),
	}
	srv := server.New(cfg.Addr(), deps, cfg.API.ReadHeaderTimeout, logger)

	if err := cron.Start(); err != nil {
		return fmt.Errorf("start overdue monitor: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Addr())
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return pool.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown started")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.API.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := cron.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop overdue monitor: %w", err))
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func newProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (sms.Provider, error) {
	if cfg.SMS.ProviderURL == "" {
		logger.Warn("SMS_PROVIDER_URL is empty, using the in-process simulator")
		return sms.NewSimulator(logger, 0), nil
	}

	client := sms.NewWebhookClient(cfg.SMS.ProviderURL, cfg.SMS.ProviderKey, cfg.SMS.ProviderTimeout, nil)
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("ping sms provider: %w", err)
	}
	return client, nil
}
