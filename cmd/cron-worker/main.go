package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/gamehost-backend/internal/billing"
	"github.com/angelmondragon/gamehost-backend/internal/cron"
	"github.com/angelmondragon/gamehost-backend/internal/orders"
	"github.com/angelmondragon/gamehost-backend/internal/provisioning"
	"github.com/angelmondragon/gamehost-backend/internal/servers"
	"github.com/angelmondragon/gamehost-backend/internal/users"
	"github.com/angelmondragon/gamehost-backend/pkg/config"
	"github.com/angelmondragon/gamehost-backend/pkg/db"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
	"github.com/angelmondragon/gamehost-backend/pkg/metrics"
	"github.com/angelmondragon/gamehost-backend/pkg/midtrans"
	"github.com/angelmondragon/gamehost-backend/pkg/migrate"
	"github.com/angelmondragon/gamehost-backend/pkg/outbox"
	"github.com/angelmondragon/gamehost-backend/pkg/redis"
)

const lockName = "cron-worker:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Env:         cfg.App.Env,
		Format:      cfg.App.LogFormat,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry, err := buildJobs(ctx, cfg, logg, dbClient)
	if err != nil {
		logg.Error(ctx, "failed to build cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(fmt.Sprintf(lockName, envOrLocal(cfg.App.Env))), cfg.Cron.Interval)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Cron.Interval.String(),
		"jobs":        registry.Names(),
	})
	logg.Info(ctx, "starting cron worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return metrics.Serve(groupCtx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg)
	})
	group.Go(func() error {
		if err := service.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	conn := dbClient.DB()
	ordersRepo := orders.NewRepository(conn)
	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	var gateway billing.Gateway
	if cfg.Midtrans.ServerKey != "" {
		client, err := midtrans.NewClient(ctx, cfg.Midtrans, logg)
		if err != nil {
			return nil, err
		}
		gateway = client
	} else {
		logg.Warn(ctx, "midtrans server key missing; payment refresh disabled")
	}

	billingSvc, err := billing.NewService(billing.ServiceParams{
		Repo:     billing.NewRepository(conn),
		Orders:   ordersRepo,
		Users:    users.NewRepository(conn),
		Gateway:  gateway,
		Outbox:   outboxSvc,
		TxRunner: dbClient,
		Logger:   logg,
		Metrics:  metrics.NewPipelineMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return nil, err
	}

	backend, err := provisioning.NewBackend(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}
	serversSvc, err := servers.NewService(servers.ServiceParams{
		Repo:     servers.NewRepository(conn),
		Backend:  backend,
		Outbox:   outboxSvc,
		TxRunner: dbClient,
		Logger:   logg,
		PanelURL: cfg.Pterodactyl.PanelURL,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	jobs := []func() (cron.Job, error){
		func() (cron.Job, error) {
			return cron.NewInvoiceExpiryJob(cron.InvoiceExpiryJobParams{
				Logger:    logg,
				Billing:   billingSvc,
				BatchSize: cfg.Cron.RecoveryBatchSize,
			})
		},
		func() (cron.Job, error) {
			return cron.NewPaymentRefreshJob(cron.PaymentRefreshJobParams{
				Logger:    logg,
				Billing:   billingSvc,
				MinAge:    cfg.Cron.PaymentRefreshAge,
				BatchSize: cfg.Cron.RecoveryBatchSize,
			})
		},
		func() (cron.Job, error) {
			return cron.NewProvisioningRecoveryJob(cron.ProvisioningRecoveryJobParams{
				Logger:      logg,
				DB:          dbClient,
				Orders:      ordersRepo,
				Outbox:      outboxSvc,
				GracePeriod: cfg.Cron.ProvisioningGracePeriod,
				BatchSize:   cfg.Cron.RecoveryBatchSize,
			})
		},
		func() (cron.Job, error) {
			return cron.NewServerExpiryJob(cron.ServerExpiryJobParams{
				Logger:    logg,
				Servers:   serversSvc,
				BatchSize: cfg.Cron.RecoveryBatchSize,
			})
		},
		func() (cron.Job, error) {
			return cron.NewDLQReportJob(cron.DLQReportJobParams{
				Logger:    logg,
				DLQ:       outbox.NewDLQRepository(conn),
				Lookback:  24 * time.Hour,
				BatchSize: cfg.Cron.RecoveryBatchSize,
			})
		},
		func() (cron.Job, error) {
			return cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
				Logger:     logg,
				DB:         dbClient,
				Repository: outboxRepo,
				Retention:  cfg.Cron.OutboxRetention,
			})
		},
	}
	for _, build := range jobs {
		job, err := build()
		if err != nil {
			return nil, err
		}
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry.Without(cfg.Cron.DisabledJobs...), nil
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
