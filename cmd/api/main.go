package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/gamehost-backend/api/routes"
	"github.com/angelmondragon/gamehost-backend/internal/billing"
	"github.com/angelmondragon/gamehost-backend/internal/orders"
	"github.com/angelmondragon/gamehost-backend/internal/packages"
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
	"github.com/angelmondragon/gamehost-backend/pkg/pubsub"
	"github.com/angelmondragon/gamehost-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	// The API only pings Pub/Sub for readiness; the outbox publisher owns delivery.
	var pubsubPinger db.Pinger
	if cfg.GCP.ProjectID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.ConsumerRequirements(cfg.PubSub), logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		pubsubPinger = pubsubClient
	}

	params, err := buildServices(ctx, cfg, logg, dbClient)
	if err != nil {
		logg.Error(ctx, "failed to build services", err)
		os.Exit(1)
	}
	params.DB = dbClient
	params.Redis = redisClient
	params.PubSub = pubsubPinger

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": cfg.Service.Kind,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "api server shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.API.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func buildServices(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (routes.RouterParams, error) {
	conn := dbClient.DB()
	usersRepo := users.NewRepository(conn)
	ordersRepo := orders.NewRepository(conn)
	packagesRepo := packages.NewRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	pipeline := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	packagesSvc, err := packages.NewService(packagesRepo)
	if err != nil {
		return routes.RouterParams{}, err
	}
	ordersSvc, err := orders.NewService(ordersRepo, packagesRepo, usersRepo, dbClient, logg)
	if err != nil {
		return routes.RouterParams{}, err
	}

	var gateway billing.Gateway
	if cfg.Midtrans.ServerKey != "" {
		client, err := midtrans.NewClient(ctx, cfg.Midtrans, logg)
		if err != nil {
			return routes.RouterParams{}, err
		}
		gateway = client
	} else {
		logg.Warn(ctx, "midtrans server key missing; payment creation disabled")
	}
	billingSvc, err := billing.NewService(billing.ServiceParams{
		Repo:            billing.NewRepository(conn),
		Orders:          ordersRepo,
		Users:           usersRepo,
		Gateway:         gateway,
		Outbox:          outboxSvc,
		TxRunner:        dbClient,
		Logger:          logg,
		Metrics:         pipeline,
		AllowSimulation: cfg.API.AllowSimulation,
	})
	if err != nil {
		return routes.RouterParams{}, err
	}

	backend, err := provisioning.NewBackend(ctx, cfg, logg)
	if err != nil {
		return routes.RouterParams{}, err
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
		return routes.RouterParams{}, err
	}

	return routes.RouterParams{
		Config:   cfg,
		Logger:   logg,
		Gatherer: prometheus.DefaultGatherer,
		Metrics:  pipeline,
		Packages: packagesSvc,
		Orders:   ordersSvc,
		Billing:  billingSvc,
		Servers:  serversSvc,
	}, nil
}
