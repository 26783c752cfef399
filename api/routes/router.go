package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/gamehost-backend/api/controllers"
	billingcontrollers "github.com/angelmondragon/gamehost-backend/api/controllers/billing"
	ordercontrollers "github.com/angelmondragon/gamehost-backend/api/controllers/orders"
	servercontrollers "github.com/angelmondragon/gamehost-backend/api/controllers/servers"
	webhookcontrollers "github.com/angelmondragon/gamehost-backend/api/controllers/webhooks"
	"github.com/angelmondragon/gamehost-backend/api/middleware"
	"github.com/angelmondragon/gamehost-backend/internal/billing"
	"github.com/angelmondragon/gamehost-backend/internal/orders"
	"github.com/angelmondragon/gamehost-backend/internal/packages"
	"github.com/angelmondragon/gamehost-backend/internal/servers"
	"github.com/angelmondragon/gamehost-backend/pkg/config"
	"github.com/angelmondragon/gamehost-backend/pkg/db"
	"github.com/angelmondragon/gamehost-backend/pkg/enums"
	"github.com/angelmondragon/gamehost-backend/pkg/logger"
	"github.com/angelmondragon/gamehost-backend/pkg/metrics"
)

// RedisStore is what the HTTP layer needs from Redis.
type RedisStore interface {
	middleware.ResponseStore
	db.Pinger
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    RedisStore
	PubSub   db.Pinger
	Gatherer prometheus.Gatherer
	Metrics  *metrics.PipelineMetrics

	Packages packages.Service
	Orders   orders.Service
	Billing  billing.Service
	Servers  servers.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.API.CORSAllowedOrigins),
	)

	orderPolicy := middleware.NewRateLimitPolicy("orders", cfg.API.RateLimitWindow, cfg.API.OrderRateLimit)
	webhookPolicy := middleware.NewRateLimitPolicy("webhooks", cfg.API.RateLimitWindow, cfg.API.WebhookRateLimit)

	deps := map[string]db.Pinger{
		"database": p.DB,
		"redis":    p.Redis,
	}
	if p.PubSub != nil {
		deps["pubsub"] = p.PubSub
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, p.Redis, logg))
		r.Post("/midtrans", webhookcontrollers.MidtransWebhook(p.Billing, cfg.Midtrans, p.Metrics, logg))
	})

	r.Route("/api/v1/packages", func(r chi.Router) {
		r.Get("/", controllers.PackageList(p.Packages, logg))
		r.Get("/{packageId}", controllers.PackageDetail(p.Packages, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		once := middleware.Idempotency(p.Redis, logg, middleware.IdempotencyTTL)
		onceCritical := middleware.Idempotency(p.Redis, logg, middleware.CriticalIdempotencyTTL)

		r.Route("/api/v1/orders", func(r chi.Router) {
			r.With(middleware.RateLimit(orderPolicy, p.Redis, logg), onceCritical).Post("/", ordercontrollers.Create(p.Orders, logg))
			r.Get("/", ordercontrollers.List(p.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(p.Orders, logg))
		})

		r.Route("/api/v1/invoices", func(r chi.Router) {
			r.Get("/", billingcontrollers.InvoiceList(p.Billing, logg))
			r.Get("/{invoiceId}", billingcontrollers.InvoiceDetail(p.Billing, logg))
			r.With(onceCritical).Post("/{invoiceId}/payments", billingcontrollers.PaymentCreate(p.Billing, logg))
			r.With(once).Post("/{invoiceId}/payments/simulate", billingcontrollers.PaymentSimulate(p.Billing, logg))
		})

		r.Route("/api/v1/servers", func(r chi.Router) {
			r.Get("/", servercontrollers.List(p.Servers, logg))
			r.Get("/summary", servercontrollers.Summary(p.Servers, logg))
			r.Get("/{serverId}", servercontrollers.Detail(p.Servers, logg))
			r.Get("/{serverId}/stats", servercontrollers.Stats(p.Servers, logg))
			r.Get("/{serverId}/panel", servercontrollers.PanelLink(p.Servers, logg))
		})

		r.Route("/api/v1/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.With(once).Post("/packages", controllers.AdminPackageCreate(p.Packages, logg))
			r.Put("/packages/{packageId}", controllers.AdminPackageUpdate(p.Packages, logg))
			r.Delete("/packages/{packageId}", controllers.AdminPackageDelete(p.Packages, logg))
			r.With(once).Post("/servers/{serverId}/suspend", servercontrollers.AdminSuspend(p.Servers, logg))
			r.With(once).Post("/servers/{serverId}/unsuspend", servercontrollers.AdminUnsuspend(p.Servers, logg))
		})
	})

	return r
}
