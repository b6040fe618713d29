package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ovasilenko/chatmarket-backend/api/controllers"
	webhookcontrollers "github.com/ovasilenko/chatmarket-backend/api/controllers/webhooks"
	"github.com/ovasilenko/chatmarket-backend/api/middleware"
	basketsvc "github.com/ovasilenko/chatmarket-backend/internal/basket"
	"github.com/ovasilenko/chatmarket-backend/internal/buyers"
	"github.com/ovasilenko/chatmarket-backend/internal/catalog"
	"github.com/ovasilenko/chatmarket-backend/internal/payments"
	"github.com/ovasilenko/chatmarket-backend/internal/purchases"
	"github.com/ovasilenko/chatmarket-backend/internal/settlement"
	"github.com/ovasilenko/chatmarket-backend/pkg/config"
	"github.com/ovasilenko/chatmarket-backend/pkg/db"
	"github.com/ovasilenko/chatmarket-backend/pkg/logger"
	"github.com/ovasilenko/chatmarket-backend/pkg/metrics"
	"github.com/ovasilenko/chatmarket-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DBPinger       db.Pinger
	Redis          *redis.Client
	Catalog        *catalog.Cache
	Baskets        *basketsvc.Service
	Broker         *payments.Broker
	Reconciler     *settlement.Reconciler
	Buyers         *buyers.Repository
	Purchases      *purchases.Repository
	WebhookMetrics *metrics.WebhookMetrics
	PromRegistry   *prometheus.Registry
}

// NewRouter assembles the API routes.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.DBPinger, p.Redis, p.Logger))
	})

	if p.PromRegistry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.PromRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/payments", webhookcontrollers.PaymentWebhook(
				p.Reconciler, p.Redis, p.Config.Payments.IPNSecret, p.WebhookMetrics, p.Logger))
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/categories", controllers.CatalogCategories(p.Catalog, p.Logger))
			r.Get("/locations", controllers.CatalogLocations(p.Catalog, p.Logger))
			r.Get("/listings", controllers.CatalogListings(p.Catalog, p.Logger))
		})

		r.Route("/buyers/{buyerID}", func(r chi.Router) {
			r.Get("/", controllers.BuyerGet(p.Buyers, p.Logger))
			r.Get("/purchases", controllers.BuyerPurchases(p.Purchases, p.Logger))

			r.Route("/basket", func(r chi.Router) {
				r.Get("/", controllers.BasketGet(p.Baskets, p.Logger))
				r.Post("/entries", controllers.BasketAdd(p.Baskets, p.Logger))
				r.Delete("/entries/{entryID}", controllers.BasketRemove(p.Baskets, p.Logger))
				r.Delete("/", controllers.BasketClear(p.Baskets, p.Logger))
			})

			r.Post("/checkout", controllers.Checkout(p.Broker, p.Logger))
			r.Post("/topup", controllers.TopUp(p.Broker, p.Logger))
		})
	})

	return r
}
