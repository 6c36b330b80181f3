package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mgalindo/storefront-backend/api/controllers"
	cartcontrollers "github.com/mgalindo/storefront-backend/api/controllers/cart"
	ordercontrollers "github.com/mgalindo/storefront-backend/api/controllers/orders"
	"github.com/mgalindo/storefront-backend/api/middleware"
	"github.com/mgalindo/storefront-backend/internal/cart"
	"github.com/mgalindo/storefront-backend/internal/catalog"
	checkoutsvc "github.com/mgalindo/storefront-backend/internal/checkout"
	"github.com/mgalindo/storefront-backend/internal/orders"
	"github.com/mgalindo/storefront-backend/pkg/config"
	"github.com/mgalindo/storefront-backend/pkg/db"
	"github.com/mgalindo/storefront-backend/pkg/logger"
	"github.com/mgalindo/storefront-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	idemStore redis.IdempotencyStore,
	registry *prometheus.Registry,
	catalogService catalog.Service,
	cartService cart.Service,
	checkoutService checkoutsvc.Service,
	orderService orders.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Session(logg))
		r.Use(middleware.Idempotency(idemStore, cfg.Checkout.IdempotencyTTL, logg))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(catalogService, logg))
			r.Get("/categories", controllers.ProductCategories(catalogService, logg))
			r.Get("/{productId}", controllers.ProductDetail(catalogService, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.Fetch(cartService, logg))
			r.Post("/add", cartcontrollers.Add(cartService, logg))
			r.Patch("/update", cartcontrollers.Update(cartService, logg))
			r.Delete("/remove/{productId}", cartcontrollers.Remove(cartService, logg))
			r.Delete("/clear", cartcontrollers.Clear(cartService, logg))
			r.Post("/validate", ordercontrollers.Validate(checkoutService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/checkout", ordercontrollers.Checkout(checkoutService, logg))
			r.Get("/", ordercontrollers.List(orderService, logg))
			r.Get("/stats", ordercontrollers.Stats(orderService, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(orderService, logg))
			r.Patch("/{orderId}/status", ordercontrollers.UpdateStatus(orderService, logg))
		})
	})

	return r
}
