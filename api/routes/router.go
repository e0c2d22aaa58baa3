package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HuuThai2910/wisdom-books-sub000/api/controllers"
	"github.com/HuuThai2910/wisdom-books-sub000/api/middleware"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/config"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/logger"
	"github.com/HuuThai2910/wisdom-books-sub000/pkg/redis"
)

// Deps bundles what the router wires into handlers. Redis and Gatherer are optional.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Sessions controllers.SessionProvider
	Redis    *redis.Client
	Gatherer prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	ready := map[string]controllers.Pinger{}
	if deps.Redis != nil {
		ready["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, ready))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	limits := middleware.RateLimitPolicy{Window: cfg.RateLimit.Window, Limit: cfg.RateLimit.UserLimit}
	// a nil *redis.Client must not become a non-nil interface
	var limiter middleware.WindowLimiter
	if deps.Redis != nil {
		limiter = deps.Redis
	}

	sessions := deps.Sessions
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.UserRateLimit(limits, limiter, logg))

		r.Get("/", controllers.CartView(sessions, logg))
		r.Delete("/", controllers.CartClear(sessions, logg))
		r.Post("/refresh", controllers.CartRefresh(sessions, logg))
		r.Get("/notices", controllers.CartNotices(sessions, logg))
		r.Post("/checkout/complete", controllers.CartCompleteCheckout(sessions, logg))
		r.Post("/select-all/toggle", controllers.CartToggleSelectAll(sessions, logg))

		r.Route("/items", func(r chi.Router) {
			r.Post("/", controllers.CartAddItem(sessions, logg))
			r.Delete("/", controllers.CartRemoveItems(sessions, logg))
			r.Post("/{id}/increment", controllers.CartIncrement(sessions, logg))
			r.Post("/{id}/decrement", controllers.CartDecrement(sessions, logg))
			r.Put("/{id}/quantity-input", controllers.CartQuantityInput(sessions, logg))
			r.Post("/{id}/quantity-blur", controllers.CartQuantityBlur(sessions, logg))
			r.Post("/{id}/toggle-select", controllers.CartToggleSelect(sessions, logg))
		})
	})

	return r
}
