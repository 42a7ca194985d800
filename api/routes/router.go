package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atelierworks/atelier-backend/api/controllers"
	webhookcontrollers "github.com/atelierworks/atelier-backend/api/controllers/webhooks"
	"github.com/atelierworks/atelier-backend/api/middleware"
	cartsvc "github.com/atelierworks/atelier-backend/internal/cart"
	checkoutsvc "github.com/atelierworks/atelier-backend/internal/checkout"
	entitlementssvc "github.com/atelierworks/atelier-backend/internal/entitlements"
	orderssvc "github.com/atelierworks/atelier-backend/internal/orders"
	paymentssvc "github.com/atelierworks/atelier-backend/internal/payments"
	"github.com/atelierworks/atelier-backend/pkg/config"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	Pingers      map[string]controllers.Pinger
	Registry     *prometheus.Registry
	Cart         cartsvc.Service
	Checkout     checkoutsvc.Service
	Orders       orderssvc.Service
	Payments     paymentssvc.Service
	Entitlements entitlementssvc.Service
	WebhookGuard *webhookcontrollers.ReplayGuard
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payment", webhookcontrollers.PaymentWebhook(deps.Payments, cfg.Gateway, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(deps.Cart, logg))
			r.Post("/items", controllers.CartAddItem(deps.Cart, logg))
			r.Patch("/items/{itemID}", controllers.CartUpdateItem(deps.Cart, logg))
			r.Delete("/items/{itemID}", controllers.CartRemoveItem(deps.Cart, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.Checkout(deps.Checkout, logg))
			r.Get("/", controllers.OrdersList(deps.Orders, logg))
			r.Get("/{orderID}", controllers.OrderGet(deps.Orders, logg))
			r.Post("/{orderID}/payment", controllers.PaymentCreateIntent(deps.Payments, logg))
			r.Get("/{orderID}/files", controllers.OrderFilesList(deps.Entitlements, logg))
			r.Post("/{orderID}/files/{fileID}/download", controllers.OrderFileDownload(deps.Entitlements, logg))
		})

		r.Post("/payments/confirm", controllers.PaymentConfirm(deps.Payments, logg))
	})

	return r
}
