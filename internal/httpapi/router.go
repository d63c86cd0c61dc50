package httpapi

import (
	"context"
	"net/http"
	"time"

	"clothstore-be/internal/logger"
	"clothstore-be/internal/middleware"
	"clothstore-be/internal/payment/webhook"
	"clothstore-be/internal/telemetry"
	"clothstore-be/internal/utils"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Deps struct {
	Orders   *OrderHandlers
	Payments *PaymentHandlers
	Products *ProductHandlers
	Webhooks *webhook.Handler

	Auth    func(http.Handler) http.Handler
	CORS    func(http.Handler) http.Handler
	Limiter *middleware.RateLimiter

	Metrics http.Handler
	// Ping reports whether the database is reachable.
	Ping func(ctx context.Context) error
}

// NewRouter assembles the HTTP surface. The returned handler is wrapped
// with otelhttp so every request starts a server span.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	r.Use(telemetry.RouteAttribute)
	if d.CORS != nil {
		r.Use(d.CORS)
	}

	r.Get("/healthz", healthz(d.Ping))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	// Gateway callbacks carry no user token and are not rate limited.
	r.Get("/payments/vnpay-return", d.Webhooks.ReturnHandler)
	r.Get("/payments/vnpay-ipn", d.Webhooks.IPNHandler)
	r.Post("/payments/vnpay-ipn", d.Webhooks.IPNHandler)

	r.Group(func(r chi.Router) {
		if d.Auth != nil {
			r.Use(d.Auth)
		}
		r.Use(middleware.RequireUser)
		if d.Limiter != nil {
			r.Use(d.Limiter.Middleware)
		}

		r.Route("/orders", d.Orders.Routes)
		r.Route("/products", d.Products.Routes)
		r.Post("/payments/vnpay", d.Payments.createPayment)
		r.Get("/payments/vnpay/{orderID}", d.Payments.paymentStatus)
	})

	return otelhttp.NewHandler(r, "clothstore-be",
		otelhttp.WithSpanNameFormatter(telemetry.SpanName),
	)
}

func healthz(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
