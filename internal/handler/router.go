package handler

import (
	"net/http"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/infra/observability"
	"github.com/boutikcards/chat-commerce-go/internal/infra/realtime"
	"github.com/boutikcards/chat-commerce-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter assembles the HTTP surface: the public chat and payment
// endpoints, the provider webhooks and the authenticated back-office.
func NewRouter(
	conv *service.Conversation,
	reconciler *service.Reconciler,
	payments *service.Payments,
	zones *service.Zones,
	adminSvc *service.Admin,
	sessions *service.Sessions,
	hub *realtime.Hub,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(adminSvc))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. Conversation
		// =============================================
		r.Post("/chat/message", chatMessageHandler(conv, logger))
		r.Get("/chat/sessions/{sessionID}/events", chatEventsHandler(sessions, hub, logger))

		// =============================================
		// 2. Payments
		// =============================================
		r.Post("/payments/initiate", initiatePaymentHandler(payments, logger))

		// =============================================
		// 3. Provider webhooks
		// =============================================
		r.Post("/webhooks/{provider}", webhookHandler(reconciler, logger))

		// =============================================
		// 4. Delivery zones
		// =============================================
		r.Get("/zones/validate", validateCityHandler(zones, logger))

		// =============================================
		// 5. Back-office
		// =============================================
		r.Post("/admin/login", adminLoginHandler(adminSvc, logger))
		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(adminSvc, logger))
			r.Get("/admin/orders", adminListOrdersHandler(adminSvc, logger))
			r.Get("/admin/sessions/{sessionID}", adminSessionHandler(adminSvc, logger))
			r.Get("/admin/zones", adminListZonesHandler(zones, logger))
			r.Post("/admin/zones/refresh", adminRefreshZonesHandler(zones, logger))
			r.Post("/admin/payments/{transactionID}/verify", adminVerifyPaymentHandler(payments, logger))
		})
	})

	return r
}

func healthzHandler(adminSvc *service.Admin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "boutik-api", Status: "healthy", LatencyMs: 0, LastChecked: now},
		}

		if adminSvc != nil {
			start := time.Now()
			status := "healthy"
			if _, err := adminSvc.ListOrders(r.Context(), "", "", 1, 1); err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "supabase", Status: status,
				LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overall := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overall = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
