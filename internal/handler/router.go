package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/observability"
	"github.com/boddenberg/card-tracker-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// sessions and authSvc may be nil, in which case only the operational
// endpoints are served.
func NewRouter(sessions *service.Manager, authSvc *service.AuthService, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(sessions))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	if sessions == nil || authSvc == nil {
		return r
	}

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. Auth
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authLoginHandler(authSvc, logger))

			r.Group(func(r chi.Router) {
				r.Use(JWTAuthMiddleware(authSvc, logger))
				r.Post("/logout", authLogoutHandler(authSvc, logger))
			})
		})

		// Everything below runs against a session: the signed-in user's
		// when a token is sent, the device-only one otherwise.
		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(sessions, authSvc, logger))

			// =============================================
			// 2. Sync
			// =============================================
			r.Get("/state", stateHandler())
			r.Post("/sync/refresh", syncRefreshHandler(logger))
			r.Post("/sync/foreground", syncForegroundHandler(logger))
			r.Post("/sync/background", syncBackgroundHandler())
			r.Get("/sync/status", syncStatusHandler())
			r.Get("/toasts", listToastsHandler())
			r.Delete("/toasts/{toastId}", dismissToastHandler())
			r.Get("/theme", getThemeHandler(logger))
			r.Put("/theme", setThemeHandler(logger))

			// =============================================
			// 3. Cards
			// =============================================
			r.Get("/cards", listCardsHandler())
			r.Post("/cards", createCardHandler(logger))
			r.Put("/cards/{cardId}", updateCardHandler(logger))
			r.Delete("/cards/{cardId}", deleteCardHandler(logger))
			r.Get("/cards/{cardId}/statement", cardStatementHandler(logger))
			r.Get("/cards/{cardId}/calendar.ics", cardCalendarICSHandler(logger))
			r.Get("/cards/{cardId}/calendar-link", cardCalendarLinkHandler(logger))

			// =============================================
			// 4. Transactions
			// =============================================
			r.Post("/transactions", createTransactionHandler(logger))
			r.Put("/transactions/{transactionId}", updateTransactionHandler(logger))
			r.Delete("/transactions/{transactionId}", deleteTransactionHandler(logger))

			// =============================================
			// 5. Categories
			// =============================================
			r.Post("/categories", createCategoryHandler(logger))
			r.Put("/categories/{categoryId}", updateCategoryHandler(logger))
			r.Delete("/categories/{categoryId}", deleteCategoryHandler(logger))

			// =============================================
			// 6. Notifications
			// =============================================
			r.Get("/notifications", listNotificationsHandler())
			r.Post("/notifications/read-all", markAllNotificationsReadHandler(logger))
			r.Post("/notifications/clear", clearNotificationsHandler(logger))
			r.Post("/notifications/{notificationId}/read", markNotificationReadHandler(logger))
			r.Delete("/notifications/{notificationId}", deleteNotificationHandler(logger))

			// =============================================
			// 7. Auto-payments
			// =============================================
			r.Post("/auto-payments", createAutoPaymentHandler(logger))
			r.Put("/auto-payments/{autoPaymentId}", updateAutoPaymentHandler(logger))
			r.Delete("/auto-payments/{autoPaymentId}", deleteAutoPaymentHandler(logger))

			// =============================================
			// 8. Analytics
			// =============================================
			r.Get("/analytics/summary", analyticsSummaryHandler(logger))

			// =============================================
			// 9. Advisor
			// =============================================
			r.Post("/assistant/advice", adviceHandler())
			r.Post("/chat", chatHandler(logger))
			r.Delete("/chat", clearChatHandler(logger))

			// =============================================
			// Dev tools (manual triggers of the sweeps)
			// =============================================
			r.Post("/dev/refresh-balances", devRefreshBalancesHandler(logger))
			r.Post("/dev/process-auto-payments", devProcessAutoPaymentsHandler(logger))
		})
	})

	return r
}

// ============================================================
// Health
// ============================================================

func healthzHandler(sessions *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "bfa-api", Status: "healthy", LastChecked: now},
		}

		if sessions != nil {
			status := "healthy"
			for _, st := range sessions.Statuses() {
				if st.State == domain.SyncError || st.LastError != "" {
					status = "degraded"
					break
				}
			}
			services = append(services, domain.ServiceHealth{
				Name: "sync", Status: status, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
