package handler

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// 8. Analytics: GET /v1/analytics/summary?month=YYYY-MM
// ============================================================

func analyticsSummaryHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/analytics/summary")
		defer span.End()

		month := r.URL.Query().Get("month")
		span.SetAttributes(attribute.String("analytics.month", month))

		summary, err := sessionFromContext(ctx).DashboardSummary(month)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, summary)
	}
}
