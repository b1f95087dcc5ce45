package handler

import (
	"net/http"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// 7. Auto-payments
// ============================================================

func createAutoPaymentHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auto-payments")
		defer span.End()

		var req domain.AutoPaymentRequest
		if err := decodeAndValidate(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		ap, err := sessionFromContext(ctx).AddAutoPayment(ctx, req.ToAutoPayment(""))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("auto_payment.id", ap.ID))

		writeJSON(w, http.StatusCreated, ap)
	}
}

func updateAutoPaymentHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/auto-payments/{autoPaymentId}")
		defer span.End()

		var req domain.AutoPaymentRequest
		if err := decodeAndValidate(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		ap, err := sessionFromContext(ctx).UpdateAutoPayment(ctx, req.ToAutoPayment(chi.URLParam(r, "autoPaymentId")))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, ap)
	}
}

func deleteAutoPaymentHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/auto-payments/{autoPaymentId}")
		defer span.End()

		if err := sessionFromContext(ctx).DeleteAutoPayment(ctx, chi.URLParam(r, "autoPaymentId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
