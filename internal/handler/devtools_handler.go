package handler

import (
	"net/http"

	"go.uber.org/zap"
)

// ============================================================
// Dev tools: run the periodic sweeps on demand
// ============================================================

func devRefreshBalancesHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/dev/refresh-balances")
		defer span.End()

		s := sessionFromContext(ctx)
		if err := s.RefreshBalances(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		logger.Info("dev: balances refreshed", zap.String("user_id", s.UserID()))
		writeJSON(w, http.StatusOK, map[string]any{"cards": s.Snapshot().Cards})
	}
}

func devProcessAutoPaymentsHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/dev/process-auto-payments")
		defer span.End()

		s := sessionFromContext(ctx)
		n, err := s.ProcessAutoPayments(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		logger.Info("dev: auto-payments processed", zap.String("user_id", s.UserID()), zap.Int("created", n))
		writeJSON(w, http.StatusOK, map[string]int{"created": n})
	}
}
