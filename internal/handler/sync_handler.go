package handler

import (
	"net/http"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// 2. Sync: state, triggers, toasts, theme
// ============================================================

func stateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFromContext(r.Context())
		data := s.Snapshot()

		writeJSON(w, http.StatusOK, domain.StateResponse{
			Cards:         data.Cards,
			Transactions:  data.Transactions,
			Categories:    data.Categories,
			Notifications: s.VisibleNotifications(),
			AutoPayments:  data.AutoPayments,
			Chat:          data.Chat,
			Toasts:        s.Toasts(),
			Sync:          s.Status(),
		})
	}
}

func syncRefreshHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sync/refresh")
		defer span.End()

		s := sessionFromContext(ctx)
		if s.UserID() == "" {
			writeJSON(w, http.StatusOK, map[string]any{"applied": false, "sync": s.Status()})
			return
		}

		applied, err := s.Reconcile(ctx, service.TriggerManual)
		if err != nil {
			handleServiceError(w, &domain.ErrExternalService{Service: "supabase", Err: err}, logger)
			return
		}
		span.SetAttributes(attribute.Bool("sync.applied", applied))

		writeJSON(w, http.StatusOK, map[string]any{"applied": applied, "sync": s.Status()})
	}
}

func syncForegroundHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/sync/foreground")
		defer span.End()

		s := sessionFromContext(ctx)
		if s.UserID() == "" {
			writeJSON(w, http.StatusOK, map[string]any{"applied": false, "sync": s.Status()})
			return
		}

		applied, err := s.Foreground(ctx)
		if err != nil {
			// the flag is set regardless; the catch-up fetch will be retried
			logger.Warn("foreground reconcile failed", zap.Error(err))
		}

		writeJSON(w, http.StatusOK, map[string]any{"applied": applied, "sync": s.Status()})
	}
}

func syncBackgroundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFromContext(r.Context())
		s.Background()
		writeJSON(w, http.StatusOK, s.Status())
	}
}

func syncStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionFromContext(r.Context()).Status())
	}
}

func listToastsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"toasts": sessionFromContext(r.Context()).Toasts()})
	}
}

func dismissToastHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "toastId")
		if !sessionFromContext(r.Context()).DismissToast(id) {
			writeError(w, http.StatusNotFound, "toast not found: "+id)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getThemeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		theme, err := sessionFromContext(r.Context()).Theme(r.Context())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if theme == "" {
			theme = "system"
		}
		writeJSON(w, http.StatusOK, domain.ThemeRequest{Theme: theme})
	}
}

func setThemeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.ThemeRequest
		if err := decodeAndValidate(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := sessionFromContext(r.Context()).SetTheme(r.Context(), req.Theme); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, req)
	}
}
