package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 6. Notifications
// ============================================================

func listNotificationsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		notes := sessionFromContext(r.Context()).VisibleNotifications()

		unread := 0
		for _, n := range notes {
			if !n.Read {
				unread++
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"notifications": notes, "unread": unread})
	}
}

func markNotificationReadHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/notifications/{notificationId}/read")
		defer span.End()

		if err := sessionFromContext(ctx).MarkNotificationRead(ctx, chi.URLParam(r, "notificationId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func markAllNotificationsReadHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/notifications/read-all")
		defer span.End()

		n, err := sessionFromContext(ctx).MarkAllNotificationsRead(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]int{"updated": n})
	}
}

func deleteNotificationHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/notifications/{notificationId}")
		defer span.End()

		if err := sessionFromContext(ctx).DeleteNotification(ctx, chi.URLParam(r, "notificationId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func clearNotificationsHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/notifications/clear")
		defer span.End()

		if err := sessionFromContext(ctx).ClearNotifications(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
