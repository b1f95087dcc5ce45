package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/card-tracker-bfa-go/internal/calendar"
	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// 3. Cards
// ============================================================

func listCardsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := sessionFromContext(r.Context()).Snapshot()
		writeJSON(w, http.StatusOK, map[string]any{"cards": data.Cards})
	}
}

func createCardHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/cards")
		defer span.End()

		var req domain.CardRequest
		if err := decodeAndValidate(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		card, err := sessionFromContext(ctx).AddCard(ctx, req.ToCard(""))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("card.id", card.ID))

		writeJSON(w, http.StatusCreated, card)
	}
}

func updateCardHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/cards/{cardId}")
		defer span.End()

		cardID := chi.URLParam(r, "cardId")
		span.SetAttributes(attribute.String("card.id", cardID))

		var req domain.CardRequest
		if err := decodeAndValidate(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		card, err := sessionFromContext(ctx).UpdateCard(ctx, req.ToCard(cardID))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, card)
	}
}

func deleteCardHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/cards/{cardId}")
		defer span.End()

		cardID := chi.URLParam(r, "cardId")
		span.SetAttributes(attribute.String("card.id", cardID))

		if err := sessionFromContext(ctx).DeleteCard(ctx, cardID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// cardStatementHandler: GET /v1/cards/{cardId}/statement?date=YYYY-MM-DD
func cardStatementHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/cards/{cardId}/statement")
		defer span.End()

		var at time.Time
		if v := r.URL.Query().Get("date"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
				return
			}
			at = parsed
		}

		stmt, err := sessionFromContext(ctx).CardStatement(chi.URLParam(r, "cardId"), at)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, stmt)
	}
}

func cardCalendarICSHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/cards/{cardId}/calendar.ics")
		defer span.End()

		card, due, err := sessionFromContext(ctx).NextDue(chi.URLParam(r, "cardId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+calendar.Filename(card, due)+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(calendar.ICS(card, due, time.Now())))
	}
}

func cardCalendarLinkHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/cards/{cardId}/calendar-link")
		defer span.End()

		card, due, err := sessionFromContext(ctx).NextDue(chi.URLParam(r, "cardId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.CalendarLinkResponse{
			URL:     calendar.GoogleCalendarURL(card, due),
			DueDate: due,
		})
	}
}
