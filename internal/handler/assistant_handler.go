package handler

import (
	"net/http"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// 9. Advisor
// ============================================================

// adviceHandler always answers 200; an unavailable advisor yields the
// fallback text with fallback=true.
func adviceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/assistant/advice")
		defer span.End()

		text, ok := sessionFromContext(ctx).Advise(ctx)
		writeJSON(w, http.StatusOK, domain.AdviceResponse{Text: text, Fallback: !ok})
	}
}

func chatHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/chat")
		defer span.End()

		var req domain.ChatRequest
		if err := decodeAndValidate(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		reply, ok, err := sessionFromContext(ctx).Chat(ctx, req.Message)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.ChatResponse{Reply: reply, Fallback: !ok})
	}
}

func clearChatHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/chat")
		defer span.End()

		if err := sessionFromContext(ctx).ClearChat(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
