package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/service"
	"go.uber.org/zap"
)

type contextKey string

const (
	userIDKey  contextKey = "userID"
	sessionKey contextKey = "session"
)

var errMissingToken = errors.New("missing bearer token")

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errMissingToken
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", &domain.ErrUnauthorized{Message: "invalid token format"}
	}
	return parts[1], nil
}

// JWTAuthMiddleware validates Bearer tokens and injects the user id into context.
func JWTAuthMiddleware(authSvc *service.AuthService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				logger.Warn("auth: missing or malformed token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			claims, err := authSvc.ValidateAccessToken(token)
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.Sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionMiddleware resolves the session a request operates on. Requests
// with a token use the signed-in user's session; requests without one use the
// device-only session.
func SessionMiddleware(sessions *service.Manager, authSvc *service.AuthService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var (
				session *service.Session
				err     error
			)
			token, tokenErr := bearerToken(r)
			switch {
			case errors.Is(tokenErr, errMissingToken):
				session, err = sessions.Local(ctx)
			case tokenErr != nil:
				err = tokenErr
			default:
				var claims *service.JWTClaims
				if claims, err = authSvc.ValidateAccessToken(token); err == nil {
					ctx = context.WithValue(ctx, userIDKey, claims.Sub)
					session, err = sessions.Session(claims.Sub)
				}
			}
			if err != nil {
				handleServiceError(w, err, logger)
				return
			}

			ctx = context.WithValue(ctx, sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext extracts the authenticated user id from context.
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

func sessionFromContext(ctx context.Context) *service.Session {
	s, _ := ctx.Value(sessionKey).(*service.Session)
	return s
}
