// Package service holds the per-user session core of the card tracker: the
// sync orchestrator, the optimistic mutations, the deadline engine and the
// auth flow that opens sessions.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/port"
)

var authTracer = otel.Tracer("service/auth")

// AuthService signs users in through the hosted provider and issues the BFA's
// own access tokens.
type AuthService struct {
	provider  port.AuthProvider
	sessions  *Manager
	jwtSecret []byte
	accessTTL time.Duration
	logger    *zap.Logger
}

// NewAuthService creates a new auth service. provider may be nil in
// device-only mode, where sign-in is unavailable.
func NewAuthService(provider port.AuthProvider, sessions *Manager, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		provider:  provider,
		sessions:  sessions,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		logger:    logger,
	}
}

// ============================================================
// Login: POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	if s.provider == nil {
		return nil, &domain.ErrUnauthorized{Message: "sign-in is not available in device-only mode"}
	}

	userID, err := s.provider.SignInWithPassword(ctx, req.Email, req.Password)
	if err != nil {
		s.logger.Warn("login: provider rejected sign-in", zap.Error(err))
		return nil, err
	}
	if userID == "" {
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}
	span.SetAttributes(attribute.String("user.id", userID))

	session, err := s.sessions.SignIn(ctx, userID)
	if err != nil {
		return nil, err
	}

	token, err := s.signAccessToken(userID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	s.logger.Info("login successful", zap.String("user_id", userID))
	return &domain.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int(s.accessTTL.Seconds()),
		UserID:      userID,
		SyncState:   session.State(),
	}, nil
}

// ============================================================
// Logout: POST /v1/auth/logout
// ============================================================

func (s *AuthService) Logout(ctx context.Context, userID string, forget bool) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	return s.sessions.SignOut(ctx, userID, forget)
}

// ============================================================
// ValidateToken: used by middleware
// ============================================================

// JWTClaims represents the custom claims in access tokens.
type JWTClaims struct {
	Sub  string `json:"sub"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token type"}
	}
	return claims, nil
}

func (s *AuthService) signAccessToken(userID string) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Sub:  userID,
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "card-tracker-bfa",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
