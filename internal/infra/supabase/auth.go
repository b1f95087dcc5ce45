package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignInWithPassword exchanges credentials for the provider's user id.
// Rejected credentials yield ErrUnauthorized; a single attempt is made.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignInWithPassword")
	defer span.End()

	body, err := json.Marshal(passwordGrant{Email: email, Password: password})
	if err != nil {
		return "", err
	}

	var (
		userID   string
		rejected bool
	)
	_, err = c.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/auth/v1/token?grant_type=password", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := readBody(resp)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
			// wrong credentials are not a provider failure
			rejected = true
			return nil, nil
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, fmt.Errorf("auth returned %d: %s", resp.StatusCode, string(raw))
		}

		var tr tokenResponse
		if err := json.Unmarshal(raw, &tr); err != nil {
			return nil, fmt.Errorf("decode token response: %w", err)
		}
		userID = tr.User.ID
		return nil, nil
	})
	if err != nil {
		c.logger.Warn("supabase: sign-in failed", zap.Error(err))
		span.RecordError(err)
		return "", &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}
	if rejected || userID == "" {
		return "", &domain.ErrUnauthorized{Message: "invalid email or password"}
	}

	span.SetAttributes(attribute.String("user.id", userID))
	return userID, nil
}
