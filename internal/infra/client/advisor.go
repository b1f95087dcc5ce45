// Package client holds HTTP clients for external collaborators.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

// AdvisorClient calls the external AI text service.
type AdvisorClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
}

// NewAdvisorClient creates a new AdvisorClient.
func NewAdvisorClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker) *AdvisorClient {
	return &AdvisorClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
	}
}

type advisorCard struct {
	Name            string  `json:"name"`
	Limit           float64 `json:"limit"`
	Balance         float64 `json:"balance"`
	StatementDay    int     `json:"statementDay"`
	DueDay          int     `json:"dueDay"`
	MinPaymentRatio float64 `json:"minPaymentRatio"`
}

type advisorMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type advisorRequest struct {
	Cards    []advisorCard    `json:"cards"`
	Messages []advisorMessage `json:"messages,omitempty"`
}

type advisorResponse struct {
	Text string `json:"text"`
}

// Advise asks for general advice on the given cards.
func (c *AdvisorClient) Advise(ctx context.Context, cards []domain.Card) (string, error) {
	ctx, span := tracer.Start(ctx, "AdvisorClient.Advise")
	defer span.End()
	span.SetAttributes(attribute.Int("cards.count", len(cards)))

	return c.invoke(ctx, "/v1/advice", advisorRequest{Cards: toAdvisorCards(cards)})
}

// Chat continues a conversation; the last message of transcript is the
// user's new question.
func (c *AdvisorClient) Chat(ctx context.Context, cards []domain.Card, transcript []domain.ChatMessage) (string, error) {
	ctx, span := tracer.Start(ctx, "AdvisorClient.Chat")
	defer span.End()
	span.SetAttributes(attribute.Int("messages.count", len(transcript)))

	msgs := make([]advisorMessage, 0, len(transcript))
	for _, m := range transcript {
		msgs = append(msgs, advisorMessage{Role: string(m.Role), Content: m.Content})
	}
	return c.invoke(ctx, "/v1/chat", advisorRequest{Cards: toAdvisorCards(cards), Messages: msgs})
}

// invoke makes exactly one attempt through the breaker.
func (c *AdvisorClient) invoke(ctx context.Context, path string, payload advisorRequest) (string, error) {
	var out advisorResponse

	err := resilience.Guard(ctx, c.cb, resilience.Config{}, "advisor", func() error {
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("advisor API returned status %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode advisor response: %w", err)
		}
		if strings.TrimSpace(out.Text) == "" {
			return fmt.Errorf("advisor returned an empty answer")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

func toAdvisorCards(cards []domain.Card) []advisorCard {
	out := make([]advisorCard, 0, len(cards))
	for _, c := range cards {
		out = append(out, advisorCard{
			Name:            c.DisplayName(),
			Limit:           c.Limit,
			Balance:         c.Balance,
			StatementDay:    c.StatementDay,
			DueDay:          c.DueDay,
			MinPaymentRatio: c.MinPaymentRatio,
		})
	}
	return out
}
