package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
)

var advisorTracer = otel.Tracer("service/advisor")

// AdvisorFallback is shown whenever the advisor cannot answer.
const AdvisorFallback = "service unavailable"

// Advise asks the advisor for spending advice on the current cards. The
// second result is false when the fallback text was returned.
func (s *Session) Advise(ctx context.Context) (string, bool) {
	ctx, span := advisorTracer.Start(ctx, "Session.Advise")
	defer span.End()

	if s.advisor == nil {
		return AdvisorFallback, false
	}

	s.mu.Lock()
	cards := append([]domain.Card{}, s.data.Cards...)
	key := s.owner + ":" + formatFingerprint(s.fingerprint)
	s.mu.Unlock()

	if s.advice != nil {
		if text, ok := s.advice.Get(key); ok {
			s.metrics.IncrCacheHit("advice")
			return text, true
		}
		s.metrics.IncrCacheMiss("advice")
	}

	text, err := s.advisor.Advise(ctx, cards)
	if err != nil || strings.TrimSpace(text) == "" {
		s.logger.Warn("advisor unavailable, using fallback", zap.Error(err))
		return AdvisorFallback, false
	}
	if s.advice != nil {
		s.advice.Set(key, text)
	}
	return text, true
}

// Chat appends the user's message to the transcript and asks the advisor for
// a reply. A reply is appended and persisted like the question; the fallback
// text is returned to the caller only and never enters the transcript.
func (s *Session) Chat(ctx context.Context, message string) (domain.ChatMessage, bool, error) {
	ctx, span := advisorTracer.Start(ctx, "Session.Chat")
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return domain.ChatMessage{}, false, err
	}
	question := domain.ChatMessage{
		ID:        uuid.NewString(),
		Role:      domain.ChatRoleUser,
		Content:   strings.TrimSpace(message),
		CreatedAt: s.now(),
	}
	s.data.Chat = append(s.data.Chat, question)
	cards := append([]domain.Card{}, s.data.Cards...)
	transcript := append([]domain.ChatMessage{}, s.data.Chat...)
	s.fingerprint = fingerprint(s.data)
	s.mu.Unlock()

	s.persist(s.chatWrite(question))

	fallback := domain.ChatMessage{
		ID:        uuid.NewString(),
		Role:      domain.ChatRoleAssistant,
		Content:   AdvisorFallback,
		CreatedAt: s.now(),
	}
	if s.advisor == nil {
		return fallback, false, nil
	}

	text, err := s.advisor.Chat(ctx, cards, transcript)
	if err != nil || strings.TrimSpace(text) == "" {
		s.logger.Warn("advisor chat unavailable, using fallback", zap.Error(err))
		return fallback, false, nil
	}

	reply := domain.ChatMessage{
		ID:        uuid.NewString(),
		Role:      domain.ChatRoleAssistant,
		Content:   text,
		CreatedAt: s.now(),
	}
	if err := s.lockOpen(); err != nil {
		return reply, true, nil
	}
	s.data.Chat = append(s.data.Chat, reply)
	s.fingerprint = fingerprint(s.data)
	s.mu.Unlock()

	s.persist(s.chatWrite(reply))
	return reply, true, nil
}

// ClearChat empties the transcript.
func (s *Session) ClearChat(ctx context.Context) error {
	if err := s.lockOpen(); err != nil {
		return err
	}
	s.data.Chat = []domain.ChatMessage{}
	s.fingerprint = fingerprint(s.data)
	s.mu.Unlock()

	s.persist(remoteWrite{"chat_history", "DELETE", func(ctx context.Context) error {
		return s.remote.ClearChat(ctx, s.userID)
	}})
	return nil
}

func (s *Session) chatWrite(msg domain.ChatMessage) remoteWrite {
	return remoteWrite{"chat_history", "INSERT", func(ctx context.Context) error {
		return s.remote.AppendChatMessage(ctx, s.userID, msg)
	}}
}
