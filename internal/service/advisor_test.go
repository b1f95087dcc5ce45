package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/cache"
	"github.com/boddenberg/card-tracker-bfa-go/internal/service"
)

func withAdvisor(a *mockAdvisor) func(*service.SessionDeps, *service.SessionConfig) {
	return func(deps *service.SessionDeps, _ *service.SessionConfig) { deps.Advisor = a }
}

func TestChat_AppendsQuestionAndReply(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), withAdvisor(&mockAdvisor{text: "Pay the Bonus card first."}))
	s := h.signIn(t, "u1")

	reply, ok, err := s.Chat(context.Background(), "  which card first?  ")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !ok || reply.Role != domain.ChatRoleAssistant || reply.Content != "Pay the Bonus card first." {
		t.Errorf("unexpected reply %+v (ok=%v)", reply, ok)
	}

	chat := s.Snapshot().Chat
	if len(chat) != 2 || chat[0].Content != "which card first?" {
		t.Fatalf("expected the trimmed question and the reply, got %+v", chat)
	}
	s.Flush()
	if got := h.gw.called("AppendChatMessage"); got != 2 {
		t.Errorf("expected both messages to be persisted, got %d", got)
	}
}

func TestChat_FallbackStaysOutOfTranscript(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), withAdvisor(&mockAdvisor{err: errors.New("timeout")}))
	s := h.signIn(t, "u1")

	reply, ok, err := s.Chat(context.Background(), "hello")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if ok || reply.Content != service.AdvisorFallback {
		t.Errorf("expected the fallback, got %+v (ok=%v)", reply, ok)
	}
	if n := len(s.Snapshot().Chat); n != 1 {
		t.Errorf("expected only the question in the transcript, got %d", n)
	}
}

func TestAdvise(t *testing.T) {
	a := &mockAdvisor{text: "Keep utilization under 30%."}
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), withAdvisor(a))
	s := h.local(t)

	if text, ok := s.Advise(context.Background()); !ok || text != a.text {
		t.Errorf("expected advice, got %q (ok=%v)", text, ok)
	}

	a.text = "   "
	if text, ok := s.Advise(context.Background()); ok || text != service.AdvisorFallback {
		t.Errorf("expected the fallback for a blank answer, got %q (ok=%v)", text, ok)
	}
}

func TestClearChat(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), withAdvisor(&mockAdvisor{text: "ok"}))
	s := h.signIn(t, "u1")
	ctx := context.Background()

	if _, _, err := s.Chat(ctx, "hi"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if err := s.ClearChat(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	s.Flush()

	if len(s.Snapshot().Chat) != 0 || len(h.gw.snapshot("u1").Chat) != 0 {
		t.Error("expected the transcript to be cleared locally and remotely")
	}
}

func TestAdvise_CachedPerDataFingerprint(t *testing.T) {
	a := &mockAdvisor{text: "Pay more than the minimum."}
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), func(deps *service.SessionDeps, _ *service.SessionConfig) {
		deps.Advisor = a
		deps.AdviceCache = cache.New[string](time.Minute)
	})
	s := h.local(t)
	ctx := context.Background()

	s.Advise(ctx)
	s.Advise(ctx)
	if a.calls != 1 {
		t.Fatalf("expected one advisor call for unchanged data, got %d", a.calls)
	}
	if hits := h.metrics.CacheHitCount("advice"); hits != 1 {
		t.Errorf("expected one cache hit, got %v", hits)
	}

	if _, err := s.AddCard(ctx, testCard("c1")); err != nil {
		t.Fatalf("add card: %v", err)
	}
	s.Advise(ctx)
	if a.calls != 2 {
		t.Errorf("expected new data to bypass the cache, got %d calls", a.calls)
	}
}
