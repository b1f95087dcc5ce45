package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/observability"
	"github.com/boddenberg/card-tracker-bfa-go/internal/service"

	"go.uber.org/zap"
)

func TestDueAlerts(t *testing.T) {
	card := testCard("c1")
	card.Balance = 500

	tests := []struct {
		name    string
		now     time.Time
		balance float64
		want    []string
	}{
		{"three days ahead", time.Date(2025, 3, 22, 9, 0, 0, 0, time.UTC), 500, []string{"due-3days-c1-2025-3-22"}},
		{"due today", time.Date(2025, 3, 25, 9, 0, 0, 0, time.UTC), 500, []string{"due-today-c1-2025-3-25"}},
		{"overdue with debt", time.Date(2025, 3, 27, 9, 0, 0, 0, time.UTC), 500, []string{"overdue-c1-2025-3-27"}},
		{"past due but settled", time.Date(2025, 3, 27, 9, 0, 0, 0, time.UTC), 0, nil},
		{"past due in credit", time.Date(2025, 3, 27, 9, 0, 0, 0, time.UTC), -20, nil},
		{"quiet day", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), 500, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := card
			c.Balance = tt.balance
			alerts := service.DueAlerts([]domain.Card{c}, tt.now)

			if len(alerts) != len(tt.want) {
				t.Fatalf("expected %d alerts, got %d: %+v", len(tt.want), len(alerts), alerts)
			}
			for i, key := range tt.want {
				if alerts[i].Key != key {
					t.Errorf("expected key %s, got %s", key, alerts[i].Key)
				}
			}
		})
	}
}

func TestDueAlerts_SeverityAndMessage(t *testing.T) {
	card := testCard("c1")
	card.Balance = 100

	soon := service.DueAlerts([]domain.Card{card}, time.Date(2025, 3, 22, 0, 0, 0, 0, time.UTC))
	if soon[0].Severity != domain.SeverityInfo {
		t.Errorf("expected info for due-soon, got %s", soon[0].Severity)
	}
	if soon[0].Message != "Garanti Bonus c1: due in 3 days" {
		t.Errorf("unexpected message %q", soon[0].Message)
	}

	today := service.DueAlerts([]domain.Card{card}, time.Date(2025, 3, 25, 0, 0, 0, 0, time.UTC))
	if today[0].Severity != domain.SeverityWarning {
		t.Errorf("expected warning for due-today, got %s", today[0].Severity)
	}
}

func TestDueAlerts_DueDayPastMonthEnd(t *testing.T) {
	card := testCard("c1")
	card.DueDay = 31

	alerts := service.DueAlerts([]domain.Card{card}, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC))
	if len(alerts) != 1 || alerts[0].Kind != service.AlertDueToday {
		t.Fatalf("expected due-today on Feb 28 for due day 31, got %+v", alerts)
	}
}

func TestDeadlineScan_IsIdempotent(t *testing.T) {
	now := time.Date(2025, 3, 22, 9, 0, 0, 0, time.UTC)
	h := newHarness(t, now)
	s := h.local(t)
	ctx := context.Background()

	if _, err := s.AddCard(ctx, testCard("c1")); err != nil {
		t.Fatalf("add card: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.RefreshBalances(ctx); err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}

	notes := s.VisibleNotifications()
	if len(notes) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notes))
	}
	if notes[0].DateKey != "due-3days-c1-2025-3-22" {
		t.Errorf("unexpected key %s", notes[0].DateKey)
	}
	if notes[0].IsMandatory {
		t.Error("info alerts are not mandatory")
	}
	if got := h.metrics.NotificationCount(service.AlertDueSoon); got != 1 {
		t.Errorf("expected one emission, got %v", got)
	}
}

func TestDeadlineScan_HistorySurvivesRestart(t *testing.T) {
	now := time.Date(2025, 3, 25, 9, 0, 0, 0, time.UTC)
	h := newHarness(t, now)
	ctx := context.Background()

	s := h.local(t)
	if _, err := s.AddCard(ctx, testCard("c1")); err != nil {
		t.Fatalf("add card: %v", err)
	}
	if err := h.mgr.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// a new process over the same device store
	metrics := observability.NewMetrics()
	restarted := service.NewManager(service.SessionDeps{
		Local:   h.store,
		Metrics: metrics,
		Logger:  zap.NewNop(),
		Now:     h.clock.Now,
	}, service.SessionConfig{})
	t.Cleanup(func() { _ = restarted.Shutdown(ctx) })

	s2, err := restarted.Local(ctx)
	if err != nil {
		t.Fatalf("local session: %v", err)
	}
	if n := len(s2.VisibleNotifications()); n != 1 {
		t.Fatalf("expected the persisted notification only, got %d", n)
	}
	if got := metrics.NotificationCount(service.AlertDueToday); got != 0 {
		t.Errorf("expected no re-emission after restart, got %v", got)
	}
}

func TestDeadlineScan_DismissedAlertStaysQuiet(t *testing.T) {
	now := time.Date(2025, 3, 25, 9, 0, 0, 0, time.UTC)
	h := newHarness(t, now)
	s := h.local(t)
	ctx := context.Background()

	if _, err := s.AddCard(ctx, testCard("c1")); err != nil {
		t.Fatalf("add card: %v", err)
	}
	if err := s.ClearNotifications(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := s.RefreshBalances(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if n := len(s.VisibleNotifications()); n != 0 {
		t.Fatalf("expected cleared history to stay empty for the day, got %d", n)
	}
}

func TestDeadlineScan_HistoryIsCapped(t *testing.T) {
	now := time.Date(2025, 3, 25, 9, 0, 0, 0, time.UTC)
	h := newHarness(t, now)
	s := h.local(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		c := testCard("c" + string(rune('A'+i%26)) + string(rune('a'+i/26)))
		if _, err := s.AddCard(ctx, c); err != nil {
			t.Fatalf("add card: %v", err)
		}
	}

	if n := len(s.Snapshot().Notifications); n != domain.MaxNotificationHistory {
		t.Fatalf("expected history capped at %d, got %d", domain.MaxNotificationHistory, n)
	}
}
