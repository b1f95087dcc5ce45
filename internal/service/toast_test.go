package service_test

import (
	"testing"
	"time"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/cache"
	"github.com/boddenberg/card-tracker-bfa-go/internal/service"
)

func newToastCenter(clock *fakeClock) *service.ToastCenter {
	cooldown := cache.New[struct{}](10 * time.Second).WithClock(clock.Now)
	return service.NewToastCenter(cooldown, 4*time.Second, clock.Now)
}

func TestToastCenter_SuppressesDuplicatesWithinCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	tc := newToastCenter(clock)
	defer tc.Close()

	if _, ok := tc.Push("Card added", domain.SeveritySuccess); !ok {
		t.Fatal("expected the first toast to be raised")
	}
	if _, ok := tc.Push("Card added", domain.SeveritySuccess); ok {
		t.Error("expected the duplicate to be suppressed")
	}
	if _, ok := tc.Push("Card added", domain.SeverityError); !ok {
		t.Error("expected a different severity to be raised")
	}

	clock.Set(clock.Now().Add(11 * time.Second))
	if _, ok := tc.Push("Card added", domain.SeveritySuccess); !ok {
		t.Error("expected the toast to be raised again after the cooldown")
	}
}

func TestToastCenter_ConfirmIgnoresCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	tc := newToastCenter(clock)
	defer tc.Close()

	first := tc.Confirm("Transaction added")
	second := tc.Confirm("Transaction added")
	if first.ID == second.ID {
		t.Error("expected two distinct toasts")
	}
	if n := len(tc.Active()); n != 2 {
		t.Errorf("expected both confirmations to be active, got %d", n)
	}
	if first.Type != domain.SeveritySuccess {
		t.Errorf("expected success severity, got %s", first.Type)
	}
}

func TestToastCenter_ExpiresAndDismisses(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	tc := newToastCenter(clock)
	defer tc.Close()

	first, _ := tc.Push("one", domain.SeverityInfo)
	clock.Set(clock.Now().Add(time.Second))
	second, _ := tc.Push("two", domain.SeverityInfo)

	active := tc.Active()
	if len(active) != 2 || active[0].ID != first.ID {
		t.Fatalf("expected both toasts oldest first, got %+v", active)
	}

	if !tc.Dismiss(second.ID) {
		t.Error("expected dismiss to find the toast")
	}
	if tc.Dismiss(second.ID) {
		t.Error("expected a second dismiss to miss")
	}

	clock.Set(clock.Now().Add(4 * time.Second))
	if n := len(tc.Active()); n != 0 {
		t.Errorf("expected every toast to expire, got %d", n)
	}
}

func TestToastCenter_ResetClearsCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	tc := newToastCenter(clock)
	defer tc.Close()

	tc.Push("saved", domain.SeveritySuccess)
	tc.Reset()

	if len(tc.Active()) != 0 {
		t.Error("expected no toasts after reset")
	}
	if _, ok := tc.Push("saved", domain.SeveritySuccess); !ok {
		t.Error("expected the cooldown to be cleared")
	}
}
