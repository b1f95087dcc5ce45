package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/service"
)

func TestSignIn_ReplacesPreviousSession(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	first := h.signIn(t, "u1")
	second := h.signIn(t, "u1")

	if first.ID() == second.ID() {
		t.Fatal("expected a fresh session")
	}
	if _, err := first.AddCard(context.Background(), testCard("c1")); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("expected the old session to be closed, got %v", err)
	}
	if h.mgr.Active() != 1 {
		t.Errorf("expected one active session, got %d", h.mgr.Active())
	}
	if h.hub.Subscribers("u1") != 1 {
		t.Errorf("expected one live subscription, got %d", h.hub.Subscribers("u1"))
	}
}

func TestSignIn_SessionsAreIsolated(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	ada := h.signIn(t, "ada")
	bob := h.signIn(t, "bob")

	if _, err := ada.AddCard(ctx, testCard("c1")); err != nil {
		t.Fatalf("add card: %v", err)
	}
	ada.Flush()
	if _, err := bob.Reconcile(ctx, service.TriggerManual); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if len(bob.Snapshot().Cards) != 0 {
		t.Error("expected bob not to see ada's card")
	}
	if h.mgr.Active() != 2 {
		t.Errorf("expected two sessions, got %d", h.mgr.Active())
	}
}

func TestSignIn_RequiresUserID(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	var invalid *domain.ErrValidation
	if _, err := h.mgr.SignIn(context.Background(), ""); !errors.As(err, &invalid) {
		t.Errorf("expected a validation error, got %v", err)
	}
}

func TestSignOut_ForgetWipesDeviceCache(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	s := h.signIn(t, "u1")
	if _, err := s.AddCard(ctx, testCard("c1")); err != nil {
		t.Fatalf("add card: %v", err)
	}
	s.Flush()
	if h.store.snapshot("u1") == nil {
		t.Fatal("expected the device cache to hold the user's data")
	}

	if err := h.mgr.SignOut(ctx, "u1", true); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if h.store.snapshot("u1") != nil {
		t.Error("expected the device cache to be wiped")
	}
	// remote data is untouched
	if len(h.gw.snapshot("u1").Cards) != 1 {
		t.Error("expected the hosted data to survive")
	}
}

func TestSignOut_UnknownUserIsNoOp(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	if err := h.mgr.SignOut(context.Background(), "ghost", false); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestLocalSession_IsReused(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	a := h.local(t)
	b := h.local(t)
	if a != b {
		t.Error("expected the same device-only session")
	}
	if a.UserID() != "" {
		t.Errorf("expected an anonymous session, got %q", a.UserID())
	}
	if a.State() != domain.SyncDisconnected {
		t.Errorf("expected the device-only session to stay disconnected, got %s", a.State())
	}
}
