package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/realtime"
	"github.com/boddenberg/card-tracker-bfa-go/internal/service"
)

func remoteWithCard(id string) *domain.UserData {
	d := domain.EmptyUserData()
	d.Cards = append(d.Cards, testCard(id))
	d.Categories = domain.DefaultCategories()
	return d
}

func TestSignIn_FetchFailureKeepsCachedState(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	cached := remoteWithCard("cached")
	_ = h.store.SaveSnapshot(context.Background(), "u1", cached)
	h.gw.setFetchErr(errBackendDown)

	s := h.signIn(t, "u1")

	if _, err := s.Card("cached"); err != nil {
		t.Fatal("expected the cached card to survive a failed fetch")
	}
	if got := h.metrics.ReconcileCount(service.TriggerSignIn, "failed"); got != 1 {
		t.Errorf("expected one failed reconcile, got %v", got)
	}
	if st := s.Status(); st.LastError == "" {
		t.Error("expected the failure to be reported in the status")
	}
}

func TestSignIn_EmptyRemoteIsApplied(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	_ = h.store.SaveSnapshot(context.Background(), "u1", remoteWithCard("stale"))

	s := h.signIn(t, "u1")

	snap := s.Snapshot()
	if len(snap.Cards) != 0 {
		t.Fatalf("expected the empty remote account to replace the cache, got %+v", snap.Cards)
	}
	if len(snap.Categories) != 6 {
		t.Errorf("expected default categories to be seeded, got %d", len(snap.Categories))
	}
	if h.gw.called("UpsertCategory") != 6 {
		t.Errorf("expected seeded categories to be persisted, got %d writes", h.gw.called("UpsertCategory"))
	}
	if s.State() != domain.SyncConnected {
		t.Errorf("expected connected, got %s", s.State())
	}
}

func TestReconcile_UnchangedFingerprintIsNoOp(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	h.gw.seed("u1", remoteWithCard("c1"))
	s := h.signIn(t, "u1")
	ctx := context.Background()

	applied, err := s.Reconcile(ctx, service.TriggerPoll)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if applied {
		t.Error("expected a redundant poll to change nothing")
	}
	if got := h.metrics.ReconcileCount(service.TriggerPoll, "unchanged"); got != 1 {
		t.Errorf("expected one unchanged reconcile, got %v", got)
	}

	// another device adds a card
	h.gw.mutate("u1", func(d *domain.UserData) { d.Cards = append(d.Cards, testCard("c2")) })

	applied, err = s.Reconcile(ctx, service.TriggerPoll)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !applied {
		t.Fatal("expected the new card to be applied")
	}
	if len(s.Snapshot().Cards) != 2 {
		t.Errorf("expected 2 cards, got %d", len(s.Snapshot().Cards))
	}
}

func TestReconcile_OwnWritesDoNotTriggerApply(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	s := h.signIn(t, "u1")
	ctx := context.Background()

	if _, err := s.AddCard(ctx, testCard("c1")); err != nil {
		t.Fatalf("add card: %v", err)
	}
	s.Flush()

	applied, err := s.Reconcile(ctx, service.TriggerPoll)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if applied {
		t.Error("expected the remote to match the optimistic state")
	}
}

func TestReconcile_ManualRefreshAlwaysApplies(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	h.gw.seed("u1", remoteWithCard("c1"))
	s := h.signIn(t, "u1")

	// same sizes, different content: invisible to the fingerprint
	h.gw.mutate("u1", func(d *domain.UserData) { d.Cards[0].CardName = "Renamed" })

	if applied, _ := s.Reconcile(context.Background(), service.TriggerPoll); applied {
		t.Fatal("expected the poll to miss a same-size edit")
	}
	applied, err := s.Reconcile(context.Background(), service.TriggerManual)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !applied || cardByID(t, s, "c1").CardName != "Renamed" {
		t.Error("expected a manual refresh to apply the edit")
	}
}

func TestReconcile_FailureKeepsState(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	h.gw.seed("u1", remoteWithCard("c1"))
	s := h.signIn(t, "u1")

	h.gw.setFetchErr(errBackendDown)
	applied, err := s.Reconcile(context.Background(), service.TriggerManual)
	if !errors.Is(err, errBackendDown) {
		t.Fatalf("expected the fetch error, got %v", err)
	}
	if applied {
		t.Error("a failed fetch must not apply")
	}
	if len(s.Snapshot().Cards) != 1 {
		t.Error("expected state to be kept on failure")
	}
}

func TestChannelEvent_TriggersReconcile(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	s := h.signIn(t, "u1")

	h.gw.mutate("u1", func(d *domain.UserData) { d.Cards = append(d.Cards, testCard("remote")) })
	h.hub.Publish(domain.ChangeEvent{Kind: domain.ChangeBroadcast, UserID: "u1", Origin: "other-device", SentAt: time.Now()})

	eventually(t, "remote card to arrive", func() bool {
		_, err := s.Card("remote")
		return err == nil
	})
}

func TestChannelEvent_OwnEchoIsIgnored(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	s := h.signIn(t, "u1")
	before := h.gw.fetchCount()

	h.hub.Publish(domain.ChangeEvent{Kind: domain.ChangeBroadcast, UserID: "u1", Origin: s.ID(), SentAt: time.Now()})
	// a foreign event afterwards proves the loop has drained the echo
	h.hub.Publish(domain.ChangeEvent{Kind: domain.ChangeBroadcast, UserID: "u1", Origin: "other", SentAt: time.Now()})

	eventually(t, "foreign event to be handled", func() bool { return h.gw.fetchCount() > before })
	time.Sleep(20 * time.Millisecond)
	if got := h.gw.fetchCount() - before; got != 1 {
		t.Errorf("expected exactly one fetch, got %d", got)
	}
}

func TestOtherUsersEventsAreNotDelivered(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	h.signIn(t, "u1")
	before := h.gw.fetchCount()

	h.hub.Publish(domain.ChangeEvent{Kind: domain.ChangeBroadcast, UserID: "u2", Origin: "x"})
	time.Sleep(20 * time.Millisecond)

	if h.gw.fetchCount() != before {
		t.Error("expected no reconcile for another user's event")
	}
}

func TestSignIn_SubscriptionOutlivesCallerContext(t *testing.T) {
	var hub *realtime.Hub
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), func(deps *service.SessionDeps, _ *service.SessionConfig) {
		hub = realtime.NewHub()
		deps.Push = &scopedChannel{hub: hub}
	})

	ctx, cancel := context.WithCancel(context.Background())
	s, err := h.mgr.SignIn(ctx, "u1")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	s.Flush()
	// the request that signed in is over
	cancel()
	time.Sleep(20 * time.Millisecond)

	if hub.Subscribers("u1") != 1 {
		t.Fatalf("expected the subscription to stay live, got %d", hub.Subscribers("u1"))
	}
	if s.State() != domain.SyncConnected {
		t.Errorf("expected connected, got %s", s.State())
	}

	h.gw.mutate("u1", func(d *domain.UserData) { d.Cards = append(d.Cards, testCard("remote")) })
	hub.Publish(domain.ChangeEvent{Kind: domain.ChangeBroadcast, UserID: "u1", Origin: "other-device", SentAt: time.Now()})

	eventually(t, "remote card to arrive", func() bool {
		_, err := s.Card("remote")
		return err == nil
	})
}

func TestHealthCheck_RejoinsDroppedChannel(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), func(_ *service.SessionDeps, cfg *service.SessionConfig) {
		cfg.HealthInterval = 10 * time.Millisecond
	})
	s := h.signIn(t, "u1")
	before := h.gw.fetchCount()

	h.hub.Sever("u1")

	eventually(t, "catch-up reconcile after rejoin", func() bool { return h.gw.fetchCount() > before })
	eventually(t, "single live subscription", func() bool { return h.hub.Subscribers("u1") == 1 })
	if s.State() != domain.SyncConnected {
		t.Errorf("expected connected after rejoin, got %s", s.State())
	}

	// the new subscription receives events
	h.gw.mutate("u1", func(d *domain.UserData) { d.Cards = append(d.Cards, testCard("late")) })
	h.hub.Publish(domain.ChangeEvent{Kind: domain.ChangeBroadcast, UserID: "u1", Origin: "other"})
	eventually(t, "event on the new subscription", func() bool {
		_, err := s.Card("late")
		return err == nil
	})
}

func TestForeground_ReconcilesAndFastPolls(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), func(_ *service.SessionDeps, cfg *service.SessionConfig) {
		cfg.AggressivePolling = true
		cfg.FastPollInterval = 10 * time.Millisecond
	})
	s := h.signIn(t, "u1")

	eventually(t, "fast poll while foregrounded", func() bool {
		return h.metrics.ReconcileCount(service.TriggerPoll, "unchanged") >= 2
	})

	s.Background()
	time.Sleep(30 * time.Millisecond)
	paused := h.gw.fetchCount()
	time.Sleep(50 * time.Millisecond)
	if h.gw.fetchCount() != paused {
		t.Error("expected fast polling to pause in the background")
	}

	if _, err := s.Foreground(context.Background()); err != nil {
		t.Fatalf("foreground: %v", err)
	}
	if got := h.metrics.ReconcileCount(service.TriggerForeground, "unchanged"); got != 1 {
		t.Errorf("expected an immediate reconcile on foreground, got %v", got)
	}
	if !s.Status().Foreground {
		t.Error("expected the session to be foregrounded")
	}
}

func TestWrites_AreBroadcastToOtherSessions(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	s := h.signIn(t, "u1")

	watcher, err := h.hub.Join(context.Background(), "u1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	defer watcher.Close()

	if _, err := s.AddCard(context.Background(), testCard("c1")); err != nil {
		t.Fatalf("add card: %v", err)
	}
	s.Flush()

	var row, refresh bool
	timeout := time.After(time.Second)
	for !(row && refresh) {
		select {
		case ev := <-watcher.Events():
			if ev.Origin != s.ID() {
				t.Fatalf("unexpected origin %s", ev.Origin)
			}
			switch ev.Kind {
			case domain.ChangeRow:
				row = ev.Table == "cards"
			case domain.ChangeBroadcast:
				refresh = true
			}
		case <-timeout:
			t.Fatalf("expected row change and refresh, got row=%v refresh=%v", row, refresh)
		}
	}
}

func TestClose_TearsEverythingDown(t *testing.T) {
	h := newHarness(t, time.Date(2025, 3, 25, 9, 0, 0, 0, time.UTC))
	s := h.signIn(t, "u1")
	ctx := context.Background()

	if _, err := s.AddCard(ctx, testCard("c1")); err != nil {
		t.Fatalf("add card: %v", err)
	}
	s.Flush()
	if err := h.mgr.SignOut(ctx, "u1", false); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	if snap := s.Snapshot(); len(snap.Cards) != 0 || len(snap.Notifications) != 0 {
		t.Error("expected in-memory collections to be cleared")
	}
	if s.State() != domain.SyncDisconnected {
		t.Errorf("expected disconnected, got %s", s.State())
	}
	if h.hub.Subscribers("u1") != 0 {
		t.Error("expected the channel to be closed")
	}
	if len(s.Toasts()) != 0 {
		t.Error("expected toasts to be cleared")
	}
	if _, err := s.AddCard(ctx, testCard("c2")); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if _, err := h.mgr.Session("u1"); !errors.Is(err, domain.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}

	// the device cache survives a plain sign-out
	if cached := h.store.snapshot("u1"); cached == nil || len(cached.Cards) != 1 {
		t.Error("expected the device cache to be kept")
	}
}
