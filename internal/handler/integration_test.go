package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/handler"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/client"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/localstore"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/observability"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/realtime"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/card-tracker-bfa-go/internal/service"

	"go.uber.org/zap"
)

// fakeBackend answers the auth and PostgREST calls of one user and
// records every row written.
type fakeBackend struct {
	mu     sync.Mutex
	writes map[string][]string
}

func (f *fakeBackend) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	if r.URL.Path == "/auth/v1/token" {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"remote-token","user":{"id":"u-int","email":"ayse@example.com"}}`))
		return
	}

	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
		return
	}

	f.mu.Lock()
	f.writes[table] = append(f.writes[table], string(body))
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeBackend) written(table, substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.writes[table] {
		if strings.Contains(b, substr) {
			return true
		}
	}
	return false
}

// TestIntegration_FullFlow signs in against a fake backend, adds a card and
// asks for advice, going through every real layer on the way.
func TestIntegration_FullFlow(t *testing.T) {
	// --- Mock Supabase ---
	backend := &fakeBackend{writes: map[string][]string{}}
	backendSrv := httptest.NewServer(http.HandlerFunc(backend.handler))
	defer backendSrv.Close()

	// --- Mock advisor ---
	advisorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/advice" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "Pay the statement in full before the due date."})
	}))
	defer advisorSrv.Close()

	// --- Wire up real components ---
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	httpClient := &http.Client{Timeout: 5 * time.Second}

	store, err := localstore.Open(filepath.Join(t.TempDir(), "device.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	remote := supabase.NewClient(
		httpClient, backendSrv.URL, "anon", "service",
		resilience.NewCircuitBreaker("integration-supabase"),
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond},
		logger,
	)
	advisor := client.NewAdvisorClient(httpClient, advisorSrv.URL, resilience.NewCircuitBreaker("integration-advisor"))

	sessions := service.NewManager(service.SessionDeps{
		Remote:  remote,
		Local:   store,
		Push:    realtime.NewHub(),
		Advisor: advisor,
		Metrics: metrics,
		Logger:  logger,
	}, service.DefaultSessionConfig())
	defer sessions.Shutdown(context.Background())

	authSvc := service.NewAuthService(remote, sessions, "integration-secret", time.Minute, logger)
	router := handler.NewRouter(sessions, authSvc, metrics, logger)

	// --- Sign in ---
	rec := do(t, router, http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{
		Email: "ayse@example.com", Password: "secret123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	login := decode[domain.LoginResponse](t, rec)
	if login.UserID != "u-int" {
		t.Errorf("expected user u-int, got %q", login.UserID)
	}
	if login.SyncState != domain.SyncConnected {
		t.Errorf("expected connected after sign-in, got %q", login.SyncState)
	}

	// --- Add a card ---
	rec = do(t, router, http.MethodPost, "/v1/cards", login.AccessToken, bonusCard)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create card: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	card := decode[domain.Card](t, rec)

	deadline := time.Now().Add(2 * time.Second)
	for !backend.written("cards", card.ID) {
		if time.Now().After(deadline) {
			t.Fatalf("card %s never reached the backend", card.ID)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// --- Device-only state must not see the signed-in user's card ---
	rec = do(t, router, http.MethodGet, "/v1/cards", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("device cards: expected 200, got %d", rec.Code)
	}
	if local := decode[map[string][]domain.Card](t, rec); len(local["cards"]) != 0 {
		t.Errorf("expected no device-only cards, got %d", len(local["cards"]))
	}

	// --- Advice ---
	rec = do(t, router, http.MethodPost, "/v1/assistant/advice", login.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("advice: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	advice := decode[domain.AdviceResponse](t, rec)
	if advice.Fallback {
		t.Error("expected a real answer, got the fallback")
	}
	if !strings.Contains(advice.Text, "due date") {
		t.Errorf("unexpected advice %q", advice.Text)
	}

	// --- Sign out ---
	rec = do(t, router, http.MethodPost, "/v1/auth/logout", login.AccessToken, nil)
	if rec.Code != http.StatusOK && rec.Code != http.StatusNoContent {
		t.Fatalf("logout: got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, router, http.MethodGet, "/v1/cards", login.AccessToken, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after sign-out, got %d", rec.Code)
	}
}
