package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/observability"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/realtime"
	"github.com/boddenberg/card-tracker-bfa-go/internal/port"
	"github.com/boddenberg/card-tracker-bfa-go/internal/service"

	"go.uber.org/zap"
)

// --- Mocks ---

// fakeGateway is an in-memory hosted backend. Writes land in the same data
// that fetches read, like the real tables.
type fakeGateway struct {
	mu       sync.Mutex
	data     map[string]*domain.UserData
	fetchErr error
	writeErr error
	fetches  int
	calls    []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{data: make(map[string]*domain.UserData)}
}

func (g *fakeGateway) seed(userID string, d *domain.UserData) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.data[userID] = d.Clone()
}

func (g *fakeGateway) mutate(userID string, fn func(d *domain.UserData)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.userLocked(userID))
}

func (g *fakeGateway) snapshot(userID string) *domain.UserData {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.userLocked(userID).Clone()
}

func (g *fakeGateway) setFetchErr(err error) {
	g.mu.Lock()
	g.fetchErr = err
	g.mu.Unlock()
}

func (g *fakeGateway) setWriteErr(err error) {
	g.mu.Lock()
	g.writeErr = err
	g.mu.Unlock()
}

func (g *fakeGateway) fetchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetches
}

func (g *fakeGateway) called(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (g *fakeGateway) userLocked(userID string) *domain.UserData {
	d, ok := g.data[userID]
	if !ok {
		d = domain.EmptyUserData()
		g.data[userID] = d
	}
	return d
}

func (g *fakeGateway) write(name, userID string, fn func(d *domain.UserData)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, name)
	if g.writeErr != nil {
		return g.writeErr
	}
	fn(g.userLocked(userID))
	return nil
}

func (g *fakeGateway) FetchUserData(_ context.Context, userID string) (*domain.UserData, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches++
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	d := g.userLocked(userID).Clone()
	d.RecomputeBalances()
	return d, nil
}

func (g *fakeGateway) UpsertCard(_ context.Context, userID string, card domain.Card) error {
	return g.write("UpsertCard", userID, func(d *domain.UserData) {
		for i := range d.Cards {
			if d.Cards[i].ID == card.ID {
				d.Cards[i] = card
				return
			}
		}
		d.Cards = append(d.Cards, card)
	})
}

func (g *fakeGateway) DeleteCard(_ context.Context, userID, cardID string) error {
	return g.write("DeleteCard", userID, func(d *domain.UserData) {
		cards := d.Cards[:0]
		for _, c := range d.Cards {
			if c.ID != cardID {
				cards = append(cards, c)
			}
		}
		d.Cards = cards
		txs := d.Transactions[:0]
		for _, t := range d.Transactions {
			if t.CardID != cardID {
				txs = append(txs, t)
			}
		}
		d.Transactions = txs
	})
}

func (g *fakeGateway) UpsertTransactions(_ context.Context, userID string, txs []domain.Transaction) error {
	return g.write("UpsertTransactions", userID, func(d *domain.UserData) {
	next:
		for _, tx := range txs {
			for i := range d.Transactions {
				if d.Transactions[i].ID == tx.ID {
					d.Transactions[i] = tx
					continue next
				}
			}
			d.Transactions = append(d.Transactions, tx)
		}
	})
}

func (g *fakeGateway) DeleteTransaction(_ context.Context, userID, txID string) error {
	return g.write("DeleteTransaction", userID, func(d *domain.UserData) {
		for i := range d.Transactions {
			if d.Transactions[i].ID == txID {
				d.Transactions = append(d.Transactions[:i], d.Transactions[i+1:]...)
				return
			}
		}
	})
}

func (g *fakeGateway) UpsertCategory(_ context.Context, userID string, cat domain.Category) error {
	return g.write("UpsertCategory", userID, func(d *domain.UserData) {
		for i := range d.Categories {
			if d.Categories[i].ID == cat.ID {
				d.Categories[i] = cat
				return
			}
		}
		d.Categories = append(d.Categories, cat)
	})
}

func (g *fakeGateway) DeleteCategory(_ context.Context, userID, categoryID string) error {
	return g.write("DeleteCategory", userID, func(d *domain.UserData) {
		for i := range d.Categories {
			if d.Categories[i].ID == categoryID {
				d.Categories = append(d.Categories[:i], d.Categories[i+1:]...)
				return
			}
		}
	})
}

func (g *fakeGateway) UpsertNotifications(_ context.Context, userID string, items []domain.NotificationItem) error {
	return g.write("UpsertNotifications", userID, func(d *domain.UserData) {
	next:
		for _, n := range items {
			for i := range d.Notifications {
				if d.Notifications[i].ID == n.ID {
					d.Notifications[i] = n
					continue next
				}
			}
			d.Notifications = append([]domain.NotificationItem{n}, d.Notifications...)
		}
	})
}

func (g *fakeGateway) ClearNotifications(_ context.Context, userID string) error {
	return g.write("ClearNotifications", userID, func(d *domain.UserData) {
		for i := range d.Notifications {
			d.Notifications[i].IsDeleted = true
			d.Notifications[i].Read = true
		}
	})
}

func (g *fakeGateway) AppendChatMessage(_ context.Context, userID string, msg domain.ChatMessage) error {
	return g.write("AppendChatMessage", userID, func(d *domain.UserData) {
		d.Chat = append(d.Chat, msg)
	})
}

func (g *fakeGateway) ClearChat(_ context.Context, userID string) error {
	return g.write("ClearChat", userID, func(d *domain.UserData) {
		d.Chat = []domain.ChatMessage{}
	})
}

func (g *fakeGateway) UpsertAutoPayment(_ context.Context, userID string, ap domain.AutoPayment) error {
	return g.write("UpsertAutoPayment", userID, func(d *domain.UserData) {
		for i := range d.AutoPayments {
			if d.AutoPayments[i].ID == ap.ID {
				d.AutoPayments[i] = ap
				return
			}
		}
		d.AutoPayments = append(d.AutoPayments, ap)
	})
}

func (g *fakeGateway) DeleteAutoPayment(_ context.Context, userID, id string) error {
	return g.write("DeleteAutoPayment", userID, func(d *domain.UserData) {
		for i := range d.AutoPayments {
			if d.AutoPayments[i].ID == id {
				d.AutoPayments = append(d.AutoPayments[:i], d.AutoPayments[i+1:]...)
				return
			}
		}
	})
}

// fakeStore is an in-memory device store.
type fakeStore struct {
	mu     sync.Mutex
	data   map[string]*domain.UserData
	themes map[string]string
	saves  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]*domain.UserData), themes: make(map[string]string)}
}

func (f *fakeStore) LoadSnapshot(_ context.Context, owner string) (*domain.UserData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.data[owner]; ok {
		return d.Clone(), nil
	}
	return domain.EmptyUserData(), nil
}

func (f *fakeStore) SaveSnapshot(_ context.Context, owner string, data *domain.UserData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.data[owner] = data.Clone()
	return nil
}

func (f *fakeStore) GetTheme(_ context.Context, owner string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.themes[owner]; ok {
		return t, nil
	}
	return "light", nil
}

func (f *fakeStore) SetTheme(_ context.Context, owner, theme string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.themes[owner] = theme
	return nil
}

func (f *fakeStore) Clear(_ context.Context, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, owner)
	delete(f.themes, owner)
	return nil
}

func (f *fakeStore) snapshot(owner string) *domain.UserData {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.data[owner]; ok {
		return d.Clone()
	}
	return nil
}

type mockAdvisor struct {
	text  string
	err   error
	calls int
}

func (m *mockAdvisor) Advise(_ context.Context, _ []domain.Card) (string, error) {
	m.calls++
	return m.text, m.err
}

func (m *mockAdvisor) Chat(_ context.Context, _ []domain.Card, _ []domain.ChatMessage) (string, error) {
	return m.text, m.err
}

type mockProvider struct {
	userID string
	err    error
}

func (m *mockProvider) SignInWithPassword(_ context.Context, _, _ string) (string, error) {
	return m.userID, m.err
}

// scopedChannel ends each subscription when the context given to Join is
// cancelled, the way a broker consumer bound to that context does.
type scopedChannel struct {
	hub *realtime.Hub
}

func (c *scopedChannel) Join(ctx context.Context, userID string) (port.Subscription, error) {
	sub, err := c.hub.Join(ctx, userID)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()
	return sub, nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// --- Harness ---

var errBackendDown = errors.New("backend down")

type harness struct {
	gw      *fakeGateway
	store   *fakeStore
	hub     *realtime.Hub
	clock   *fakeClock
	metrics *observability.Metrics
	mgr     *service.Manager
}

func newHarness(t *testing.T, now time.Time, tweak ...func(*service.SessionDeps, *service.SessionConfig)) *harness {
	t.Helper()

	h := &harness{
		gw:      newFakeGateway(),
		store:   newFakeStore(),
		hub:     realtime.NewHub(),
		clock:   &fakeClock{t: now},
		metrics: observability.NewMetrics(),
	}
	deps := service.SessionDeps{
		Remote:  h.gw,
		Local:   h.store,
		Push:    h.hub,
		Metrics: h.metrics,
		Logger:  zap.NewNop(),
		Now:     h.clock.Now,
	}
	cfg := service.SessionConfig{
		HealthInterval:       time.Hour,
		FastPollInterval:     time.Hour,
		AutoPaySweepInterval: time.Hour,
		ToastDuration:        time.Minute,
		ToastCooldown:        time.Second,
		WriteTimeout:         time.Second,
	}
	for _, fn := range tweak {
		fn(&deps, &cfg)
	}

	h.mgr = service.NewManager(deps, cfg)
	t.Cleanup(func() { _ = h.mgr.Shutdown(context.Background()) })
	return h
}

func (h *harness) signIn(t *testing.T, userID string) *service.Session {
	t.Helper()
	s, err := h.mgr.SignIn(context.Background(), userID)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	// settle the seeding writes of the first fetch
	s.Flush()
	return s
}

func (h *harness) local(t *testing.T) *service.Session {
	t.Helper()
	s, err := h.mgr.Local(context.Background())
	if err != nil {
		t.Fatalf("local session: %v", err)
	}
	return s
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testCard(id string) domain.Card {
	return domain.Card{
		ID:              id,
		BankName:        "Garanti",
		CardName:        "Bonus " + id,
		Limit:           10000,
		StatementDay:    15,
		DueDay:          25,
		Color:           "#0ea5e9",
		MinPaymentRatio: 20,
	}
}

func cardByID(t *testing.T, s *service.Session, id string) domain.Card {
	t.Helper()
	c, err := s.Card(id)
	if err != nil {
		t.Fatalf("card %s: %v", id, err)
	}
	return c
}
