package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/cache"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/observability"
	"github.com/boddenberg/card-tracker-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/card-tracker-bfa-go/internal/port"
)

var syncTracer = otel.Tracer("service/sync")

// SessionConfig tunes the timers and toast windows of a session.
type SessionConfig struct {
	HealthInterval       time.Duration
	FastPollInterval     time.Duration
	AggressivePolling    bool
	AutoPaySweepInterval time.Duration
	ToastDuration        time.Duration
	ToastCooldown        time.Duration
	WriteTimeout         time.Duration
}

// DefaultSessionConfig mirrors the config package defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		HealthInterval:       30 * time.Second,
		FastPollInterval:     2 * time.Second,
		AutoPaySweepInterval: time.Hour,
		ToastDuration:        4 * time.Second,
		ToastCooldown:        10 * time.Second,
		WriteTimeout:         10 * time.Second,
	}
}

// SessionDeps are the collaborators shared by every session. Remote and Push
// are nil when the BFA runs device-only.
type SessionDeps struct {
	Remote  port.RemoteGateway
	Local   port.LocalStore
	Push    port.PushChannel
	Advisor port.AdvisorCaller
	// AdviceCache keeps advisor answers per owner and data fingerprint.
	// Shared by all sessions; optional.
	AdviceCache port.Cache[string]
	// Bank feeds card transactions into RefreshBalances. Defaults to BankFeed.
	Bank        BankFeedFunc
	Writes      *resilience.Bulkhead
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Now         func() time.Time
}

// Session is the in-memory state of one signed-in user (or of the anonymous
// device user) plus the machinery that keeps it in sync. A session is built
// on sign-in, closed on sign-out and never reused.
type Session struct {
	id     string
	userID string
	owner  string

	remote  port.RemoteGateway
	local   port.LocalStore
	push    port.PushChannel
	advisor port.AdvisorCaller
	advice  port.Cache[string]
	bank    BankFeedFunc
	writes  *resilience.Bulkhead
	metrics *observability.Metrics
	logger  *zap.Logger
	cfg     SessionConfig
	now     func() time.Time

	mu          sync.Mutex
	data        *domain.UserData
	shown       map[string]struct{}
	fingerprint uint64
	lastApplied time.Time
	state       domain.SyncState
	lastErr     string
	foreground  bool
	sub         port.Subscription
	started     bool
	closed      bool

	toasts *ToastCenter
	sf     singleflight.Group
	bg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}
}

func newSession(userID string, deps SessionDeps, cfg SessionConfig) *Session {
	cfg = cfg.withDefaults()
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bank := deps.Bank
	if bank == nil {
		bank = BankFeed
	}
	writes := deps.Writes
	if writes == nil {
		writes = resilience.NewBulkhead(4)
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	owner := userID
	remote, push := deps.Remote, deps.Push
	if userID == "" {
		owner = port.LocalOwner
		remote, push = nil, nil
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	cooldown := cache.New[struct{}](cfg.ToastCooldown).WithClock(now)

	return &Session{
		id:         id,
		userID:     userID,
		owner:      owner,
		remote:     remote,
		local:      deps.Local,
		push:       push,
		advisor:    deps.Advisor,
		advice:     deps.AdviceCache,
		bank:       bank,
		writes:     writes,
		metrics:    metrics,
		logger:     logger.With(zap.String("session_id", id), zap.String("owner", owner)),
		cfg:        cfg,
		now:        now,
		data:       domain.EmptyUserData(),
		shown:      make(map[string]struct{}),
		state:      domain.SyncDisconnected,
		foreground: true,
		toasts:     NewToastCenter(cooldown, cfg.ToastDuration, now),
		ctx:        ctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// ID identifies this session instance on the push channel.
func (s *Session) ID() string { return s.id }

// UserID is empty for the anonymous session.
func (s *Session) UserID() string { return s.userID }

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() *domain.UserData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

// VisibleNotifications is the history without soft-deleted entries.
func (s *Session) VisibleNotifications() []domain.NotificationItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.NotificationItem, 0, len(s.data.Notifications))
	for _, n := range s.data.Notifications {
		if !n.IsDeleted {
			out = append(out, n)
		}
	}
	return out
}

// Toasts returns the live toasts.
func (s *Session) Toasts() []domain.Toast {
	return s.toasts.Active()
}

// DismissToast hides a toast before it expires.
func (s *Session) DismissToast(id string) bool {
	return s.toasts.Dismiss(id)
}

// State is the push channel state.
func (s *Session) State() domain.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status reports the sync machinery for diagnostics.
func (s *Session) Status() domain.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.SyncStatus{
		UserID:      s.userID,
		State:       s.state,
		Foreground:  s.foreground,
		Fingerprint: formatFingerprint(s.fingerprint),
		LastError:   s.lastErr,
	}
	if !s.lastApplied.IsZero() {
		t := s.lastApplied
		st.LastAppliedAt = &t
	}
	return st
}

// Theme reads the device theme preference of this session's owner.
func (s *Session) Theme(ctx context.Context) (string, error) {
	return s.local.GetTheme(ctx, s.owner)
}

// SetTheme stores the device theme preference. Themes never leave the device.
func (s *Session) SetTheme(ctx context.Context, theme string) error {
	return s.local.SetTheme(ctx, s.owner, theme)
}

// Flush waits for the background writes started so far.
func (s *Session) Flush() {
	s.bg.Wait()
}

// Close tears the session down: the channel is closed, timers stop and every
// in-memory collection is dropped. Background writes already started keep
// running to completion. Close is synchronous and idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	started := s.started
	s.data = domain.EmptyUserData()
	s.shown = make(map[string]struct{})
	s.fingerprint = 0
	s.state = domain.SyncDisconnected
	s.mu.Unlock()

	s.cancel()
	if sub != nil {
		if err := sub.Close(); err != nil {
			s.logger.Warn("failed to close subscription", zap.Error(err))
		}
	}
	if started {
		<-s.done
		s.metrics.SessionClosed()
	}
	s.toasts.Close()

	s.logger.Info("session closed")
}

func (s *Session) setState(state domain.SyncState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// ensureCategoriesLocked seeds the default set on first use and makes sure
// the sentinel category exists. Returns the categories it created.
func (s *Session) ensureCategoriesLocked() []domain.Category {
	if len(s.data.Categories) == 0 {
		s.data.Categories = domain.DefaultCategories()
		return append([]domain.Category{}, s.data.Categories...)
	}
	for _, c := range s.data.Categories {
		if c.Name == domain.OtherCategoryName {
			return nil
		}
	}
	other := domain.Category{ID: uuid.NewString(), Name: domain.OtherCategoryName, Color: "#6b7280"}
	s.data.Categories = append(s.data.Categories, other)
	return []domain.Category{other}
}

// saveLocalLocked writes the whole state to the device store. A failed local
// write is logged, the in-memory state stays authoritative.
func (s *Session) saveLocalLocked(ctx context.Context) {
	if err := s.local.SaveSnapshot(ctx, s.owner, s.data); err != nil {
		s.logger.Error("failed to save local snapshot", zap.Error(err))
	}
}
