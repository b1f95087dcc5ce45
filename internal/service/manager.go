package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
)

// Manager owns the live sessions: at most one per signed-in user plus the
// anonymous device session.
type Manager struct {
	deps   SessionDeps
	cfg    SessionConfig
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	local    *Session
}

// NewManager creates a session manager.
func NewManager(deps SessionDeps, cfg SessionConfig) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Manager{
		deps:     deps,
		cfg:      cfg,
		logger:   deps.Logger,
		sessions: make(map[string]*Session),
	}
}

// Local returns the anonymous device session, starting it on first use.
func (m *Manager) Local(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.local != nil {
		return m.local, nil
	}
	s := newSession("", m.deps, m.cfg)
	if err := s.Start(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("start local session: %w", err)
	}
	m.local = s
	return s, nil
}

// SignIn builds a fresh session for userID. Any previous session of that user
// is torn down first, so two sessions of one user never overlap.
func (m *Manager) SignIn(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, &domain.ErrValidation{Field: "user_id", Message: "required"}
	}

	m.mu.Lock()
	old := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if old != nil {
		old.Close()
		m.logger.Info("previous session replaced", zap.String("user_id", userID))
	}

	s := newSession(userID, m.deps, m.cfg)
	if err := s.Start(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("start session: %w", err)
	}

	m.mu.Lock()
	raced := m.sessions[userID]
	m.sessions[userID] = s
	m.mu.Unlock()

	if raced != nil {
		raced.Close()
	}

	m.logger.Info("user signed in", zap.String("user_id", userID), zap.String("state", string(s.State())))
	return s, nil
}

// Session returns the live session of userID.
func (m *Manager) Session(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, domain.ErrNoSession
	}
	return s, nil
}

// SignOut tears the user's session down. With forget the device cache of the
// user is wiped too. Signing out a user without a session is a no-op.
func (m *Manager) SignOut(ctx context.Context, userID string, forget bool) error {
	m.mu.Lock()
	s := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if s != nil {
		s.Close()
	}
	if forget && m.deps.Local != nil {
		if err := m.deps.Local.Clear(ctx, userID); err != nil {
			return fmt.Errorf("clear device cache: %w", err)
		}
	}

	m.logger.Info("user signed out", zap.String("user_id", userID), zap.Bool("forget", forget))
	return nil
}

// Active is the number of signed-in sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Statuses reports the sync status of every signed-in session.
func (m *Manager) Statuses() []domain.SyncStatus {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	out := make([]domain.SyncStatus, 0, len(all))
	for _, s := range all {
		out = append(out, s.Status())
	}
	return out
}

// Shutdown waits for pending background writes, bounded by ctx, then closes
// every session.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions)+1)
	for _, s := range m.sessions {
		all = append(all, s)
	}
	if m.local != nil {
		all = append(all, m.local)
	}
	m.sessions = make(map[string]*Session)
	m.local = nil
	m.mu.Unlock()

	flushed := make(chan struct{})
	go func() {
		for _, s := range all {
			s.Flush()
		}
		close(flushed)
	}()

	var err error
	select {
	case <-flushed:
	case <-ctx.Done():
		err = fmt.Errorf("pending writes not flushed: %w", ctx.Err())
	}

	for _, s := range all {
		s.Close()
	}
	return err
}
