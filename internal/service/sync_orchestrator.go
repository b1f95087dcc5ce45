package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/port"
)

// Reconcile triggers. They label metrics and logs only; every trigger runs
// the same reconciliation.
const (
	TriggerSignIn     = "sign_in"
	TriggerChannel    = "channel"
	TriggerPoll       = "poll"
	TriggerForeground = "foreground"
	TriggerManual     = "manual"
	TriggerReconnect  = "reconnect"
)

// Reconcile outcomes.
const (
	outcomeApplied   = "applied"
	outcomeUnchanged = "unchanged"
	outcomeFailed    = "failed"
)

// remoteWrite is one durable write deferred to the background.
type remoteWrite struct {
	entity string
	op     string
	fn     func(ctx context.Context) error
}

func (c SessionConfig) withDefaults() SessionConfig {
	d := DefaultSessionConfig()
	if c.HealthInterval <= 0 {
		c.HealthInterval = d.HealthInterval
	}
	if c.FastPollInterval <= 0 {
		c.FastPollInterval = d.FastPollInterval
	}
	if c.AutoPaySweepInterval <= 0 {
		c.AutoPaySweepInterval = d.AutoPaySweepInterval
	}
	if c.ToastDuration <= 0 {
		c.ToastDuration = d.ToastDuration
	}
	if c.ToastCooldown <= 0 {
		c.ToastCooldown = d.ToastCooldown
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	return c
}

// ============================================================
// Lifecycle
// ============================================================

// Start loads the device cache, performs the initial fetch, joins the push
// channel and starts the timers. A failed initial fetch keeps the cached
// state; a successful one is applied even when empty.
func (s *Session) Start(ctx context.Context) error {
	ctx, span := syncTracer.Start(ctx, "Session.Start")
	defer span.End()

	cached, err := s.local.LoadSnapshot(ctx, s.owner)
	if err != nil {
		s.logger.Warn("local snapshot unavailable, starting empty", zap.Error(err))
		cached = domain.EmptyUserData()
	}

	s.mu.Lock()
	s.data = cached
	s.ensureCategoriesLocked()
	s.mu.Unlock()

	if s.remote == nil {
		s.mu.Lock()
		s.commitLocked(ctx, "")
		s.mu.Unlock()
	} else {
		s.setState(domain.SyncConnecting)
		if _, err := s.Reconcile(ctx, TriggerSignIn); err != nil {
			s.mu.Lock()
			writes := s.commitLocked(ctx, "")
			s.mu.Unlock()
			s.persist(writes...)
		}
		if s.push != nil {
			// the subscription lives as long as the session, not the caller
			s.join(s.ctx)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	s.started = true
	s.mu.Unlock()

	s.metrics.SessionOpened()
	go s.loop()

	s.logger.Info("session started", zap.String("state", string(s.State())))
	return nil
}

// join opens a fresh subscription. The caller disposes of any previous one.
func (s *Session) join(ctx context.Context) bool {
	s.setState(domain.SyncConnecting)

	sub, err := s.push.Join(ctx, s.userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = domain.SyncError
		s.lastErr = err.Error()
		s.logger.Warn("failed to join push channel", zap.Error(err))
		return false
	}
	if s.closed {
		_ = sub.Close()
		return false
	}
	s.sub = sub
	s.state = domain.SyncConnected
	return true
}

func (s *Session) subscription() port.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

// ============================================================
// Reconciliation
// ============================================================

// Reconcile fetches the remote state and applies it when its fingerprint
// differs from the last applied one. Concurrent triggers share one fetch.
// Manual and sign-in reconciles apply unconditionally. Reports whether state
// was replaced.
func (s *Session) Reconcile(ctx context.Context, trigger string) (bool, error) {
	if s.remote == nil {
		return false, nil
	}

	force := trigger == TriggerManual || trigger == TriggerSignIn
	key := "reconcile"
	if force {
		key = "reconcile-forced"
	}

	v, err, _ := s.sf.Do(key, func() (any, error) {
		return s.reconcile(ctx, trigger, force)
	})
	applied, _ := v.(bool)
	return applied, err
}

func (s *Session) reconcile(ctx context.Context, trigger string, force bool) (bool, error) {
	ctx, span := syncTracer.Start(ctx, "Session.Reconcile")
	defer span.End()
	span.SetAttributes(attribute.String("trigger", trigger))

	data, err := s.remote.FetchUserData(ctx, s.userID)
	if err == nil && data == nil {
		err = errors.New("fetch returned no data")
	}
	if err != nil {
		s.metrics.IncrReconcile(trigger, outcomeFailed)
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.logger.Warn("reconcile fetch failed, keeping current state",
			zap.String("trigger", trigger), zap.Error(err))
		return false, fmt.Errorf("reconcile: %w", err)
	}

	fp := fingerprint(data)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, domain.ErrSessionClosed
	}
	if !force && fp == s.fingerprint {
		s.mu.Unlock()
		s.metrics.IncrReconcile(trigger, outcomeUnchanged)
		return false, nil
	}
	writes := s.applyRemoteLocked(ctx, data)
	s.mu.Unlock()

	s.persist(writes...)
	s.metrics.IncrReconcile(trigger, outcomeApplied)
	s.logger.Info("remote state applied",
		zap.String("trigger", trigger),
		zap.Int("cards", len(data.Cards)),
		zap.Int("transactions", len(data.Transactions)),
	)
	return true, nil
}

// applyRemoteLocked replaces the in-memory state wholesale with data.
func (s *Session) applyRemoteLocked(ctx context.Context, data *domain.UserData) []remoteWrite {
	s.data = data
	s.lastErr = ""

	var writes []remoteWrite
	for _, c := range s.ensureCategoriesLocked() {
		writes = append(writes, remoteWrite{"categories", "INSERT", func(ctx context.Context) error {
			return s.remote.UpsertCategory(ctx, s.userID, c)
		}})
	}
	writes = append(writes, s.commitLocked(ctx, "")...)
	s.lastApplied = s.now()
	return writes
}

// commitLocked finishes a state change: due auto-payments, the deadline scan,
// the new fingerprint and the device write. A non-empty toast confirms the
// change to the user. Returns the remote writes the housekeeping implies.
func (s *Session) commitLocked(ctx context.Context, toast string) []remoteWrite {
	if toast != "" {
		s.toasts.Confirm(toast)
	}

	now := s.now()
	writes := s.processAutoPaymentsLocked(now)
	if fresh := s.scanDeadlinesLocked(now); len(fresh) > 0 {
		writes = append(writes, remoteWrite{"notifications", "INSERT", func(ctx context.Context) error {
			return s.remote.UpsertNotifications(ctx, s.userID, fresh)
		}})
	}

	s.fingerprint = fingerprint(s.data)
	s.saveLocalLocked(ctx)
	return writes
}

// ============================================================
// Background persistence
// ============================================================

// persist runs each write on its own goroutine. Writes outlive a request and
// a sign-out; a failed write raises a sync error toast and leaves the
// optimistic state for the next reconcile to correct.
func (s *Session) persist(writes ...remoteWrite) {
	if s.remote == nil {
		return
	}
	for _, w := range writes {
		s.bg.Add(1)
		go s.runWrite(w)
	}
}

func (s *Session) runWrite(w remoteWrite) {
	defer s.bg.Done()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), s.cfg.WriteTimeout)
	defer cancel()

	ctx, span := syncTracer.Start(ctx, "Session.persist")
	defer span.End()
	span.SetAttributes(attribute.String("entity", w.entity), attribute.String("op", w.op))

	if err := s.writes.Acquire(ctx); err != nil {
		s.writeFailed(w, err)
		return
	}
	err := w.fn(ctx)
	s.writes.Release()

	if err != nil {
		span.RecordError(err)
		s.writeFailed(w, err)
		return
	}
	s.announce(ctx, w)
}

func (s *Session) writeFailed(w remoteWrite, err error) {
	s.metrics.IncrWriteFailure(w.entity)
	s.logger.Error("background write failed",
		zap.String("entity", w.entity),
		zap.String("op", w.op),
		zap.Error(err),
	)

	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()

	s.toasts.Push("sync error", domain.SeverityError)
}

// announce tells the user's other sessions about a landed write: the row
// change itself and a refresh request.
func (s *Session) announce(ctx context.Context, w remoteWrite) {
	sub := s.subscription()
	if sub == nil {
		return
	}

	now := s.now()
	events := []domain.ChangeEvent{
		{Kind: domain.ChangeRow, Table: w.entity, Op: w.op, UserID: s.userID, Origin: s.id, SentAt: now},
		{Kind: domain.ChangeBroadcast, UserID: s.userID, Origin: s.id, SentAt: now},
	}
	for _, ev := range events {
		if err := sub.Broadcast(ctx, ev); err != nil {
			s.logger.Debug("broadcast skipped", zap.Error(err))
			return
		}
	}
}

// ============================================================
// Timers & triggers
// ============================================================

func (s *Session) loop() {
	defer close(s.done)

	health := time.NewTicker(s.cfg.HealthInterval)
	defer health.Stop()
	sweep := time.NewTicker(s.cfg.AutoPaySweepInterval)
	defer sweep.Stop()

	var (
		fast   *time.Ticker
		fastC  <-chan time.Time
		cur    port.Subscription
		events <-chan domain.ChangeEvent
	)
	defer func() {
		if fast != nil {
			fast.Stop()
		}
	}()

	for {
		if sub := s.subscription(); sub != cur {
			cur, events = sub, nil
			if sub != nil {
				events = sub.Events()
			}
		}

		switch wanted := s.fastPolling(); {
		case wanted && fast == nil:
			fast = time.NewTicker(s.cfg.FastPollInterval)
			fastC = fast.C
		case !wanted && fast != nil:
			fast.Stop()
			fast, fastC = nil, nil
		}

		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.onEvent(ev)
		case <-health.C:
			s.checkHealth()
		case <-fastC:
			s.reconcileQuietly(TriggerPoll)
		case <-sweep.C:
			if err := s.RefreshBalances(s.ctx); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
				s.logger.Warn("periodic refresh failed", zap.Error(err))
			}
		}
	}
}

func (s *Session) onEvent(ev domain.ChangeEvent) {
	// our own writes are already applied
	if ev.Origin == s.id {
		return
	}
	s.reconcileQuietly(TriggerChannel)
}

func (s *Session) reconcileQuietly(trigger string) {
	// failures are logged and counted inside
	_, _ = s.Reconcile(s.ctx, trigger)
}

// checkHealth replaces a subscription that silently stopped being joined.
// The old handle is always disposed of before a new one is created.
func (s *Session) checkHealth() {
	if s.push == nil {
		return
	}

	s.mu.Lock()
	sub := s.sub
	if sub != nil && sub.Joined() {
		s.mu.Unlock()
		return
	}
	s.sub = nil
	s.mu.Unlock()

	s.metrics.IncrReconnect()
	s.logger.Warn("push channel not joined, reconnecting")

	if sub != nil {
		if err := sub.Close(); err != nil {
			s.logger.Warn("failed to close stale subscription", zap.Error(err))
		}
	}
	if s.join(s.ctx) {
		// events may have been missed while the channel was down
		s.reconcileQuietly(TriggerReconnect)
	}
}

// Foreground marks the app as visible and reconciles at once.
func (s *Session) Foreground(ctx context.Context) (bool, error) {
	s.mu.Lock()
	s.foreground = true
	s.mu.Unlock()
	s.poke()

	return s.Reconcile(ctx, TriggerForeground)
}

// Background pauses fast polling until the next Foreground.
func (s *Session) Background() {
	s.mu.Lock()
	s.foreground = false
	s.mu.Unlock()
	s.poke()
}

func (s *Session) fastPolling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.AggressivePolling && s.foreground && s.remote != nil && !s.closed
}

func (s *Session) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// ============================================================
// Fingerprint
// ============================================================

// fingerprint hashes the collection sizes and the most recent transaction id.
// It is a cheap change detector, not a content hash: an edit that keeps every
// size and the newest transaction the same goes unnoticed until a manual
// refresh.
func fingerprint(d *domain.UserData) uint64 {
	h := xxhash.New()
	fmt.Fprintf(h, "%d|%d|%d|%d|%d|%d|%s",
		len(d.Cards),
		len(d.Transactions),
		len(d.Categories),
		len(d.Notifications),
		len(d.Chat),
		len(d.AutoPayments),
		latestTransactionID(d.Transactions),
	)
	return h.Sum64()
}

// latestTransactionID picks by date, then id, so the local and remote
// orderings agree.
func latestTransactionID(txs []domain.Transaction) string {
	var latest *domain.Transaction
	for i := range txs {
		t := &txs[i]
		if latest == nil || t.Date.After(latest.Date) || (t.Date.Equal(latest.Date) && t.ID > latest.ID) {
			latest = t
		}
	}
	if latest == nil {
		return ""
	}
	return latest.ID
}

func formatFingerprint(fp uint64) string {
	if fp == 0 {
		return ""
	}
	return strconv.FormatUint(fp, 16)
}
