package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/port"
)

// Hub is an in-process port.PushChannel for single-node deployments.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*hubSubscription]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*hubSubscription]struct{})}
}

// Join registers a subscription for userID.
func (h *Hub) Join(_ context.Context, userID string) (port.Subscription, error) {
	sub := &hubSubscription{
		hub:    h,
		userID: userID,
		events: make(chan domain.ChangeEvent, eventBuffer),
	}
	sub.joined.Store(true)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*hubSubscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	return sub, nil
}

// Publish fans an event out to every live subscription of its user.
func (h *Hub) Publish(event domain.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[event.UserID] {
		if sub.Joined() {
			deliver(sub.events, event)
		}
	}
}

// Subscribers returns the number of registered subscriptions of userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Sever marks every subscription of userID as dropped without closing it,
// the way a silently frozen socket looks to its owner.
func (h *Hub) Sever(userID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[userID] {
		sub.joined.Store(false)
	}
}

func (h *Hub) remove(sub *hubSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs[sub.userID], sub)
	if len(h.subs[sub.userID]) == 0 {
		delete(h.subs, sub.userID)
	}
}

type hubSubscription struct {
	hub       *Hub
	userID    string
	events    chan domain.ChangeEvent
	joined    atomic.Bool
	closeOnce sync.Once
}

func (s *hubSubscription) Events() <-chan domain.ChangeEvent { return s.events }

func (s *hubSubscription) Joined() bool { return s.joined.Load() }

func (s *hubSubscription) Broadcast(_ context.Context, event domain.ChangeEvent) error {
	if !s.Joined() {
		return domain.ErrSessionClosed
	}
	event.UserID = s.userID
	s.hub.Publish(event)
	return nil
}

func (s *hubSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.joined.Store(false)
		s.hub.remove(s)
	})
	return nil
}
