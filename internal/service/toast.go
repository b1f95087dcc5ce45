package service

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/port"
)

// ToastCenter holds the transient messages of one session. Identical
// message+severity alerts are suppressed for the cooldown window;
// confirmations of the user's own changes never are.
type ToastCenter struct {
	mu       sync.Mutex
	toasts   []domain.Toast
	cooldown port.Cache[struct{}]
	duration time.Duration
	now      func() time.Time
}

// NewToastCenter creates a toast center. cooldown must carry the dedup TTL.
func NewToastCenter(cooldown port.Cache[struct{}], duration time.Duration, now func() time.Time) *ToastCenter {
	if now == nil {
		now = time.Now
	}
	return &ToastCenter{cooldown: cooldown, duration: duration, now: now}
}

// Push raises a toast unless an identical one was raised within the cooldown.
func (t *ToastCenter) Push(message string, severity domain.Severity) (domain.Toast, bool) {
	if !t.cooldown.SetIfAbsent(string(severity)+"|"+message, struct{}{}) {
		return domain.Toast{}, false
	}
	return t.raise(message, severity), true
}

// Confirm raises a success toast for a user action, one per call.
func (t *ToastCenter) Confirm(message string) domain.Toast {
	return t.raise(message, domain.SeveritySuccess)
}

func (t *ToastCenter) raise(message string, severity domain.Severity) domain.Toast {
	now := t.now()
	toast := domain.Toast{
		ID:        uuid.NewString(),
		Message:   message,
		Type:      severity,
		CreatedAt: now,
		ExpiresAt: now.Add(t.duration),
	}

	t.mu.Lock()
	t.toasts = append(t.toasts, toast)
	t.mu.Unlock()
	return toast
}

// Active returns the unexpired toasts, oldest first, pruning the rest.
func (t *ToastCenter) Active() []domain.Toast {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	live := t.toasts[:0]
	for _, toast := range t.toasts {
		if now.Before(toast.ExpiresAt) {
			live = append(live, toast)
		}
	}
	t.toasts = live

	out := append([]domain.Toast{}, live...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Dismiss removes a toast before it expires.
func (t *ToastCenter) Dismiss(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, toast := range t.toasts {
		if toast.ID == id {
			t.toasts = append(t.toasts[:i], t.toasts[i+1:]...)
			return true
		}
	}
	return false
}

// Reset drops every toast and the cooldown history.
func (t *ToastCenter) Reset() {
	t.mu.Lock()
	t.toasts = nil
	t.mu.Unlock()
	t.cooldown.Purge()
}

// Close resets the center and stops the cooldown cache.
func (t *ToastCenter) Close() {
	t.Reset()
	t.cooldown.Close()
}
