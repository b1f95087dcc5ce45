package service

import (
	"context"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
)

// Deleting and clearing are soft: the entries stay in the history, hidden,
// so their dedup keys keep suppressing the same alert for the day.

// MarkNotificationRead flags one history entry as read.
func (s *Session) MarkNotificationRead(ctx context.Context, id string) error {
	return s.updateNotification(ctx, "Session.MarkNotificationRead", id, func(n *domain.NotificationItem) {
		n.Read = true
	})
}

// DeleteNotification hides one history entry.
func (s *Session) DeleteNotification(ctx context.Context, id string) error {
	return s.updateNotification(ctx, "Session.DeleteNotification", id, func(n *domain.NotificationItem) {
		n.Read = true
		n.IsDeleted = true
	})
}

func (s *Session) updateNotification(ctx context.Context, op, id string, apply func(*domain.NotificationItem)) error {
	ctx, span := mutationTracer.Start(ctx, op)
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return err
	}
	var item *domain.NotificationItem
	for i := range s.data.Notifications {
		if s.data.Notifications[i].ID == id {
			item = &s.data.Notifications[i]
			break
		}
	}
	if item == nil {
		s.mu.Unlock()
		return &domain.ErrNotFound{Resource: "notification", ID: id}
	}
	apply(item)
	updated := []domain.NotificationItem{*item}

	writes := []remoteWrite{{"notifications", "UPDATE", func(ctx context.Context) error {
		return s.remote.UpsertNotifications(ctx, s.userID, updated)
	}}}
	writes = append(writes, s.commitLocked(ctx, "")...)
	s.mu.Unlock()

	s.persist(writes...)
	return nil
}

// MarkAllNotificationsRead flags every unread entry as read and returns how
// many changed.
func (s *Session) MarkAllNotificationsRead(ctx context.Context) (int, error) {
	ctx, span := mutationTracer.Start(ctx, "Session.MarkAllNotificationsRead")
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return 0, err
	}
	var changed []domain.NotificationItem
	for i := range s.data.Notifications {
		if !s.data.Notifications[i].Read {
			s.data.Notifications[i].Read = true
			changed = append(changed, s.data.Notifications[i])
		}
	}
	if len(changed) == 0 {
		s.mu.Unlock()
		return 0, nil
	}

	writes := []remoteWrite{{"notifications", "UPDATE", func(ctx context.Context) error {
		return s.remote.UpsertNotifications(ctx, s.userID, changed)
	}}}
	writes = append(writes, s.commitLocked(ctx, "")...)
	s.mu.Unlock()

	s.persist(writes...)
	return len(changed), nil
}

// ClearNotifications hides the whole history.
func (s *Session) ClearNotifications(ctx context.Context) error {
	ctx, span := mutationTracer.Start(ctx, "Session.ClearNotifications")
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return err
	}
	for i := range s.data.Notifications {
		s.data.Notifications[i].Read = true
		s.data.Notifications[i].IsDeleted = true
	}

	writes := []remoteWrite{{"notifications", "DELETE", func(ctx context.Context) error {
		return s.remote.ClearNotifications(ctx, s.userID)
	}}}
	writes = append(writes, s.commitLocked(ctx, "Notifications cleared")...)
	s.mu.Unlock()

	s.persist(writes...)
	return nil
}
