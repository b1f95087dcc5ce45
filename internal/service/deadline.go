package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/statement"
)

// Alert kinds, also used as dedup key prefixes.
const (
	AlertOverdue  = "overdue"
	AlertDueToday = "due-today"
	AlertDueSoon  = "due-3days"
)

// dueSoonLead is how many days ahead the due-soon alert fires.
const dueSoonLead = 3

// notificationTimeLayout is readable and sorts chronologically as text.
const notificationTimeLayout = "2006-01-02 15:04"

// DueAlert is one deadline condition detected for a card on a given day.
type DueAlert struct {
	Kind     string
	Key      string
	Message  string
	Severity domain.Severity
	Card     domain.Card
}

// DateKey scopes dedup keys to one calendar day.
func DateKey(now time.Time) string {
	y, m, d := now.Date()
	return fmt.Sprintf("%d-%d-%d", y, int(m), d)
}

// DueAlerts lists the deadline conditions of every card on now's calendar
// day. It has no memory; deduplication is up to the caller.
func DueAlerts(cards []domain.Card, now time.Time) []DueAlert {
	today := now.Day()
	dateKey := DateKey(now)

	var alerts []DueAlert
	for _, card := range cards {
		if card.DueDay < 1 {
			continue
		}
		// a due day past the month's end falls on its last day
		dueDay := statement.EffectiveDay(card.DueDay, now)
		name := card.DisplayName()

		if today > dueDay && card.Balance > 0 {
			alerts = append(alerts, DueAlert{
				Kind:     AlertOverdue,
				Key:      fmt.Sprintf("%s-%s-%s", AlertOverdue, card.ID, dateKey),
				Message:  fmt.Sprintf("%s: payment is overdue", name),
				Severity: domain.SeverityWarning,
				Card:     card,
			})
		}
		if today == dueDay {
			alerts = append(alerts, DueAlert{
				Kind:     AlertDueToday,
				Key:      fmt.Sprintf("%s-%s-%s", AlertDueToday, card.ID, dateKey),
				Message:  fmt.Sprintf("%s: today is the due date", name),
				Severity: domain.SeverityWarning,
				Card:     card,
			})
		}
		if today+dueSoonLead == dueDay {
			alerts = append(alerts, DueAlert{
				Kind:     AlertDueSoon,
				Key:      fmt.Sprintf("%s-%s-%s", AlertDueSoon, card.ID, dateKey),
				Message:  fmt.Sprintf("%s: due in %d days", name, dueSoonLead),
				Severity: domain.SeverityInfo,
				Card:     card,
			})
		}
	}
	return alerts
}

// scanDeadlinesLocked emits the alerts not yet in the history nor shown in
// this session: a toast each plus a history entry, newest first, history
// capped. Returns the new entries for persistence. s.mu must be held.
func (s *Session) scanDeadlinesLocked(now time.Time) []domain.NotificationItem {
	known := make(map[string]struct{}, len(s.data.Notifications))
	for _, n := range s.data.Notifications {
		known[n.DateKey] = struct{}{}
	}

	var fresh []domain.NotificationItem
	for _, a := range DueAlerts(s.data.Cards, now) {
		if _, ok := known[a.Key]; ok {
			continue
		}
		if _, ok := s.shown[a.Key]; ok {
			continue
		}
		s.shown[a.Key] = struct{}{}

		s.toasts.Push(a.Message, a.Severity)
		fresh = append(fresh, domain.NotificationItem{
			ID:          uuid.NewString(),
			Message:     a.Message,
			Type:        a.Severity,
			Timestamp:   now.Format(notificationTimeLayout),
			DateKey:     a.Key,
			CardColor:   a.Card.Color,
			CardName:    a.Card.DisplayName(),
			IsMandatory: a.Severity == domain.SeverityWarning,
		})
		s.metrics.IncrNotification(a.Kind)
	}
	if len(fresh) == 0 {
		return nil
	}

	history := make([]domain.NotificationItem, 0, len(fresh)+len(s.data.Notifications))
	for i := len(fresh) - 1; i >= 0; i-- {
		history = append(history, fresh[i])
	}
	history = append(history, s.data.Notifications...)
	if len(history) > domain.MaxNotificationHistory {
		history = history[:domain.MaxNotificationHistory]
	}
	s.data.Notifications = history

	s.logger.Info("deadline alerts emitted", zap.Int("count", len(fresh)))
	return fresh
}
