package service

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/statement"
)

// ============================================================
// Analytics
// ============================================================

// DashboardSummary aggregates the session's cards for month ("2006-01", empty
// for the current month).
func (s *Session) DashboardSummary(month string) (domain.DashboardSummary, error) {
	now := s.now()
	start, err := parseMonth(month, now)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	s.mu.Lock()
	data := s.data.Clone()
	s.mu.Unlock()

	return BuildDashboard(data, start, now), nil
}

// CardStatement computes a card's statement for the period containing at
// (now when zero).
func (s *Session) CardStatement(cardID string, at time.Time) (domain.Statement, error) {
	if at.IsZero() {
		at = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.cardIndexLocked(cardID)
	if i < 0 {
		return domain.Statement{}, &domain.ErrNotFound{Resource: "card", ID: cardID}
	}
	card := s.data.Cards[i]
	return statement.Calculate(card, s.data.Transactions, statement.CurrentPeriod(card, at)), nil
}

func parseMonth(month string, now time.Time) (time.Time, error) {
	if month == "" {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), nil
	}
	t, err := time.ParseInLocation(monthLayout, month, now.Location())
	if err != nil {
		return time.Time{}, &domain.ErrValidation{Field: "month", Message: "must be YYYY-MM"}
	}
	return t, nil
}

// BuildDashboard is the pure aggregation behind DashboardSummary. monthStart
// is the first day of the analysed month.
func BuildDashboard(data *domain.UserData, monthStart, now time.Time) domain.DashboardSummary {
	monthEnd := monthStart.AddDate(0, 1, 0)

	debt := decimal.Zero
	limit := decimal.Zero
	cards := make([]domain.CardSummary, 0, len(data.Cards))
	for _, card := range data.Cards {
		if card.Balance > 0 {
			debt = debt.Add(decimal.NewFromFloat(card.Balance))
		}
		limit = limit.Add(decimal.NewFromFloat(card.Limit))

		period := statement.CurrentPeriod(card, now)
		available := decimal.NewFromFloat(card.Limit)
		if card.Balance > 0 {
			available = available.Sub(decimal.NewFromFloat(card.Balance))
		}
		cards = append(cards, domain.CardSummary{
			Card:          card,
			Statement:     statement.Calculate(card, data.Transactions, period),
			DaysUntilDue:  statement.DaysRemaining(period.Due, now),
			Utilization:   statement.Utilization(card),
			AvailableLeft: available.Round(2).InexactFloat64(),
		})
	}

	// categories are matched by folded name; unknown names go to the sentinel
	known := make(map[string]domain.Category, len(data.Categories))
	for _, c := range data.Categories {
		known[FoldCategoryName(c.Name)] = c
	}
	other, ok := known[FoldCategoryName(domain.OtherCategoryName)]
	if !ok {
		other = domain.Category{Name: domain.OtherCategoryName, Color: defaultCategoryColor}
	}

	spending := decimal.Zero
	payments := decimal.Zero
	byCategory := make(map[string]decimal.Decimal)
	colors := make(map[string]string)
	for _, t := range data.Transactions {
		if t.Date.Before(monthStart) || !t.Date.Before(monthEnd) {
			continue
		}
		amount := decimal.NewFromFloat(t.Amount)
		if t.Type == domain.TransactionPayment {
			payments = payments.Add(amount)
			continue
		}
		spending = spending.Add(amount)

		cat, ok := known[FoldCategoryName(t.Category)]
		if !ok {
			cat = other
		}
		byCategory[cat.Name] = byCategory[cat.Name].Add(amount)
		colors[cat.Name] = cat.Color
	}

	categories := make([]domain.CategorySpending, 0, len(byCategory))
	for name, total := range byCategory {
		categories = append(categories, domain.CategorySpending{
			Category: name,
			Color:    colors[name],
			Total:    total.Round(2).InexactFloat64(),
		})
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Total != categories[j].Total {
			return categories[i].Total > categories[j].Total
		}
		return categories[i].Category < categories[j].Category
	})

	utilization := decimal.Zero
	if limit.IsPositive() {
		utilization = debt.Div(limit).Mul(decimal.NewFromInt(100)).Round(2)
	}

	return domain.DashboardSummary{
		Month:          monthStart.Format(monthLayout),
		TotalDebt:      debt.Round(2).InexactFloat64(),
		TotalLimit:     limit.Round(2).InexactFloat64(),
		Utilization:    utilization.InexactFloat64(),
		MonthSpending:  spending.Round(2).InexactFloat64(),
		MonthPayments:  payments.Round(2).InexactFloat64(),
		Cards:          cards,
		ByCategory:     categories,
		GeneratedAtUTC: now.UTC(),
	}
}

// NextDue returns a card with the first due date on or after today, for
// calendar export.
func (s *Session) NextDue(cardID string) (domain.Card, time.Time, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.cardIndexLocked(cardID)
	if i < 0 {
		return domain.Card{}, time.Time{}, &domain.ErrNotFound{Resource: "card", ID: cardID}
	}
	card := s.data.Cards[i]
	return card, statement.NextDueDate(card.DueDay, now), nil
}
