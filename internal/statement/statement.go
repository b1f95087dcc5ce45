// Package statement holds the billing-cycle arithmetic: statement periods,
// due dates, days remaining and minimum payments. Everything here is pure.
package statement

import (
	"time"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"

	"github.com/shopspring/decimal"
)

// CalculatePeriod returns the billing cycle that date falls into for a card
// closing on statementDay and due on dueDay.
//
// A date on or before statementDay belongs to the cycle closing this month,
// otherwise to the one closing next month. Days past the end of a month clamp
// to its last day, so a statement day of 31 closes on Feb 28 in February.
func CalculatePeriod(date time.Time, statementDay, dueDay int) domain.StatementPeriod {
	loc := date.Location()
	y, m, d := date.Date()

	endMonth := m
	if d > statementDay {
		endMonth++
	}

	end := clampedDate(y, endMonth, statementDay, loc)
	prevEnd := clampedDate(y, endMonth-1, statementDay, loc)
	start := prevEnd.AddDate(0, 0, 1)

	dueMonth := end.Month()
	if dueDay < statementDay {
		dueMonth++
	}
	due := clampedDate(end.Year(), dueMonth, dueDay, loc)

	return domain.StatementPeriod{Start: start, End: end, Due: due}
}

// CurrentPeriod is the period containing now for the given card.
func CurrentPeriod(card domain.Card, now time.Time) domain.StatementPeriod {
	return CalculatePeriod(now, card.StatementDay, card.DueDay)
}

// DaysRemaining is the whole calendar-day difference between target and now.
// Positive means target is in the future, zero means today. Both dates are
// reduced to their civil date first, so DST transitions never misround.
func DaysRemaining(target, now time.Time) int {
	ty, tm, td := target.Date()
	ny, nm, nd := now.Date()
	t := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	n := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(n).Hours() / 24)
}

// NextDueDate is the first due date on or after now's calendar day.
func NextDueDate(dueDay int, now time.Time) time.Time {
	loc := now.Location()
	y, m, _ := now.Date()
	today := StartOfDay(now)

	due := clampedDate(y, m, dueDay, loc)
	if due.Before(today) {
		due = clampedDate(y, m+1, dueDay, loc)
	}
	return due
}

// Calculate builds the statement of card for period from its transactions.
//
// Debt is clamped at zero: a card in credit owes nothing at statement time
// even though its live balance may be negative. The minimum payment is the
// configured percentage of the debt, rounded to cents.
func Calculate(card domain.Card, transactions []domain.Transaction, period domain.StatementPeriod) domain.Statement {
	periodEnd := period.End.AddDate(0, 0, 1)

	previous := decimal.Zero
	spending := decimal.Zero
	payment := decimal.Zero

	for _, t := range transactions {
		if t.CardID != card.ID {
			continue
		}
		amount := decimal.NewFromFloat(t.Amount)

		switch {
		case t.Date.Before(period.Start):
			previous = previous.Add(decimal.NewFromFloat(t.SignedImpact()))
		case t.Date.Before(periodEnd):
			if t.Type == domain.TransactionPayment {
				payment = payment.Add(amount)
			} else {
				spending = spending.Add(amount)
			}
		}
	}

	debt := previous.Add(spending).Sub(payment)
	if debt.IsNegative() {
		debt = decimal.Zero
	}

	minPayment := decimal.Zero
	if !debt.IsZero() {
		minPayment = debt.Mul(decimal.NewFromFloat(card.MinPaymentRatio)).Div(decimal.NewFromInt(100)).Round(2)
	}

	return domain.Statement{
		CardID:          card.ID,
		Period:          period,
		PreviousBalance: previous.Round(2).InexactFloat64(),
		TotalSpending:   spending.Round(2).InexactFloat64(),
		TotalPayment:    payment.Round(2).InexactFloat64(),
		TotalDebt:       debt.Round(2).InexactFloat64(),
		MinPayment:      minPayment.InexactFloat64(),
	}
}

// Utilization is the share of the limit in use, in percent. Cards in credit
// report zero.
func Utilization(card domain.Card) float64 {
	if card.Limit <= 0 || card.Balance <= 0 {
		return 0
	}
	return decimal.NewFromFloat(card.Balance).
		Div(decimal.NewFromFloat(card.Limit)).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		InexactFloat64()
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysIn returns the number of days of month m in year y. Out-of-range months
// are normalized the way time.Date does.
func DaysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// clampedDate builds (y, m, day) with day capped to the month's last day.
// m may be out of range; it is normalized first.
func clampedDate(y int, m time.Month, day int, loc *time.Location) time.Time {
	first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	last := DaysIn(first.Year(), first.Month())
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, loc)
}

// AddMonths moves t by n calendar months keeping its time of day. The day is
// capped to the target month's length instead of rolling over.
func AddMonths(t time.Time, n int) time.Time {
	d := clampedDate(t.Year(), t.Month()+time.Month(n), t.Day(), t.Location())
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// EffectiveDay caps a configured day-of-month to the length of t's month.
func EffectiveDay(day int, t time.Time) int {
	if last := DaysIn(t.Year(), t.Month()); day > last {
		return last
	}
	return day
}
