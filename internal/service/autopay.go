package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/statement"
)

const monthLayout = "2006-01"

// AutoPaymentTransactionID is the id of the spending an auto-payment
// materializes in month. Deterministic, so two devices processing the same
// month write the same row.
func AutoPaymentTransactionID(autoPaymentID, month string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(autoPaymentID+":"+month)).String()
}

func (s *Session) autoPaymentIndexLocked(id string) int {
	for i, ap := range s.data.AutoPayments {
		if ap.ID == id {
			return i
		}
	}
	return -1
}

// AddAutoPayment schedules a recurring charge on a card. A charge whose day
// has already come this month is materialized right away.
func (s *Session) AddAutoPayment(ctx context.Context, ap domain.AutoPayment) (domain.AutoPayment, error) {
	ctx, span := mutationTracer.Start(ctx, "Session.AddAutoPayment")
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return domain.AutoPayment{}, err
	}
	if s.cardIndexLocked(ap.CardID) < 0 {
		s.mu.Unlock()
		return domain.AutoPayment{}, &domain.ErrNotFound{Resource: "card", ID: ap.CardID}
	}
	if ap.ID == "" {
		ap.ID = uuid.NewString()
	}
	ap.LastProcessedMonth = ""
	s.data.AutoPayments = append(s.data.AutoPayments, ap)

	writes := []remoteWrite{s.autoPaymentWrite(ap, "INSERT")}
	writes = append(writes, s.commitLocked(ctx, "Auto-payment added")...)
	// processing may have stamped the month already
	ap = s.data.AutoPayments[s.autoPaymentIndexLocked(ap.ID)]
	s.mu.Unlock()

	s.persist(writes...)
	return ap, nil
}

// UpdateAutoPayment changes a schedule. The processed-month marker is kept,
// so an edit never charges a month twice.
func (s *Session) UpdateAutoPayment(ctx context.Context, ap domain.AutoPayment) (domain.AutoPayment, error) {
	ctx, span := mutationTracer.Start(ctx, "Session.UpdateAutoPayment")
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return domain.AutoPayment{}, err
	}
	i := s.autoPaymentIndexLocked(ap.ID)
	if i < 0 {
		s.mu.Unlock()
		return domain.AutoPayment{}, &domain.ErrNotFound{Resource: "auto-payment", ID: ap.ID}
	}
	if s.cardIndexLocked(ap.CardID) < 0 {
		s.mu.Unlock()
		return domain.AutoPayment{}, &domain.ErrNotFound{Resource: "card", ID: ap.CardID}
	}
	ap.LastProcessedMonth = s.data.AutoPayments[i].LastProcessedMonth
	s.data.AutoPayments[i] = ap

	writes := []remoteWrite{s.autoPaymentWrite(ap, "UPDATE")}
	writes = append(writes, s.commitLocked(ctx, "Auto-payment updated")...)
	ap = s.data.AutoPayments[i]
	s.mu.Unlock()

	s.persist(writes...)
	return ap, nil
}

// DeleteAutoPayment stops a schedule. Charges already made stay.
func (s *Session) DeleteAutoPayment(ctx context.Context, id string) error {
	ctx, span := mutationTracer.Start(ctx, "Session.DeleteAutoPayment")
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return err
	}
	i := s.autoPaymentIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return &domain.ErrNotFound{Resource: "auto-payment", ID: id}
	}
	s.data.AutoPayments = append(s.data.AutoPayments[:i], s.data.AutoPayments[i+1:]...)

	writes := []remoteWrite{{"auto_payments", "DELETE", func(ctx context.Context) error {
		return s.remote.DeleteAutoPayment(ctx, s.userID, id)
	}}}
	writes = append(writes, s.commitLocked(ctx, "Auto-payment deleted")...)
	s.mu.Unlock()

	s.persist(writes...)
	return nil
}

// ProcessAutoPayments materializes the charges that are due and returns how
// many were created. It also runs after every applied reconcile, every
// mutation and on the sweep timer.
func (s *Session) ProcessAutoPayments(ctx context.Context) (int, error) {
	ctx, span := mutationTracer.Start(ctx, "Session.ProcessAutoPayments")
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return 0, err
	}
	before := len(s.data.Transactions)
	writes := s.commitLocked(ctx, "")
	created := len(s.data.Transactions) - before
	s.mu.Unlock()

	s.persist(writes...)
	return created, nil
}

// processAutoPaymentsLocked charges every active auto-payment whose day of
// month has come and that has not run this month yet. At most one charge per
// auto-payment per month.
func (s *Session) processAutoPaymentsLocked(now time.Time) []remoteWrite {
	month := now.Format(monthLayout)

	var writes []remoteWrite
	for i := range s.data.AutoPayments {
		ap := &s.data.AutoPayments[i]
		if !ap.Active || ap.LastProcessedMonth == month {
			continue
		}
		day := statement.EffectiveDay(ap.DayOfMonth, now)
		if now.Day() < day {
			continue
		}
		if s.cardIndexLocked(ap.CardID) < 0 {
			continue
		}

		txID := AutoPaymentTransactionID(ap.ID, month)
		if s.transactionIndexLocked(txID) < 0 {
			tx := autoPaymentTransaction(*ap, txID, now, day)
			s.data.Transactions = append([]domain.Transaction{tx}, s.data.Transactions...)
			s.adjustBalanceLocked(tx.CardID, tx.SignedImpact())
			writes = append(writes, remoteWrite{"transactions", "INSERT", func(ctx context.Context) error {
				return s.remote.UpsertTransactions(ctx, s.userID, []domain.Transaction{tx})
			}})
			s.toasts.Push(fmt.Sprintf("Auto-payment charged: %s", tx.Description), domain.SeverityInfo)
			s.logger.Info("auto-payment charged",
				zap.String("auto_payment_id", ap.ID),
				zap.String("month", month),
				zap.Float64("amount", ap.Amount),
			)
		}

		ap.LastProcessedMonth = month
		writes = append(writes, s.autoPaymentWrite(*ap, "UPDATE"))
	}
	return writes
}

func autoPaymentTransaction(ap domain.AutoPayment, id string, now time.Time, day int) domain.Transaction {
	category := ap.Category
	if category == "" {
		category = domain.OtherCategoryName
	}
	description := ap.Description
	if description == "" {
		description = "Auto-payment"
	}
	return domain.Transaction{
		ID:          id,
		CardID:      ap.CardID,
		Type:        domain.TransactionSpending,
		Amount:      ap.Amount,
		Category:    category,
		Date:        time.Date(now.Year(), now.Month(), day, 12, 0, 0, 0, now.Location()),
		Description: description,
		ExpenseType: domain.ExpenseRegular,
	}
}

func (s *Session) autoPaymentWrite(ap domain.AutoPayment, op string) remoteWrite {
	return remoteWrite{"auto_payments", op, func(ctx context.Context) error {
		return s.remote.UpsertAutoPayment(ctx, s.userID, ap)
	}}
}
