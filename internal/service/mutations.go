package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
	"github.com/boddenberg/card-tracker-bfa-go/internal/statement"
)

var mutationTracer = otel.Tracer("service/mutations")

// Every mutation has two phases. The first runs synchronously under the
// session lock: memory, cached balances, the device store, a confirmation
// toast and the deadline scan. The second persists to the remote gateway in
// the background, see persist.

// lockOpen takes the session lock unless the session is closed.
func (s *Session) lockOpen() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	return nil
}

func (s *Session) cardIndexLocked(id string) int {
	for i, c := range s.data.Cards {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) transactionIndexLocked(id string) int {
	for i, t := range s.data.Transactions {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// adjustBalanceLocked adds delta to the cached balance of a card.
func (s *Session) adjustBalanceLocked(cardID string, delta float64) {
	if i := s.cardIndexLocked(cardID); i >= 0 {
		s.data.Cards[i].Balance = domain.AddMoney(s.data.Cards[i].Balance, delta)
	}
}

// Card returns one card of the current state.
func (s *Session) Card(id string) (domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.cardIndexLocked(id); i >= 0 {
		return s.data.Cards[i], nil
	}
	return domain.Card{}, &domain.ErrNotFound{Resource: "card", ID: id}
}

// ============================================================
// Cards
// ============================================================

// AddCard registers a card. New cards start settled.
func (s *Session) AddCard(ctx context.Context, card domain.Card) (domain.Card, error) {
	ctx, span := mutationTracer.Start(ctx, "Session.AddCard")
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return domain.Card{}, err
	}
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	card.Balance = 0
	card.Color = domain.NormalizeHexColor(card.Color)
	s.data.Cards = append(s.data.Cards, card)

	writes := []remoteWrite{s.cardWrite(card, "INSERT")}
	writes = append(writes, s.commitLocked(ctx, "Card added")...)
	s.mu.Unlock()

	s.persist(writes...)
	span.SetAttributes(attribute.String("card.id", card.ID))
	s.logger.Info("card added", zap.String("card_id", card.ID))
	return card, nil
}

// UpdateCard replaces a card's attributes. The cached balance is derived from
// transactions and never taken from the caller.
func (s *Session) UpdateCard(ctx context.Context, card domain.Card) (domain.Card, error) {
	ctx, span := mutationTracer.Start(ctx, "Session.UpdateCard")
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return domain.Card{}, err
	}
	i := s.cardIndexLocked(card.ID)
	if i < 0 {
		s.mu.Unlock()
		return domain.Card{}, &domain.ErrNotFound{Resource: "card", ID: card.ID}
	}
	card.Balance = s.data.Cards[i].Balance
	card.Color = domain.NormalizeHexColor(card.Color)
	s.data.Cards[i] = card

	writes := []remoteWrite{s.cardWrite(card, "UPDATE")}
	writes = append(writes, s.commitLocked(ctx, "Card updated")...)
	s.mu.Unlock()

	s.persist(writes...)
	return card, nil
}

// DeleteCard removes a card together with its transactions and
// auto-payments.
func (s *Session) DeleteCard(ctx context.Context, id string) error {
	ctx, span := mutationTracer.Start(ctx, "Session.DeleteCard")
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return err
	}
	i := s.cardIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return &domain.ErrNotFound{Resource: "card", ID: id}
	}
	s.data.Cards = append(s.data.Cards[:i], s.data.Cards[i+1:]...)

	txs := s.data.Transactions[:0]
	removed := 0
	for _, t := range s.data.Transactions {
		if t.CardID == id {
			removed++
			continue
		}
		txs = append(txs, t)
	}
	s.data.Transactions = txs

	aps := s.data.AutoPayments[:0]
	for _, ap := range s.data.AutoPayments {
		if ap.CardID != id {
			aps = append(aps, ap)
		}
	}
	s.data.AutoPayments = aps

	writes := []remoteWrite{{"cards", "DELETE", func(ctx context.Context) error {
		return s.remote.DeleteCard(ctx, s.userID, id)
	}}}
	writes = append(writes, s.commitLocked(ctx, "Card deleted")...)
	s.mu.Unlock()

	s.persist(writes...)
	s.logger.Info("card deleted", zap.String("card_id", id), zap.Int("transactions_removed", removed))
	return nil
}

func (s *Session) cardWrite(card domain.Card, op string) remoteWrite {
	return remoteWrite{"cards", op, func(ctx context.Context) error {
		return s.remote.UpsertCard(ctx, s.userID, card)
	}}
}

// ============================================================
// Transactions
// ============================================================

// AddTransaction records a spending or a payment. An installment purchase is
// expanded into one transaction per installment. Returns what was recorded.
func (s *Session) AddTransaction(ctx context.Context, tx domain.Transaction) ([]domain.Transaction, error) {
	ctx, span := mutationTracer.Start(ctx, "Session.AddTransaction")
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return nil, err
	}
	if s.cardIndexLocked(tx.CardID) < 0 {
		s.mu.Unlock()
		return nil, &domain.ErrNotFound{Resource: "card", ID: tx.CardID}
	}
	if tx.Category == "" {
		tx.Category = domain.OtherCategoryName
	}
	if tx.Type == domain.TransactionSpending && tx.ExpenseType == "" {
		tx.ExpenseType = domain.ExpenseRegular
	}

	var added []domain.Transaction
	if tx.Type == domain.TransactionSpending && tx.IsInstallment() {
		added = ExpandInstallments(tx)
	} else {
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		added = []domain.Transaction{tx}
	}

	// newest first, so the last installment leads
	prepend := make([]domain.Transaction, 0, len(added)+len(s.data.Transactions))
	for i := len(added) - 1; i >= 0; i-- {
		prepend = append(prepend, added[i])
		s.adjustBalanceLocked(added[i].CardID, added[i].SignedImpact())
	}
	s.data.Transactions = append(prepend, s.data.Transactions...)

	persisted := append([]domain.Transaction{}, added...)
	writes := []remoteWrite{{"transactions", "INSERT", func(ctx context.Context) error {
		return s.remote.UpsertTransactions(ctx, s.userID, persisted)
	}}}
	writes = append(writes, s.commitLocked(ctx, "Transaction added")...)
	s.mu.Unlock()

	s.persist(writes...)
	span.SetAttributes(attribute.Int("transactions.count", len(added)))
	s.logger.Info("transaction added",
		zap.String("card_id", tx.CardID),
		zap.String("type", string(tx.Type)),
		zap.Int("count", len(added)),
	)
	return added, nil
}

// UpdateTransaction replaces a transaction, moving its balance impact when
// the amount, the type or the card changes.
func (s *Session) UpdateTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	ctx, span := mutationTracer.Start(ctx, "Session.UpdateTransaction")
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return domain.Transaction{}, err
	}
	i := s.transactionIndexLocked(tx.ID)
	if i < 0 {
		s.mu.Unlock()
		return domain.Transaction{}, &domain.ErrNotFound{Resource: "transaction", ID: tx.ID}
	}
	if s.cardIndexLocked(tx.CardID) < 0 {
		s.mu.Unlock()
		return domain.Transaction{}, &domain.ErrNotFound{Resource: "card", ID: tx.CardID}
	}
	if tx.Category == "" {
		tx.Category = domain.OtherCategoryName
	}

	old := s.data.Transactions[i]
	if tx.InstallmentGroupID == "" {
		tx.InstallmentGroupID = old.InstallmentGroupID
		tx.InstallmentNumber = old.InstallmentNumber
	}
	s.adjustBalanceLocked(old.CardID, -old.SignedImpact())
	s.adjustBalanceLocked(tx.CardID, tx.SignedImpact())
	s.data.Transactions[i] = tx

	writes := []remoteWrite{{"transactions", "UPDATE", func(ctx context.Context) error {
		return s.remote.UpsertTransactions(ctx, s.userID, []domain.Transaction{tx})
	}}}
	writes = append(writes, s.commitLocked(ctx, "Transaction updated")...)
	s.mu.Unlock()

	s.persist(writes...)
	return tx, nil
}

// DeleteTransaction removes a transaction and reverses its balance impact.
func (s *Session) DeleteTransaction(ctx context.Context, id string) error {
	ctx, span := mutationTracer.Start(ctx, "Session.DeleteTransaction")
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return err
	}
	i := s.transactionIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	old := s.data.Transactions[i]
	s.adjustBalanceLocked(old.CardID, -old.SignedImpact())
	s.data.Transactions = append(s.data.Transactions[:i], s.data.Transactions[i+1:]...)

	writes := []remoteWrite{{"transactions", "DELETE", func(ctx context.Context) error {
		return s.remote.DeleteTransaction(ctx, s.userID, id)
	}}}
	writes = append(writes, s.commitLocked(ctx, "Transaction deleted")...)
	s.mu.Unlock()

	s.persist(writes...)
	return nil
}

// ExpandInstallments splits an installment purchase into one spending per
// month. The total is authoritative: it is split in cents and the remainder
// lands on the last installment, so the shares always sum to the total.
func ExpandInstallments(tx domain.Transaction) []domain.Transaction {
	n := tx.Installments
	if n < 2 {
		return []domain.Transaction{tx}
	}

	total := decimal.NewFromFloat(tx.TotalAmount)
	if !total.IsPositive() {
		total = decimal.NewFromFloat(tx.Amount)
	}
	if !total.IsPositive() {
		total = decimal.NewFromFloat(tx.InstallmentAmount).Mul(decimal.NewFromInt(int64(n)))
	}

	cents := total.Shift(2).Round(0).IntPart()
	base := cents / int64(n)
	last := cents - base*int64(n-1)

	group := tx.InstallmentGroupID
	if group == "" {
		group = uuid.NewString()
	}

	out := make([]domain.Transaction, 0, n)
	for k := 0; k < n; k++ {
		share := base
		if k == n-1 {
			share = last
		}
		t := tx
		t.ID = uuid.NewString()
		t.Amount = decimal.New(share, -2).InexactFloat64()
		t.InstallmentAmount = decimal.New(base, -2).InexactFloat64()
		t.TotalAmount = decimal.New(cents, -2).InexactFloat64()
		t.InstallmentGroupID = group
		t.InstallmentNumber = k + 1
		t.Date = statement.AddMonths(tx.Date, k)
		out = append(out, t)
	}
	return out
}
