package service

import (
	"context"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
)

// BankFeedFunc returns the transactions a bank reports for card, given the
// ones already known.
type BankFeedFunc func(ctx context.Context, card domain.Card, known []domain.Transaction) ([]domain.Transaction, error)

// BankFeed stands in for a bank integration. It returns the transactions it
// is given; there is no real bank behind it.
func BankFeed(_ context.Context, _ domain.Card, transactions []domain.Transaction) ([]domain.Transaction, error) {
	return transactions, nil
}

// RefreshBalances pulls every card through the bank feed and sets each
// cached balance from what the feed reports. Runs on the sweep timer too.
func (s *Session) RefreshBalances(ctx context.Context) error {
	ctx, span := mutationTracer.Start(ctx, "Session.RefreshBalances")
	defer span.End()

	if err := s.lockOpen(); err != nil {
		return err
	}

	byCard := make(map[string][]domain.Transaction, len(s.data.Cards))
	for _, t := range s.data.Transactions {
		byCard[t.CardID] = append(byCard[t.CardID], t)
	}
	balances := make(map[string]float64, len(s.data.Cards))
	for _, card := range s.data.Cards {
		fed, err := s.bank(ctx, card, byCard[card.ID])
		if err != nil {
			s.mu.Unlock()
			return err
		}
		balances[card.ID] = domain.SumImpact(fed)
	}
	for i := range s.data.Cards {
		s.data.Cards[i].Balance = balances[s.data.Cards[i].ID]
	}

	writes := s.commitLocked(ctx, "")
	s.mu.Unlock()

	s.persist(writes...)
	return nil
}
