package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Table names.
const (
	tableCards         = "cards"
	tableTransactions  = "transactions"
	tableCategories    = "categories"
	tableNotifications = "notifications"
	tableChat          = "chat_history"
	tableAutoPayments  = "auto_payments"
)

// fetchRows reads every row of table owned by userID.
func fetchRows[R any](ctx context.Context, c *Client, table, userID, order string) ([]R, error) {
	path := fmt.Sprintf("%s?select=*&%s", table, eq("user_id", userID))
	if order != "" {
		path += "&order=" + order
	}

	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return []R{}, nil
	}

	var rows []R
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", table, err)
	}
	if rows == nil {
		rows = []R{}
	}
	return rows, nil
}

// FetchUserData loads all six tables for a user concurrently.
// Any failure yields a nil snapshot; success always yields a non-nil one.
func (c *Client) FetchUserData(ctx context.Context, userID string) (*domain.UserData, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FetchUserData")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var (
		cards    []cardRow
		txs      []transactionRow
		cats     []categoryRow
		notifs   []notificationRow
		chat     []chatRow
		autopays []autoPaymentRow
	)

	err := c.guard(ctx, span, func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			cards, err = fetchRows[cardRow](gctx, c, tableCards, userID, "")
			return err
		})
		g.Go(func() (err error) {
			txs, err = fetchRows[transactionRow](gctx, c, tableTransactions, userID, "date.desc")
			return err
		})
		g.Go(func() (err error) {
			cats, err = fetchRows[categoryRow](gctx, c, tableCategories, userID, "")
			return err
		})
		g.Go(func() (err error) {
			notifs, err = fetchRows[notificationRow](gctx, c, tableNotifications, userID, "timestamp.desc")
			return err
		})
		g.Go(func() (err error) {
			chat, err = fetchRows[chatRow](gctx, c, tableChat, userID, "created_at.asc")
			return err
		})
		g.Go(func() (err error) {
			autopays, err = fetchRows[autoPaymentRow](gctx, c, tableAutoPayments, userID, "")
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}

	data := domain.EmptyUserData()
	for _, r := range cards {
		data.Cards = append(data.Cards, fromCardRow(r))
	}
	for _, r := range txs {
		data.Transactions = append(data.Transactions, fromTransactionRow(r))
	}
	for _, r := range cats {
		data.Categories = append(data.Categories, fromCategoryRow(r))
	}
	for _, r := range notifs {
		data.Notifications = append(data.Notifications, fromNotificationRow(r))
	}
	for _, r := range chat {
		data.Chat = append(data.Chat, fromChatRow(r))
	}
	for _, r := range autopays {
		data.AutoPayments = append(data.AutoPayments, fromAutoPaymentRow(r))
	}

	// newest first regardless of what the server returned
	sort.SliceStable(data.Transactions, func(i, j int) bool {
		return data.Transactions[i].Date.After(data.Transactions[j].Date)
	})
	if len(data.Notifications) > domain.MaxNotificationHistory {
		data.Notifications = data.Notifications[:domain.MaxNotificationHistory]
	}
	data.RecomputeBalances()

	span.SetAttributes(
		attribute.Int("cards.count", len(data.Cards)),
		attribute.Int("transactions.count", len(data.Transactions)),
	)
	return data, nil
}

// ============================================================
// Cards
// ============================================================

// UpsertCard writes a card row.
func (c *Client) UpsertCard(ctx context.Context, userID string, card domain.Card) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertCard")
	defer span.End()
	span.SetAttributes(attribute.String("card.id", card.ID))

	return c.guard(ctx, span, func() error {
		return c.doUpsert(ctx, tableCards, []cardRow{toCardRow(userID, card)})
	})
}

// DeleteCard removes a card together with its transactions and auto-payments.
func (c *Client) DeleteCard(ctx context.Context, userID, cardID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteCard")
	defer span.End()
	span.SetAttributes(attribute.String("card.id", cardID))

	owned := eq("user_id", userID)
	return c.guard(ctx, span, func() error {
		if err := c.doDelete(ctx, fmt.Sprintf("%s?%s&%s", tableTransactions, eq("card_id", cardID), owned)); err != nil {
			return err
		}
		if err := c.doDelete(ctx, fmt.Sprintf("%s?%s&%s", tableAutoPayments, eq("card_id", cardID), owned)); err != nil {
			return err
		}
		return c.doDelete(ctx, fmt.Sprintf("%s?%s&%s", tableCards, eq("id", cardID), owned))
	})
}

// ============================================================
// Transactions
// ============================================================

// UpsertTransactions writes one or more transaction rows in a single request.
func (c *Client) UpsertTransactions(ctx context.Context, userID string, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "Supabase.UpsertTransactions")
	defer span.End()
	span.SetAttributes(attribute.Int("transactions.count", len(txs)))

	rows := make([]transactionRow, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, toTransactionRow(userID, t))
	}
	return c.guard(ctx, span, func() error {
		return c.doUpsert(ctx, tableTransactions, rows)
	})
}

// DeleteTransaction removes one transaction row.
func (c *Client) DeleteTransaction(ctx context.Context, userID, txID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", txID))

	return c.guard(ctx, span, func() error {
		return c.doDelete(ctx, fmt.Sprintf("%s?%s&%s", tableTransactions, eq("id", txID), eq("user_id", userID)))
	})
}

// ============================================================
// Categories
// ============================================================

func (c *Client) UpsertCategory(ctx context.Context, userID string, cat domain.Category) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertCategory")
	defer span.End()

	return c.guard(ctx, span, func() error {
		return c.doUpsert(ctx, tableCategories, []categoryRow{toCategoryRow(userID, cat)})
	})
}

func (c *Client) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteCategory")
	defer span.End()

	return c.guard(ctx, span, func() error {
		return c.doDelete(ctx, fmt.Sprintf("%s?%s&%s", tableCategories, eq("id", categoryID), eq("user_id", userID)))
	})
}

// ============================================================
// Notifications
// ============================================================

func (c *Client) UpsertNotifications(ctx context.Context, userID string, items []domain.NotificationItem) error {
	if len(items) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "Supabase.UpsertNotifications")
	defer span.End()

	rows := make([]notificationRow, 0, len(items))
	for _, n := range items {
		rows = append(rows, toNotificationRow(userID, n))
	}
	return c.guard(ctx, span, func() error {
		return c.doUpsert(ctx, tableNotifications, rows)
	})
}

// ClearNotifications soft-deletes every notification of the user. Rows stay
// so their dedup keys keep suppressing same-day alerts.
func (c *Client) ClearNotifications(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.ClearNotifications")
	defer span.End()

	return c.guard(ctx, span, func() error {
		return c.doPatch(ctx, fmt.Sprintf("%s?%s", tableNotifications, eq("user_id", userID)),
			map[string]any{"is_deleted": true, "read": true})
	})
}

// ============================================================
// Chat
// ============================================================

func (c *Client) AppendChatMessage(ctx context.Context, userID string, msg domain.ChatMessage) error {
	ctx, span := tracer.Start(ctx, "Supabase.AppendChatMessage")
	defer span.End()

	return c.guard(ctx, span, func() error {
		return c.doUpsert(ctx, tableChat, []chatRow{toChatRow(userID, msg)})
	})
}

func (c *Client) ClearChat(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.ClearChat")
	defer span.End()

	return c.guard(ctx, span, func() error {
		return c.doDelete(ctx, fmt.Sprintf("%s?%s", tableChat, eq("user_id", userID)))
	})
}

// ============================================================
// Auto-payments
// ============================================================

func (c *Client) UpsertAutoPayment(ctx context.Context, userID string, ap domain.AutoPayment) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertAutoPayment")
	defer span.End()

	return c.guard(ctx, span, func() error {
		return c.doUpsert(ctx, tableAutoPayments, []autoPaymentRow{toAutoPaymentRow(userID, ap)})
	})
}

func (c *Client) DeleteAutoPayment(ctx context.Context, userID, autoPaymentID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteAutoPayment")
	defer span.End()

	return c.guard(ctx, span, func() error {
		return c.doDelete(ctx, fmt.Sprintf("%s?%s&%s", tableAutoPayments, eq("id", autoPaymentID), eq("user_id", userID)))
	})
}
