package supabase

import (
	"time"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
)

// ============================================================
// Row shapes: snake_case columns of the hosted tables
// ============================================================

type cardRow struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	BankName        string  `json:"bank_name"`
	CardName        string  `json:"card_name"`
	LastFour        string  `json:"last_four"`
	Limit           float64 `json:"limit"`
	StatementDay    int     `json:"statement_day"`
	DueDay          int     `json:"due_day"`
	Color           string  `json:"color"`
	MinPaymentRatio float64 `json:"min_payment_ratio"`
}

type transactionRow struct {
	ID                 string   `json:"id"`
	UserID             string   `json:"user_id"`
	CardID             string   `json:"card_id"`
	Type               string   `json:"type"`
	Amount             float64  `json:"amount"`
	Category           string   `json:"category"`
	Date               string   `json:"date"`
	Description        *string  `json:"description"`
	ConfirmationURL    *string  `json:"confirmation_url"`
	ExpenseType        *string  `json:"expense_type"`
	Installments       *int     `json:"installments"`
	InstallmentAmount  *float64 `json:"installment_amount"`
	TotalAmount        *float64 `json:"total_amount"`
	InstallmentGroupID *string  `json:"installment_group_id"`
	InstallmentNumber  *int     `json:"installment_number"`
}

type categoryRow struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
}

type notificationRow struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Message     string  `json:"message"`
	Type        string  `json:"type"`
	Timestamp   string  `json:"timestamp"`
	Read        bool    `json:"read"`
	DateKey     string  `json:"date_key"`
	CardColor   *string `json:"card_color"`
	CardName    *string `json:"card_name"`
	IsMandatory bool    `json:"is_mandatory"`
	IsDeleted   bool    `json:"is_deleted"`
}

type chatRow struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type autoPaymentRow struct {
	ID                 string  `json:"id"`
	UserID             string  `json:"user_id"`
	CardID             string  `json:"card_id"`
	Category           string  `json:"category"`
	Amount             float64 `json:"amount"`
	DayOfMonth         int     `json:"day_of_month"`
	Description        string  `json:"description"`
	LastProcessedMonth *string `json:"last_processed_month"`
	Active             bool    `json:"active"`
}

// ============================================================
// Mapping
// ============================================================

func toCardRow(userID string, c domain.Card) cardRow {
	return cardRow{
		ID:              c.ID,
		UserID:          userID,
		BankName:        c.BankName,
		CardName:        c.CardName,
		LastFour:        c.LastFour,
		Limit:           c.Limit,
		StatementDay:    c.StatementDay,
		DueDay:          c.DueDay,
		Color:           c.Color,
		MinPaymentRatio: c.MinPaymentRatio,
	}
}

// fromCardRow leaves Balance at zero; callers recompute it from transactions.
func fromCardRow(r cardRow) domain.Card {
	return domain.Card{
		ID:              r.ID,
		BankName:        r.BankName,
		CardName:        r.CardName,
		LastFour:        r.LastFour,
		Limit:           r.Limit,
		StatementDay:    r.StatementDay,
		DueDay:          r.DueDay,
		Color:           r.Color,
		MinPaymentRatio: r.MinPaymentRatio,
	}
}

func toTransactionRow(userID string, t domain.Transaction) transactionRow {
	row := transactionRow{
		ID:              t.ID,
		UserID:          userID,
		CardID:          t.CardID,
		Type:            string(t.Type),
		Amount:          t.Amount,
		Category:        t.Category,
		Date:            t.Date.Format(time.RFC3339),
		Description:     optString(t.Description),
		ConfirmationURL: optString(t.ConfirmationURL),
		ExpenseType:     optString(string(t.ExpenseType)),
	}
	if t.Installments > 0 {
		row.Installments = &t.Installments
		row.InstallmentAmount = &t.InstallmentAmount
		row.TotalAmount = &t.TotalAmount
		row.InstallmentGroupID = optString(t.InstallmentGroupID)
		row.InstallmentNumber = &t.InstallmentNumber
	}
	return row
}

func fromTransactionRow(r transactionRow) domain.Transaction {
	t := domain.Transaction{
		ID:                 r.ID,
		CardID:             r.CardID,
		Type:               domain.TransactionType(r.Type),
		Amount:             r.Amount,
		Category:           r.Category,
		Date:               parseTime(r.Date),
		Description:        deref(r.Description),
		ConfirmationURL:    deref(r.ConfirmationURL),
		ExpenseType:        domain.ExpenseType(deref(r.ExpenseType)),
		InstallmentGroupID: deref(r.InstallmentGroupID),
	}
	if r.Installments != nil {
		t.Installments = *r.Installments
	}
	if r.InstallmentAmount != nil {
		t.InstallmentAmount = *r.InstallmentAmount
	}
	if r.TotalAmount != nil {
		t.TotalAmount = *r.TotalAmount
	}
	if r.InstallmentNumber != nil {
		t.InstallmentNumber = *r.InstallmentNumber
	}
	return t
}

func toCategoryRow(userID string, c domain.Category) categoryRow {
	return categoryRow{ID: c.ID, UserID: userID, Name: c.Name, Color: c.Color}
}

func fromCategoryRow(r categoryRow) domain.Category {
	return domain.Category{ID: r.ID, Name: r.Name, Color: r.Color}
}

func toNotificationRow(userID string, n domain.NotificationItem) notificationRow {
	return notificationRow{
		ID:          n.ID,
		UserID:      userID,
		Message:     n.Message,
		Type:        string(n.Type),
		Timestamp:   n.Timestamp,
		Read:        n.Read,
		DateKey:     n.DateKey,
		CardColor:   optString(n.CardColor),
		CardName:    optString(n.CardName),
		IsMandatory: n.IsMandatory,
		IsDeleted:   n.IsDeleted,
	}
}

func fromNotificationRow(r notificationRow) domain.NotificationItem {
	return domain.NotificationItem{
		ID:          r.ID,
		Message:     r.Message,
		Type:        domain.Severity(r.Type),
		Timestamp:   r.Timestamp,
		Read:        r.Read,
		DateKey:     r.DateKey,
		CardColor:   deref(r.CardColor),
		CardName:    deref(r.CardName),
		IsMandatory: r.IsMandatory,
		IsDeleted:   r.IsDeleted,
	}
}

func toChatRow(userID string, m domain.ChatMessage) chatRow {
	return chatRow{
		ID:        m.ID,
		UserID:    userID,
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromChatRow(r chatRow) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        r.ID,
		Role:      domain.ChatRole(r.Role),
		Content:   r.Content,
		CreatedAt: parseTime(r.CreatedAt),
	}
}

func toAutoPaymentRow(userID string, a domain.AutoPayment) autoPaymentRow {
	return autoPaymentRow{
		ID:                 a.ID,
		UserID:             userID,
		CardID:             a.CardID,
		Category:           a.Category,
		Amount:             a.Amount,
		DayOfMonth:         a.DayOfMonth,
		Description:        a.Description,
		LastProcessedMonth: optString(a.LastProcessedMonth),
		Active:             a.Active,
	}
}

func fromAutoPaymentRow(r autoPaymentRow) domain.AutoPayment {
	return domain.AutoPayment{
		ID:                 r.ID,
		CardID:             r.CardID,
		Category:           r.Category,
		Amount:             r.Amount,
		DayOfMonth:         r.DayOfMonth,
		Description:        r.Description,
		LastProcessedMonth: deref(r.LastProcessedMonth),
		Active:             r.Active,
	}
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parseTime accepts full timestamps and bare dates.
func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
