// Package domain defines the core business entities of the card tracker.
// These models are independent of external services and represent the
// canonical in-memory shape used throughout the BFA. Storage row shapes live
// next to their adapters.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================
// Cards
// ============================================================

// Card is a credit card registered by the user.
//
// Balance is signed: positive means debt owed, negative means credit
// (overpayment), zero means settled. It is derived from the signed sum of the
// card's transactions and cached here for fast display.
type Card struct {
	ID              string  `json:"id"`
	BankName        string  `json:"bankName"`
	CardName        string  `json:"cardName"`
	LastFour        string  `json:"lastFour"`
	Limit           float64 `json:"limit"`
	Balance         float64 `json:"balance"`
	StatementDay    int     `json:"statementDay"`
	DueDay          int     `json:"dueDay"`
	Color           string  `json:"color"`
	ReminderDays    int     `json:"reminderDays"`
	MinPaymentRatio float64 `json:"minPaymentRatio"`
	Network         string  `json:"network,omitempty"`
}

// DisplayName is what alerts and calendar entries call the card.
func (c Card) DisplayName() string {
	if c.BankName == "" {
		return c.CardName
	}
	if c.CardName == "" {
		return c.BankName
	}
	return c.BankName + " " + c.CardName
}

// ============================================================
// Transactions
// ============================================================

// TransactionType is either spending or payment.
type TransactionType string

const (
	TransactionSpending TransactionType = "spending"
	TransactionPayment  TransactionType = "payment"
)

// ExpenseType is the subtype of a spending transaction.
type ExpenseType string

const (
	ExpenseRegular     ExpenseType = "regular"
	ExpenseInstallment ExpenseType = "installment"
	ExpenseCashAdvance ExpenseType = "cash_advance"
)

// Transaction is a spending or payment entry against a card.
// Amount is always a positive magnitude; the sign comes from Type.
type Transaction struct {
	ID                 string          `json:"id"`
	CardID             string          `json:"cardId"`
	Type               TransactionType `json:"type"`
	Amount             float64         `json:"amount"`
	Category           string          `json:"category"`
	Date               time.Time       `json:"date"`
	Description        string          `json:"description,omitempty"`
	ConfirmationURL    string          `json:"confirmationUrl,omitempty"`
	ExpenseType        ExpenseType     `json:"expenseType,omitempty"`
	Installments       int             `json:"installments,omitempty"`
	InstallmentAmount  float64         `json:"installmentAmount,omitempty"`
	TotalAmount        float64         `json:"totalAmount,omitempty"`
	InstallmentGroupID string          `json:"installmentGroupId,omitempty"`
	InstallmentNumber  int             `json:"installmentNumber,omitempty"`
}

// SignedImpact is the transaction's effect on its card's balance:
// spending adds to the debt, payment subtracts from it.
func (t Transaction) SignedImpact() float64 {
	if t.Type == TransactionPayment {
		return -t.Amount
	}
	return t.Amount
}

// IsInstallment reports whether the transaction belongs to an installment group.
func (t Transaction) IsInstallment() bool {
	return t.ExpenseType == ExpenseInstallment && t.Installments > 1
}

// ============================================================
// Categories
// ============================================================

// OtherCategoryName is the sentinel category that always exists.
const OtherCategoryName = "Diğer"

// Category is a user-defined spending category.
// Transactions reference categories by name, not by id.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// DefaultCategories is the seed set applied on first use. Every call returns
// fresh ids so seeds never collide across users.
func DefaultCategories() []Category {
	return []Category{
		{ID: uuid.NewString(), Name: "Market", Color: "#22c55e"},
		{ID: uuid.NewString(), Name: "Restoran", Color: "#f97316"},
		{ID: uuid.NewString(), Name: "Ulaşım", Color: "#3b82f6"},
		{ID: uuid.NewString(), Name: "Fatura", Color: "#eab308"},
		{ID: uuid.NewString(), Name: "Eğlence", Color: "#a855f7"},
		{ID: uuid.NewString(), Name: OtherCategoryName, Color: "#6b7280"},
	}
}

// ============================================================
// Notifications & toasts
// ============================================================

// Severity is shared by notifications and toasts.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// NotificationItem is an entry in the persisted alert history.
type NotificationItem struct {
	ID          string   `json:"id"`
	Message     string   `json:"message"`
	Type        Severity `json:"type"`
	Timestamp   string   `json:"timestamp"`
	Read        bool     `json:"read"`
	DateKey     string   `json:"dateKey"`
	CardColor   string   `json:"cardColor,omitempty"`
	CardName    string   `json:"cardName,omitempty"`
	IsMandatory bool     `json:"isMandatory,omitempty"`
	IsDeleted   bool     `json:"isDeleted,omitempty"`
}

// MaxNotificationHistory caps the notification history length.
const MaxNotificationHistory = 50

// Toast is a transient, auto-expiring message for the UI.
type Toast struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Type      Severity  `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ============================================================
// Auto-payments & chat
// ============================================================

// AutoPayment is a recurring charge materialized at most once per month.
type AutoPayment struct {
	ID                 string  `json:"id"`
	CardID             string  `json:"cardId"`
	Category           string  `json:"category"`
	Amount             float64 `json:"amount"`
	DayOfMonth         int     `json:"dayOfMonth"`
	Description        string  `json:"description"`
	LastProcessedMonth string  `json:"lastProcessedMonth,omitempty"` // "2026-02"
	Active             bool    `json:"active"`
}

// ChatRole is the author of a chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one entry of the append-only advisor transcript.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// ============================================================
// Snapshot
// ============================================================

// UserData is a full snapshot of everything a user owns.
//
// The gateway returns a nil *UserData when a fetch fails and a non-nil value
// with empty slices for a legitimately empty account. Callers must keep the
// two apart.
type UserData struct {
	Cards         []Card             `json:"cards"`
	Transactions  []Transaction      `json:"transactions"`
	Categories    []Category         `json:"categories"`
	Notifications []NotificationItem `json:"notifications"`
	Chat          []ChatMessage      `json:"chat"`
	AutoPayments  []AutoPayment      `json:"autoPayments"`
}

// EmptyUserData returns a snapshot with non-nil empty collections.
func EmptyUserData() *UserData {
	return &UserData{
		Cards:         []Card{},
		Transactions:  []Transaction{},
		Categories:    []Category{},
		Notifications: []NotificationItem{},
		Chat:          []ChatMessage{},
		AutoPayments:  []AutoPayment{},
	}
}

// Clone returns a deep copy of the snapshot's slices.
func (d *UserData) Clone() *UserData {
	if d == nil {
		return nil
	}
	return &UserData{
		Cards:         append([]Card{}, d.Cards...),
		Transactions:  append([]Transaction{}, d.Transactions...),
		Categories:    append([]Category{}, d.Categories...),
		Notifications: append([]NotificationItem{}, d.Notifications...),
		Chat:          append([]ChatMessage{}, d.Chat...),
		AutoPayments:  append([]AutoPayment{}, d.AutoPayments...),
	}
}

// RecomputeBalances sets every card's cached balance to the signed sum of its
// transactions.
func (d *UserData) RecomputeBalances() {
	sums := make(map[string]decimal.Decimal, len(d.Cards))
	for _, t := range d.Transactions {
		sums[t.CardID] = sums[t.CardID].Add(decimal.NewFromFloat(t.SignedImpact()))
	}
	for i := range d.Cards {
		d.Cards[i].Balance = sums[d.Cards[i].ID].Round(2).InexactFloat64()
	}
}

// SumImpact is the signed balance effect of transactions, to the cent.
func SumImpact(transactions []Transaction) float64 {
	sum := decimal.Zero
	for _, t := range transactions {
		sum = sum.Add(decimal.NewFromFloat(t.SignedImpact()))
	}
	return sum.Round(2).InexactFloat64()
}

// AddMoney adds two amounts with cent precision.
func AddMoney(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

// ============================================================
// Push channel events
// ============================================================

// ChangeKind distinguishes row changes from explicit refresh broadcasts.
type ChangeKind string

const (
	ChangeRow       ChangeKind = "change"
	ChangeBroadcast ChangeKind = "broadcast"
)

// ChangeEvent is delivered over the push channel.
type ChangeEvent struct {
	Kind   ChangeKind `json:"kind"`
	Table  string     `json:"table,omitempty"`
	Op     string     `json:"op,omitempty"` // INSERT, UPDATE, DELETE
	UserID string     `json:"userId"`
	Origin string     `json:"origin,omitempty"`
	SentAt time.Time  `json:"sentAt"`
}

// ============================================================
// Helpers
// ============================================================

// NormalizeHexColor trims the color and makes sure it has a leading '#'.
func NormalizeHexColor(c string) string {
	c = strings.TrimSpace(c)
	if c == "" || strings.HasPrefix(c, "#") {
		return c
	}
	return "#" + c
}
