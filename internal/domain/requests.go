package domain

import "time"

// ============================================================
// API request bodies. Validation tags are checked by the HTTP layer;
// the session core trusts what it is given.
// ============================================================

// CardRequest is the body for POST/PUT /v1/cards.
type CardRequest struct {
	BankName        string  `json:"bankName" validate:"required,max=60"`
	CardName        string  `json:"cardName" validate:"required,max=60"`
	LastFour        string  `json:"lastFour" validate:"omitempty,len=4,numeric"`
	Limit           float64 `json:"limit" validate:"gte=0"`
	StatementDay    int     `json:"statementDay" validate:"min=1,max=31"`
	DueDay          int     `json:"dueDay" validate:"min=1,max=31"`
	Color           string  `json:"color" validate:"omitempty,hex_color"`
	ReminderDays    int     `json:"reminderDays" validate:"gte=0,lte=30"`
	MinPaymentRatio float64 `json:"minPaymentRatio" validate:"gte=0,lte=100"`
	Network         string  `json:"network" validate:"omitempty,oneof=visa mastercard troy amex"`
}

// ToCard maps the request onto a card with the given id.
func (r CardRequest) ToCard(id string) Card {
	return Card{
		ID:              id,
		BankName:        r.BankName,
		CardName:        r.CardName,
		LastFour:        r.LastFour,
		Limit:           r.Limit,
		StatementDay:    r.StatementDay,
		DueDay:          r.DueDay,
		Color:           NormalizeHexColor(r.Color),
		ReminderDays:    r.ReminderDays,
		MinPaymentRatio: r.MinPaymentRatio,
		Network:         r.Network,
	}
}

// TransactionRequest is the body for POST/PUT /v1/transactions.
type TransactionRequest struct {
	CardID             string          `json:"cardId" validate:"required"`
	Type               TransactionType `json:"type" validate:"required,oneof=spending payment"`
	Amount             float64         `json:"amount" validate:"gt=0"`
	Category           string          `json:"category" validate:"max=60"`
	Date               time.Time       `json:"date" validate:"required"`
	Description        string          `json:"description" validate:"max=200"`
	ConfirmationURL    string          `json:"confirmationUrl" validate:"omitempty,url"`
	ExpenseType        ExpenseType     `json:"expenseType" validate:"omitempty,oneof=regular installment cash_advance"`
	Installments       int             `json:"installments" validate:"omitempty,min=2,max=36"`
	InstallmentAmount  float64         `json:"installmentAmount" validate:"gte=0"`
	TotalAmount        float64         `json:"totalAmount" validate:"gte=0"`
	InstallmentGroupID string          `json:"installmentGroupId"`
}

// ToTransaction maps the request onto a transaction with the given id.
func (r TransactionRequest) ToTransaction(id string) Transaction {
	return Transaction{
		ID:                 id,
		CardID:             r.CardID,
		Type:               r.Type,
		Amount:             r.Amount,
		Category:           r.Category,
		Date:               r.Date,
		Description:        r.Description,
		ConfirmationURL:    r.ConfirmationURL,
		ExpenseType:        r.ExpenseType,
		Installments:       r.Installments,
		InstallmentAmount:  r.InstallmentAmount,
		TotalAmount:        r.TotalAmount,
		InstallmentGroupID: r.InstallmentGroupID,
	}
}

// CategoryRequest is the body for POST /v1/categories.
type CategoryRequest struct {
	Name  string `json:"name" validate:"required,max=40"`
	Color string `json:"color" validate:"omitempty,hex_color"`
}

// CategoryUpdateRequest is the body for PUT /v1/categories/{id}. Empty fields
// are left unchanged.
type CategoryUpdateRequest struct {
	Name  string `json:"name" validate:"omitempty,max=40"`
	Color string `json:"color" validate:"omitempty,hex_color"`
}

// AutoPaymentRequest is the body for POST/PUT /v1/auto-payments.
type AutoPaymentRequest struct {
	CardID      string  `json:"cardId" validate:"required"`
	Category    string  `json:"category" validate:"max=60"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	DayOfMonth  int     `json:"dayOfMonth" validate:"min=1,max=31"`
	Description string  `json:"description" validate:"max=200"`
	Active      *bool   `json:"active"`
}

// ToAutoPayment maps the request onto an auto-payment with the given id.
// Active defaults to true.
func (r AutoPaymentRequest) ToAutoPayment(id string) AutoPayment {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return AutoPayment{
		ID:          id,
		CardID:      r.CardID,
		Category:    r.Category,
		Amount:      r.Amount,
		DayOfMonth:  r.DayOfMonth,
		Description: r.Description,
		Active:      active,
	}
}

// ChatRequest is the body for POST /v1/chat.
type ChatRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// ChatResponse carries the assistant reply. Fallback is set when the advisor
// was unavailable and the reply is the generic fallback text.
type ChatResponse struct {
	Reply    ChatMessage `json:"reply"`
	Fallback bool        `json:"fallback"`
}

// AdviceResponse is the body for 200 from POST /v1/assistant/advice.
type AdviceResponse struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback"`
}

// ThemeRequest is the body for PUT /v1/theme.
type ThemeRequest struct {
	Theme string `json:"theme" validate:"required,oneof=light dark system"`
}

// CalendarLinkResponse is the body for GET /v1/cards/{id}/calendar-link.
type CalendarLinkResponse struct {
	URL     string    `json:"url"`
	DueDate time.Time `json:"dueDate"`
}

// StateResponse is the body for GET /v1/state: the session's data with
// soft-deleted notifications filtered out, plus its live toasts and sync status.
type StateResponse struct {
	Cards         []Card             `json:"cards"`
	Transactions  []Transaction      `json:"transactions"`
	Categories    []Category         `json:"categories"`
	Notifications []NotificationItem `json:"notifications"`
	AutoPayments  []AutoPayment      `json:"autoPayments"`
	Chat          []ChatMessage      `json:"chat"`
	Toasts        []Toast            `json:"toasts"`
	Sync          SyncStatus         `json:"sync"`
}
