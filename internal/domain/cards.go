package domain

import "time"

// ============================================================
// Statements
// ============================================================

// StatementPeriod is one billing cycle. Start and End are calendar days
// (midnight, in the location of the date they were computed from); End is
// inclusive through the end of that day.
type StatementPeriod struct {
	Start time.Time `json:"startDate"`
	End   time.Time `json:"endDate"`
	Due   time.Time `json:"dueDate"`
}

// Statement is the computed bill of one card for one period.
type Statement struct {
	CardID          string          `json:"cardId"`
	Period          StatementPeriod `json:"period"`
	PreviousBalance float64         `json:"previousBalance"`
	TotalSpending   float64         `json:"totalSpending"`
	TotalPayment    float64         `json:"totalPayment"`
	TotalDebt       float64         `json:"totalDebt"`
	MinPayment      float64         `json:"minPayment"`
}

// ============================================================
// Analytics
// ============================================================

// CardSummary is a dashboard row for one card.
type CardSummary struct {
	Card          Card      `json:"card"`
	Statement     Statement `json:"statement"`
	DaysUntilDue  int       `json:"daysUntilDue"`
	Utilization   float64   `json:"utilization"`
	AvailableLeft float64   `json:"availableLimit"`
}

// CategorySpending is the spending total of one category in a month.
type CategorySpending struct {
	Category string  `json:"category"`
	Color    string  `json:"color"`
	Total    float64 `json:"total"`
}

// DashboardSummary aggregates all cards of a user.
type DashboardSummary struct {
	Month          string             `json:"month"` // "2026-02"
	TotalDebt      float64            `json:"totalDebt"`
	TotalLimit     float64            `json:"totalLimit"`
	Utilization    float64            `json:"utilization"`
	MonthSpending  float64            `json:"monthSpending"`
	MonthPayments  float64            `json:"monthPayments"`
	Cards          []CardSummary      `json:"cards"`
	ByCategory     []CategorySpending `json:"byCategory"`
	GeneratedAtUTC time.Time          `json:"generatedAt"`
}

// ============================================================
// Sync status
// ============================================================

// SyncState is the push-channel state of a session.
type SyncState string

const (
	SyncDisconnected SyncState = "disconnected"
	SyncConnecting   SyncState = "connecting"
	SyncConnected    SyncState = "connected"
	SyncError        SyncState = "error"
)

// SyncStatus is a point-in-time view of a session's sync machinery.
type SyncStatus struct {
	UserID        string     `json:"userId"`
	State         SyncState  `json:"state"`
	Foreground    bool       `json:"foreground"`
	Fingerprint   string     `json:"fingerprint"`
	LastAppliedAt *time.Time `json:"lastAppliedAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
}
