// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
)

// RemoteGateway is the hosted backend of record for a signed-in user.
// Implemented by the Supabase adapter.
type RemoteGateway interface {
	// FetchUserData returns nil and an error when the fetch fails, and a
	// non-nil snapshot (possibly with empty collections) when it succeeds.
	FetchUserData(ctx context.Context, userID string) (*domain.UserData, error)

	// Cards
	UpsertCard(ctx context.Context, userID string, card domain.Card) error
	DeleteCard(ctx context.Context, userID, cardID string) error

	// Transactions
	UpsertTransactions(ctx context.Context, userID string, txs []domain.Transaction) error
	DeleteTransaction(ctx context.Context, userID, txID string) error

	// Categories
	UpsertCategory(ctx context.Context, userID string, cat domain.Category) error
	DeleteCategory(ctx context.Context, userID, categoryID string) error

	// Notifications
	UpsertNotifications(ctx context.Context, userID string, items []domain.NotificationItem) error
	ClearNotifications(ctx context.Context, userID string) error

	// Chat
	AppendChatMessage(ctx context.Context, userID string, msg domain.ChatMessage) error
	ClearChat(ctx context.Context, userID string) error

	// Auto-payments
	UpsertAutoPayment(ctx context.Context, userID string, ap domain.AutoPayment) error
	DeleteAutoPayment(ctx context.Context, userID, autoPaymentID string) error
}

// AuthProvider signs a user in and returns the provider's user id.
type AuthProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (string, error)
}

// LocalStore is the device-local cache of a user's last-known state.
// Owner is a user id, or LocalOwner before sign-in.
type LocalStore interface {
	LoadSnapshot(ctx context.Context, owner string) (*domain.UserData, error)
	SaveSnapshot(ctx context.Context, owner string, data *domain.UserData) error
	GetTheme(ctx context.Context, owner string) (string, error)
	SetTheme(ctx context.Context, owner, theme string) error
	Clear(ctx context.Context, owner string) error
}

// LocalOwner namespaces the anonymous device-only data.
const LocalOwner = "local"

// PushChannel opens per-user change-notification subscriptions.
type PushChannel interface {
	Join(ctx context.Context, userID string) (Subscription, error)
}

// Subscription is one live handle on a user's push channel. It is owned by a
// single session and must be closed before a replacement is joined.
type Subscription interface {
	Events() <-chan domain.ChangeEvent
	Joined() bool
	Broadcast(ctx context.Context, event domain.ChangeEvent) error
	Close() error
}

// AdvisorCaller invokes the external AI text service.
type AdvisorCaller interface {
	Advise(ctx context.Context, cards []domain.Card) (string, error)
	Chat(ctx context.Context, cards []domain.Card, transcript []domain.ChatMessage) (string, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	SetIfAbsent(key string, value T) bool
	Delete(key string)
	Purge()
	Close()
}
