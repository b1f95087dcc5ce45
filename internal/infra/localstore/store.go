// Package localstore is the durable device-local cache: a small SQLite
// key/value table holding each owner's last-known collections as JSON.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"

	_ "modernc.org/sqlite"
)

// Persisted keys.
const (
	KeyCards         = "cards"
	KeyTransactions  = "transactions"
	KeyCategories    = "categories"
	KeyNotifications = "notifications"
	KeyAutoPayments  = "auto_payments"
	KeyTheme         = "theme"
)

// DefaultTheme is returned when an owner never picked one.
const DefaultTheme = "light"

// Store implements port.LocalStore on SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates the database file if needed, migrates it and returns a Store.
func Open(dbPath string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// single writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("local store ready", zap.String("path", dbPath))
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LoadSnapshot returns the owner's cached collections. Missing keys fall back
// to empty collections; missing categories fall back to the default seed.
// Chat is never cached locally.
func (s *Store) LoadSnapshot(ctx context.Context, owner string) (*domain.UserData, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE owner = ?`, owner)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	raw := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		raw[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}

	data := domain.EmptyUserData()
	decode := func(key string, dst any) {
		v, ok := raw[key]
		if !ok {
			return
		}
		if err := json.Unmarshal([]byte(v), dst); err != nil {
			// a corrupt entry degrades to the fallback instead of failing the load
			s.logger.Warn("discarding unreadable local entry",
				zap.String("owner", owner), zap.String("key", key), zap.Error(err))
		}
	}
	decode(KeyCards, &data.Cards)
	decode(KeyTransactions, &data.Transactions)
	decode(KeyCategories, &data.Categories)
	decode(KeyNotifications, &data.Notifications)
	decode(KeyAutoPayments, &data.AutoPayments)

	normalize(data)
	if len(data.Categories) == 0 {
		data.Categories = domain.DefaultCategories()
	}
	return data, nil
}

// SaveSnapshot overwrites the owner's cached collections wholesale.
func (s *Store) SaveSnapshot(ctx context.Context, owner string, data *domain.UserData) error {
	if data == nil {
		return errors.New("save snapshot: nil data")
	}

	entries := []struct {
		key   string
		value any
	}{
		{KeyCards, data.Cards},
		{KeyTransactions, data.Transactions},
		{KeyCategories, data.Categories},
		{KeyNotifications, data.Notifications},
		{KeyAutoPayments, data.AutoPayments},
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, e := range entries {
		b, err := json.Marshal(e.value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", e.key, err)
		}
		if err := put(ctx, tx, owner, e.key, string(b), now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// GetTheme returns the owner's theme preference or DefaultTheme.
func (s *Store) GetTheme(ctx context.Context, owner string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE owner = ? AND key = ?`, owner, KeyTheme).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultTheme, nil
	}
	if err != nil {
		return "", fmt.Errorf("get theme: %w", err)
	}

	var theme string
	if err := json.Unmarshal([]byte(v), &theme); err != nil || theme == "" {
		return DefaultTheme, nil
	}
	return theme, nil
}

// SetTheme stores the owner's theme preference.
func (s *Store) SetTheme(ctx context.Context, owner, theme string) error {
	b, err := json.Marshal(theme)
	if err != nil {
		return fmt.Errorf("encode theme: %w", err)
	}
	return put(ctx, s.db, owner, KeyTheme, string(b), time.Now().UTC().Format(time.RFC3339Nano))
}

// Clear removes every key of the owner.
func (s *Store) Clear(ctx context.Context, owner string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("clear owner %s: %w", owner, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func put(ctx context.Context, db execer, owner, key, value, updatedAt string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO kv (owner, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (owner, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		owner, key, value, updatedAt)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", owner, key, err)
	}
	return nil
}

// normalize replaces JSON nulls with empty collections.
func normalize(d *domain.UserData) {
	if d.Cards == nil {
		d.Cards = []domain.Card{}
	}
	if d.Transactions == nil {
		d.Transactions = []domain.Transaction{}
	}
	if d.Categories == nil {
		d.Categories = []domain.Category{}
	}
	if d.Notifications == nil {
		d.Notifications = []domain.NotificationItem{}
	}
	if d.AutoPayments == nil {
		d.AutoPayments = []domain.AutoPayment{}
	}
}
