// Package gift manages promotional gift balances: the grant issued at
// registration and the gift-first coverage of custody fees.
package gift

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"custody-platform/internal/database"
)

// adjustRetries bounds optimistic retries when a conditional balance update
// loses a race.
const adjustRetries = 3

// Store is the persistence surface the manager needs.
type Store interface {
	GetAccountByID(ctx context.Context, accountID string) (*database.Account, error)
	AdjustBalance(ctx context.Context, accountID string, field database.BalanceField, delta decimal.Decimal) error
	AppendLedgerEntry(ctx context.Context, entry *database.LedgerEntry) error
}

// Notifier receives the gift lifecycle notifications. Delivery is best
// effort and never blocks a balance mutation.
type Notifier interface {
	SendGiftGranted(accountID string, amount decimal.Decimal)
	SendGiftThreshold(accountID string, remaining decimal.Decimal)
}

// ErrInvalidAmount is returned for zero or negative grant and spend amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// Manager performs gift balance grants and spends.
type Manager struct {
	store     Store
	notifier  Notifier
	threshold decimal.Decimal
	logger    zerolog.Logger
}

// Config holds the gift policy knobs.
type Config struct {
	// DefaultGrant is credited to every new account.
	DefaultGrant decimal.Decimal
	// LowThreshold triggers a notification when a spend drops the balance
	// below it.
	LowThreshold decimal.Decimal
}

// DefaultConfig returns the standard gift policy: a 30.00 grant and a low
// balance warning below 5.00.
func DefaultConfig() Config {
	return Config{
		DefaultGrant: decimal.NewFromInt(30),
		LowThreshold: decimal.NewFromInt(5),
	}
}

// NewManager creates a gift balance manager.
func NewManager(store Store, notifier Notifier, cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		store:     store,
		notifier:  notifier,
		threshold: cfg.LowThreshold,
		logger:    logger.With().Str("component", "gift").Logger(),
	}
}

// Balance returns the current gift balance.
func (m *Manager) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	account, err := m.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.GiftBalance, nil
}

// Grant credits amount to the account's gift balance and announces the grant.
func (m *Manager) Grant(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	if err := m.store.AdjustBalance(ctx, accountID, database.FieldGiftBalance, amount); err != nil {
		return fmt.Errorf("failed to grant gift balance: %w", err)
	}

	m.logger.Info().
		Str("account_id", accountID).
		Str("amount", amount.String()).
		Msg("Gift balance granted")

	if m.notifier != nil {
		go m.notifier.SendGiftGranted(accountID, amount)
	}
	return nil
}

// Spend consumes up to amount from the gift balance and returns how much was
// actually spent, which is min(gift balance, amount). A zero gift balance
// spends nothing and is not an error. The spend is recorded as a GIFT_USAGE
// ledger entry; when the remaining balance crosses below the low threshold a
// notification is fired without blocking the caller.
func (m *Manager) Spend(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	var spent, remaining decimal.Decimal
	for attempt := 0; ; attempt++ {
		account, err := m.store.GetAccountByID(ctx, accountID)
		if err != nil {
			return decimal.Zero, err
		}

		spent = decimal.Min(account.GiftBalance, amount)
		if !spent.IsPositive() {
			return decimal.Zero, nil
		}
		remaining = account.GiftBalance.Sub(spent)

		err = m.store.AdjustBalance(ctx, accountID, database.FieldGiftBalance, spent.Neg())
		if err == nil {
			break
		}
		// A concurrent spend can shrink the balance between the read and the
		// conditional update; re-read and recompute the spendable portion.
		if errors.Is(err, database.ErrPreconditionFailed) && attempt < adjustRetries {
			continue
		}
		return decimal.Zero, fmt.Errorf("failed to spend gift balance: %w", err)
	}

	entry := &database.LedgerEntry{
		AccountID: accountID,
		Amount:    spent.Neg(),
		Kind:      database.EntryGiftUsage,
	}
	if err := m.store.AppendLedgerEntry(ctx, entry); err != nil {
		m.logger.Error().
			Err(err).
			Str("account_id", accountID).
			Msg("Failed to record gift usage entry")
	}

	if m.notifier != nil && remaining.LessThan(m.threshold) {
		go m.notifier.SendGiftThreshold(accountID, remaining)
	}
	return spent, nil
}
