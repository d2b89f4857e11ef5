// Package funds handles principal deposits and withdrawals against the
// custodial account balance.
package funds

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

var (
	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientBalance is returned when a withdrawal would overdraw
	// the available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Store is the persistence surface the manager needs.
type Store interface {
	GetAccountByID(ctx context.Context, accountID string) (*database.Account, error)
	AdjustPrincipal(ctx context.Context, accountID string, delta decimal.Decimal) error
	AppendLedgerEntry(ctx context.Context, entry *database.LedgerEntry) error
}

// Notifier receives balance change notifications. Best effort.
type Notifier interface {
	SendBalanceChange(accountID, direction string, amount, newBalance decimal.Decimal)
}

// BalanceInfo is the read model for an account's balances.
type BalanceInfo struct {
	AccountID         string          `json:"account_id"`
	Balance           decimal.Decimal `json:"balance"`
	AvailableBalance  decimal.Decimal `json:"available_balance"`
	UsedMargin        decimal.Decimal `json:"used_margin"`
	GiftBalance       decimal.Decimal `json:"gift_balance"`
	CustodyFeeBalance decimal.Decimal `json:"custody_fee_balance"`
	CustodyFeePending decimal.Decimal `json:"custody_fee_pending"`
}

// Manager performs deposits and withdrawals. Every mutation is one atomic
// conditional update; concurrent withdrawals can never overdraw.
type Manager struct {
	store    Store
	notifier Notifier
	logger   zerolog.Logger
}

// NewManager creates a funds manager. notifier may be nil.
func NewManager(store Store, notifier Notifier, logger zerolog.Logger) *Manager {
	return &Manager{
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "funds").Logger(),
	}
}

// Deposit credits amount to the account's principal balance.
func (m *Manager) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	if err := m.store.AdjustPrincipal(ctx, accountID, amount); err != nil {
		return fmt.Errorf("failed to deposit: %w", err)
	}

	m.record(ctx, accountID, amount, database.EntryDeposit)
	m.notify(ctx, accountID, "deposit", amount)
	return nil
}

// Withdraw debits amount from the account's principal balance. The debit is
// a conditional update that refuses to go negative; a conflict with another
// writer is retried a bounded number of times before reporting
// ErrInsufficientBalance.
func (m *Manager) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	var err error
	for attempt := 0; attempt <= adjustRetries; attempt++ {
		err = m.store.AdjustPrincipal(ctx, accountID, amount.Neg())
		if err == nil {
			m.record(ctx, accountID, amount.Neg(), database.EntryWithdraw)
			m.notify(ctx, accountID, "withdrawal", amount)
			return nil
		}
		if !errors.Is(err, database.ErrPreconditionFailed) {
			return fmt.Errorf("failed to withdraw: %w", err)
		}
	}

	// The precondition kept failing: the balance cannot cover the amount.
	return ErrInsufficientBalance
}

// BalanceInfo returns the account's current balances.
func (m *Manager) BalanceInfo(ctx context.Context, accountID string) (*BalanceInfo, error) {
	account, err := m.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &BalanceInfo{
		AccountID:         account.ID,
		Balance:           account.Balance,
		AvailableBalance:  account.AvailableBalance,
		UsedMargin:        account.UsedMargin,
		GiftBalance:       account.GiftBalance,
		CustodyFeeBalance: account.CustodyFeeBalance,
		CustodyFeePending: account.CustodyFeePending,
	}, nil
}

func (m *Manager) record(ctx context.Context, accountID string, amount decimal.Decimal, kind database.EntryKind) {
	entry := &database.LedgerEntry{
		AccountID: accountID,
		Amount:    amount,
		Kind:      kind,
	}
	if err := m.store.AppendLedgerEntry(ctx, entry); err != nil {
		m.logger.Error().
			Err(err).
			Str("account_id", accountID).
			Str("kind", string(kind)).
			Msg("Failed to record ledger entry")
	}
}

func (m *Manager) notify(ctx context.Context, accountID, direction string, amount decimal.Decimal) {
	if m.notifier == nil {
		return
	}
	account, err := m.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return
	}
	go m.notifier.SendBalanceChange(accountID, direction, amount, account.Balance)
}
