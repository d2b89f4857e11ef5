// Package settlement drives custody fee accrual and periodic settlement:
// fee accrual on profit events, cadence-gated settlement with gift-first
// coverage, and at-least-once commission payouts to the referral upline.
package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"custody-platform/internal/database"
)

// Store is the persistence surface the engine needs. *database.Repository
// implements it.
type Store interface {
	GetAccountByID(ctx context.Context, accountID string) (*database.Account, error)
	GetAccountsWithPendingFees(ctx context.Context) ([]*database.Account, error)
	AdjustBalance(ctx context.Context, accountID string, field database.BalanceField, delta decimal.Decimal) error
	UpdateCadence(ctx context.Context, accountID string, cadence database.SettlementCadence) error
	ExecuteSettlement(ctx context.Context, exec database.SettlementExecution) error
	ApplyCommissionCredit(ctx context.Context, accountID string, amount decimal.Decimal, correlationID string) error
	HasCommissionCredit(ctx context.Context, accountID, correlationID string) (bool, error)
	AppendLedgerEntry(ctx context.Context, entry *database.LedgerEntry) error
	CreateSettlementRecord(ctx context.Context, rec *database.SettlementRecord) error
}

// PendingPayout is one commission credit that could not be applied when its
// settlement committed. The correlation id keys idempotent retries.
type PendingPayout struct {
	CorrelationID string          `json:"correlation_id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Attempts      int             `json:"attempts"`
	NextAttempt   time.Time       `json:"next_attempt"`
}

// PayoutQueue buffers failed commission credits for the reconciler.
type PayoutQueue interface {
	Enqueue(ctx context.Context, payout PendingPayout) error
	DequeueDue(ctx context.Context, now time.Time, limit int) ([]PendingPayout, error)
}

// Notifier receives settlement lifecycle notifications. Best effort.
type Notifier interface {
	SendSettlementCompleted(accountID string, totalFee, giftApplied decimal.Decimal)
	SendCommissionReceived(accountID string, amount decimal.Decimal)
	SendGiftThreshold(accountID string, remaining decimal.Decimal)
}
