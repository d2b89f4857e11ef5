package database

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementCadence is the minimum interval between successive fee settlements.
type SettlementCadence string

const (
	CadenceWeekly SettlementCadence = "WEEKLY"
	CadenceDaily  SettlementCadence = "DAILY"
)

// Window returns the minimum duration between settlements for the cadence.
func (c SettlementCadence) Window() time.Duration {
	if c == CadenceDaily {
		return 24 * time.Hour
	}
	return 7 * 24 * time.Hour
}

// AccountStatus represents the lifecycle status of an account.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountClosed AccountStatus = "closed"
)

// Account represents a custodial user account and all of its balance fields.
// referrer_chain holds at most two upline account ids: index 0 is the direct
// (tier-1) referrer, index 1 the tier-2 referrer. The chain is immutable once
// the account is created.
type Account struct {
	ID                 string            `json:"id"`
	Email              string            `json:"email"`
	PasswordHash       string            `json:"-"` // Never serialize
	Balance            decimal.Decimal   `json:"balance"`
	AvailableBalance   decimal.Decimal   `json:"available_balance"`
	UsedMargin         decimal.Decimal   `json:"used_margin"`
	GiftBalance        decimal.Decimal   `json:"gift_balance"`
	CustodyFeeBalance  decimal.Decimal   `json:"custody_fee_balance"`
	CustodyFeePending  decimal.Decimal   `json:"custody_fee_pending"`
	SettlementCadence  SettlementCadence `json:"settlement_cadence"`
	LastSettlementTime *time.Time        `json:"last_settlement_time,omitempty"`
	ReferrerChain      []string          `json:"referrer_chain"`
	ServiceStartTime   time.Time         `json:"service_start_time"`
	Status             AccountStatus     `json:"status"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// BalanceField names an adjustable balance column. Adjustments are restricted
// to this closed set so callers can never target arbitrary columns.
type BalanceField string

const (
	FieldBalance           BalanceField = "balance"
	FieldAvailableBalance  BalanceField = "available_balance"
	FieldUsedMargin        BalanceField = "used_margin"
	FieldGiftBalance       BalanceField = "gift_balance"
	FieldCustodyFeeBalance BalanceField = "custody_fee_balance"
	FieldCustodyFeePending BalanceField = "custody_fee_pending"
)

// Valid reports whether the field is one of the adjustable balance columns.
func (f BalanceField) Valid() bool {
	switch f {
	case FieldBalance, FieldAvailableBalance, FieldUsedMargin,
		FieldGiftBalance, FieldCustodyFeeBalance, FieldCustodyFeePending:
		return true
	}
	return false
}

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	EntryDeposit          EntryKind = "DEPOSIT"
	EntryWithdraw         EntryKind = "WITHDRAW"
	EntryFeePayment       EntryKind = "FEE_PAYMENT"
	EntrySettlement       EntryKind = "SETTLEMENT"
	EntryCommissionPayout EntryKind = "COMMISSION_PAYOUT"
	EntryGiftUsage        EntryKind = "GIFT_USAGE"
)

// LedgerEntry is one immutable, append-only record of a balance mutation.
// Entries that belong to the same settlement share a correlation id, which is
// also the idempotency key for commission payout retries.
type LedgerEntry struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"` // signed
	Kind          EntryKind       `json:"kind"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// SettlementOutcome is the terminal outcome of one settlement attempt.
type SettlementOutcome string

const (
	OutcomeSettled             SettlementOutcome = "SETTLED"
	OutcomePendingNotDue       SettlementOutcome = "PENDING_NOT_DUE"
	OutcomeInsufficientBalance SettlementOutcome = "INSUFFICIENT_BALANCE"
)

// SettlementRecord captures one completed or attempted settlement, including
// the full fee breakdown so payout retries can be replayed deterministically
// from the correlation id.
type SettlementRecord struct {
	ID            string            `json:"id"`
	AccountID     string            `json:"account_id"`
	ProfitBasis   decimal.Decimal   `json:"profit_basis"`
	PlatformShare decimal.Decimal   `json:"platform_share"`
	Tier1Share    decimal.Decimal   `json:"tier1_share"`
	Tier1Account  string            `json:"tier1_account,omitempty"`
	Tier2Share    decimal.Decimal   `json:"tier2_share"`
	Tier2Account  string            `json:"tier2_account,omitempty"`
	TotalFee      decimal.Decimal   `json:"total_fee"`
	GiftApplied   decimal.Decimal   `json:"gift_applied"`
	Outcome       SettlementOutcome `json:"outcome"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// SettlementExecution describes the single-account atomic mutation performed
// when a settlement commits: the gift portion and the custody-fee portion of
// the debit, plus the ledger entries appended in the same transaction.
type SettlementExecution struct {
	AccountID     string
	GiftPortion   decimal.Decimal
	FeePortion    decimal.Decimal
	TotalPending  decimal.Decimal
	CorrelationID string
	SettledAt     time.Time
}
