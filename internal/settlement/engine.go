package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"custody-platform/internal/commission"
	"custody-platform/internal/database"
)

// settleRetries bounds re-reads when the atomic settlement debit loses a
// race against a concurrent balance mutation.
const settleRetries = 3

// EngineConfig holds the settlement policy.
type EngineConfig struct {
	// Rates is the immutable commission rate table.
	Rates commission.RateTable

	// PlatformAccount receives the platform share of every settlement.
	PlatformAccount string

	// CadencePromotionAge is the service age after which a WEEKLY account
	// moves to DAILY settlement.
	CadencePromotionAge time.Duration

	// GiftLowThreshold triggers a low-balance notification when settlement
	// drains the gift balance below it. Zero disables the notification.
	GiftLowThreshold decimal.Decimal
}

// DefaultEngineConfig returns the standard policy: default rates and the
// WEEKLY to DAILY promotion after 30 days of service.
func DefaultEngineConfig(platformAccount string) EngineConfig {
	return EngineConfig{
		Rates:               commission.DefaultRateTable(),
		PlatformAccount:     platformAccount,
		CadencePromotionAge: 30 * 24 * time.Hour,
		GiftLowThreshold:    decimal.NewFromInt(5),
	}
}

// Engine accrues custody fees on profit events and settles them on the
// account's cadence. Settlement is debit-then-credit: the single-account
// debit commits atomically, commission credits are applied independently
// afterwards and queued for the reconciler when they fail.
type Engine struct {
	store    Store
	queue    PayoutQueue
	notifier Notifier
	config   EngineConfig
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEngine creates a settlement engine. queue and notifier may be nil.
func NewEngine(store Store, queue PayoutQueue, notifier Notifier, config EngineConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		queue:    queue,
		notifier: notifier,
		config:   config,
		logger:   logger.With().Str("component", "settlement").Logger(),
		now:      time.Now,
	}
}

// Accrue charges the custody fee for one realized profit: the fee breakdown
// is computed from the account's referrer chain, the total is added to
// custody_fee_pending, and a FEE_PAYMENT ledger entry records the accrual.
// The breakdown is returned for audit.
func (e *Engine) Accrue(ctx context.Context, accountID string, profit decimal.Decimal) (commission.Breakdown, error) {
	account, err := e.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return commission.Breakdown{}, err
	}

	breakdown, err := commission.Compute(profit, account.ReferrerChain, e.config.Rates)
	if err != nil {
		return commission.Breakdown{}, err
	}
	if !breakdown.Total.IsPositive() {
		return breakdown, nil
	}

	if err := e.store.AdjustBalance(ctx, accountID, database.FieldCustodyFeePending, breakdown.Total); err != nil {
		return commission.Breakdown{}, fmt.Errorf("failed to accrue custody fee: %w", err)
	}

	entry := &database.LedgerEntry{
		AccountID: accountID,
		Amount:    breakdown.Total,
		Kind:      database.EntryFeePayment,
	}
	if err := e.store.AppendLedgerEntry(ctx, entry); err != nil {
		e.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to record fee accrual entry")
	}

	e.logger.Info().
		Str("account_id", accountID).
		Str("profit", profit.String()).
		Str("fee", breakdown.Total.String()).
		Bool("floor_applied", breakdown.FloorApplied).
		Msg("Custody fee accrued")
	return breakdown, nil
}

// Settle attempts to settle the account's pending custody fees. Outcomes:
//
//   - SETTLED with zero amounts when nothing is pending (idempotent no-op),
//   - PENDING_NOT_DUE when the cadence window has not elapsed,
//   - INSUFFICIENT_BALANCE when gift + fee balance cannot cover the pending
//     total (no partial settlement, no mutation),
//   - SETTLED with the full breakdown after the debit commits.
//
// Only SETTLED outcomes with movement are persisted as settlement records.
func (e *Engine) Settle(ctx context.Context, accountID string) (*database.SettlementRecord, error) {
	now := e.now().UTC()

	for attempt := 0; ; attempt++ {
		account, err := e.store.GetAccountByID(ctx, accountID)
		if err != nil {
			return nil, err
		}

		pending := account.CustodyFeePending
		if !pending.IsPositive() {
			return e.outcomeRecord(account, database.OutcomeSettled, now), nil
		}

		if !e.due(account, now) {
			return e.outcomeRecord(account, database.OutcomePendingNotDue, now), nil
		}

		if account.GiftBalance.Add(account.CustodyFeeBalance).LessThan(pending) {
			return e.outcomeRecord(account, database.OutcomeInsufficientBalance, now), nil
		}

		split, err := commission.Distribute(pending, account.ReferrerChain, e.config.Rates)
		if err != nil {
			return nil, err
		}

		giftPortion := decimal.Min(account.GiftBalance, pending)
		feePortion := pending.Sub(giftPortion)
		correlationID := uuid.New().String()

		exec := database.SettlementExecution{
			AccountID:     accountID,
			GiftPortion:   giftPortion,
			FeePortion:    feePortion,
			TotalPending:  pending,
			CorrelationID: correlationID,
			SettledAt:     now,
		}
		err = e.store.ExecuteSettlement(ctx, exec)
		if err == nil {
			record := &database.SettlementRecord{
				ID:            uuid.New().String(),
				AccountID:     accountID,
				ProfitBasis:   pending,
				PlatformShare: split.PlatformShare,
				Tier1Share:    split.Tier1Share,
				Tier1Account:  split.Tier1Account,
				Tier2Share:    split.Tier2Share,
				Tier2Account:  split.Tier2Account,
				TotalFee:      pending,
				GiftApplied:   giftPortion,
				Outcome:       database.OutcomeSettled,
				CorrelationID: correlationID,
				Timestamp:     now,
			}
			if err := e.store.CreateSettlementRecord(ctx, record); err != nil {
				e.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to persist settlement record")
			}

			e.payout(ctx, split, correlationID)

			e.logger.Info().
				Str("account_id", accountID).
				Str("total_fee", pending.String()).
				Str("gift_applied", giftPortion.String()).
				Str("correlation_id", correlationID).
				Msg("Settlement completed")
			if e.notifier != nil {
				go e.notifier.SendSettlementCompleted(accountID, pending, giftPortion)

				remaining := account.GiftBalance.Sub(giftPortion)
				if giftPortion.IsPositive() && e.config.GiftLowThreshold.IsPositive() &&
					remaining.LessThan(e.config.GiftLowThreshold) {
					go e.notifier.SendGiftThreshold(accountID, remaining)
				}
			}
			return record, nil
		}

		// The conditional debit can lose against a concurrent accrual or
		// gift spend; re-read and recompute from fresh balances.
		if errors.Is(err, database.ErrPreconditionFailed) && attempt < settleRetries {
			continue
		}
		return nil, fmt.Errorf("failed to execute settlement: %w", err)
	}
}

// UpdateCadence promotes a WEEKLY account to DAILY settlement once its
// service age reaches the promotion threshold. One-way and idempotent.
func (e *Engine) UpdateCadence(ctx context.Context, accountID string) error {
	account, err := e.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.SettlementCadence == database.CadenceDaily {
		return nil
	}
	if e.now().UTC().Sub(account.ServiceStartTime) < e.config.CadencePromotionAge {
		return nil
	}

	if err := e.store.UpdateCadence(ctx, accountID, database.CadenceDaily); err != nil {
		return fmt.Errorf("failed to update settlement cadence: %w", err)
	}
	e.logger.Info().Str("account_id", accountID).Msg("Settlement cadence promoted to DAILY")
	return nil
}

// due reports whether the cadence window has elapsed since the last
// settlement. An account that has never settled is due immediately; the
// window only gates successive settlements.
func (e *Engine) due(account *database.Account, now time.Time) bool {
	if account.LastSettlementTime == nil {
		return true
	}
	return now.Sub(*account.LastSettlementTime) >= account.SettlementCadence.Window()
}

// payout applies the commission credits for a committed settlement. A failed
// credit never rolls back the debit: it is queued for the reconciler and
// retried under the same correlation id.
func (e *Engine) payout(ctx context.Context, split commission.Split, correlationID string) {
	credits := []struct {
		accountID string
		amount    decimal.Decimal
	}{
		{e.config.PlatformAccount, split.PlatformShare},
		{split.Tier1Account, split.Tier1Share},
		{split.Tier2Account, split.Tier2Share},
	}

	for _, credit := range credits {
		if credit.accountID == "" || !credit.amount.IsPositive() {
			continue
		}
		if err := e.store.ApplyCommissionCredit(ctx, credit.accountID, credit.amount, correlationID); err != nil {
			e.logger.Warn().
				Err(err).
				Str("account_id", credit.accountID).
				Str("amount", credit.amount.String()).
				Str("correlation_id", correlationID).
				Msg("Commission credit failed, queueing for reconciliation")
			e.enqueuePayout(ctx, PendingPayout{
				CorrelationID: correlationID,
				AccountID:     credit.accountID,
				Amount:        credit.amount,
			})
			continue
		}
		if e.notifier != nil && credit.accountID != e.config.PlatformAccount {
			go e.notifier.SendCommissionReceived(credit.accountID, credit.amount)
		}
	}
}

func (e *Engine) enqueuePayout(ctx context.Context, payout PendingPayout) {
	if e.queue == nil {
		return
	}
	if err := e.queue.Enqueue(ctx, payout); err != nil {
		// The credit is still recoverable: replaying the settlement record's
		// correlation id applies it idempotently.
		e.logger.Error().
			Err(err).
			Str("account_id", payout.AccountID).
			Str("correlation_id", payout.CorrelationID).
			Msg("Failed to queue commission payout for retry")
	}
}

// outcomeRecord builds a non-persisted record for settlements that end
// without movement.
func (e *Engine) outcomeRecord(account *database.Account, outcome database.SettlementOutcome, now time.Time) *database.SettlementRecord {
	return &database.SettlementRecord{
		AccountID:     account.ID,
		ProfitBasis:   account.CustodyFeePending,
		PlatformShare: decimal.Zero,
		Tier1Share:    decimal.Zero,
		Tier2Share:    decimal.Zero,
		TotalFee:      decimal.Zero,
		GiftApplied:   decimal.Zero,
		Outcome:       outcome,
		Timestamp:     now,
	}
}
