package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Atomic balance mutation primitives. Every balance-affecting operation is a
// single conditional UPDATE so concurrent requests can never interleave a
// read-modify-write; a failed precondition leaves state untouched.

// AdjustBalance applies delta to one balance field, under the precondition
// that the new value stays non-negative. Returns ErrPreconditionFailed when
// the precondition does not hold and ErrAccountNotFound when the account is
// missing or closed.
func (r *Repository) AdjustBalance(ctx context.Context, accountID string, field BalanceField, delta decimal.Decimal) error {
	if !field.Valid() {
		return ErrInvalidBalanceField
	}

	// field is validated against the closed BalanceField set above, so the
	// string interpolation cannot inject arbitrary SQL.
	query := fmt.Sprintf(`
		UPDATE accounts
		SET %[1]s = %[1]s + $2, updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND %[1]s + $2 >= 0`, field)

	tag, err := r.db.Pool.Exec(ctx, query, accountID, delta.String())
	if err != nil {
		return fmt.Errorf("failed to adjust %s: %w", field, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetAccountByID(ctx, accountID); err != nil {
			return err
		}
		return ErrPreconditionFailed
	}
	return nil
}

// AdjustPrincipal applies delta to balance and available_balance together in
// one statement, preserving the available_balance + used_margin == balance
// invariant for deposits and withdrawals.
func (r *Repository) AdjustPrincipal(ctx context.Context, accountID string, delta decimal.Decimal) error {
	query := `
		UPDATE accounts
		SET balance = balance + $2,
			available_balance = available_balance + $2,
			updated_at = NOW()
		WHERE id = $1 AND status = 'active'
			AND balance + $2 >= 0 AND available_balance + $2 >= 0`

	tag, err := r.db.Pool.Exec(ctx, query, accountID, delta.String())
	if err != nil {
		return fmt.Errorf("failed to adjust principal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetAccountByID(ctx, accountID); err != nil {
			return err
		}
		return ErrPreconditionFailed
	}
	return nil
}

// ExecuteSettlement commits the settlement debit for one account as a single
// all-or-nothing transaction: gift and custody-fee portions are debited,
// custody_fee_pending is cleared, last_settlement_time is set, and the
// SETTLEMENT (and, when gift was consumed, GIFT_USAGE) ledger entries are
// appended under the settlement's correlation id. Commission credits are NOT
// part of this transaction; they are applied independently afterwards.
func (r *Repository) ExecuteSettlement(ctx context.Context, exec SettlementExecution) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin settlement transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE accounts
		SET gift_balance = gift_balance - $2,
			custody_fee_balance = custody_fee_balance - $3,
			custody_fee_pending = custody_fee_pending - $4,
			last_settlement_time = $5,
			updated_at = NOW()
		WHERE id = $1 AND status = 'active'
			AND gift_balance >= $2
			AND custody_fee_balance >= $3
			AND custody_fee_pending >= $4`

	tag, err := tx.Exec(ctx, query,
		exec.AccountID,
		exec.GiftPortion.String(),
		exec.FeePortion.String(),
		exec.TotalPending.String(),
		exec.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to apply settlement debit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPreconditionFailed
	}

	entryQuery := `
		INSERT INTO ledger_entries (id, account_id, amount, kind, correlation_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if exec.GiftPortion.IsPositive() {
		_, err = tx.Exec(ctx, entryQuery,
			uuid.New().String(), exec.AccountID, exec.GiftPortion.Neg().String(),
			string(EntryGiftUsage), exec.CorrelationID, exec.SettledAt)
		if err != nil {
			return fmt.Errorf("failed to append gift usage entry: %w", err)
		}
	}

	_, err = tx.Exec(ctx, entryQuery,
		uuid.New().String(), exec.AccountID, exec.FeePortion.Neg().String(),
		string(EntrySettlement), exec.CorrelationID, exec.SettledAt)
	if err != nil {
		return fmt.Errorf("failed to append settlement entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit settlement: %w", err)
	}
	return nil
}

// ApplyCommissionCredit credits a commission share to an upline (or the
// platform) account. The COMMISSION_PAYOUT ledger entry is keyed on
// (correlation_id, account_id, kind), so replaying the same settlement's
// credit is a no-op: payouts are at-least-once delivered and exactly-once
// applied.
func (r *Repository) ApplyCommissionCredit(ctx context.Context, accountID string, amount decimal.Decimal, correlationID string) error {
	if !amount.IsPositive() {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin credit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entryQuery := `
		INSERT INTO ledger_entries (id, account_id, amount, kind, correlation_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (correlation_id, account_id, kind) WHERE correlation_id IS NOT NULL
		DO NOTHING`

	tag, err := tx.Exec(ctx, entryQuery,
		uuid.New().String(), accountID, amount.String(),
		string(EntryCommissionPayout), correlationID)
	if err != nil {
		return fmt.Errorf("failed to append commission entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already applied for this correlation id.
		return nil
	}

	creditQuery := `
		UPDATE accounts
		SET custody_fee_balance = custody_fee_balance + $2, updated_at = NOW()
		WHERE id = $1`

	creditTag, err := tx.Exec(ctx, creditQuery, accountID, amount.String())
	if err != nil {
		return fmt.Errorf("failed to credit commission: %w", err)
	}
	if creditTag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit commission credit: %w", err)
	}
	return nil
}
