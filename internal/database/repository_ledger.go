package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Fund ledger repository methods. Entries are immutable once written;
// balances can be reconciled against the fold of the relevant entry kinds.

// AppendLedgerEntry writes one immutable ledger entry.
func (r *Repository) AppendLedgerEntry(ctx context.Context, entry *LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO ledger_entries (id, account_id, amount, kind, correlation_id, timestamp)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`

	_, err := r.db.Pool.Exec(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.Amount.String(),
		string(entry.Kind),
		entry.CorrelationID,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// LedgerQuery filters a ledger history read. Zero From/To leave the window
// unbounded on that side; empty Kinds matches every kind.
type LedgerQuery struct {
	AccountID string
	From      time.Time
	To        time.Time
	Kinds     []EntryKind
	Limit     int
}

// GetLedgerEntries returns entries for an account within an optional time
// window, newest first.
func (r *Repository) GetLedgerEntries(ctx context.Context, q LedgerQuery) ([]LedgerEntry, error) {
	query := `
		SELECT id, account_id, amount::text, kind, COALESCE(correlation_id::text, ''), timestamp
		FROM ledger_entries
		WHERE account_id = $1`
	args := []interface{}{q.AccountID}

	if !q.From.IsZero() {
		args = append(args, q.From)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}
	if len(q.Kinds) > 0 {
		kinds := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			kinds[i] = string(k)
		}
		args = append(args, kinds)
		query += fmt.Sprintf(" AND kind = ANY($%d)", len(args))
	}

	query += " ORDER BY timestamp DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var (
			e         LedgerEntry
			amountStr string
			kind      string
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &amountStr, &kind, &e.CorrelationID, &e.Timestamp); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("parse entry amount: %w", err)
		}
		e.Amount = amount
		e.Kind = EntryKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumLedgerEntries folds all entries of one kind for an account. Used by
// reconciliation to check the current balance fields against the ledger.
func (r *Repository) SumLedgerEntries(ctx context.Context, accountID string, kind EntryKind) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM ledger_entries
		WHERE account_id = $1 AND kind = $2`

	var sumStr string
	if err := r.db.Pool.QueryRow(ctx, query, accountID, string(kind)).Scan(&sumStr); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum ledger entries: %w", err)
	}

	sum, err := decimal.NewFromString(sumStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse ledger sum: %w", err)
	}
	return sum, nil
}

// HasCommissionCredit reports whether a COMMISSION_PAYOUT entry already
// exists for the (correlation, account) pair.
func (r *Repository) HasCommissionCredit(ctx context.Context, accountID, correlationID string) (bool, error) {
	query := `
		SELECT 1 FROM ledger_entries
		WHERE correlation_id = $1 AND account_id = $2 AND kind = $3`

	var one int
	err := r.db.Pool.QueryRow(ctx, query, correlationID, accountID, string(EntryCommissionPayout)).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check commission credit: %w", err)
	}
	return true, nil
}
