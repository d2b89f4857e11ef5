package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Settlement record repository methods.

// CreateSettlementRecord stores the outcome of one settlement attempt.
func (r *Repository) CreateSettlementRecord(ctx context.Context, rec *SettlementRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO settlement_records (
			id, account_id, profit_basis, platform_share,
			tier1_share, tier1_account, tier2_share, tier2_account,
			total_fee, gift_applied, outcome, correlation_id, timestamp
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10, $11, NULLIF($12, ''), $13)`

	_, err := r.db.Pool.Exec(ctx, query,
		rec.ID,
		rec.AccountID,
		rec.ProfitBasis.String(),
		rec.PlatformShare.String(),
		rec.Tier1Share.String(),
		rec.Tier1Account,
		rec.Tier2Share.String(),
		rec.Tier2Account,
		rec.TotalFee.String(),
		rec.GiftApplied.String(),
		string(rec.Outcome),
		rec.CorrelationID,
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create settlement record: %w", err)
	}
	return nil
}

// GetSettlementRecords returns settlement history for an account within an
// optional time window, newest first.
func (r *Repository) GetSettlementRecords(ctx context.Context, accountID string, from, to time.Time, limit int) ([]SettlementRecord, error) {
	query := `
		SELECT id, account_id, profit_basis::text, platform_share::text,
			tier1_share::text, COALESCE(tier1_account::text, ''),
			tier2_share::text, COALESCE(tier2_account::text, ''),
			total_fee::text, gift_applied::text, outcome,
			COALESCE(correlation_id::text, ''), timestamp
		FROM settlement_records
		WHERE account_id = $1`
	args := []interface{}{accountID}

	if !from.IsZero() {
		args = append(args, from)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}

	query += " ORDER BY timestamp DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlement records: %w", err)
	}
	defer rows.Close()

	var records []SettlementRecord
	for rows.Next() {
		var (
			rec     SettlementRecord
			amounts [6]string
			outcome string
		)
		err := rows.Scan(
			&rec.ID, &rec.AccountID, &amounts[0], &amounts[1],
			&amounts[2], &rec.Tier1Account, &amounts[3], &rec.Tier2Account,
			&amounts[4], &amounts[5], &outcome, &rec.CorrelationID, &rec.Timestamp,
		)
		if err != nil {
			return nil, err
		}

		fields := []*decimal.Decimal{
			&rec.ProfitBasis, &rec.PlatformShare, &rec.Tier1Share,
			&rec.Tier2Share, &rec.TotalFee, &rec.GiftApplied,
		}
		for i, dst := range fields {
			d, err := decimal.NewFromString(amounts[i])
			if err != nil {
				return nil, fmt.Errorf("parse settlement amount: %w", err)
			}
			*dst = d
		}
		rec.Outcome = SettlementOutcome(outcome)
		records = append(records, rec)
	}
	return records, rows.Err()
}
