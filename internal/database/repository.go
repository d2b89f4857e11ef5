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

// Repository provides data access methods for accounts, the fund ledger, and
// settlement records.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck verifies database connectivity
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

const accountColumns = `
	id, email, password_hash,
	balance::text, available_balance::text, used_margin::text,
	gift_balance::text, custody_fee_balance::text, custody_fee_pending::text,
	settlement_cadence, last_settlement_time, referrer_chain,
	service_start_time, status, created_at, updated_at`

// scanAccount scans one account row. NUMERIC columns come back as text and
// are parsed into decimals so no precision is lost.
func scanAccount(row pgx.Row) (*Account, error) {
	var (
		a        Account
		balStr   [6]string
		cadence  string
		status   string
	)
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash,
		&balStr[0], &balStr[1], &balStr[2], &balStr[3], &balStr[4], &balStr[5],
		&cadence, &a.LastSettlementTime, &a.ReferrerChain,
		&a.ServiceStartTime, &status, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	fields := []*decimal.Decimal{
		&a.Balance, &a.AvailableBalance, &a.UsedMargin,
		&a.GiftBalance, &a.CustodyFeeBalance, &a.CustodyFeePending,
	}
	for i, dst := range fields {
		d, err := decimal.NewFromString(balStr[i])
		if err != nil {
			return nil, fmt.Errorf("parse balance column: %w", err)
		}
		*dst = d
	}

	a.SettlementCadence = SettlementCadence(cadence)
	a.Status = AccountStatus(status)
	return &a, nil
}

// CreateAccount inserts a new account. The referrer chain is fixed at insert
// time and never updated afterwards.
func (r *Repository) CreateAccount(ctx context.Context, account *Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.SettlementCadence == "" {
		account.SettlementCadence = CadenceWeekly
	}
	if account.Status == "" {
		account.Status = AccountActive
	}
	if account.ServiceStartTime.IsZero() {
		account.ServiceStartTime = time.Now().UTC()
	}
	if account.ReferrerChain == nil {
		account.ReferrerChain = []string{}
	}

	query := `
		INSERT INTO accounts (
			id, email, password_hash, balance, available_balance, used_margin,
			gift_balance, custody_fee_balance, custody_fee_pending,
			settlement_cadence, referrer_chain, service_start_time, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`

	err := r.db.Pool.QueryRow(ctx, query,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.Balance.String(),
		account.AvailableBalance.String(),
		account.UsedMargin.String(),
		account.GiftBalance.String(),
		account.CustodyFeeBalance.String(),
		account.CustodyFeePending.String(),
		string(account.SettlementCadence),
		account.ReferrerChain,
		account.ServiceStartTime,
		string(account.Status),
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetAccountByID retrieves an account by id
func (r *Repository) GetAccountByID(ctx context.Context, accountID string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.Pool.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetAccountByEmail retrieves an account by email
func (r *Repository) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	account, err := scanAccount(r.db.Pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}
	return account, nil
}

// GetAccountsByReferrer returns the accounts whose direct (tier-1) referrer
// is the given account. Used for team lookups.
func (r *Repository) GetAccountsByReferrer(ctx context.Context, accountID string) ([]*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE referrer_chain[1] = $1 ORDER BY created_at ASC`

	rows, err := r.db.Pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query referred accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetAccountsWithPendingFees returns active accounts carrying an unsettled
// fee obligation. This is the input set for the periodic settlement sweep.
func (r *Repository) GetAccountsWithPendingFees(ctx context.Context) ([]*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE status = 'active' AND custody_fee_pending > 0
		ORDER BY created_at ASC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts with pending fees: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UpdateCadence flips the settlement cadence from WEEKLY to DAILY. The WHERE
// clause makes the transition one-way and the call idempotent.
func (r *Repository) UpdateCadence(ctx context.Context, accountID string, cadence SettlementCadence) error {
	query := `
		UPDATE accounts
		SET settlement_cadence = $2, updated_at = NOW()
		WHERE id = $1 AND settlement_cadence = 'WEEKLY'`

	_, err := r.db.Pool.Exec(ctx, query, accountID, string(cadence))
	if err != nil {
		return fmt.Errorf("failed to update cadence: %w", err)
	}
	return nil
}

// CloseAccount flips an account to closed, refusing while principal, gift,
// or custody-fee funds remain. The row itself stays: ledger entries and
// settlement records reference it, so closing is a status change, not a
// DELETE. Closing an already-closed account is a no-op.
func (r *Repository) CloseAccount(ctx context.Context, accountID string) error {
	query := `
		UPDATE accounts
		SET status = 'closed', updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		  AND balance = 0 AND gift_balance = 0 AND custody_fee_balance = 0`

	tag, err := r.db.Pool.Exec(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("failed to close account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		account, err := r.GetAccountByID(ctx, accountID)
		if err != nil {
			return err
		}
		if account.Status == AccountClosed {
			return nil
		}
		return ErrAccountNotEmpty
	}
	return nil
}

// isUniqueViolation reports whether the error is a unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
