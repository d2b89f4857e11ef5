package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	db := &DB{
		Pool:   pool,
		logger: logger.With().Str("component", "database").Logger(),
	}
	db.logger.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("running database migrations")

	migrations := []string{
		// Accounts table: one row per custodial user, all balance fields on
		// the row so a single conditional UPDATE can mutate them atomically.
		`CREATE TABLE IF NOT EXISTS accounts (
			id UUID PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			balance NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			available_balance NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (available_balance >= 0),
			used_margin NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (used_margin >= 0),
			gift_balance NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (gift_balance >= 0),
			custody_fee_balance NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (custody_fee_balance >= 0),
			custody_fee_pending NUMERIC(20, 2) NOT NULL DEFAULT 0 CHECK (custody_fee_pending >= 0),
			settlement_cadence VARCHAR(10) NOT NULL DEFAULT 'WEEKLY',
			last_settlement_time TIMESTAMP,
			referrer_chain TEXT[] NOT NULL DEFAULT '{}',
			service_start_time TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_cadence ON accounts(settlement_cadence)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_pending ON accounts(custody_fee_pending) WHERE custody_fee_pending > 0`,

		// Ledger entries: append-only, one row per balance mutation. The
		// unique index on (correlation_id, account_id, kind) is the
		// idempotency guard for commission payout retries.
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id UUID PRIMARY KEY,
			account_id UUID NOT NULL REFERENCES accounts(id),
			amount NUMERIC(20, 2) NOT NULL,
			kind VARCHAR(20) NOT NULL,
			correlation_id UUID,
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account_time ON ledger_entries(account_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_kind ON ledger_entries(kind)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_correlation_unique
			ON ledger_entries(correlation_id, account_id, kind)
			WHERE correlation_id IS NOT NULL`,

		// Settlement records: one row per completed or attempted settlement.
		`CREATE TABLE IF NOT EXISTS settlement_records (
			id UUID PRIMARY KEY,
			account_id UUID NOT NULL REFERENCES accounts(id),
			profit_basis NUMERIC(20, 2) NOT NULL,
			platform_share NUMERIC(20, 2) NOT NULL DEFAULT 0,
			tier1_share NUMERIC(20, 2) NOT NULL DEFAULT 0,
			tier1_account UUID,
			tier2_share NUMERIC(20, 2) NOT NULL DEFAULT 0,
			tier2_account UUID,
			total_fee NUMERIC(20, 2) NOT NULL DEFAULT 0,
			gift_applied NUMERIC(20, 2) NOT NULL DEFAULT 0,
			outcome VARCHAR(30) NOT NULL,
			correlation_id UUID,
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_settlement_account_time ON settlement_records(account_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_settlement_outcome ON settlement_records(outcome)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Msg("database migrations completed")
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
