/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"
	"time"

	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.LedgerStore.
var _ store.LedgerStore = (*Service)(nil)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type Service struct {
	db     *sqlx.DB
	driver string
	now    func() time.Time
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var dsn string
	switch driver {
	case DriverSQLite:
		zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
		// Immediate transactions take the write lock up front so read-modify-write
		// sequences inside WithTx cannot interleave.
		dsn = cfg.Path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	case DriverPostgres:
		zap.L().Info("Opening PostgreSQL database")
		dsn = cfg.Path
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := newService(db, driver)
	if err := service.initSchema(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully", zap.String("driver", driver))
	return service, nil
}

func newService(db *sqlx.DB, driver string) *Service {
	return &Service{
		db:     db,
		driver: driver,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

// Ping reports whether the database is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Service) initSchema(ctx context.Context) error {
	schema := sqliteSchema
	if s.driver == DriverPostgres {
		schema = postgresSchema
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Money columns are TEXT holding the exact decimal string; SQLite has no
// fixed-point type and REAL would round amounts. Comparisons on them happen
// in Go, the CHECKs only guard the sign.
const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		balance TEXT NOT NULL DEFAULT '0' CHECK (CAST(balance AS REAL) >= 0),
		locked_balance TEXT NOT NULL DEFAULT '0' CHECK (CAST(locked_balance AS REAL) >= 0),
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS deposits (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES profiles(id),
		amount TEXT NOT NULL CHECK (CAST(amount AS REAL) > 0),
		sender_address TEXT NOT NULL,
		tx_hash TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP NOT NULL,
		confirmed_at TIMESTAMP
	);

	-- One on-chain transfer can credit at most one deposit
	CREATE UNIQUE INDEX IF NOT EXISTS idx_deposits_tx_hash ON deposits(tx_hash);
	CREATE INDEX IF NOT EXISTS idx_deposits_match ON deposits(status, sender_address, created_at);
	CREATE INDEX IF NOT EXISTS idx_deposits_user ON deposits(user_id, created_at);

	CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES profiles(id),
		amount TEXT NOT NULL CHECK (CAST(amount AS REAL) > 0),
		wallet_address TEXT NOT NULL,
		tx_hash TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawals_queue ON withdrawals(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_user ON withdrawals(user_id, created_at);

	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES profiles(id),
		market_name TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		current_price TEXT NOT NULL,
		exit_price TEXT,
		amount TEXT NOT NULL CHECK (CAST(amount AS REAL) > 0),
		profit_loss TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_positions_user ON positions(user_id, status);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES profiles(id),
		entry_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		balance_before TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		reference TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(entry_type, reference)
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries(user_id, created_at);
	`

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		balance NUMERIC(38, 6) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		locked_balance NUMERIC(38, 6) NOT NULL DEFAULT 0 CHECK (locked_balance >= 0),
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS deposits (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES profiles(id),
		amount NUMERIC(38, 6) NOT NULL CHECK (amount > 0),
		sender_address TEXT NOT NULL,
		tx_hash TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL,
		confirmed_at TIMESTAMPTZ
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_deposits_tx_hash ON deposits(tx_hash);
	CREATE INDEX IF NOT EXISTS idx_deposits_match ON deposits(status, sender_address, created_at);
	CREATE INDEX IF NOT EXISTS idx_deposits_user ON deposits(user_id, created_at);

	CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES profiles(id),
		amount NUMERIC(38, 6) NOT NULL CHECK (amount > 0),
		wallet_address TEXT NOT NULL,
		tx_hash TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawals_queue ON withdrawals(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_user ON withdrawals(user_id, created_at);

	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES profiles(id),
		market_name TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price NUMERIC(38, 6) NOT NULL,
		current_price NUMERIC(38, 6) NOT NULL,
		exit_price NUMERIC(38, 6),
		amount NUMERIC(38, 6) NOT NULL CHECK (amount > 0),
		profit_loss NUMERIC(38, 6) NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_positions_user ON positions(user_id, status);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES profiles(id),
		entry_type TEXT NOT NULL,
		amount NUMERIC(38, 6) NOT NULL,
		balance_before NUMERIC(38, 6) NOT NULL,
		balance_after NUMERIC(38, 6) NOT NULL,
		reference TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE(entry_type, reference)
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries(user_id, created_at);
	`
