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
	"database/sql"
	"errors"
	"fmt"

	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// balanceChange is a signed adjustment to a profile's available and locked balances.
type balanceChange struct {
	UserId    string
	Available decimal.Decimal
	Locked    decimal.Decimal
	EntryType string
	Reference string
}

// applyBalanceChange updates a profile under its version guard and records
// the matching ledger entry. It must run inside WithTx.
func (s *Service) applyBalanceChange(ctx context.Context, tx *sqlx.Tx, change balanceChange) (*models.LedgerEntry, error) {
	var profile models.Profile
	if err := tx.GetContext(ctx, &profile, tx.Rebind(queryGetProfile), change.UserId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	newBalance := profile.Balance.Add(change.Available)
	newLocked := profile.LockedBalance.Add(change.Locked)
	if newBalance.IsNegative() || newLocked.IsNegative() {
		return nil, fmt.Errorf("%w: available %s, requested %s",
			store.ErrInsufficientBalance, profile.Balance.String(), change.Available.Neg().String())
	}

	now := s.now()
	result, err := tx.ExecContext(ctx, tx.Rebind(queryUpdateProfileBalances),
		newBalance, newLocked, now, profile.Id, profile.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("balance update failed - %w", store.ErrConcurrentModification)
	}

	entry := &models.LedgerEntry{
		Id:            uuid.New().String(),
		UserId:        profile.Id,
		EntryType:     change.EntryType,
		Amount:        change.Available,
		BalanceBefore: profile.Balance,
		BalanceAfter:  newBalance,
		Reference:     change.Reference,
		CreatedAt:     now,
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(queryInsertLedgerEntry),
		entry.Id, entry.UserId, entry.EntryType, entry.Amount,
		entry.BalanceBefore, entry.BalanceAfter, entry.Reference, entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s entry for %s already exists", store.ErrDuplicateTransaction, change.EntryType, change.Reference)
		}
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	zap.L().Info("Balance updated",
		zap.String("user_id", profile.Id),
		zap.String("entry_type", change.EntryType),
		zap.String("reference", change.Reference),
		zap.String("old_balance", profile.Balance.String()),
		zap.String("new_balance", newBalance.String()),
		zap.String("locked_balance", newLocked.String()))

	return entry, nil
}

// GetLedgerEntries returns paginated ledger entries for a user, newest first
func (s *Service) GetLedgerEntries(ctx context.Context, userId string, limit, offset int) ([]models.LedgerEntry, error) {
	zap.L().Debug("Getting ledger entries",
		zap.String("user_id", userId),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	var entries []models.LedgerEntry
	if err := s.db.SelectContext(ctx, &entries, s.db.Rebind(queryGetLedgerEntries), userId, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	return entries, nil
}

// ReconcileProfile verifies the profile's balances against its ledger
// entries and its active positions.
func (s *Service) ReconcileProfile(ctx context.Context, userId string) error {
	profile, err := s.GetProfile(ctx, userId)
	if err != nil {
		return err
	}

	var amounts []decimal.Decimal
	if err := s.db.SelectContext(ctx, &amounts, s.db.Rebind(queryLedgerEntryAmounts), userId); err != nil {
		return fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	calculated := decimal.Sum(decimal.Zero, amounts...)

	var locked []decimal.Decimal
	if err := s.db.SelectContext(ctx, &locked, s.db.Rebind(queryActivePositionAmounts), userId); err != nil {
		return fmt.Errorf("failed to sum active positions: %w", err)
	}
	calculatedLocked := decimal.Sum(decimal.Zero, locked...)

	if !calculated.Equal(profile.Balance) {
		zap.L().Error("Balance mismatch detected",
			zap.String("user_id", userId),
			zap.String("ledger_sum", calculated.String()),
			zap.String("stored_balance", profile.Balance.String()))
		return fmt.Errorf("balance mismatch for %s: ledger %s, stored %s", userId, calculated.String(), profile.Balance.String())
	}
	if !calculatedLocked.Equal(profile.LockedBalance) {
		zap.L().Error("Locked balance mismatch detected",
			zap.String("user_id", userId),
			zap.String("positions_sum", calculatedLocked.String()),
			zap.String("stored_locked", profile.LockedBalance.String()))
		return fmt.Errorf("locked balance mismatch for %s: positions %s, stored %s", userId, calculatedLocked.String(), profile.LockedBalance.String())
	}

	zap.L().Debug("Balance reconciliation successful",
		zap.String("user_id", userId),
		zap.String("balance", profile.Balance.String()))
	return nil
}
