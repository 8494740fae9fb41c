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
	"strings"
	"time"

	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// minSenderAddressLength rejects obviously truncated addresses at intent time.
const minSenderAddressLength = 10

// CreateDeposit records a pending claim that the user is sending funds
func (s *Service) CreateDeposit(ctx context.Context, params store.CreateDepositParams) (*models.Deposit, error) {
	sender := strings.ToLower(strings.TrimSpace(params.SenderAddress))
	if len(sender) < minSenderAddressLength {
		return nil, &store.ValidationError{Field: "sender_address", Reason: fmt.Sprintf("must be at least %d characters", minSenderAddressLength)}
	}
	if !params.Amount.IsPositive() {
		return nil, &store.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if _, err := s.GetProfile(ctx, params.UserId); err != nil {
		return nil, err
	}

	deposit := &models.Deposit{
		Id:            uuid.New().String(),
		UserId:        params.UserId,
		Amount:        params.Amount,
		SenderAddress: sender,
		Status:        models.DepositStatusPending,
		CreatedAt:     s.now(),
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(queryInsertDeposit),
		deposit.Id, deposit.UserId, deposit.Amount, deposit.SenderAddress, deposit.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert deposit: %w", err)
	}

	zap.L().Info("Deposit intent recorded",
		zap.String("deposit_id", deposit.Id),
		zap.String("user_id", deposit.UserId),
		zap.String("amount", deposit.Amount.String()),
		zap.String("sender", deposit.SenderAddress))
	return deposit, nil
}

func (s *Service) GetDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	var deposit models.Deposit
	if err := s.db.GetContext(ctx, &deposit, s.db.Rebind(queryGetDeposit), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrDepositNotFound
		}
		return nil, fmt.Errorf("failed to get deposit: %w", err)
	}
	return &deposit, nil
}

// FindPendingDepositMatch returns the oldest unbound pending deposit from sender
// whose claimed amount is within tolerance of amount.
func (s *Service) FindPendingDepositMatch(ctx context.Context, sender string, amount, tolerance decimal.Decimal) (*models.Deposit, error) {
	var candidates []models.Deposit
	err := s.db.SelectContext(ctx, &candidates, s.db.Rebind(queryListPendingDepositCandidates),
		strings.ToLower(strings.TrimSpace(sender)))
	if err != nil {
		return nil, fmt.Errorf("failed to match deposit: %w", err)
	}
	for i := range candidates {
		if candidates[i].Amount.Sub(amount).Abs().LessThanOrEqual(tolerance) {
			return &candidates[i], nil
		}
	}
	return nil, store.ErrDepositNotFound
}

func (s *Service) FindDepositByTxHash(ctx context.Context, txHash string) (*models.Deposit, error) {
	var deposit models.Deposit
	err := s.db.GetContext(ctx, &deposit, s.db.Rebind(queryFindDepositByTxHash), normalizeHash(txHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrDepositNotFound
		}
		return nil, fmt.Errorf("failed to find deposit by tx hash: %w", err)
	}
	return &deposit, nil
}

// SetDepositTxHash binds an on-chain hash to a deposit. Rebinding the same
// hash is a no-op; a different hash is rejected.
func (s *Service) SetDepositTxHash(ctx context.Context, depositId, txHash string) error {
	hash := normalizeHash(txHash)
	result, err := s.db.ExecContext(ctx, s.db.Rebind(querySetDepositTxHash), hash, depositId, hash)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: tx hash %s already bound to another deposit", store.ErrDuplicateTransaction, hash)
		}
		return fmt.Errorf("failed to set deposit tx hash: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetDeposit(ctx, depositId); err != nil {
			return err
		}
		return store.ErrTxHashConflict
	}
	return nil
}

// ConfirmDeposit moves a pending deposit to confirmed and credits the owner
// in a single transaction. It returns false when the deposit was no longer
// pending, so repeated calls never credit twice.
func (s *Service) ConfirmDeposit(ctx context.Context, depositId string) (bool, error) {
	var confirmed bool
	var deposit models.Deposit

	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		confirmed = false
		if err := tx.GetContext(ctx, &deposit, tx.Rebind(queryGetDeposit), depositId); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrDepositNotFound
			}
			return fmt.Errorf("failed to get deposit: %w", err)
		}

		result, err := tx.ExecContext(ctx, tx.Rebind(queryConfirmDeposit), s.now(), depositId)
		if err != nil {
			return fmt.Errorf("failed to confirm deposit: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 0 {
			return nil
		}

		if _, err := s.applyBalanceChange(ctx, tx, balanceChange{
			UserId:    deposit.UserId,
			Available: deposit.Amount,
			Locked:    decimal.Zero,
			EntryType: models.EntryTypeDeposit,
			Reference: deposit.Id,
		}); err != nil {
			return err
		}
		confirmed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if confirmed {
		zap.L().Info("Deposit confirmed and credited",
			zap.String("deposit_id", depositId),
			zap.String("user_id", deposit.UserId),
			zap.String("amount", deposit.Amount.String()))
	} else {
		zap.L().Info("Deposit already settled, nothing credited",
			zap.String("deposit_id", depositId),
			zap.String("status", deposit.Status))
	}
	return confirmed, nil
}

// ExpireDeposit marks a pending deposit failed. Nothing is credited or debited.
func (s *Service) ExpireDeposit(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(queryExpireDeposit), id)
	if err != nil {
		return fmt.Errorf("failed to expire deposit: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetDeposit(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: deposit %s is not pending", store.ErrInvalidTransition, id)
	}
	zap.L().Info("Deposit expired", zap.String("deposit_id", id))
	return nil
}

func (s *Service) ListUserDeposits(ctx context.Context, userId string, limit int) ([]models.Deposit, error) {
	var deposits []models.Deposit
	if err := s.db.SelectContext(ctx, &deposits, s.db.Rebind(queryListUserDeposits), userId, limit); err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}
	return deposits, nil
}

// ListDepositsByStatus returns deposits in status created at or before olderThan, oldest first
func (s *Service) ListDepositsByStatus(ctx context.Context, status string, olderThan time.Time) ([]models.Deposit, error) {
	var deposits []models.Deposit
	err := s.db.SelectContext(ctx, &deposits, s.db.Rebind(queryListDepositsByStatus), status, olderThan.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits by status: %w", err)
	}
	return deposits, nil
}

func normalizeHash(txHash string) string {
	return strings.ToLower(strings.TrimSpace(txHash))
}
