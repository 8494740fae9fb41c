package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RequestWithdrawal debits the user's available balance and queues a pending
// withdrawal in one transaction.
func (s *Service) RequestWithdrawal(ctx context.Context, params store.RequestWithdrawalParams) (*models.Withdrawal, error) {
	if !params.Amount.IsPositive() {
		return nil, &store.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	address := strings.TrimSpace(params.WalletAddress)
	if address == "" {
		return nil, &store.ValidationError{Field: "wallet_address", Reason: "cannot be empty"}
	}

	var withdrawal *models.Withdrawal
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		now := s.now()
		withdrawal = &models.Withdrawal{
			Id:            uuid.New().String(),
			UserId:        params.UserId,
			Amount:        params.Amount,
			WalletAddress: address,
			Status:        models.WithdrawalStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if _, err := s.applyBalanceChange(ctx, tx, balanceChange{
			UserId:    params.UserId,
			Available: params.Amount.Neg(),
			Locked:    decimal.Zero,
			EntryType: models.EntryTypeWithdrawal,
			Reference: withdrawal.Id,
		}); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, tx.Rebind(queryInsertWithdrawal),
			withdrawal.Id, withdrawal.UserId, withdrawal.Amount, withdrawal.WalletAddress, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Withdrawal requested",
		zap.String("withdrawal_id", withdrawal.Id),
		zap.String("user_id", withdrawal.UserId),
		zap.String("amount", withdrawal.Amount.String()),
		zap.String("destination", withdrawal.WalletAddress))
	return withdrawal, nil
}

func (s *Service) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	if err := s.db.GetContext(ctx, &withdrawal, s.db.Rebind(queryGetWithdrawal), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return &withdrawal, nil
}

// ListPendingWithdrawals returns up to limit pending withdrawals, oldest
// first. A limit of 0 or less returns all of them.
func (s *Service) ListPendingWithdrawals(ctx context.Context, limit int) ([]models.Withdrawal, error) {
	var withdrawals []models.Withdrawal
	var err error
	if limit <= 0 {
		err = s.db.SelectContext(ctx, &withdrawals, queryListAllPendingWithdrawals)
	} else {
		err = s.db.SelectContext(ctx, &withdrawals, s.db.Rebind(queryListPendingWithdrawals), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list pending withdrawals: %w", err)
	}
	return withdrawals, nil
}

func (s *Service) CountPendingWithdrawals(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, queryCountPendingWithdrawals); err != nil {
		return 0, fmt.Errorf("failed to count pending withdrawals: %w", err)
	}
	return count, nil
}

func (s *Service) ListWithdrawalsByStatus(ctx context.Context, status string) ([]models.Withdrawal, error) {
	var withdrawals []models.Withdrawal
	if err := s.db.SelectContext(ctx, &withdrawals, s.db.Rebind(queryListWithdrawalsByStatus), status); err != nil {
		return nil, fmt.Errorf("failed to list withdrawals by status: %w", err)
	}
	return withdrawals, nil
}

func (s *Service) ListUserWithdrawals(ctx context.Context, userId string, limit int) ([]models.Withdrawal, error) {
	var withdrawals []models.Withdrawal
	if err := s.db.SelectContext(ctx, &withdrawals, s.db.Rebind(queryListUserWithdrawals), userId, limit); err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	return withdrawals, nil
}

// TransitionWithdrawalStatus is a single conditional write. It reports false,
// without error, when the row was not in the expected status.
func (s *Service) TransitionWithdrawalStatus(ctx context.Context, id, from, to string) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(queryTransitionWithdrawal), to, s.now(), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition withdrawal %s from %s to %s: %w", id, from, to, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows == 1, nil
}

// CompleteWithdrawal finalises a processing withdrawal with its transaction hash
func (s *Service) CompleteWithdrawal(ctx context.Context, id, txHash string) error {
	now := s.now()
	return s.execProcessingUpdate(ctx, id, queryCompleteWithdrawal, normalizeHash(txHash), now, now, id)
}

// RevertWithdrawal returns a processing withdrawal to pending for a later run
func (s *Service) RevertWithdrawal(ctx context.Context, id, reason string) error {
	return s.execProcessingUpdate(ctx, id, queryRevertWithdrawal, reason, s.now(), id)
}

// MarkWithdrawalUnresolved keeps a withdrawal in processing and records the
// submitted hash so an operator can check it on chain.
func (s *Service) MarkWithdrawalUnresolved(ctx context.Context, id, txHash, reason string) error {
	return s.execProcessingUpdate(ctx, id, queryMarkWithdrawalUnresolved, normalizeHash(txHash), reason, s.now(), id)
}

func (s *Service) execProcessingUpdate(ctx context.Context, id, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetWithdrawal(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: withdrawal %s is not processing", store.ErrInvalidTransition, id)
	}
	return nil
}

// FailWithdrawal marks a pending or processing withdrawal failed and refunds
// its amount to the owner's available balance.
func (s *Service) FailWithdrawal(ctx context.Context, id, reason string) error {
	var withdrawal models.Withdrawal
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &withdrawal, tx.Rebind(queryGetWithdrawal), id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrWithdrawalNotFound
			}
			return fmt.Errorf("failed to get withdrawal: %w", err)
		}

		result, err := tx.ExecContext(ctx, tx.Rebind(queryFailWithdrawal), reason, s.now(), id)
		if err != nil {
			return fmt.Errorf("failed to fail withdrawal: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: withdrawal %s is %s", store.ErrInvalidTransition, id, withdrawal.Status)
		}

		_, err = s.applyBalanceChange(ctx, tx, balanceChange{
			UserId:    withdrawal.UserId,
			Available: withdrawal.Amount,
			Locked:    decimal.Zero,
			EntryType: models.EntryTypeWithdrawalRefund,
			Reference: withdrawal.Id,
		})
		return err
	})
	if err != nil {
		return err
	}

	zap.L().Warn("Withdrawal failed and refunded",
		zap.String("withdrawal_id", id),
		zap.String("user_id", withdrawal.UserId),
		zap.String("amount", withdrawal.Amount.String()),
		zap.String("reason", reason))
	return nil
}
