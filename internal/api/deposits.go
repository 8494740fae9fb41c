package api

import (
	"context"
	"errors"
	"fmt"

	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RegisterDeposit records the user's intent to send funds from a known address.
// Rejected input comes back as an unsuccessful result, not an error.
func (s *LedgerService) RegisterDeposit(ctx context.Context, userId string, amount decimal.Decimal, senderAddress string) (*models.DepositResult, error) {
	deposit, err := s.db.CreateDeposit(ctx, store.CreateDepositParams{
		UserId:        userId,
		Amount:        amount,
		SenderAddress: senderAddress,
	})
	if err != nil {
		if store.IsValidation(err) || errors.Is(err, store.ErrProfileNotFound) {
			zap.L().Info("Deposit intent rejected", zap.String("user_id", userId), zap.Error(err))
			return &models.DepositResult{Success: false, Error: err.Error()}, nil
		}
		zap.L().Error("Deposit intent failed", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to record deposit: %w", err)
	}

	return &models.DepositResult{Success: true, Deposit: deposit}, nil
}

func (s *LedgerService) ListDeposits(ctx context.Context, userId string, limit int) ([]models.Deposit, error) {
	limit, _ = clampPage(limit, 0)
	deposits, err := s.db.ListUserDeposits(ctx, userId, limit)
	if err != nil {
		zap.L().Error("Failed to list deposits", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve deposits")
	}
	return deposits, nil
}
