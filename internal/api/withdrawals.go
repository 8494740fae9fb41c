package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RequestWithdrawal debits the balance and queues a payout to an EVM address.
func (s *LedgerService) RequestWithdrawal(ctx context.Context, userId string, amount decimal.Decimal, walletAddress string) (*models.WithdrawalRequestResult, error) {
	address := strings.TrimSpace(walletAddress)
	if !common.IsHexAddress(address) {
		return &models.WithdrawalRequestResult{Success: false, Error: "invalid wallet address"}, nil
	}
	if !amount.IsPositive() {
		return &models.WithdrawalRequestResult{Success: false, Error: "amount must be positive"}, nil
	}

	zap.L().Info("Processing withdrawal request",
		zap.String("user_id", userId),
		zap.String("amount", amount.String()),
		zap.String("destination", address))

	withdrawal, err := s.db.RequestWithdrawal(ctx, store.RequestWithdrawalParams{
		UserId:        userId,
		Amount:        amount,
		WalletAddress: strings.ToLower(address),
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientBalance):
			return &models.WithdrawalRequestResult{Success: false, Error: "Insufficient balance"}, nil
		case errors.Is(err, store.ErrProfileNotFound), store.IsValidation(err):
			return &models.WithdrawalRequestResult{Success: false, Error: err.Error()}, nil
		}
		zap.L().Error("Withdrawal request failed",
			zap.String("user_id", userId),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to request withdrawal: %w", err)
	}

	profile, err := s.db.GetProfile(ctx, userId)
	if err != nil {
		zap.L().Error("Profile lookup failed after withdrawal request",
			zap.String("user_id", userId),
			zap.Error(err))
		return nil, fmt.Errorf("profile lookup failed after withdrawal request: %w", err)
	}

	s.balanceChanged(ctx, userId, withdrawal.Id, amount.Neg())

	return &models.WithdrawalRequestResult{
		Success:    true,
		Withdrawal: withdrawal,
		NewBalance: profile.Balance,
	}, nil
}

func (s *LedgerService) ListWithdrawals(ctx context.Context, userId string, limit int) ([]models.Withdrawal, error) {
	limit, _ = clampPage(limit, 0)
	withdrawals, err := s.db.ListUserWithdrawals(ctx, userId, limit)
	if err != nil {
		zap.L().Error("Failed to list withdrawals", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve withdrawals")
	}
	return withdrawals, nil
}
