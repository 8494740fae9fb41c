package api

import (
	"context"
	"fmt"

	"usdc-vault-custody/internal/models"

	"go.uber.org/zap"
)

// GetBalances returns the available and locked balance of a profile.
func (s *LedgerService) GetBalances(ctx context.Context, userId string) (*models.BalanceSummary, error) {
	if userId == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	profile, err := s.db.GetProfile(ctx, userId)
	if err != nil {
		zap.L().Error("Failed to get profile", zap.String("user_id", userId), zap.Error(err))
		return nil, err
	}

	return &models.BalanceSummary{
		UserId:        profile.Id,
		Balance:       profile.Balance,
		LockedBalance: profile.LockedBalance,
		Total:         profile.Balance.Add(profile.LockedBalance),
	}, nil
}

// GetLedgerEntries returns paginated audit entries for a profile.
func (s *LedgerService) GetLedgerEntries(ctx context.Context, userId string, limit, offset int) ([]models.LedgerEntry, error) {
	limit, offset = clampPage(limit, offset)
	entries, err := s.db.GetLedgerEntries(ctx, userId, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get ledger entries", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve ledger entries")
	}
	return entries, nil
}
