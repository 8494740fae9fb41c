package api

import (
	"context"
	"fmt"

	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *LedgerService) ListPositions(ctx context.Context, userId, status string) ([]models.Position, error) {
	positions, err := s.db.ListPositions(ctx, userId, status)
	if err != nil {
		zap.L().Error("Failed to list positions", zap.String("user_id", userId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve positions")
	}
	return positions, nil
}

// OpenPosition moves funds from available to locked balance for a strategy.
func (s *LedgerService) OpenPosition(ctx context.Context, params store.OpenPositionParams) (*models.Position, error) {
	position, err := s.db.OpenPosition(ctx, params)
	if err != nil {
		return nil, err
	}
	s.balanceChanged(ctx, position.UserId, position.Id, position.Amount.Neg())
	return position, nil
}

// ClosePosition settles a position back into available balance.
func (s *LedgerService) ClosePosition(ctx context.Context, params store.ClosePositionParams) (*models.Position, error) {
	position, err := s.db.ClosePosition(ctx, params)
	if err != nil {
		return nil, err
	}
	s.balanceChanged(ctx, position.UserId, position.Id, decimal.Max(position.Amount.Add(position.ProfitLoss), decimal.Zero))
	return position, nil
}

func (s *LedgerService) UpdatePositionPrice(ctx context.Context, id string, price decimal.Decimal) error {
	return s.db.UpdatePositionPrice(ctx, id, price)
}
