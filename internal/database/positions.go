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

// OpenPosition moves the position amount from available to locked balance
func (s *Service) OpenPosition(ctx context.Context, params store.OpenPositionParams) (*models.Position, error) {
	side := strings.ToUpper(strings.TrimSpace(params.Side))
	if side != models.PositionSideYes && side != models.PositionSideNo {
		return nil, &store.ValidationError{Field: "side", Reason: "must be YES or NO"}
	}
	if strings.TrimSpace(params.MarketName) == "" {
		return nil, &store.ValidationError{Field: "market_name", Reason: "cannot be empty"}
	}
	if !params.Amount.IsPositive() {
		return nil, &store.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if params.EntryPrice.IsNegative() {
		return nil, &store.ValidationError{Field: "entry_price", Reason: "cannot be negative"}
	}

	var position *models.Position
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		position = &models.Position{
			Id:           uuid.New().String(),
			UserId:       params.UserId,
			MarketName:   params.MarketName,
			Side:         side,
			EntryPrice:   params.EntryPrice,
			CurrentPrice: params.EntryPrice,
			Amount:       params.Amount,
			ProfitLoss:   decimal.Zero,
			Status:       models.PositionStatusActive,
			CreatedAt:    s.now(),
		}

		if _, err := s.applyBalanceChange(ctx, tx, balanceChange{
			UserId:    params.UserId,
			Available: params.Amount.Neg(),
			Locked:    params.Amount,
			EntryType: models.EntryTypePositionOpen,
			Reference: position.Id,
		}); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, tx.Rebind(queryInsertPosition),
			position.Id, position.UserId, position.MarketName, position.Side,
			position.EntryPrice, position.CurrentPrice, position.Amount, position.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert position: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Position opened",
		zap.String("position_id", position.Id),
		zap.String("user_id", position.UserId),
		zap.String("market", position.MarketName),
		zap.String("side", position.Side),
		zap.String("amount", position.Amount.String()))
	return position, nil
}

func (s *Service) UpdatePositionPrice(ctx context.Context, id string, price decimal.Decimal) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(queryUpdatePositionPrice), price, id)
	if err != nil {
		return fmt.Errorf("failed to update position price: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := s.getPosition(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: position %s is closed", store.ErrInvalidTransition, id)
	}
	return nil
}

// ClosePosition releases the locked amount and credits amount plus profit or
// loss, floored at zero, back to available balance.
func (s *Service) ClosePosition(ctx context.Context, params store.ClosePositionParams) (*models.Position, error) {
	var position models.Position
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &position, tx.Rebind(queryGetPosition), params.PositionId); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrPositionNotFound
			}
			return fmt.Errorf("failed to get position: %w", err)
		}

		now := s.now()
		result, err := tx.ExecContext(ctx, tx.Rebind(queryClosePosition),
			params.ExitPrice, params.ExitPrice, params.ProfitLoss, now, position.Id)
		if err != nil {
			return fmt.Errorf("failed to close position: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: position %s is %s", store.ErrInvalidTransition, position.Id, position.Status)
		}

		payout := decimal.Max(position.Amount.Add(params.ProfitLoss), decimal.Zero)
		if _, err := s.applyBalanceChange(ctx, tx, balanceChange{
			UserId:    position.UserId,
			Available: payout,
			Locked:    position.Amount.Neg(),
			EntryType: models.EntryTypePositionClose,
			Reference: position.Id,
		}); err != nil {
			return err
		}

		exit := params.ExitPrice
		position.Status = models.PositionStatusClosed
		position.ExitPrice = &exit
		position.CurrentPrice = exit
		position.ProfitLoss = params.ProfitLoss
		position.ClosedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Position closed",
		zap.String("position_id", position.Id),
		zap.String("user_id", position.UserId),
		zap.String("profit_loss", position.ProfitLoss.String()))
	return &position, nil
}

// ListPositions returns a user's positions, optionally filtered by status
func (s *Service) ListPositions(ctx context.Context, userId, status string) ([]models.Position, error) {
	var positions []models.Position
	var err error
	if status == "" {
		err = s.db.SelectContext(ctx, &positions, s.db.Rebind(queryListPositions), userId)
	} else {
		err = s.db.SelectContext(ctx, &positions, s.db.Rebind(queryListPositionsByStatus), userId, status)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	return positions, nil
}

func (s *Service) getPosition(ctx context.Context, id string) (*models.Position, error) {
	var position models.Position
	if err := s.db.GetContext(ctx, &position, s.db.Rebind(queryGetPosition), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrPositionNotFound
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return &position, nil
}
