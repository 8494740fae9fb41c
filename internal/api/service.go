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

package api

import (
	"context"
	"fmt"
	"time"

	"usdc-vault-custody/internal/events"
	"usdc-vault-custody/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Store is the ledger plus a health check.
type Store interface {
	store.LedgerStore
	Ping(ctx context.Context) error
}

// LedgerService is the user- and strategy-facing API over the ledger store.
type LedgerService struct {
	db     Store
	notify events.Sink
}

// NewLedgerService wires the store. notify receives balance-change events for
// user-initiated movements and may be nil.
func NewLedgerService(db Store, notify events.Sink) *LedgerService {
	if notify == nil {
		notify = events.Noop{}
	}
	return &LedgerService{
		db:     db,
		notify: notify,
	}
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (s *LedgerService) balanceChanged(ctx context.Context, userId, reference string, amount decimal.Decimal) {
	err := s.notify.Publish(ctx, events.Event{
		Type:        events.TypeBalanceChanged,
		ReferenceId: reference,
		UserId:      userId,
		Amount:      amount,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		zap.L().Warn("Balance change notification failed", zap.String("user_id", userId), zap.Error(err))
	}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
