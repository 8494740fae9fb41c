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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DepositStatusPending   = "pending"
	DepositStatusConfirmed = "confirmed"
	DepositStatusFailed    = "failed"
)

const (
	WithdrawalStatusPending    = "pending"
	WithdrawalStatusProcessing = "processing"
	WithdrawalStatusCompleted  = "completed"
	WithdrawalStatusFailed     = "failed"
)

const (
	PositionStatusActive = "active"
	PositionStatusClosed = "closed"

	PositionSideYes = "YES"
	PositionSideNo  = "NO"
)

// Ledger entry types; each entry records a signed change to available balance
const (
	EntryTypeDeposit          = "deposit"
	EntryTypeWithdrawal       = "withdrawal"
	EntryTypeWithdrawalRefund = "withdrawal_refund"
	EntryTypePositionOpen     = "position_open"
	EntryTypePositionClose    = "position_close"
)

// Profile is a user's custodial account
type Profile struct {
	Id            string          `db:"id" json:"id"`
	Email         string          `db:"email" json:"email"`
	DisplayName   string          `db:"display_name" json:"displayName"`
	Balance       decimal.Decimal `db:"balance" json:"balance"`
	LockedBalance decimal.Decimal `db:"locked_balance" json:"lockedBalance"`
	Version       int64           `db:"version" json:"-"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// Deposit is a user's claim that funds are on the way
type Deposit struct {
	Id            string          `db:"id" json:"id"`
	UserId        string          `db:"user_id" json:"userId"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	SenderAddress string          `db:"sender_address" json:"senderAddress"`
	TxHash        *string         `db:"tx_hash" json:"txHash,omitempty"`
	Status        string          `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	ConfirmedAt   *time.Time      `db:"confirmed_at" json:"confirmedAt,omitempty"`
}

// Withdrawal is a payout request; the balance is debited when it is created
type Withdrawal struct {
	Id            string          `db:"id" json:"id"`
	UserId        string          `db:"user_id" json:"userId"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	WalletAddress string          `db:"wallet_address" json:"walletAddress"`
	TxHash        *string         `db:"tx_hash" json:"txHash,omitempty"`
	Status        string          `db:"status" json:"status"`
	Error         *string         `db:"error" json:"error,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
	CompletedAt   *time.Time      `db:"completed_at" json:"completedAt,omitempty"`
}

// Position is a strategy position holding part of a user's balance
type Position struct {
	Id           string           `db:"id" json:"id"`
	UserId       string           `db:"user_id" json:"userId"`
	MarketName   string           `db:"market_name" json:"marketName"`
	Side         string           `db:"side" json:"side"`
	EntryPrice   decimal.Decimal  `db:"entry_price" json:"entryPrice"`
	CurrentPrice decimal.Decimal  `db:"current_price" json:"currentPrice"`
	ExitPrice    *decimal.Decimal `db:"exit_price" json:"exitPrice,omitempty"`
	Amount       decimal.Decimal  `db:"amount" json:"amount"`
	ProfitLoss   decimal.Decimal  `db:"profit_loss" json:"profitLoss"`
	Status       string           `db:"status" json:"status"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
	ClosedAt     *time.Time       `db:"closed_at" json:"closedAt,omitempty"`
}

// LedgerEntry is the immutable audit trail of available balance changes
type LedgerEntry struct {
	Id            string          `db:"id" json:"id"`
	UserId        string          `db:"user_id" json:"userId"`
	EntryType     string          `db:"entry_type" json:"entryType"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before" json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `db:"balance_after" json:"balanceAfter"`
	Reference     string          `db:"reference" json:"reference"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
}
