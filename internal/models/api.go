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
	"github.com/shopspring/decimal"
)

// Outcomes reported per withdrawal by a processor run
const (
	WithdrawalResultCompleted = "completed"
	WithdrawalResultSkipped   = "skipped"
	WithdrawalResultFailed    = "failed"
	WithdrawalResultError     = "error"
)

// WithdrawalResult is one row of a processor run report
type WithdrawalResult struct {
	Id     string          `json:"id"`
	Status string          `json:"status"`
	Amount decimal.Decimal `json:"amount"`
	TxHash string          `json:"txHash,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ProcessReport is the outcome of one withdrawal processor run
type ProcessReport struct {
	Ok        bool               `json:"ok"`
	Processed int                `json:"processed"`
	Total     int                `json:"total"`
	Message   string             `json:"message,omitempty"`
	Results   []WithdrawalResult `json:"results,omitempty"`
}

// Count returns the number of results with the given status
func (r *ProcessReport) Count(status string) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// ReconcileResult summarises one deposit notification
type ReconcileResult struct {
	Confirmed  int    `json:"confirmed"`
	Unmatched  int    `json:"unmatched"`
	Duplicates int    `json:"duplicates"`
	Ignored    int    `json:"ignored"`
	Errors     int    `json:"errors"`
	Message    string `json:"message,omitempty"`
}

// DepositResult represents the result of registering a deposit intent
type DepositResult struct {
	Success bool     `json:"success"`
	Deposit *Deposit `json:"deposit,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// WithdrawalRequestResult represents the result of requesting a withdrawal
type WithdrawalRequestResult struct {
	Success    bool            `json:"success"`
	Withdrawal *Withdrawal     `json:"withdrawal,omitempty"`
	NewBalance decimal.Decimal `json:"newBalance"`
	Error      string          `json:"error,omitempty"`
}

// BalanceSummary is a profile's balances as shown to the user
type BalanceSummary struct {
	UserId        string          `json:"userId"`
	Balance       decimal.Decimal `json:"balance"`
	LockedBalance decimal.Decimal `json:"lockedBalance"`
	Total         decimal.Decimal `json:"total"`
}
