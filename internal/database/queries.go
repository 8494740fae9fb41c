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

const (
	profileColumns    = `id, email, display_name, balance, locked_balance, version, created_at, updated_at`
	depositColumns    = `id, user_id, amount, sender_address, tx_hash, status, created_at, confirmed_at`
	withdrawalColumns = `id, user_id, amount, wallet_address, tx_hash, status, error, created_at, updated_at, completed_at`
	positionColumns   = `id, user_id, market_name, side, entry_price, current_price, exit_price, amount, profit_loss, status, created_at, closed_at`
	entryColumns      = `id, user_id, entry_type, amount, balance_before, balance_after, reference, created_at`
)

const (
	// Profile queries
	queryInsertProfile = `
		INSERT INTO profiles (id, email, display_name, balance, locked_balance, version, created_at, updated_at)
		VALUES (?, ?, ?, 0, 0, 1, ?, ?)`

	queryGetProfile = `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE id = ?`

	queryGetProfileByEmail = `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE email = ?`

	queryListProfiles = `
		SELECT ` + profileColumns + `
		FROM profiles
		ORDER BY created_at, id`

	// Version-guarded so two writers cannot both apply a change computed from the same snapshot
	queryUpdateProfileBalances = `
		UPDATE profiles
		SET balance = ?, locked_balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	// Deposit queries
	queryInsertDeposit = `
		INSERT INTO deposits (id, user_id, amount, sender_address, status, created_at)
		VALUES (?, ?, ?, ?, 'pending', ?)`

	queryGetDeposit = `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE id = ?`

	// Amounts are compared in Go so TEXT and NUMERIC columns behave alike.
	queryListPendingDepositCandidates = `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE status = 'pending'
		  AND tx_hash IS NULL
		  AND LOWER(sender_address) = ?
		ORDER BY created_at ASC, id ASC`

	queryFindDepositByTxHash = `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE tx_hash = ?`

	querySetDepositTxHash = `
		UPDATE deposits
		SET tx_hash = ?
		WHERE id = ? AND (tx_hash IS NULL OR tx_hash = ?)`

	queryConfirmDeposit = `
		UPDATE deposits
		SET status = 'confirmed', confirmed_at = ?
		WHERE id = ? AND status = 'pending'`

	queryExpireDeposit = `
		UPDATE deposits
		SET status = 'failed'
		WHERE id = ? AND status = 'pending'`

	queryListUserDeposits = `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	queryListDepositsByStatus = `
		SELECT ` + depositColumns + `
		FROM deposits
		WHERE status = ? AND created_at <= ?
		ORDER BY created_at ASC, id ASC`

	// Withdrawal queries
	queryInsertWithdrawal = `
		INSERT INTO withdrawals (id, user_id, amount, wallet_address, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?)`

	queryGetWithdrawal = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE id = ?`

	queryListPendingWithdrawals = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT ?`

	queryListAllPendingWithdrawals = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC`

	queryCountPendingWithdrawals = `
		SELECT COUNT(*) FROM withdrawals WHERE status = 'pending'`

	queryListWithdrawalsByStatus = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE status = ?
		ORDER BY created_at ASC, id ASC`

	queryListUserWithdrawals = `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	queryTransitionWithdrawal = `
		UPDATE withdrawals
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`

	queryCompleteWithdrawal = `
		UPDATE withdrawals
		SET status = 'completed', tx_hash = ?, error = NULL, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`

	queryRevertWithdrawal = `
		UPDATE withdrawals
		SET status = 'pending', tx_hash = NULL, error = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`

	queryMarkWithdrawalUnresolved = `
		UPDATE withdrawals
		SET tx_hash = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`

	queryFailWithdrawal = `
		UPDATE withdrawals
		SET status = 'failed', error = ?, updated_at = ?
		WHERE id = ? AND status IN ('pending', 'processing')`

	// Position queries
	queryInsertPosition = `
		INSERT INTO positions (id, user_id, market_name, side, entry_price, current_price, amount, profit_loss, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 'active', ?)`

	queryGetPosition = `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE id = ?`

	queryUpdatePositionPrice = `
		UPDATE positions
		SET current_price = ?
		WHERE id = ? AND status = 'active'`

	queryClosePosition = `
		UPDATE positions
		SET status = 'closed', exit_price = ?, current_price = ?, profit_loss = ?, closed_at = ?
		WHERE id = ? AND status = 'active'`

	queryListPositions = `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`

	queryListPositionsByStatus = `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE user_id = ? AND status = ?
		ORDER BY created_at DESC, id DESC`

	queryActivePositionAmounts = `
		SELECT amount
		FROM positions
		WHERE user_id = ? AND status = 'active'`

	// Ledger entry queries
	queryInsertLedgerEntry = `
		INSERT INTO ledger_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetLedgerEntries = `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`

	queryLedgerEntryAmounts = `
		SELECT amount
		FROM ledger_entries
		WHERE user_id = ?`
)
