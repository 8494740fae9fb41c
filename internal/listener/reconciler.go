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

package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"usdc-vault-custody/internal/events"
	"usdc-vault-custody/internal/metrics"
	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrUnauthorized   = errors.New("invalid signature")
	ErrInvalidPayload = errors.New("invalid JSON")
	ErrMissingConfig  = errors.New("server config error")
)

// Per-activity outcomes, also used as metric labels.
const (
	outcomeConfirmed = "confirmed"
	outcomeUnmatched = "unmatched"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
	outcomeError     = "error"
)

const (
	defaultSeenTTL         = 24 * time.Hour
	defaultCleanupInterval = 10 * time.Minute

	maxBindAttempts = 3
)

// ReconcilerConfig contains configuration for Reconciler
type ReconcilerConfig struct {
	Store           store.DepositStore
	Sink            events.Sink
	Metrics         *metrics.Metrics
	SigningKey      string
	PlatformAddress string
	Token           models.TokenConfig
	Tolerance       decimal.Decimal
	SeenTTL         time.Duration
	CleanupInterval time.Duration
}

// Reconciler matches signed on-chain transfer notifications against pending
// deposit claims and credits each matched claim at most once.
type Reconciler struct {
	store     store.DepositStore
	sink      events.Sink
	metrics   *metrics.Metrics
	signer    *signatureVerifier
	platform  string
	token     models.TokenConfig
	tolerance decimal.Decimal

	// State management for processed transaction hashes
	processedTxIds  map[string]time.Time
	mutex           sync.RWMutex
	seenTTL         time.Duration
	cleanupInterval time.Duration

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
	started  bool
}

// NewReconciler creates a new deposit reconciler
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	sink := cfg.Sink
	if sink == nil {
		sink = events.Noop{}
	}
	seenTTL := cfg.SeenTTL
	if seenTTL <= 0 {
		seenTTL = defaultSeenTTL
	}
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}

	return &Reconciler{
		store:           cfg.Store,
		sink:            sink,
		metrics:         cfg.Metrics,
		signer:          &signatureVerifier{key: []byte(cfg.SigningKey)},
		platform:        strings.ToLower(strings.TrimSpace(cfg.PlatformAddress)),
		token:           cfg.Token,
		tolerance:       cfg.Tolerance,
		processedTxIds:  make(map[string]time.Time),
		seenTTL:         seenTTL,
		cleanupInterval: cleanupInterval,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start runs the processed-hash cleanup loop until Stop or ctx is done.
func (r *Reconciler) Start(ctx context.Context) {
	r.started = true
	go r.cleanupLoop(ctx)
	zap.L().Info("Deposit reconciler started",
		zap.String("platform_address", r.platform),
		zap.String("token", r.token.Address),
		zap.Duration("seen_ttl", r.seenTTL))
}

// Stop gracefully stops the cleanup loop
func (r *Reconciler) Stop() {
	if !r.started {
		return
	}
	close(r.stopChan)
	<-r.doneChan
	zap.L().Info("Deposit reconciler stopped")
}

// HandleNotification verifies and processes one webhook delivery. The error
// return is reserved for request-level failures; per-activity problems are
// counted in the result and never abort the batch.
func (r *Reconciler) HandleNotification(ctx context.Context, body []byte, signature string) (*models.ReconcileResult, error) {
	if err := r.signer.verify(body, signature); err != nil {
		r.metrics.WebhookRequest("unauthorized")
		zap.L().Warn("Webhook signature verification failed", zap.Error(err))
		return nil, err
	}

	var payload models.AlchemyWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		r.metrics.WebhookRequest("invalid")
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if r.platform == "" {
		r.metrics.WebhookRequest("misconfigured")
		zap.L().Error("Platform wallet address not configured")
		return nil, ErrMissingConfig
	}

	var activities []json.RawMessage
	if len(payload.Event.Activity) == 0 || json.Unmarshal(payload.Event.Activity, &activities) != nil {
		r.metrics.WebhookRequest("ok")
		return &models.ReconcileResult{Message: "No activities"}, nil
	}

	result := &models.ReconcileResult{}
	for _, raw := range activities {
		var activity models.Activity
		outcome := outcomeIgnored
		if err := json.Unmarshal(raw, &activity); err != nil {
			zap.L().Debug("Skipping malformed activity", zap.Error(err))
		} else {
			outcome = r.reconcileActivity(ctx, activity)
		}

		r.metrics.DepositActivity(outcome)
		switch outcome {
		case outcomeConfirmed:
			result.Confirmed++
		case outcomeUnmatched:
			result.Unmatched++
		case outcomeDuplicate:
			result.Duplicates++
		case outcomeError:
			result.Errors++
		default:
			result.Ignored++
		}
	}

	r.metrics.WebhookRequest("ok")
	zap.L().Info("Webhook processed",
		zap.String("webhook_id", payload.WebhookId),
		zap.Int("activities", len(activities)),
		zap.Int("confirmed", result.Confirmed),
		zap.Int("unmatched", result.Unmatched),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("errors", result.Errors))
	return result, nil
}

// reconcileActivity runs one transfer through filtering, replay checks,
// matching and crediting, and returns its outcome.
func (r *Reconciler) reconcileActivity(ctx context.Context, activity models.Activity) string {
	transfer, ok := r.parseTransfer(activity)
	if !ok {
		return outcomeIgnored
	}

	if r.isTransactionProcessed(transfer.hash) {
		return outcomeDuplicate
	}

	existing, err := r.store.FindDepositByTxHash(ctx, transfer.hash)
	switch {
	case err == nil:
		return r.handleKnownHash(ctx, existing, transfer)
	case !errors.Is(err, store.ErrDepositNotFound):
		zap.L().Error("Failed to look up deposit by tx hash",
			zap.String("tx_hash", transfer.hash),
			zap.Error(err))
		return outcomeError
	}

	deposit, outcome := r.bindMatch(ctx, transfer)
	if deposit == nil {
		return outcome
	}
	return r.confirm(ctx, deposit, transfer)
}

// bindMatch finds the oldest matching pending claim and binds the transfer's
// hash to it. A concurrent delivery of a different transfer may bind the same
// claim first; the match is then repeated, since bound claims no longer match.
func (r *Reconciler) bindMatch(ctx context.Context, transfer transfer) (*models.Deposit, string) {
	for attempt := 1; attempt <= maxBindAttempts; attempt++ {
		deposit, err := r.store.FindPendingDepositMatch(ctx, transfer.from, transfer.amount, r.tolerance)
		if err != nil {
			if errors.Is(err, store.ErrDepositNotFound) {
				zap.L().Warn("No matching pending deposit",
					zap.String("tx_hash", transfer.hash),
					zap.String("from", transfer.from),
					zap.String("amount", transfer.amount.String()))
				return nil, outcomeUnmatched
			}
			zap.L().Error("Failed to find pending deposit",
				zap.String("tx_hash", transfer.hash),
				zap.Error(err))
			return nil, outcomeError
		}

		err = r.store.SetDepositTxHash(ctx, deposit.Id, transfer.hash)
		switch {
		case err == nil:
			return deposit, ""
		case errors.Is(err, store.ErrDuplicateTransaction):
			// Another delivery bound this hash first.
			return nil, outcomeDuplicate
		case errors.Is(err, store.ErrTxHashConflict):
			zap.L().Info("Matched deposit was bound by another transfer, matching again",
				zap.String("deposit_id", deposit.Id),
				zap.String("tx_hash", transfer.hash),
				zap.Int("attempt", attempt))
			continue
		default:
			zap.L().Warn("Failed to bind tx hash to deposit",
				zap.String("deposit_id", deposit.Id),
				zap.String("tx_hash", transfer.hash),
				zap.Error(err))
			return nil, outcomeError
		}
	}

	zap.L().Error("Gave up binding transfer to a pending deposit",
		zap.String("tx_hash", transfer.hash),
		zap.Int("attempts", maxBindAttempts))
	return nil, outcomeError
}

// handleKnownHash covers redeliveries and calls that crashed between binding
// the hash and confirming.
func (r *Reconciler) handleKnownHash(ctx context.Context, deposit *models.Deposit, transfer transfer) string {
	switch deposit.Status {
	case models.DepositStatusConfirmed:
		r.markTransactionProcessed(transfer.hash)
		return outcomeDuplicate
	case models.DepositStatusPending:
		zap.L().Info("Resuming confirmation for deposit with bound tx hash",
			zap.String("deposit_id", deposit.Id),
			zap.String("tx_hash", transfer.hash))
		return r.confirm(ctx, deposit, transfer)
	default:
		zap.L().Warn("Transfer references a closed deposit",
			zap.String("deposit_id", deposit.Id),
			zap.String("status", deposit.Status),
			zap.String("tx_hash", transfer.hash))
		r.markTransactionProcessed(transfer.hash)
		return outcomeIgnored
	}
}

func (r *Reconciler) confirm(ctx context.Context, deposit *models.Deposit, transfer transfer) string {
	credited, err := r.store.ConfirmDeposit(ctx, deposit.Id)
	if err != nil {
		zap.L().Error("Failed to confirm deposit",
			zap.String("deposit_id", deposit.Id),
			zap.String("tx_hash", transfer.hash),
			zap.Error(err))
		return outcomeError
	}
	r.markTransactionProcessed(transfer.hash)
	if !credited {
		return outcomeDuplicate
	}

	zap.L().Info("Deposit confirmed",
		zap.String("deposit_id", deposit.Id),
		zap.String("user_id", deposit.UserId),
		zap.String("amount", deposit.Amount.String()),
		zap.String("observed_amount", transfer.amount.String()),
		zap.String("tx_hash", transfer.hash))

	_ = r.sink.Publish(ctx, events.Event{
		Type:        events.TypeDepositConfirmed,
		ReferenceId: deposit.Id,
		UserId:      deposit.UserId,
		Amount:      deposit.Amount,
		TxHash:      transfer.hash,
		Address:     transfer.from,
		OccurredAt:  time.Now().UTC(),
	})
	return outcomeConfirmed
}

// isTransactionProcessed checks if we've already settled this hash
func (r *Reconciler) isTransactionProcessed(txHash string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, exists := r.processedTxIds[txHash]
	return exists
}

// markTransactionProcessed marks a hash as settled
func (r *Reconciler) markTransactionProcessed(txHash string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.processedTxIds[txHash] = time.Now()
}

// cleanupLoop periodically cleans old processed hashes
func (r *Reconciler) cleanupLoop(ctx context.Context) {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanupProcessedTransactions(time.Now())
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanupProcessedTransactions removes entries older than the TTL
func (r *Reconciler) cleanupProcessedTransactions(now time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	cutoff := now.Add(-r.seenTTL)
	cleaned := 0

	for txHash, processedTime := range r.processedTxIds {
		if processedTime.Before(cutoff) {
			delete(r.processedTxIds, txHash)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up old processed transactions",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(r.processedTxIds)))
	}
}
