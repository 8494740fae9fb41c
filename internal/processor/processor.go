package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"usdc-vault-custody/internal/chain"
	"usdc-vault-custody/internal/events"
	"usdc-vault-custody/internal/metrics"
	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrRunInProgress        = errors.New("withdrawal run already in progress")
	ErrHotWalletUnavailable = errors.New("cannot reach hot wallet")
)

const (
	bookkeepingTimeout = 15 * time.Second

	reasonInsufficientLiquidity = "Insufficient hot wallet balance"
	reasonAlreadyClaimed        = "Already claimed by another run"
	reasonRunCancelled          = "Run stopped before this withdrawal"
)

// Config contains configuration for Processor
type Config struct {
	Queue      store.WithdrawalQueue
	Chain      chain.ChainClient
	Sink       events.Sink
	Metrics    *metrics.Metrics
	BatchLimit int
}

// Processor pays out pending withdrawals from the hot wallet, oldest first.
type Processor struct {
	queue      store.WithdrawalQueue
	chain      chain.ChainClient
	sink       events.Sink
	metrics    *metrics.Metrics
	batchLimit int

	// held for the duration of a run; other processes are kept out by the
	// conditional pending->processing transition
	running sync.Mutex
}

func NewProcessor(cfg Config) *Processor {
	sink := cfg.Sink
	if sink == nil {
		sink = events.Noop{}
	}
	limit := cfg.BatchLimit
	if limit < 0 {
		limit = 0
	}
	return &Processor{
		queue:      cfg.Queue,
		chain:      cfg.Chain,
		sink:       sink,
		metrics:    cfg.Metrics,
		batchLimit: limit,
	}
}

// Run processes every pending withdrawal, or the oldest batchLimit of them
// when a limit is configured. Transfers are strictly
// sequential and the hot wallet balance is read once, then tracked locally.
func (p *Processor) Run(ctx context.Context) (*models.ProcessReport, error) {
	if !p.running.TryLock() {
		p.metrics.ProcessorRun("busy", 0)
		return nil, ErrRunInProgress
	}
	defer p.running.Unlock()

	start := time.Now()

	pending, err := p.queue.ListPendingWithdrawals(ctx, p.batchLimit)
	if err != nil {
		p.metrics.ProcessorRun("error", time.Since(start))
		return nil, fmt.Errorf("failed to list pending withdrawals: %w", err)
	}
	if len(pending) == 0 {
		p.metrics.ProcessorRun("empty", time.Since(start))
		return &models.ProcessReport{Ok: true, Message: "No pending withdrawals"}, nil
	}

	total := len(pending)
	if p.batchLimit > 0 && total == p.batchLimit {
		if total, err = p.queue.CountPendingWithdrawals(ctx); err != nil {
			p.metrics.ProcessorRun("error", time.Since(start))
			return nil, fmt.Errorf("failed to count pending withdrawals: %w", err)
		}
	}

	hotWallet := p.chain.HotWalletAddress()
	balance, err := p.chain.BalanceOf(ctx, hotWallet)
	if err != nil {
		p.metrics.ProcessorRun("wallet_unavailable", time.Since(start))
		zap.L().Error("Failed to read hot wallet balance",
			zap.String("hot_wallet", hotWallet),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrHotWalletUnavailable, err)
	}
	p.metrics.SetHotWalletBalance(balance)

	zap.L().Info("Processing withdrawals",
		zap.Int("pending", total),
		zap.Int("batch", len(pending)),
		zap.String("hot_wallet_balance", balance.String()))

	report := &models.ProcessReport{Ok: true, Total: total}
	remaining := balance
	for _, w := range pending {
		var result models.WithdrawalResult
		if ctx.Err() != nil {
			result = models.WithdrawalResult{Id: w.Id, Status: models.WithdrawalResultSkipped, Amount: w.Amount, Error: reasonRunCancelled}
		} else {
			result = p.processWithdrawal(ctx, w, &remaining)
		}
		p.metrics.WithdrawalOutcome(result.Status)
		report.Results = append(report.Results, result)
	}
	report.Processed = report.Count(models.WithdrawalResultCompleted)

	p.metrics.ProcessorRun("ok", time.Since(start))
	zap.L().Info("Withdrawal run finished",
		zap.Int("total", report.Total),
		zap.Int("completed", report.Processed),
		zap.Int("skipped", report.Count(models.WithdrawalResultSkipped)),
		zap.Int("failed", report.Count(models.WithdrawalResultFailed)),
		zap.Int("errors", report.Count(models.WithdrawalResultError)),
		zap.String("remaining_balance", remaining.String()),
		zap.Duration("took", time.Since(start)))
	return report, nil
}

func (p *Processor) processWithdrawal(ctx context.Context, w models.Withdrawal, remaining *decimal.Decimal) models.WithdrawalResult {
	result := models.WithdrawalResult{Id: w.Id, Amount: w.Amount}

	if remaining.LessThan(w.Amount) {
		zap.L().Warn("Skipping withdrawal, hot wallet short",
			zap.String("withdrawal_id", w.Id),
			zap.String("amount", w.Amount.String()),
			zap.String("remaining", remaining.String()))
		result.Status = models.WithdrawalResultSkipped
		result.Error = reasonInsufficientLiquidity
		return result
	}

	claimed, err := p.queue.TransitionWithdrawalStatus(ctx, w.Id, models.WithdrawalStatusPending, models.WithdrawalStatusProcessing)
	if err != nil {
		zap.L().Error("Failed to claim withdrawal", zap.String("withdrawal_id", w.Id), zap.Error(err))
		result.Status = models.WithdrawalResultError
		result.Error = err.Error()
		return result
	}
	if !claimed {
		result.Status = models.WithdrawalResultSkipped
		result.Error = reasonAlreadyClaimed
		return result
	}

	transfer, transferErr := p.chain.Transfer(ctx, w.WalletAddress, w.Amount)

	// Bookkeeping after a transfer attempt must not be lost to the run
	// deadline, or the row stays in processing.
	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	if transferErr != nil {
		return p.handleTransferFailure(bookCtx, w, transferErr, remaining)
	}

	result.TxHash = transfer.TxHash
	*remaining = remaining.Sub(w.Amount)

	if err := p.queue.CompleteWithdrawal(bookCtx, w.Id, transfer.TxHash); err != nil {
		zap.L().Error("Transfer sent but withdrawal not marked completed",
			zap.String("withdrawal_id", w.Id),
			zap.String("tx_hash", transfer.TxHash),
			zap.Error(err))
		result.Status = models.WithdrawalResultError
		result.Error = fmt.Sprintf("transfer sent but completion failed: %v", err)
		return result
	}

	zap.L().Info("Withdrawal completed",
		zap.String("withdrawal_id", w.Id),
		zap.String("user_id", w.UserId),
		zap.String("amount", w.Amount.String()),
		zap.String("tx_hash", transfer.TxHash),
		zap.Uint64("gas_used", transfer.GasUsed))

	_ = p.sink.Publish(bookCtx, events.Event{
		Type:        events.TypeWithdrawalCompleted,
		ReferenceId: w.Id,
		UserId:      w.UserId,
		Amount:      w.Amount,
		TxHash:      transfer.TxHash,
		Address:     w.WalletAddress,
		OccurredAt:  time.Now().UTC(),
	})

	result.Status = models.WithdrawalResultCompleted
	return result
}

// handleTransferFailure returns the row to pending when no funds can have
// moved, and parks it in processing with its hash when the outcome is unknown.
func (p *Processor) handleTransferFailure(ctx context.Context, w models.Withdrawal, transferErr error, remaining *decimal.Decimal) models.WithdrawalResult {
	result := models.WithdrawalResult{
		Id:     w.Id,
		Amount: w.Amount,
		Status: models.WithdrawalResultFailed,
		Error:  transferErr.Error(),
	}

	if hash, submitted := chain.WasSubmitted(transferErr); submitted && !errors.Is(transferErr, chain.ErrTransferReverted) {
		*remaining = remaining.Sub(w.Amount)
		result.TxHash = hash

		if err := p.queue.MarkWithdrawalUnresolved(ctx, w.Id, hash, transferErr.Error()); err != nil {
			zap.L().Error("Failed to record unresolved withdrawal",
				zap.String("withdrawal_id", w.Id),
				zap.String("tx_hash", hash),
				zap.Error(err))
			result.Status = models.WithdrawalResultError
			return result
		}

		zap.L().Warn("Withdrawal outcome unknown, left in processing",
			zap.String("withdrawal_id", w.Id),
			zap.String("tx_hash", hash),
			zap.Error(transferErr))

		_ = p.sink.Publish(ctx, events.Event{
			Type:        events.TypeWithdrawalUnresolved,
			ReferenceId: w.Id,
			UserId:      w.UserId,
			Amount:      w.Amount,
			TxHash:      hash,
			Address:     w.WalletAddress,
			Reason:      transferErr.Error(),
			OccurredAt:  time.Now().UTC(),
		})
		return result
	}

	if err := p.queue.RevertWithdrawal(ctx, w.Id, transferErr.Error()); err != nil {
		zap.L().Error("Failed to revert withdrawal after transfer failure",
			zap.String("withdrawal_id", w.Id),
			zap.Error(err))
		result.Status = models.WithdrawalResultError
		return result
	}

	zap.L().Warn("Withdrawal transfer failed, returned to pending",
		zap.String("withdrawal_id", w.Id),
		zap.Error(transferErr))
	return result
}
