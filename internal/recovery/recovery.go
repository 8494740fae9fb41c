package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"usdc-vault-custody/internal/chain"
	"usdc-vault-custody/internal/events"
	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	"go.uber.org/zap"
)

var (
	ErrNotProcessing    = errors.New("withdrawal is not processing")
	ErrNoTxHash         = errors.New("withdrawal has no submitted transaction hash")
	ErrTransferFailed   = errors.New("transaction did not succeed on chain")
	ErrNotVerified      = errors.New("release requires confirming that no transfer was sent")
	ErrReceiptAvailable = errors.New("transaction has a receipt; complete or refund instead of releasing")
)

// Recovery resolves withdrawals left in processing and deposit claims that
// never matched. Every action is an explicit operator decision.
type Recovery struct {
	store store.LedgerStore
	chain chain.ChainClient
	sink  events.Sink
}

// New wires the store and chain. chainClient may be nil for store-only actions.
func New(ledger store.LedgerStore, chainClient chain.ChainClient, sink events.Sink) *Recovery {
	if sink == nil {
		sink = events.Noop{}
	}
	return &Recovery{store: ledger, chain: chainClient, sink: sink}
}

// StuckWithdrawals lists withdrawals still in processing.
func (r *Recovery) StuckWithdrawals(ctx context.Context) ([]models.Withdrawal, error) {
	return r.store.ListWithdrawalsByStatus(ctx, models.WithdrawalStatusProcessing)
}

// StaleDeposits lists pending deposit claims created before now-age.
func (r *Recovery) StaleDeposits(ctx context.Context, age time.Duration) ([]models.Deposit, error) {
	return r.store.ListDepositsByStatus(ctx, models.DepositStatusPending, time.Now().UTC().Add(-age))
}

// ExpireDeposits marks the given stale claims failed and returns how many were expired.
func (r *Recovery) ExpireDeposits(ctx context.Context, deposits []models.Deposit) (int, error) {
	expired := 0
	for _, d := range deposits {
		if err := r.store.ExpireDeposit(ctx, d.Id); err != nil {
			return expired, fmt.Errorf("expire deposit %s: %w", d.Id, err)
		}
		expired++
	}
	return expired, nil
}

// Complete marks a processing withdrawal completed once its recorded
// transaction has a successful receipt.
func (r *Recovery) Complete(ctx context.Context, id string) (*models.Withdrawal, error) {
	w, err := r.processing(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.TxHash == nil || *w.TxHash == "" {
		return nil, ErrNoTxHash
	}
	if r.chain == nil {
		return nil, fmt.Errorf("chain client required to verify %s", *w.TxHash)
	}

	receipt, err := r.chain.Receipt(ctx, *w.TxHash)
	if err != nil {
		return nil, fmt.Errorf("fetch receipt for %s: %w", *w.TxHash, err)
	}
	if !receipt.Success {
		return nil, fmt.Errorf("%w: %s", ErrTransferFailed, *w.TxHash)
	}

	if err := r.store.CompleteWithdrawal(ctx, w.Id, *w.TxHash); err != nil {
		return nil, err
	}

	if err := r.sink.Publish(ctx, events.Event{
		Type:        events.TypeWithdrawalCompleted,
		ReferenceId: w.Id,
		UserId:      w.UserId,
		Amount:      w.Amount,
		TxHash:      *w.TxHash,
		Address:     w.WalletAddress,
		OccurredAt:  time.Now().UTC(),
	}); err != nil {
		zap.L().Warn("Completion event not published", zap.String("withdrawal_id", w.Id), zap.Error(err))
	}

	zap.L().Info("Withdrawal completed by operator",
		zap.String("withdrawal_id", w.Id),
		zap.String("tx_hash", *w.TxHash),
		zap.Uint64("block", receipt.BlockNumber))
	return w, nil
}

// Release returns a processing withdrawal to pending so the next run pays it.
// The operator must have verified no transfer left the hot wallet; a recorded
// hash with a receipt blocks the release.
func (r *Recovery) Release(ctx context.Context, id string, verifiedNoTransfer bool) error {
	if !verifiedNoTransfer {
		return ErrNotVerified
	}
	w, err := r.processing(ctx, id)
	if err != nil {
		return err
	}
	if w.TxHash != nil && *w.TxHash != "" && r.chain != nil {
		_, err := r.chain.Receipt(ctx, *w.TxHash)
		switch {
		case err == nil:
			return ErrReceiptAvailable
		case !errors.Is(err, chain.ErrReceiptNotFound):
			return fmt.Errorf("fetch receipt for %s: %w", *w.TxHash, err)
		}
	}

	if err := r.store.RevertWithdrawal(ctx, w.Id, "Released by operator"); err != nil {
		return err
	}
	zap.L().Warn("Withdrawal released back to pending", zap.String("withdrawal_id", w.Id))
	return nil
}

// Refund fails the withdrawal and returns its amount to the user's balance.
func (r *Recovery) Refund(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = "Refunded by operator"
	}
	return r.store.FailWithdrawal(ctx, id, reason)
}

func (r *Recovery) processing(ctx context.Context, id string) (*models.Withdrawal, error) {
	w, err := r.store.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != models.WithdrawalStatusProcessing {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotProcessing, id, w.Status)
	}
	return w, nil
}
