package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrTransferReverted    = errors.New("transfer reverted on chain")
	ErrConfirmationTimeout = errors.New("timed out waiting for confirmation")
	ErrReceiptNotFound     = errors.New("receipt not found")
)

// ChainClient is the subset of token and hot wallet operations the custody
// core needs. Tests inject MockClient.
type ChainClient interface {
	Transfer(ctx context.Context, to string, amount decimal.Decimal) (*TransferResult, error)
	BalanceOf(ctx context.Context, address string) (decimal.Decimal, error)
	HotWalletAddress() string
	Receipt(ctx context.Context, txHash string) (*Receipt, error)
}

type TransferResult struct {
	TxHash  string
	GasUsed uint64
}

type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Success     bool
}

// ChainError wraps a failed chain operation. Submitted is true once the
// transaction was accepted by the node, which means funds may move even
// though the call returned an error.
type ChainError struct {
	Op        string
	TxHash    string
	Submitted bool
	Err       error
}

func (e *ChainError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("chain %s failed (tx %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("chain %s failed: %v", e.Op, e.Err)
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

// WasSubmitted reports whether err is a ChainError for a transaction that
// reached the network.
func WasSubmitted(err error) (string, bool) {
	var ce *ChainError
	if errors.As(err, &ce) && ce.Submitted {
		return ce.TxHash, true
	}
	return "", false
}
