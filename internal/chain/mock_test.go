package chain_test

import (
	"context"
	"errors"
	"testing"

	"usdc-vault-custody/internal/chain"

	"github.com/shopspring/decimal"
)

func TestMockClient_TransfersDebitBalance(t *testing.T) {
	m := chain.NewMock(decimal.NewFromInt(100))
	ctx := context.Background()

	result, err := m.Transfer(ctx, "0xabc", decimal.NewFromInt(40))
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	balance, _ := m.BalanceOf(ctx, m.HotWalletAddress())
	if !balance.Equal(decimal.NewFromInt(60)) {
		t.Errorf("Expected 60 left, got %s", balance)
	}

	receipt, err := m.Receipt(ctx, result.TxHash)
	if err != nil || !receipt.Success {
		t.Errorf("Expected successful receipt, got %+v err=%v", receipt, err)
	}

	if _, err := m.Transfer(ctx, "0xabc", decimal.NewFromInt(61)); err == nil {
		t.Error("Expected overdraw to fail")
	}
	if m.TransferCount() != 1 {
		t.Errorf("Expected one transfer, got %d", m.TransferCount())
	}
}

func TestMockClient_ProgrammedErrors(t *testing.T) {
	m := chain.NewMock(decimal.NewFromInt(100))
	m.BalanceErr = errors.New("rpc down")
	m.TransferErrs["0xbad"] = &chain.ChainError{Op: "transfer", TxHash: "0x1", Submitted: true, Err: chain.ErrConfirmationTimeout}

	if _, err := m.BalanceOf(context.Background(), "0x1"); err == nil {
		t.Error("Expected balance error")
	}
	_, err := m.Transfer(context.Background(), "0xbad", decimal.NewFromInt(1))
	if hash, ok := chain.WasSubmitted(err); !ok || hash != "0x1" {
		t.Errorf("Expected submitted error with hash, got %v", err)
	}
}
