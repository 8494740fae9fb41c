package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MockClient is a deterministic test double for ChainClient. Successful
// transfers debit Balance and are recorded in Transfers.
type MockClient struct {
	mu sync.Mutex

	Address    string
	Balance    decimal.Decimal
	BalanceErr error
	// TransferErrs maps a destination address to the error its transfer returns.
	TransferErrs map[string]error
	Receipts     map[string]*Receipt

	BalanceCalls int
	Transfers    []MockTransfer
}

type MockTransfer struct {
	To     string
	Amount decimal.Decimal
	TxHash string
}

func NewMock(balance decimal.Decimal) *MockClient {
	return &MockClient{
		Address:      "0x00000000000000000000000000000000000000aa",
		Balance:      balance,
		TransferErrs: make(map[string]error),
		Receipts:     make(map[string]*Receipt),
	}
}

func (m *MockClient) HotWalletAddress() string {
	return m.Address
}

func (m *MockClient) BalanceOf(ctx context.Context, address string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BalanceCalls++
	if m.BalanceErr != nil {
		return decimal.Zero, &ChainError{Op: "balanceOf", Err: m.BalanceErr}
	}
	return m.Balance, nil
}

func (m *MockClient) Transfer(ctx context.Context, to string, amount decimal.Decimal) (*TransferResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, &ChainError{Op: "transfer", Err: err}
	}
	if err, ok := m.TransferErrs[to]; ok {
		return nil, err
	}
	if amount.GreaterThan(m.Balance) {
		return nil, &ChainError{Op: "transfer", Err: fmt.Errorf("transfer amount exceeds balance")}
	}

	m.Balance = m.Balance.Sub(amount)
	txHash := fmt.Sprintf("0x%064x", len(m.Transfers)+1)
	m.Transfers = append(m.Transfers, MockTransfer{To: to, Amount: amount, TxHash: txHash})
	m.Receipts[txHash] = &Receipt{TxHash: txHash, BlockNumber: uint64(len(m.Transfers)), Success: true}
	return &TransferResult{TxHash: txHash, GasUsed: 21000}, nil
}

func (m *MockClient) Receipt(ctx context.Context, txHash string) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	receipt, ok := m.Receipts[txHash]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	return receipt, nil
}

// TransferCount returns how many transfers went through.
func (m *MockClient) TransferCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Transfers)
}
