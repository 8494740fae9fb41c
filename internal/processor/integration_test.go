package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"usdc-vault-custody/internal/chain"
	"usdc-vault-custody/internal/database"
	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	"github.com/shopspring/decimal"
)

func setupFundedStore(t *testing.T, balance string) *database.Service {
	t.Helper()
	ctx := context.Background()
	svc, err := database.NewService(ctx, models.DatabaseConfig{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(svc.Close)

	if _, err := svc.CreateProfile(ctx, "user1", "user1@example.com", ""); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}
	deposit, err := svc.CreateDeposit(ctx, store.CreateDepositParams{
		UserId:        "user1",
		Amount:        decimal.RequireFromString(balance),
		SenderAddress: "0x2222222222222222222222222222222222222222",
	})
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}
	if ok, err := svc.ConfirmDeposit(ctx, deposit.Id); err != nil || !ok {
		t.Fatalf("ConfirmDeposit failed: ok=%v err=%v", ok, err)
	}
	return svc
}

func TestProcessor_NoDoubleSendAcrossRuns(t *testing.T) {
	svc := setupFundedStore(t, "100")
	ctx := context.Background()

	var ids []string
	for _, amount := range []string{"10", "20", "30"} {
		w, err := svc.RequestWithdrawal(ctx, store.RequestWithdrawalParams{
			UserId:        "user1",
			Amount:        decimal.RequireFromString(amount),
			WalletAddress: "0x1111111111111111111111111111111111111111",
		})
		if err != nil {
			t.Fatalf("RequestWithdrawal failed: %v", err)
		}
		ids = append(ids, w.Id)
	}

	// Two processors stand in for two server instances sharing one wallet.
	client := chain.NewMock(decimal.NewFromInt(1000))
	first := NewProcessor(Config{Queue: svc, Chain: client})
	second := NewProcessor(Config{Queue: svc, Chain: client})

	var wg sync.WaitGroup
	for _, p := range []*Processor{first, second} {
		wg.Add(1)
		go func(p *Processor) {
			defer wg.Done()
			if _, err := p.Run(ctx); err != nil {
				t.Errorf("Run failed: %v", err)
			}
		}(p)
	}
	wg.Wait()

	if client.TransferCount() != len(ids) {
		t.Errorf("Expected %d transfers, got %d", len(ids), client.TransferCount())
	}
	for _, id := range ids {
		w, err := svc.GetWithdrawal(ctx, id)
		if err != nil {
			t.Fatalf("GetWithdrawal failed: %v", err)
		}
		if w.Status != models.WithdrawalStatusCompleted || w.TxHash == nil {
			t.Errorf("Expected %s completed with hash, got %+v", id, w)
		}
	}

	// A later run finds nothing to do.
	report, err := first.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Total != 0 || client.TransferCount() != len(ids) {
		t.Errorf("Expected an idle run, got %+v", report)
	}
}

func TestProcessor_FailedTransferIsRetriedNextRun(t *testing.T) {
	svc := setupFundedStore(t, "50")
	ctx := context.Background()
	destination := "0x3333333333333333333333333333333333333333"

	w, err := svc.RequestWithdrawal(ctx, store.RequestWithdrawalParams{UserId: "user1", Amount: decimal.NewFromInt(50), WalletAddress: destination})
	if err != nil {
		t.Fatalf("RequestWithdrawal failed: %v", err)
	}

	client := chain.NewMock(decimal.NewFromInt(100))
	client.TransferErrs[destination] = &chain.ChainError{Op: "transfer", Err: context.DeadlineExceeded}
	p := NewProcessor(Config{Queue: svc, Chain: client})

	report, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Results[0].Status != models.WithdrawalResultFailed {
		t.Fatalf("Expected failed, got %+v", report.Results[0])
	}
	stored, _ := svc.GetWithdrawal(ctx, w.Id)
	if stored.Status != models.WithdrawalStatusPending {
		t.Fatalf("Expected pending after failure, got %s", stored.Status)
	}

	delete(client.TransferErrs, destination)
	report, err = p.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Processed != 1 {
		t.Errorf("Expected retry to complete, got %+v", report)
	}
}
