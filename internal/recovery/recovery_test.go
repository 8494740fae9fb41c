package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"usdc-vault-custody/internal/chain"
	"usdc-vault-custody/internal/database"
	"usdc-vault-custody/internal/events"
	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	"github.com/shopspring/decimal"
)

const (
	testHash   = "0xabc0000000000000000000000000000000000000000000000000000000000001"
	testWallet = "0x1111111111111111111111111111111111111111"
)

type recordingSink struct {
	events []events.Event
}

func (s *recordingSink) Publish(ctx context.Context, event events.Event) error {
	s.events = append(s.events, event)
	return nil
}

func setupStore(t *testing.T) *database.Service {
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
		Amount:        decimal.NewFromInt(100),
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

// stuckWithdrawal leaves a 40 withdrawal in processing with hash recorded,
// the state a run leaves behind when confirmation never arrived.
func stuckWithdrawal(t *testing.T, svc *database.Service, hash string) *models.Withdrawal {
	t.Helper()
	ctx := context.Background()
	w, err := svc.RequestWithdrawal(ctx, store.RequestWithdrawalParams{
		UserId:        "user1",
		Amount:        decimal.NewFromInt(40),
		WalletAddress: testWallet,
	})
	if err != nil {
		t.Fatalf("RequestWithdrawal failed: %v", err)
	}
	ok, err := svc.TransitionWithdrawalStatus(ctx, w.Id, models.WithdrawalStatusPending, models.WithdrawalStatusProcessing)
	if err != nil || !ok {
		t.Fatalf("TransitionWithdrawalStatus = %v, %v", ok, err)
	}
	if hash != "" {
		if err := svc.MarkWithdrawalUnresolved(ctx, w.Id, hash, "confirmation timed out"); err != nil {
			t.Fatalf("MarkWithdrawalUnresolved failed: %v", err)
		}
	}
	return w
}

func balance(t *testing.T, svc *database.Service) decimal.Decimal {
	t.Helper()
	p, err := svc.GetProfile(context.Background(), "user1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	return p.Balance
}

func TestStuckWithdrawals(t *testing.T) {
	svc := setupStore(t)
	w := stuckWithdrawal(t, svc, testHash)

	r := New(svc, nil, nil)
	stuck, err := r.StuckWithdrawals(context.Background())
	if err != nil {
		t.Fatalf("StuckWithdrawals failed: %v", err)
	}
	if len(stuck) != 1 || stuck[0].Id != w.Id {
		t.Fatalf("stuck = %+v, want only %s", stuck, w.Id)
	}
}

func TestComplete(t *testing.T) {
	svc := setupStore(t)
	w := stuckWithdrawal(t, svc, testHash)
	ctx := context.Background()

	client := chain.NewMock(decimal.NewFromInt(1000))
	sink := &recordingSink{}
	r := New(svc, client, sink)

	if _, err := r.Complete(ctx, w.Id); err == nil {
		t.Fatal("expected error without a receipt")
	}

	client.Receipts[testHash] = &chain.Receipt{TxHash: testHash, BlockNumber: 7, Success: true}
	if _, err := r.Complete(ctx, w.Id); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got, err := svc.GetWithdrawal(ctx, w.Id)
	if err != nil {
		t.Fatalf("GetWithdrawal failed: %v", err)
	}
	if got.Status != models.WithdrawalStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if len(sink.events) != 1 || sink.events[0].Type != events.TypeWithdrawalCompleted {
		t.Errorf("events = %+v, want one completion", sink.events)
	}
	if !balance(t, svc).Equal(decimal.NewFromInt(60)) {
		t.Errorf("balance = %s, want 60", balance(t, svc))
	}

	if _, err := r.Complete(ctx, w.Id); !errors.Is(err, ErrNotProcessing) {
		t.Errorf("second Complete err = %v, want ErrNotProcessing", err)
	}
}

func TestComplete_Rejects(t *testing.T) {
	ctx := context.Background()

	t.Run("failed receipt", func(t *testing.T) {
		svc := setupStore(t)
		w := stuckWithdrawal(t, svc, testHash)
		client := chain.NewMock(decimal.Zero)
		client.Receipts[testHash] = &chain.Receipt{TxHash: testHash, Success: false}

		_, err := New(svc, client, nil).Complete(ctx, w.Id)
		if !errors.Is(err, ErrTransferFailed) {
			t.Errorf("err = %v, want ErrTransferFailed", err)
		}
	})

	t.Run("no hash", func(t *testing.T) {
		svc := setupStore(t)
		w := stuckWithdrawal(t, svc, "")

		_, err := New(svc, chain.NewMock(decimal.Zero), nil).Complete(ctx, w.Id)
		if !errors.Is(err, ErrNoTxHash) {
			t.Errorf("err = %v, want ErrNoTxHash", err)
		}
	})
}

func TestRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("requires verification", func(t *testing.T) {
		svc := setupStore(t)
		w := stuckWithdrawal(t, svc, "")
		if err := New(svc, nil, nil).Release(ctx, w.Id, false); !errors.Is(err, ErrNotVerified) {
			t.Errorf("err = %v, want ErrNotVerified", err)
		}
	})

	t.Run("blocked by receipt", func(t *testing.T) {
		svc := setupStore(t)
		w := stuckWithdrawal(t, svc, testHash)
		client := chain.NewMock(decimal.Zero)
		client.Receipts[testHash] = &chain.Receipt{TxHash: testHash, Success: true}
		if err := New(svc, client, nil).Release(ctx, w.Id, true); !errors.Is(err, ErrReceiptAvailable) {
			t.Errorf("err = %v, want ErrReceiptAvailable", err)
		}
	})

	t.Run("back to pending", func(t *testing.T) {
		svc := setupStore(t)
		w := stuckWithdrawal(t, svc, testHash)
		if err := New(svc, chain.NewMock(decimal.Zero), nil).Release(ctx, w.Id, true); err != nil {
			t.Fatalf("Release failed: %v", err)
		}
		got, err := svc.GetWithdrawal(ctx, w.Id)
		if err != nil {
			t.Fatalf("GetWithdrawal failed: %v", err)
		}
		if got.Status != models.WithdrawalStatusPending {
			t.Errorf("status = %s, want pending", got.Status)
		}
		if !balance(t, svc).Equal(decimal.NewFromInt(60)) {
			t.Errorf("balance = %s, want 60 (still reserved)", balance(t, svc))
		}
	})
}

func TestRefund(t *testing.T) {
	svc := setupStore(t)
	w := stuckWithdrawal(t, svc, "")
	ctx := context.Background()

	if err := New(svc, nil, nil).Refund(ctx, w.Id, ""); err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	got, err := svc.GetWithdrawal(ctx, w.Id)
	if err != nil {
		t.Fatalf("GetWithdrawal failed: %v", err)
	}
	if got.Status != models.WithdrawalStatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if !balance(t, svc).Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want 100", balance(t, svc))
	}
}

func TestStaleDeposits(t *testing.T) {
	svc := setupStore(t)
	ctx := context.Background()

	claim, err := svc.CreateDeposit(ctx, store.CreateDepositParams{
		UserId:        "user1",
		Amount:        decimal.NewFromInt(5),
		SenderAddress: "0x3333333333333333333333333333333333333333",
	})
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}

	r := New(svc, nil, nil)
	fresh, err := r.StaleDeposits(ctx, time.Hour)
	if err != nil {
		t.Fatalf("StaleDeposits failed: %v", err)
	}
	if len(fresh) != 0 {
		t.Fatalf("expected no stale claims older than an hour, got %d", len(fresh))
	}

	stale, err := r.StaleDeposits(ctx, -time.Minute)
	if err != nil {
		t.Fatalf("StaleDeposits failed: %v", err)
	}
	if len(stale) != 1 || stale[0].Id != claim.Id {
		t.Fatalf("stale = %+v, want only %s", stale, claim.Id)
	}

	n, err := r.ExpireDeposits(ctx, stale)
	if err != nil || n != 1 {
		t.Fatalf("ExpireDeposits = %d, %v", n, err)
	}
	got, err := svc.GetDeposit(ctx, claim.Id)
	if err != nil {
		t.Fatalf("GetDeposit failed: %v", err)
	}
	if got.Status != models.DepositStatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}
