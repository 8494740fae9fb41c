package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/store"

	"github.com/shopspring/decimal"
)

const testSender = "0xAbCdEf0123456789abcdef0123456789ABCDEF01"

var tolerance = decimal.RequireFromString("0.01")

func createTestDeposit(t *testing.T, service *Service, userId, amount, sender string) *models.Deposit {
	t.Helper()
	deposit, err := service.CreateDeposit(context.Background(), store.CreateDepositParams{
		UserId:        userId,
		Amount:        decimal.RequireFromString(amount),
		SenderAddress: sender,
	})
	if err != nil {
		t.Fatalf("CreateDeposit failed: %v", err)
	}
	return deposit
}

func TestCreateDeposit_Validation(t *testing.T) {
	service := setupTestDB(t)
	createTestProfile(t, service, "user1")
	ctx := context.Background()

	tests := []struct {
		name   string
		params store.CreateDepositParams
	}{
		{"short sender", store.CreateDepositParams{UserId: "user1", Amount: decimal.NewFromInt(10), SenderAddress: "0x1234"}},
		{"zero amount", store.CreateDepositParams{UserId: "user1", Amount: decimal.Zero, SenderAddress: testSender}},
		{"negative amount", store.CreateDepositParams{UserId: "user1", Amount: decimal.NewFromInt(-1), SenderAddress: testSender}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.CreateDeposit(ctx, tt.params); !store.IsValidation(err) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}

	_, err := service.CreateDeposit(ctx, store.CreateDepositParams{UserId: "ghost", Amount: decimal.NewFromInt(1), SenderAddress: testSender})
	if !errors.Is(err, store.ErrProfileNotFound) {
		t.Errorf("Expected ErrProfileNotFound, got %v", err)
	}
}

func TestCreateDeposit_LowercasesSender(t *testing.T) {
	service := setupTestDB(t)
	createTestProfile(t, service, "user1")

	deposit := createTestDeposit(t, service, "user1", "25.5", testSender)
	if deposit.SenderAddress != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("Expected lowercased sender, got %s", deposit.SenderAddress)
	}
	if deposit.Status != models.DepositStatusPending {
		t.Errorf("Expected pending, got %s", deposit.Status)
	}

	stored, err := service.GetDeposit(context.Background(), deposit.Id)
	if err != nil {
		t.Fatalf("GetDeposit failed: %v", err)
	}
	if stored.TxHash != nil || stored.ConfirmedAt != nil {
		t.Error("Expected no tx hash and no confirmation time on a new deposit")
	}
	if !stored.Amount.Equal(decimal.RequireFromString("25.5")) {
		t.Errorf("Expected amount 25.5, got %s", stored.Amount)
	}
}

func TestFindPendingDepositMatch_Tolerance(t *testing.T) {
	service := setupTestDB(t)
	createTestProfile(t, service, "user1")
	deposit := createTestDeposit(t, service, "user1", "100.00", testSender)
	ctx := context.Background()

	tests := []struct {
		name     string
		sender   string
		observed string
		matches  bool
	}{
		{"exact", testSender, "100.00", true},
		{"upper edge", testSender, "100.01", true},
		{"lower edge", testSender, "99.99", true},
		{"case-insensitive sender", "0xABCDEF0123456789ABCDEF0123456789ABCDEF01", "100", true},
		{"above band", testSender, "100.011", false},
		{"below band", testSender, "99.98", false},
		{"different sender", "0x9999999999999999999999999999999999999999", "100.00", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := service.FindPendingDepositMatch(ctx, tt.sender, decimal.RequireFromString(tt.observed), tolerance)
			if tt.matches {
				if err != nil {
					t.Fatalf("Expected match, got %v", err)
				}
				if match.Id != deposit.Id {
					t.Errorf("Expected deposit %s, got %s", deposit.Id, match.Id)
				}
				return
			}
			if !errors.Is(err, store.ErrDepositNotFound) {
				t.Errorf("Expected no match, got %v (%v)", match, err)
			}
		})
	}
}

func TestMoneyColumns_KeepExactDecimals(t *testing.T) {
	service := setupTestDB(t)
	createTestProfile(t, service, "user1")
	ctx := context.Background()

	// Beyond float64 precision.
	const large = "90071992547409.930001"
	deposit := createTestDeposit(t, service, "user1", large, testSender)

	match, err := service.FindPendingDepositMatch(ctx, testSender, decimal.RequireFromString(large), decimal.Zero)
	if err != nil {
		t.Fatalf("Expected exact match with zero tolerance, got %v", err)
	}
	if match.Id != deposit.Id || match.Amount.String() != large {
		t.Errorf("Expected %s for %s, got %s for %s", large, deposit.Id, match.Amount, match.Id)
	}

	if _, err := service.ConfirmDeposit(ctx, deposit.Id); err != nil {
		t.Fatalf("ConfirmDeposit failed: %v", err)
	}
	assertBalance(t, service, "user1", large)
}

func TestFindPendingDepositMatch_ComparesNumerically(t *testing.T) {
	service := setupTestDB(t)
	createTestProfile(t, service, "user1")
	deposit := createTestDeposit(t, service, "user1", "9.995", testSender)

	// "9.995" sorts after "10.00" as text.
	match, err := service.FindPendingDepositMatch(context.Background(), testSender, decimal.RequireFromString("10.00"), tolerance)
	if err != nil {
		t.Fatalf("Expected match, got %v", err)
	}
	if match.Id != deposit.Id {
		t.Errorf("Expected deposit %s, got %s", deposit.Id, match.Id)
	}
}

func TestFindPendingDepositMatch_OldestWinsAndSkipsBound(t *testing.T) {
	service := setupTestDB(t)
	createTestProfile(t, service, "user1")
	ctx := context.Background()

	older := createTestDeposit(t, service, "user1", "50", testSender)
	newer := createTestDeposit(t, service, "user1", "50.005", testSender)

	match, err := service.FindPendingDepositMatch(ctx, testSender, decimal.NewFromInt(50), tolerance)
	if err != nil {
		t.Fatalf("FindPendingDepositMatch failed: %v", err)
	}
	if match.Id != older.Id {
		t.Errorf("Expected oldest deposit %s, got %s", older.Id, match.Id)
	}

	if err := service.SetDepositTxHash(ctx, older.Id, "0xAAA"); err != nil {
		t.Fatalf("SetDepositTxHash failed: %v", err)
	}

	match, err = service.FindPendingDepositMatch(ctx, testSender, decimal.NewFromInt(50), tolerance)
	if err != nil {
		t.Fatalf("FindPendingDepositMatch failed: %v", err)
	}
	if match.Id != newer.Id {
		t.Errorf("Expected bound deposit to be skipped, got %s", match.Id)
	}
}

func TestSetDepositTxHash(t *testing.T) {
	service := setupTestDB(t)
	createTestProfile(t, service, "user1")
	ctx := context.Background()

	first := createTestDeposit(t, service, "user1", "10", testSender)
	second := createTestDeposit(t, service, "user1", "20", testSender)

	if err := service.SetDepositTxHash(ctx, first.Id, "0xABC"); err != nil {
		t.Fatalf("SetDepositTxHash failed: %v", err)
	}
	// Same hash again is a no-op.
	if err := service.SetDepositTxHash(ctx, first.Id, "0xabc"); err != nil {
		t.Errorf("Expected rebinding same hash to succeed, got %v", err)
	}
	if err := service.SetDepositTxHash(ctx, first.Id, "0xdef"); !errors.Is(err, store.ErrTxHashConflict) {
		t.Errorf("Expected ErrTxHashConflict, got %v", err)
	}
	if err := service.SetDepositTxHash(ctx, second.Id, "0xabc"); !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Errorf("Expected ErrDuplicateTransaction, got %v", err)
	}
	if err := service.SetDepositTxHash(ctx, "missing", "0x123"); !errors.Is(err, store.ErrDepositNotFound) {
		t.Errorf("Expected ErrDepositNotFound, got %v", err)
	}

	found, err := service.FindDepositByTxHash(ctx, "0xABC")
	if err != nil {
		t.Fatalf("FindDepositByTxHash failed: %v", err)
	}
	if found.Id != first.Id {
		t.Errorf("Expected %s, got %s", first.Id, found.Id)
	}
}

func TestConfirmDeposit_CreditsOnce(t *testing.T) {
	service := setupTestDB(t)
	createTestProfile(t, service, "user1")
	ctx := context.Background()

	deposit := createTestDeposit(t, service, "user1", "42.5", testSender)

	confirmed, err := service.ConfirmDeposit(ctx, deposit.Id)
	if err != nil {
		t.Fatalf("ConfirmDeposit failed: %v", err)
	}
	if !confirmed {
		t.Fatal("Expected first confirmation to credit")
	}

	for i := 0; i < 3; i++ {
		confirmed, err = service.ConfirmDeposit(ctx, deposit.Id)
		if err != nil {
			t.Fatalf("Replayed ConfirmDeposit failed: %v", err)
		}
		if confirmed {
			t.Fatal("Expected replayed confirmation to be a no-op")
		}
	}

	assertBalance(t, service, "user1", "42.5")

	stored, err := service.GetDeposit(ctx, deposit.Id)
	if err != nil {
		t.Fatalf("GetDeposit failed: %v", err)
	}
	if stored.Status != models.DepositStatusConfirmed || stored.ConfirmedAt == nil {
		t.Errorf("Expected confirmed with timestamp, got %s / %v", stored.Status, stored.ConfirmedAt)
	}

	entries, err := service.GetLedgerEntries(ctx, "user1", 10, 0)
	if err != nil {
		t.Fatalf("GetLedgerEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].EntryType != models.EntryTypeDeposit || entries[0].Reference != deposit.Id {
		t.Errorf("Expected one deposit entry for %s, got %+v", deposit.Id, entries)
	}
	if err := service.ReconcileProfile(ctx, "user1"); err != nil {
		t.Errorf("ReconcileProfile failed: %v", err)
	}
}

func TestConfirmDeposit_ConcurrentCallsCreditOnce(t *testing.T) {
	service := setupTestDB(t)
	createTestProfile(t, service, "user1")
	deposit := createTestDeposit(t, service, "user1", "10", testSender)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	credits := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			confirmed, err := service.ConfirmDeposit(context.Background(), deposit.Id)
			if err != nil {
				t.Errorf("ConfirmDeposit failed: %v", err)
				return
			}
			if confirmed {
				mu.Lock()
				credits++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if credits != 1 {
		t.Errorf("Expected exactly one credit, got %d", credits)
	}
	assertBalance(t, service, "user1", "10")
}

func TestConfirmDeposit_NotFound(t *testing.T) {
	service := setupTestDB(t)
	if _, err := service.ConfirmDeposit(context.Background(), "missing"); !errors.Is(err, store.ErrDepositNotFound) {
		t.Errorf("Expected ErrDepositNotFound, got %v", err)
	}
}

func TestExpireDeposit(t *testing.T) {
	service := setupTestDB(t)
	createTestProfile(t, service, "user1")
	ctx := context.Background()

	deposit := createTestDeposit(t, service, "user1", "5", testSender)
	if err := service.ExpireDeposit(ctx, deposit.Id); err != nil {
		t.Fatalf("ExpireDeposit failed: %v", err)
	}

	confirmed, err := service.ConfirmDeposit(ctx, deposit.Id)
	if err != nil {
		t.Fatalf("ConfirmDeposit failed: %v", err)
	}
	if confirmed {
		t.Error("Expected failed deposit to never be credited")
	}
	assertBalance(t, service, "user1", "0")

	if err := service.ExpireDeposit(ctx, deposit.Id); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestListDepositsByStatus(t *testing.T) {
	service := setupTestDB(t)
	createTestProfile(t, service, "user1")
	ctx := context.Background()

	first := createTestDeposit(t, service, "user1", "1", testSender)
	second := createTestDeposit(t, service, "user1", "2", testSender)
	if _, err := service.ConfirmDeposit(ctx, second.Id); err != nil {
		t.Fatalf("ConfirmDeposit failed: %v", err)
	}

	pending, err := service.ListDepositsByStatus(ctx, models.DepositStatusPending, time.Now().Add(24*365*time.Hour))
	if err != nil {
		t.Fatalf("ListDepositsByStatus failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Id != first.Id {
		t.Errorf("Expected only %s pending, got %+v", first.Id, pending)
	}

	stale, err := service.ListDepositsByStatus(ctx, models.DepositStatusPending, first.CreatedAt.Add(-time.Second))
	if err != nil {
		t.Fatalf("ListDepositsByStatus failed: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("Expected no deposits older than cutoff, got %d", len(stale))
	}
}
