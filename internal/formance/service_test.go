package formance

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"usdc-vault-custody/internal/events"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
)

// ---------- Unit tests for pure helpers (no Formance stack needed) ----------

func testJournal() *Journal {
	return &Journal{ledger: "test", symbol: "USDC", precision: 6}
}

func TestFormanceAsset(t *testing.T) {
	tests := []struct {
		symbol    string
		precision int32
		want      string
	}{
		{"USDC", 6, "USDC/6"},
		{"USDC", 18, "USDC/18"},
		{"DAI", 18, "DAI/18"},
	}
	for _, tt := range tests {
		if got := formanceAsset(tt.symbol, tt.precision); got != tt.want {
			t.Errorf("formanceAsset(%q, %d) = %q, want %q", tt.symbol, tt.precision, got, tt.want)
		}
	}
}

func TestBigIntToDecimal(t *testing.T) {
	result := bigIntToDecimal(big.NewInt(1_000_000), 6)
	if !result.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected 1, got %s", result.String())
	}

	result = bigIntToDecimal(big.NewInt(1_234_567), 6)
	if !result.Equal(decimal.RequireFromString("1.234567")) {
		t.Errorf("expected 1.234567, got %s", result.String())
	}

	result = bigIntToDecimal(nil, 6)
	if !result.IsZero() {
		t.Errorf("expected 0, got %s", result.String())
	}
}

func TestVolumeBalance(t *testing.T) {
	vols := map[string]shared.V2Volume{
		"USDC/6": {Input: big.NewInt(500), Output: big.NewInt(200)},
		"DAI/18": {Balance: big.NewInt(42)},
	}

	if got := volumeBalance(vols, "USDC/6"); got == nil || got.Int64() != 300 {
		t.Errorf("USDC/6 balance = %v, want 300", got)
	}
	if got := volumeBalance(vols, "DAI/18"); got == nil || got.Int64() != 42 {
		t.Errorf("DAI/18 balance = %v, want 42", got)
	}
	if got := volumeBalance(vols, "ETH/18"); got != nil {
		t.Errorf("missing asset should be nil, got %v", got)
	}
}

func TestToSmallestUnit(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"1", "1000000"},
		{"100.5", "100500000"},
		{"0.000001", "1"},
		{"0.0000019", "1"},
	}
	for _, tt := range tests {
		if got := toSmallestUnit(decimal.RequireFromString(tt.amount), 6); got != tt.want {
			t.Errorf("toSmallestUnit(%s) = %s, want %s", tt.amount, got, tt.want)
		}
	}
}

func TestBuildDepositTransaction(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tx := testJournal().buildDepositTransaction(events.Event{
		Type:        events.TypeDepositConfirmed,
		ReferenceId: "dep-1",
		UserId:      "user1",
		Amount:      decimal.RequireFromString("25.5"),
		TxHash:      "0xabc",
		Address:     "0xsender",
		OccurredAt:  at,
	})

	if tx.Reference == nil || *tx.Reference != "deposit:dep-1" {
		t.Fatalf("reference = %v, want deposit:dep-1", tx.Reference)
	}
	if tx.Script == nil || tx.Script.Plain != numscriptDepositConfirmed {
		t.Fatal("expected deposit numscript")
	}
	vars := tx.Script.Vars
	want := map[string]string{
		"asset":        "USDC/6",
		"amount":       "25500000",
		"user_id":      "user1",
		"reference_id": "dep-1",
		"tx_hash":      "0xabc",
		"address":      "0xsender",
		"amount_human": "25.5",
	}
	for k, v := range want {
		if vars[k] != v {
			t.Errorf("var %s = %q, want %q", k, vars[k], v)
		}
	}
	if tx.Timestamp == nil || !tx.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", tx.Timestamp, at)
	}
}

func TestBuildWithdrawalTransaction(t *testing.T) {
	tx := testJournal().buildWithdrawalTransaction(events.Event{
		Type:        events.TypeWithdrawalCompleted,
		ReferenceId: "wd-9",
		UserId:      "user2",
		Amount:      decimal.NewFromInt(10),
	})

	if tx.Reference == nil || *tx.Reference != "withdrawal:wd-9" {
		t.Fatalf("reference = %v, want withdrawal:wd-9", tx.Reference)
	}
	if tx.Script.Plain != numscriptWithdrawalCompleted {
		t.Fatal("expected withdrawal numscript")
	}
	if tx.Script.Vars["tx_hash"] != "unknown" || tx.Script.Vars["address"] != "unknown" {
		t.Errorf("empty metadata should default to unknown, got %v", tx.Script.Vars)
	}
	if tx.Timestamp != nil {
		t.Error("zero OccurredAt should leave the timestamp to the ledger")
	}
}

func TestIsConflictError(t *testing.T) {
	if isConflictError(nil) {
		t.Error("nil is not a conflict")
	}
	if isConflictError(errors.New("boom")) {
		t.Error("plain error is not a conflict")
	}
}
