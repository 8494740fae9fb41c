package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("driver = %q, want sqlite3", cfg.Database.Driver)
	}
	if !cfg.Webhook.MatchTolerance.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("tolerance = %s, want 0.01", cfg.Webhook.MatchTolerance)
	}
	if cfg.Chain.Token.Decimals != 6 || cfg.Chain.Token.Symbol != "USDC" {
		t.Errorf("unexpected token defaults: %+v", cfg.Chain.Token)
	}
	if cfg.Processor.Interval != 0 {
		t.Errorf("scheduler should be disabled by default, got %v", cfg.Processor.Interval)
	}
	if cfg.Processor.RunTimeout != 60*time.Second {
		t.Errorf("run timeout = %v, want 60s", cfg.Processor.RunTimeout)
	}
	if cfg.Chain.RPCTimeout != 30*time.Second {
		t.Errorf("rpc timeout = %v, want 30s", cfg.Chain.RPCTimeout)
	}
	if !cfg.Server.MetricsEnabled {
		t.Error("metrics should be enabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("WEBHOOK_MATCH_TOLERANCE", "0.05")
	t.Setenv("PLATFORM_WALLET_ADDRESS", "0xABCDEF0000000000000000000000000000000001")
	t.Setenv("PROCESSOR_INTERVAL", "30s")
	t.Setenv("CHAIN_ID", "137")
	t.Setenv("CHAIN_GAS_LIMIT_MULTIPLE", "1.5")
	t.Setenv("METRICS_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.Database.Driver)
	}
	if !cfg.Webhook.MatchTolerance.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("tolerance = %s, want 0.05", cfg.Webhook.MatchTolerance)
	}
	if cfg.Webhook.PlatformAddress != "0xabcdef0000000000000000000000000000000001" {
		t.Errorf("platform address should be lowercased, got %s", cfg.Webhook.PlatformAddress)
	}
	if cfg.Processor.Interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s", cfg.Processor.Interval)
	}
	if cfg.Chain.ChainID != 137 || cfg.Chain.GasLimitMultiple != 1.5 {
		t.Errorf("chain overrides not applied: %+v", cfg.Chain)
	}
	if cfg.Server.MetricsEnabled {
		t.Error("METRICS_ENABLED=false should disable metrics")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "PROCESSOR_RUN_TIMEOUT", "soon"},
		{"bad tolerance", "WEBHOOK_MATCH_TOLERANCE", "a lot"},
		{"negative tolerance", "WEBHOOK_MATCH_TOLERANCE", "-0.01"},
		{"bad chain id", "CHAIN_ID", "polygon"},
		{"bad rpc timeout", "CHAIN_RPC_TIMEOUT", "30"},
		{"bad gas multiple", "CHAIN_GAS_LIMIT_MULTIPLE", "x1.2"},
		{"unknown driver", "DB_DRIVER", "mysql"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
