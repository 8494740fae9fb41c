/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"usdc-vault-custody/internal/common"
	"usdc-vault-custody/internal/config"
	"usdc-vault-custody/internal/models"

	"go.uber.org/zap"
)

type checkResult struct {
	name   string
	ok     bool
	detail string
}

func printChecks(checks []checkResult) {
	common.PrintHeader("SETUP CHECKS", common.DefaultWidth)
	for _, c := range checks {
		mark := "✓"
		if !c.ok {
			mark = "✗"
		}
		fmt.Printf("%s %-18s %s\n", mark, c.name, c.detail)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func checkConfig(cfg *models.Config) []checkResult {
	required := []struct {
		name  string
		value string
	}{
		{"ALCHEMY_SIGNING_KEY", cfg.Webhook.SigningKey},
		{"PLATFORM_WALLET", cfg.Webhook.PlatformAddress},
		{"CRON_SECRET", cfg.Processor.CronSecret},
		{"JWT_SECRET", cfg.Server.JWTSecret},
	}
	var checks []checkResult
	for _, r := range required {
		if r.value == "" {
			checks = append(checks, checkResult{name: r.name, detail: "not set"})
		} else {
			checks = append(checks, checkResult{name: r.name, ok: true, detail: "set"})
		}
	}
	return checks
}

func runChecks(ctx context.Context, cfg *models.Config, services *common.Services) []checkResult {
	token := cfg.Chain.Token
	checks := []checkResult{
		{name: "database", ok: true, detail: fmt.Sprintf("%s schema ready", cfg.Database.Driver)},
		{name: "token", ok: true, detail: fmt.Sprintf("%s on %s (%s, %d decimals)", token.Symbol, token.Network, token.Address, token.Decimals)},
	}

	hotWallet := services.Chain.HotWalletAddress()
	balance, err := services.Chain.BalanceOf(ctx, hotWallet)
	if err != nil {
		zap.L().Error("Failed to read hot wallet balance", zap.Error(err))
		checks = append(checks, checkResult{name: "hot wallet", detail: err.Error()})
	} else {
		checks = append(checks, checkResult{name: "hot wallet", ok: true,
			detail: fmt.Sprintf("%s holds %s", hotWallet, common.FormatAmount(balance, token.Symbol, token.Decimals))})
	}

	// Deposits land on the platform address; payouts leave from the hot wallet.
	if cfg.Webhook.PlatformAddress != "" && !strings.EqualFold(cfg.Webhook.PlatformAddress, hotWallet) {
		zap.L().Warn("Platform deposit address differs from hot wallet",
			zap.String("platform", cfg.Webhook.PlatformAddress),
			zap.String("hot_wallet", hotWallet))
	}

	if services.Journal != nil {
		checks = append(checks, checkResult{name: "formance journal", ok: true, detail: cfg.Formance.LedgerName})
	} else {
		checks = append(checks, checkResult{name: "formance journal", ok: true, detail: "disabled"})
	}
	if services.Publisher != nil {
		checks = append(checks, checkResult{name: "nats", ok: true, detail: cfg.Events.SubjectPrefix + ".>"})
	} else {
		checks = append(checks, checkResult{name: "nats", ok: true, detail: "disabled"})
	}

	return append(checks, checkConfig(cfg)...)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	dbOnly := flag.Bool("db-only", false, "Only create the database schema")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	if *dbOnly {
		dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
		if err != nil {
			zap.L().Fatal("Failed to initialize database", zap.Error(err))
		}
		dbService.Close()
		zap.L().Info("Database schema ready", zap.String("driver", cfg.Database.Driver))
		return
	}

	// Opening the services creates the schema and the Formance ledger.
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	checks := runChecks(ctx, cfg, services)
	printChecks(checks)

	failed := 0
	for _, c := range checks {
		if !c.ok {
			failed++
		}
	}
	if failed > 0 {
		zap.L().Warn("Setup completed with failing checks", zap.Int("failed", failed))
		return
	}
	zap.L().Info("Setup complete")
}
