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

	"usdc-vault-custody/internal/common"
	"usdc-vault-custody/internal/config"
	"usdc-vault-custody/internal/database"
	"usdc-vault-custody/internal/formance"
	"usdc-vault-custody/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type balanceStats struct {
	totalProfiles int
	mismatched    int
	available     decimal.Decimal
	locked        decimal.Decimal
}

func printProfile(profile models.Profile, token models.TokenConfig, journalBalance *decimal.Decimal, reconcileErr error) {
	fmt.Printf("\n┌─ Profile: %s (%s)\n", profile.DisplayName, profile.Email)
	fmt.Printf("│  ID: %s\n", profile.Id)
	common.PrintSeparator("─", 78)

	last := journalBalance == nil
	fmt.Printf("%s %-10s: %24s\n", common.BoxPrefix(false), "available", common.FormatAmount(profile.Balance, token.Symbol, token.Decimals))
	fmt.Printf("%s %-10s: %24s\n", common.BoxPrefix(last), "locked", common.FormatAmount(profile.LockedBalance, token.Symbol, token.Decimals))
	if journalBalance != nil {
		fmt.Printf("%s %-10s: %24s\n", common.BoxPrefix(true), "journal", common.FormatAmount(*journalBalance, token.Symbol, token.Decimals))
	}

	if reconcileErr != nil {
		fmt.Printf("   ✗ %v\n", reconcileErr)
	} else {
		fmt.Printf("   ✓ ledger entries reconcile (v%d, updated: %s)\n", profile.Version, profile.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}

func generateReport(ctx context.Context, profiles []models.Profile, dbService *database.Service, journal *formance.Journal, token models.TokenConfig, logger *zap.Logger) balanceStats {
	stats := balanceStats{}

	for _, profile := range profiles {
		stats.totalProfiles++
		stats.available = stats.available.Add(profile.Balance)
		stats.locked = stats.locked.Add(profile.LockedBalance)

		reconcileErr := dbService.ReconcileProfile(ctx, profile.Id)
		if reconcileErr != nil {
			stats.mismatched++
		}

		var journalBalance *decimal.Decimal
		if journal != nil {
			b, err := journal.UserBalance(ctx, profile.Id)
			if err != nil {
				logger.Error("Failed to read journal balance",
					zap.String("user_id", profile.Id),
					zap.Error(err))
			} else {
				journalBalance = &b
			}
		}

		printProfile(profile, token, journalBalance, reconcileErr)
	}

	return stats
}

// outstandingWithdrawals sums withdrawals debited from users but not yet paid.
func outstandingWithdrawals(ctx context.Context, dbService *database.Service) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, status := range []string{models.WithdrawalStatusPending, models.WithdrawalStatusProcessing} {
		withdrawals, err := dbService.ListWithdrawalsByStatus(ctx, status)
		if err != nil {
			return decimal.Zero, err
		}
		for _, w := range withdrawals {
			total = total.Add(w.Amount)
		}
	}
	return total, nil
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	emailFlag := flag.String("email", "", "Filter by specific profile email (optional)")
	journalFlag := flag.Bool("journal", false, "Also show each profile's balance in the Formance journal")
	chainFlag := flag.Bool("chain", false, "Compare total liabilities against the hot wallet's on-chain balance")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if err := common.ResolveToken(cfg); err != nil {
		logger.Fatal("Failed to resolve token", zap.Error(err))
	}
	token := cfg.Chain.Token

	logger.Info("Connecting to database", zap.String("path", cfg.Database.Path))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	var journal *formance.Journal
	if *journalFlag {
		journal, err = formance.NewJournal(ctx, cfg.Formance, token)
		if err != nil {
			logger.Fatal("Failed to initialize journal", zap.Error(err))
		}
	}

	profiles, err := common.InitializeProfiles(ctx, dbService, *emailFlag, logger)
	if err != nil {
		logger.Fatal("Failed to initialize profiles", zap.Error(err))
	}

	common.PrintHeader("PROFILE BALANCE REPORT", common.DefaultWidth)
	stats := generateReport(ctx, profiles, dbService, journal, token, logger)

	summary := fmt.Sprintf("SUMMARY: %d profiles, %s available, %s locked, %d mismatched",
		stats.totalProfiles,
		common.FormatAmount(stats.available, token.Symbol, token.Decimals),
		common.FormatAmount(stats.locked, token.Symbol, token.Decimals),
		stats.mismatched)
	common.PrintFooter(summary, common.DefaultWidth)

	if *chainFlag {
		chainClient, err := common.InitializeChain(ctx, cfg)
		if err != nil {
			logger.Fatal("Failed to connect to chain", zap.Error(err))
		}
		defer chainClient.Close()

		hot, err := chainClient.BalanceOf(ctx, chainClient.HotWalletAddress())
		if err != nil {
			logger.Fatal("Failed to read hot wallet balance", zap.Error(err))
		}
		outstanding, err := outstandingWithdrawals(ctx, dbService)
		if err != nil {
			logger.Fatal("Failed to sum outstanding withdrawals", zap.Error(err))
		}
		liabilities := stats.available.Add(stats.locked).Add(outstanding)

		common.PrintHeader("HOT WALLET COVERAGE", common.DefaultWidth)
		fmt.Printf("Hot wallet (%s): %s\n", common.ShortHash(chainClient.HotWalletAddress()), common.FormatAmount(hot, token.Symbol, token.Decimals))
		fmt.Printf("Outstanding withdrawals: %s\n", common.FormatAmount(outstanding, token.Symbol, token.Decimals))
		fmt.Printf("Total liabilities:       %s\n", common.FormatAmount(liabilities, token.Symbol, token.Decimals))
		fmt.Printf("Coverage:                %s\n", common.FormatAmount(hot.Sub(liabilities), token.Symbol, token.Decimals))
		common.PrintSeparator("=", common.DefaultWidth)
	}

	logger.Info("Balance query completed",
		zap.Int("profiles_queried", stats.totalProfiles),
		zap.Int("mismatched", stats.mismatched))
}
