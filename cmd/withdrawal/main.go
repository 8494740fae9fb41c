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

	"usdc-vault-custody/internal/api"
	"usdc-vault-custody/internal/common"
	"usdc-vault-custody/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type withdrawalRequest struct {
	email       string
	amount      decimal.Decimal
	destination string
}

func parseAndValidateFlags() (*withdrawalRequest, error) {
	emailFlag := flag.String("email", "", "Profile email (required)")
	amountFlag := flag.String("amount", "", "Amount to withdraw (required)")
	destinationFlag := flag.String("destination", "", "Destination address (required)")
	flag.Parse()

	if *emailFlag == "" || *amountFlag == "" || *destinationFlag == "" {
		return nil, fmt.Errorf("all flags are required: --email, --amount, --destination")
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	return &withdrawalRequest{
		email:       *emailFlag,
		amount:      amount,
		destination: *destinationFlag,
	}, nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid flags", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}
	if err := common.ResolveToken(cfg); err != nil {
		zap.L().Fatal("Failed to resolve token", zap.Error(err))
	}
	token := cfg.Chain.Token

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	profile, err := dbService.GetProfileByEmail(ctx, req.email)
	if err != nil {
		common.PrintHeader("WITHDRAWAL FAILED", common.DefaultWidth)
		fmt.Printf("Error: Profile not found for email %s\n", req.email)
		common.PrintSeparator("=", common.DefaultWidth)
		zap.L().Fatal("Profile not found", zap.String("email", req.email), zap.Error(err))
	}

	zap.L().Info("Queueing withdrawal",
		zap.String("user_id", profile.Id),
		zap.String("amount", req.amount.String()),
		zap.String("destination", req.destination))

	// The request only debits and queues; the processor sends it on its next run.
	result, err := api.NewLedgerService(dbService, nil).RequestWithdrawal(ctx, profile.Id, req.amount, req.destination)
	if err != nil {
		zap.L().Fatal("Withdrawal request failed", zap.Error(err))
	}
	if !result.Success {
		common.PrintHeader("WITHDRAWAL REJECTED", common.DefaultWidth)
		fmt.Printf("Profile:           %s (%s)\n", profile.DisplayName, profile.Email)
		fmt.Printf("Current Balance:   %s\n", common.FormatAmount(profile.Balance, token.Symbol, token.Decimals))
		fmt.Printf("Error:             %s\n", result.Error)
		common.PrintSeparator("=", common.DefaultWidth)
		zap.L().Fatal("Withdrawal rejected", zap.String("reason", result.Error))
	}

	common.PrintHeader("WITHDRAWAL QUEUED", common.DefaultWidth)
	fmt.Printf("Profile:           %s (%s)\n", profile.DisplayName, profile.Email)
	fmt.Printf("Withdrawal ID:     %s\n", result.Withdrawal.Id)
	fmt.Printf("Amount:            %s\n", common.FormatAmount(result.Withdrawal.Amount, token.Symbol, token.Decimals))
	fmt.Printf("Destination:       %s\n", result.Withdrawal.WalletAddress)
	fmt.Printf("Remaining Balance: %s\n", common.FormatAmount(result.NewBalance, token.Symbol, token.Decimals))
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("Withdrawal queued", zap.String("withdrawal_id", result.Withdrawal.Id))
}
