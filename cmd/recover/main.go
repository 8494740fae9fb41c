package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"usdc-vault-custody/internal/chain"
	"usdc-vault-custody/internal/common"
	"usdc-vault-custody/internal/config"
	"usdc-vault-custody/internal/database"
	"usdc-vault-custody/internal/events"
	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/recovery"

	"go.uber.org/zap"
)

func printStuck(withdrawals []models.Withdrawal, token models.TokenConfig) {
	common.PrintHeader("WITHDRAWALS IN PROCESSING", common.WideWidth)
	for i, w := range withdrawals {
		last := i == len(withdrawals)-1
		fmt.Printf("%s %s  %s -> %s (since %s)\n",
			common.BoxPrefix(last),
			w.Id,
			common.FormatAmount(w.Amount, token.Symbol, token.Decimals),
			w.WalletAddress,
			w.UpdatedAt.Format("2006-01-02 15:04:05"))
		if w.TxHash != nil {
			fmt.Printf("%s tx: %s\n", common.BoxDetailPrefix(last), *w.TxHash)
		}
		if w.Error != nil {
			fmt.Printf("%s note: %s\n", common.BoxDetailPrefix(last), *w.Error)
		}
	}
	common.PrintFooter(fmt.Sprintf("%d withdrawals need an operator decision", len(withdrawals)), common.WideWidth)
}

func printStale(deposits []models.Deposit, token models.TokenConfig) {
	common.PrintHeader("UNMATCHED DEPOSIT CLAIMS", common.WideWidth)
	for i, d := range deposits {
		fmt.Printf("%s %s  %s from %s (created %s)\n",
			common.BoxPrefix(i == len(deposits)-1),
			d.Id,
			common.FormatAmount(d.Amount, token.Symbol, token.Decimals),
			d.SenderAddress,
			d.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	common.PrintFooter(fmt.Sprintf("%d pending claims", len(deposits)), common.WideWidth)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	listFlag := flag.Bool("list", false, "List withdrawals stuck in processing")
	staleFlag := flag.Duration("stale-deposits", 0, "List pending deposit claims older than this age")
	expireFlag := flag.Bool("expire", false, "With --stale-deposits, mark the listed claims failed")
	completeFlag := flag.String("complete", "", "Withdrawal id to mark completed after verifying its receipt")
	releaseFlag := flag.String("release", "", "Withdrawal id to return to pending for another attempt")
	verifiedFlag := flag.Bool("i-verified-no-transfer", false, "Required with --release: confirms no funds left the hot wallet")
	refundFlag := flag.String("refund", "", "Withdrawal id to fail and refund to the user")
	reasonFlag := flag.String("reason", "", "Reason recorded with --refund")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}
	if err := common.ResolveToken(cfg); err != nil {
		zap.L().Fatal("Failed to resolve token", zap.Error(err))
	}
	token := cfg.Chain.Token

	// Only completion and release look at the chain.
	var (
		dbService   *database.Service
		chainClient chain.ChainClient
		sink        events.Sink
	)
	if *completeFlag != "" || *releaseFlag != "" {
		services, err := common.InitializeServices(ctx, cfg)
		if err != nil {
			zap.L().Fatal("Failed to initialize services", zap.Error(err))
		}
		defer services.Close()
		dbService, chainClient, sink = services.DbService, services.Chain, services.Sink
	} else {
		dbService, err = common.InitializeDatabaseOnly(ctx, cfg)
		if err != nil {
			zap.L().Fatal("Failed to initialize database", zap.Error(err))
		}
		defer dbService.Close()
	}
	r := recovery.New(dbService, chainClient, sink)

	switch {
	case *completeFlag != "":
		w, err := r.Complete(ctx, *completeFlag)
		if err != nil {
			zap.L().Fatal("Failed to complete withdrawal", zap.String("withdrawal_id", *completeFlag), zap.Error(err))
		}
		fmt.Printf("✓ Withdrawal %s completed (%s)\n", w.Id, common.FormatAmount(w.Amount, token.Symbol, token.Decimals))

	case *releaseFlag != "":
		if err := r.Release(ctx, *releaseFlag, *verifiedFlag); err != nil {
			zap.L().Fatal("Failed to release withdrawal", zap.String("withdrawal_id", *releaseFlag), zap.Error(err))
		}
		fmt.Printf("✓ Withdrawal %s returned to pending\n", *releaseFlag)

	case *refundFlag != "":
		if err := r.Refund(ctx, *refundFlag, *reasonFlag); err != nil {
			zap.L().Fatal("Failed to refund withdrawal", zap.String("withdrawal_id", *refundFlag), zap.Error(err))
		}
		fmt.Printf("✓ Withdrawal %s failed and refunded\n", *refundFlag)

	case *staleFlag > 0:
		deposits, err := r.StaleDeposits(ctx, *staleFlag)
		if err != nil {
			zap.L().Fatal("Failed to list stale deposits", zap.Error(err))
		}
		printStale(deposits, token)
		if *expireFlag {
			n, err := r.ExpireDeposits(ctx, deposits)
			if err != nil {
				zap.L().Fatal("Failed to expire deposits", zap.Int("expired", n), zap.Error(err))
			}
			zap.L().Info("Expired stale deposit claims", zap.Int("count", n), zap.Duration("older_than", *staleFlag))
		}

	case *listFlag:
		stuck, err := r.StuckWithdrawals(ctx)
		if err != nil {
			zap.L().Fatal("Failed to list withdrawals", zap.Error(err))
		}
		printStuck(stuck, token)

	default:
		flag.Usage()
		fmt.Printf("\nExample: recover --stale-deposits %s --expire\n", 72*time.Hour)
	}
}
