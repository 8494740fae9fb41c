package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"usdc-vault-custody/internal/common"
	"usdc-vault-custody/internal/config"
	"usdc-vault-custody/internal/models"
	"usdc-vault-custody/internal/processor"

	"go.uber.org/zap"
)

func printReport(report *models.ProcessReport, token models.TokenConfig) {
	common.PrintHeader("WITHDRAWAL RUN", common.WideWidth)
	for i, res := range report.Results {
		last := i == len(report.Results)-1
		fmt.Printf("%s %-10s %s  %s\n",
			common.BoxPrefix(last),
			res.Status,
			res.Id,
			common.FormatAmount(res.Amount, token.Symbol, token.Decimals))
		if res.TxHash != "" {
			fmt.Printf("%s tx: %s\n", common.BoxDetailPrefix(last), res.TxHash)
		}
		if res.Error != "" {
			fmt.Printf("%s error: %s\n", common.BoxDetailPrefix(last), res.Error)
		}
	}
	summary := fmt.Sprintf("SUMMARY: %d/%d processed (%d completed, %d skipped, %d failed, %d error)",
		report.Processed, report.Total,
		report.Count(models.WithdrawalResultCompleted),
		report.Count(models.WithdrawalResultSkipped),
		report.Count(models.WithdrawalResultFailed),
		report.Count(models.WithdrawalResultError))
	if report.Message != "" {
		summary += " - " + report.Message
	}
	common.PrintFooter(summary, common.WideWidth)
}

func main() {
	timeoutFlag := flag.Duration("timeout", 0, "Run timeout (default: PROCESSOR_RUN_TIMEOUT)")
	limitFlag := flag.Int("limit", 0, "Maximum withdrawals to process, 0 for all (default: PROCESSOR_BATCH_LIMIT)")
	flag.Parse()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	timeout := cfg.Processor.RunTimeout
	if *timeoutFlag > 0 {
		timeout = *timeoutFlag
	}
	limit := cfg.Processor.BatchLimit
	if *limitFlag > 0 {
		limit = *limitFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	p := processor.NewProcessor(processor.Config{
		Queue:      services.DbService,
		Chain:      services.Chain,
		Sink:       services.Sink,
		BatchLimit: limit,
	})

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	report, err := p.Run(runCtx)
	if err != nil {
		zap.L().Error("Withdrawal run failed", zap.Error(err))
		services.Close()
		os.Exit(1)
	}

	printReport(report, cfg.Chain.Token)
	zap.L().Info("Withdrawal run finished",
		zap.Int("processed", report.Processed),
		zap.Int("total", report.Total),
		zap.Duration("took", time.Since(start)))
}
