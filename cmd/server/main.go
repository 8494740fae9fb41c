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
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"usdc-vault-custody/internal/api"
	"usdc-vault-custody/internal/common"
	"usdc-vault-custody/internal/config"
	"usdc-vault-custody/internal/events"
	"usdc-vault-custody/internal/listener"
	"usdc-vault-custody/internal/metrics"
	"usdc-vault-custody/internal/processor"
	"usdc-vault-custody/internal/server"
	"usdc-vault-custody/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting USDC custody server")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)
	health := metrics.NewHealthChecker()

	// Balance pushes go out after the journal and NATS have seen the event.
	hub := websocket.NewHub()
	notifier := websocket.NewBalanceNotifier(hub, services.DbService)
	sink := events.NewFanout(services.Sink, notifier)

	reconciler := listener.NewReconciler(listener.ReconcilerConfig{
		Store:           services.DbService,
		Sink:            sink,
		Metrics:         m,
		SigningKey:      cfg.Webhook.SigningKey,
		PlatformAddress: cfg.Webhook.PlatformAddress,
		Token:           cfg.Chain.Token,
		Tolerance:       cfg.Webhook.MatchTolerance,
		SeenTTL:         cfg.Webhook.SeenTTL,
		CleanupInterval: cfg.Webhook.CleanupInterval,
	})
	reconciler.Start(ctx)
	defer reconciler.Stop()

	withdrawals := processor.NewProcessor(processor.Config{
		Queue:      services.DbService,
		Chain:      services.Chain,
		Sink:       sink,
		Metrics:    m,
		BatchLimit: cfg.Processor.BatchLimit,
	})
	scheduler := processor.NewScheduler(withdrawals, cfg.Processor.Interval, cfg.Processor.RunTimeout)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	srv := server.New(server.Config{
		Server:     cfg.Server,
		CronSecret: cfg.Processor.CronSecret,
		RunTimeout: cfg.Processor.RunTimeout,
		Ledger:     api.NewLedgerService(services.DbService, notifier),
		Reconciler: reconciler,
		Processor:  withdrawals,
		Hub:        hub,
		Health:     health,
		Gatherer:   registry,
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Routes(),
	}

	errChan := make(chan error, 1)
	go func() {
		zap.L().Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	health.SetReady(true)
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, draining connections...")
	case err := <-errChan:
		zap.L().Error("HTTP server failed", zap.Error(err))
	}

	health.SetReady(false)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Forced shutdown after timeout", zap.Error(err))
	} else {
		zap.L().Info("HTTP server stopped gracefully")
	}
}
