package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"usdc-vault-custody/internal/chain"
	"usdc-vault-custody/internal/database"
	"usdc-vault-custody/internal/events"
	"usdc-vault-custody/internal/formance"
	"usdc-vault-custody/internal/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services bundles the long-lived dependencies shared by the binaries.
type Services struct {
	DbService *database.Service
	Chain     *chain.Client
	Journal   *formance.Journal
	Publisher *events.NATSPublisher
	Sink      events.Sink
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the store, dials the chain and connects the optional
// event sinks. The journal and NATS are skipped when unconfigured.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	if err := ResolveToken(cfg); err != nil {
		return nil, err
	}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	services := &Services{DbService: dbService}

	chainClient, err := InitializeChain(ctx, cfg)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.Chain = chainClient

	var sinks []events.Sink
	if cfg.Formance.StackURL != "" {
		journal, err := formance.NewJournal(ctx, cfg.Formance, cfg.Chain.Token)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("unable to initialize formance journal: %w", err)
		}
		services.Journal = journal
		sinks = append(sinks, journal)
	} else {
		zap.L().Info("FORMANCE_STACK_URL not set, journal mirror disabled")
	}

	if cfg.Events.NatsURL != "" {
		publisher, err := events.NewNATSPublisher(ctx, cfg.Events.NatsURL, cfg.Events.SubjectPrefix)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("unable to initialize event publisher: %w", err)
		}
		services.Publisher = publisher
		sinks = append(sinks, publisher)
	} else {
		zap.L().Info("NATS_URL not set, event publishing disabled")
	}

	services.Sink = events.NewFanout(sinks...)
	return services, nil
}

// InitializeDatabaseOnly initializes just the database service without the chain.
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// InitializeChain dials the RPC endpoint over the shared HTTP/2 client.
func InitializeChain(ctx context.Context, cfg *models.Config) (*chain.Client, error) {
	if cfg.Chain.HotWalletKey == "" {
		return nil, fmt.Errorf("missing required hot wallet key: HOT_WALLET_PRIVATE_KEY")
	}

	httpClient, err := NewHttpClient(cfg.Chain.RPCTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	zap.L().Info("Connecting to chain",
		zap.String("network", cfg.Chain.Token.Network),
		zap.String("token", cfg.Chain.Token.Symbol))
	return chain.NewClient(ctx, cfg.Chain, httpClient)
}

func (cs *Services) Close() {
	if cs.Publisher != nil {
		cs.Publisher.Close()
	}
	if cs.Chain != nil {
		cs.Chain.Close()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
