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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"usdc-vault-custody/internal/models"

	"github.com/shopspring/decimal"
)

const (
	defaultTokenAddress = "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"
	defaultTokenSymbol  = "USDC"
	defaultNetwork      = "polygon"
	defaultDecimals     = 6
)

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	confirmTimeout, err := getEnvDuration("CHAIN_CONFIRM_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	rpcTimeout, err := getEnvDuration("CHAIN_RPC_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	seenTTL, err := getEnvDuration("WEBHOOK_SEEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	cleanupInterval, err := getEnvDuration("WEBHOOK_CLEANUP_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	processorInterval, err := getEnvDuration("PROCESSOR_INTERVAL", 0)
	if err != nil {
		return nil, err
	}

	runTimeout, err := getEnvDuration("PROCESSOR_RUN_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}

	tolerance, err := getEnvDecimal("WEBHOOK_MATCH_TOLERANCE", decimal.RequireFromString("0.01"))
	if err != nil {
		return nil, err
	}
	if tolerance.IsNegative() {
		return nil, fmt.Errorf("WEBHOOK_MATCH_TOLERANCE must not be negative, got %s", tolerance)
	}

	gasMultiple, err := getEnvFloat("CHAIN_GAS_LIMIT_MULTIPLE", 1.2)
	if err != nil {
		return nil, err
	}

	chainID, err := getEnvInt64("CHAIN_ID", 0)
	if err != nil {
		return nil, err
	}

	driver := strings.ToLower(getEnvString("DB_DRIVER", "sqlite3"))
	if driver != "sqlite3" && driver != "postgres" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (want sqlite3 or postgres)", driver)
	}

	return &models.Config{
		Database: models.DatabaseConfig{
			Driver:          driver,
			Path:            getEnvString("DATABASE_PATH", "custody.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Chain: models.ChainConfig{
			RPCURL:       getEnvString("CHAIN_RPC_URL", ""),
			HotWalletKey: getEnvString("HOT_WALLET_PRIVATE_KEY", ""),
			ChainID:      chainID,
			Token: models.TokenConfig{
				Symbol:   getEnvString("TOKEN_SYMBOL", defaultTokenSymbol),
				Network:  getEnvString("TOKEN_NETWORK", defaultNetwork),
				Address:  getEnvString("TOKEN_ADDRESS", defaultTokenAddress),
				Decimals: int32(getEnvInt("TOKEN_DECIMALS", defaultDecimals)),
			},
			TokensFile:       getEnvString("TOKENS_FILE", ""),
			ConfirmTimeout:   confirmTimeout,
			RPCTimeout:       rpcTimeout,
			GasLimitMultiple: gasMultiple,
		},
		Webhook: models.WebhookConfig{
			SigningKey:      getEnvString("ALCHEMY_SIGNING_KEY", ""),
			PlatformAddress: strings.ToLower(getEnvString("PLATFORM_WALLET_ADDRESS", "")),
			MatchTolerance:  tolerance,
			SeenTTL:         seenTTL,
			CleanupInterval: cleanupInterval,
		},
		Processor: models.ProcessorConfig{
			CronSecret: getEnvString("CRON_SECRET", ""),
			Interval:   processorInterval,
			RunTimeout: runTimeout,
			BatchLimit: getEnvInt("PROCESSOR_BATCH_LIMIT", 0),
		},
		Server: models.ServerConfig{
			Addr:            getEnvString("SERVER_ADDR", ":8080"),
			JWTSecret:       getEnvString("JWT_SECRET", ""),
			StrategySecret:  getEnvString("STRATEGY_SECRET", ""),
			AllowedOrigins:  getEnvString("ALLOWED_ORIGINS", "*"),
			ShutdownTimeout: shutdownTimeout,
			MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "usdc-vault-custody"),
		},
		Events: models.EventsConfig{
			NatsURL:       getEnvString("NATS_URL", ""),
			SubjectPrefix: getEnvString("NATS_SUBJECT_PREFIX", "custody"),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %q (%w)", key, value, err)
		}
		return f, nil
	}
	return defaultValue, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	if value := os.Getenv(key); value != "" {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %q (%w)", key, value, err)
		}
		return n, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
