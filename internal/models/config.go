package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig
	Chain     ChainConfig
	Webhook   WebhookConfig
	Processor ProcessorConfig
	Server    ServerConfig
	Formance  FormanceConfig
	Events    EventsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // sqlite3 or postgres
	Path            string // file path for sqlite3, DSN for postgres
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// TokenConfig describes the settlement token on its network
type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Network  string `yaml:"network"`
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
}

// ChainConfig holds RPC and hot wallet settings
type ChainConfig struct {
	RPCURL           string
	HotWalletKey     string
	ChainID          int64 // 0 means ask the node
	Token            TokenConfig
	TokensFile       string
	ConfirmTimeout   time.Duration
	RPCTimeout       time.Duration
	GasLimitMultiple float64
}

// WebhookConfig holds deposit notification settings
type WebhookConfig struct {
	SigningKey      string
	PlatformAddress string
	MatchTolerance  decimal.Decimal
	SeenTTL         time.Duration
	CleanupInterval time.Duration
}

// ProcessorConfig holds withdrawal processor settings
type ProcessorConfig struct {
	CronSecret string
	Interval   time.Duration // 0 disables the in-process scheduler
	RunTimeout time.Duration
	BatchLimit int // 0 processes every pending withdrawal
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string
	JWTSecret       string
	StrategySecret  string
	AllowedOrigins  string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
}

// FormanceConfig holds journal mirror settings; empty StackURL disables it
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// EventsConfig holds NATS settings; empty URL disables publishing
type EventsConfig struct {
	NatsURL       string
	SubjectPrefix string
}
