package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"usdc-vault-custody/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrProfileNotFound        = errors.New("profile not found")
	ErrDepositNotFound        = errors.New("deposit not found")
	ErrWithdrawalNotFound     = errors.New("withdrawal not found")
	ErrPositionNotFound       = errors.New("position not found")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrTxHashConflict         = errors.New("deposit already bound to a different transaction hash")
	ErrInvalidTransition      = errors.New("invalid status transition")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CreateDepositParams describes a user's declared intent to send funds.
type CreateDepositParams struct {
	UserId        string
	Amount        decimal.Decimal
	SenderAddress string
}

// RequestWithdrawalParams describes a balance-deducting payout request.
type RequestWithdrawalParams struct {
	UserId        string
	Amount        decimal.Decimal
	WalletAddress string
}

// OpenPositionParams describes a strategy position funded from available balance.
type OpenPositionParams struct {
	UserId     string
	MarketName string
	Side       string
	EntryPrice decimal.Decimal
	Amount     decimal.Decimal
}

// ClosePositionParams settles a position back into available balance.
type ClosePositionParams struct {
	PositionId string
	ExitPrice  decimal.Decimal
	ProfitLoss decimal.Decimal
}

// ProfileStore covers profile lookups and creation.
type ProfileStore interface {
	CreateProfile(ctx context.Context, id, email, displayName string) (*models.Profile, error)
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*models.Profile, error)
	ListProfiles(ctx context.Context) ([]models.Profile, error)
}

// DepositStore is what the deposit reconciler needs.
type DepositStore interface {
	FindPendingDepositMatch(ctx context.Context, sender string, amount, tolerance decimal.Decimal) (*models.Deposit, error)
	FindDepositByTxHash(ctx context.Context, txHash string) (*models.Deposit, error)
	SetDepositTxHash(ctx context.Context, depositId, txHash string) error
	ConfirmDeposit(ctx context.Context, depositId string) (bool, error)
	GetDeposit(ctx context.Context, id string) (*models.Deposit, error)
}

// WithdrawalQueue is what the withdrawal processor needs.
type WithdrawalQueue interface {
	ListPendingWithdrawals(ctx context.Context, limit int) ([]models.Withdrawal, error)
	CountPendingWithdrawals(ctx context.Context) (int, error)
	TransitionWithdrawalStatus(ctx context.Context, id, from, to string) (bool, error)
	CompleteWithdrawal(ctx context.Context, id, txHash string) error
	RevertWithdrawal(ctx context.Context, id, reason string) error
	MarkWithdrawalUnresolved(ctx context.Context, id, txHash, reason string) error
}

// LedgerStore defines the contract that every backend must satisfy.
type LedgerStore interface {
	ProfileStore
	DepositStore
	WithdrawalQueue

	// --- Deposits ---
	CreateDeposit(ctx context.Context, params CreateDepositParams) (*models.Deposit, error)
	ListUserDeposits(ctx context.Context, userId string, limit int) ([]models.Deposit, error)
	ListDepositsByStatus(ctx context.Context, status string, olderThan time.Time) ([]models.Deposit, error)
	ExpireDeposit(ctx context.Context, id string) error

	// --- Withdrawals ---
	RequestWithdrawal(ctx context.Context, params RequestWithdrawalParams) (*models.Withdrawal, error)
	GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
	ListUserWithdrawals(ctx context.Context, userId string, limit int) ([]models.Withdrawal, error)
	ListWithdrawalsByStatus(ctx context.Context, status string) ([]models.Withdrawal, error)
	FailWithdrawal(ctx context.Context, id, reason string) error

	// --- Positions ---
	OpenPosition(ctx context.Context, params OpenPositionParams) (*models.Position, error)
	UpdatePositionPrice(ctx context.Context, id string, price decimal.Decimal) error
	ClosePosition(ctx context.Context, params ClosePositionParams) (*models.Position, error)
	ListPositions(ctx context.Context, userId, status string) ([]models.Position, error)

	// --- Audit ---
	GetLedgerEntries(ctx context.Context, userId string, limit, offset int) ([]models.LedgerEntry, error)
	ReconcileProfile(ctx context.Context, userId string) error

	// --- Lifecycle ---
	Close()
}
