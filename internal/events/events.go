package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Event types, also used as the subject suffix on NATS.
const (
	TypeDepositConfirmed     = "deposits.confirmed"
	TypeWithdrawalCompleted  = "withdrawals.completed"
	TypeWithdrawalUnresolved = "withdrawals.unresolved"
	TypeBalanceChanged       = "balances.changed"
)

// Event describes a settled money movement. ReferenceId is the deposit or
// withdrawal id and doubles as the idempotency key downstream.
type Event struct {
	Type        string          `json:"type"`
	ReferenceId string          `json:"reference_id"`
	UserId      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	TxHash      string          `json:"tx_hash,omitempty"`
	Address     string          `json:"address,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Sink receives events after the ledger has committed them.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Fanout delivers each event to every sink. Sink failures are logged and
// never reach the caller: the ledger is already the source of truth.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) Publish(ctx context.Context, event Event) error {
	for _, s := range f.sinks {
		if err := s.Publish(ctx, event); err != nil {
			zap.L().Warn("Event sink failed",
				zap.String("type", event.Type),
				zap.String("reference_id", event.ReferenceId),
				zap.Error(err))
		}
	}
	return nil
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
