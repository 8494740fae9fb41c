package formance

import (
	"context"
	"fmt"
	"time"

	"usdc-vault-custody/internal/events"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Numscript templates. All metadata is set inside the script via set_tx_meta()
// so every journal transaction is self-describing.

const numscriptDepositConfirmed = `vars {
  asset $asset
  number $amount
  account $user_id
  string $reference_id
  string $tx_hash
  string $address
  string $amount_human
}

send [$asset $amount] (
  source = @platform:hot_wallet allowing unbounded overdraft
  destination = @users:$user_id
)

set_tx_meta("event_type", "deposit_confirmed")
set_tx_meta("reference_id", $reference_id)
set_tx_meta("tx_hash", $tx_hash)
set_tx_meta("address", $address)
set_tx_meta("amount_human", $amount_human)
`

const numscriptWithdrawalCompleted = `vars {
  asset $asset
  number $amount
  account $user_id
  string $reference_id
  string $tx_hash
  string $address
  string $amount_human
}

send [$asset $amount] (
  source = @users:$user_id allowing unbounded overdraft
  destination = @platform:hot_wallet
)

set_tx_meta("event_type", "withdrawal_completed")
set_tx_meta("reference_id", $reference_id)
set_tx_meta("tx_hash", $tx_hash)
set_tx_meta("address", $address)
set_tx_meta("amount_human", $amount_human)
`

// Publish mirrors a settled event into the journal. Only confirmed deposits and
// completed withdrawals move money; other event types are ignored. The event's
// reference id is the transaction reference, so replays are no-ops.
func (j *Journal) Publish(ctx context.Context, event events.Event) error {
	var postTx shared.V2PostTransaction
	switch event.Type {
	case events.TypeDepositConfirmed:
		postTx = j.buildDepositTransaction(event)
	case events.TypeWithdrawalCompleted:
		postTx = j.buildWithdrawalTransaction(event)
	default:
		zap.L().Debug("Journal ignoring event", zap.String("type", event.Type))
		return nil
	}

	_, err := j.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            j.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Journal transaction already recorded",
				zap.String("reference", *postTx.Reference))
			return nil
		}
		return fmt.Errorf("error recording %s in journal: %w", event.Type, err)
	}

	zap.L().Info("Journal transaction recorded",
		zap.String("type", event.Type),
		zap.String("user_id", event.UserId),
		zap.String("reference", *postTx.Reference),
		zap.String("amount", event.Amount.String()))
	return nil
}

func (j *Journal) buildDepositTransaction(event events.Event) shared.V2PostTransaction {
	return j.buildTransaction("deposit:"+event.ReferenceId, numscriptDepositConfirmed, event)
}

func (j *Journal) buildWithdrawalTransaction(event events.Event) shared.V2PostTransaction {
	return j.buildTransaction("withdrawal:"+event.ReferenceId, numscriptWithdrawalCompleted, event)
}

func (j *Journal) buildTransaction(reference, script string, event events.Event) shared.V2PostTransaction {
	postTx := shared.V2PostTransaction{
		Reference: strPtr(reference),
		Script: &shared.V2PostTransactionScript{
			Plain: script,
			Vars: map[string]string{
				"asset":        formanceAsset(j.symbol, j.precision),
				"amount":       toSmallestUnit(event.Amount, j.precision),
				"user_id":      event.UserId,
				"reference_id": event.ReferenceId,
				"tx_hash":      orUnknown(event.TxHash),
				"address":      orUnknown(event.Address),
				"amount_human": event.Amount.String(),
			},
		},
	}
	if !event.OccurredAt.IsZero() {
		ts := event.OccurredAt.UTC().Truncate(time.Microsecond)
		postTx.Timestamp = &ts
	}
	return postTx
}

// toSmallestUnit converts a human amount to the integer string numscript expects.
func toSmallestUnit(amount decimal.Decimal, precision int32) string {
	return amount.Shift(precision).Truncate(0).BigInt().String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
