package formance

import (
	"context"
	"errors"
	"fmt"

	"usdc-vault-custody/internal/events"
	"usdc-vault-custody/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// Compile-time check: *Journal must satisfy events.Sink.
var _ events.Sink = (*Journal)(nil)

const defaultLedgerName = "usdc-vault-custody"

// Journal mirrors settled deposits and withdrawals into a Formance ledger as
// double-entry transactions. The local store stays the source of truth; the
// journal gives finance an independent, append-only audit trail.
type Journal struct {
	client    *v3.Formance
	ledger    string
	symbol    string
	precision int32
}

// NewJournal connects to the stack and creates the ledger if it doesn't already exist.
func NewJournal(ctx context.Context, cfg models.FormanceConfig, token models.TokenConfig) (*Journal, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = defaultLedgerName
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	j := &Journal{
		client:    client,
		ledger:    cfg.LedgerName,
		symbol:    token.Symbol,
		precision: token.Decimals,
	}

	if err := j.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance journal initialized", zap.String("ledger", cfg.LedgerName))
	return j, nil
}

// ensureLedger creates the ledger if it does not already exist.
func (j *Journal) ensureLedger(ctx context.Context) error {
	_, err := j.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: j.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": defaultLedgerName,
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", j.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", j.ledger))
	return nil
}

// ---------- helpers ----------

// formanceAsset returns the Formance UMN notation, e.g. "USDC/6".
func formanceAsset(symbol string, precision int32) string {
	return fmt.Sprintf("%s/%d", symbol, precision)
}

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

func strPtr(s string) *string { return &s }
